package services

import (
	"context"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
)

var plainText = bluemonday.StrictPolicy()

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func noopLogger(context.Context, string, map[string]any) {}

func utcClock(clock func() time.Time) func() time.Time {
	if clock == nil {
		clock = time.Now
	}
	return func() time.Time { return clock().UTC() }
}

func defaultIDGenerator(gen func() string) func() string {
	if gen != nil {
		return gen
	}
	return func() string { return ulid.Make().String() }
}

// sanitizeText strips markup and surrounding whitespace from free-form input. The result is
// plain text, so entities escaped by the policy are decoded again.
func sanitizeText(value string) string {
	return strings.TrimSpace(html.UnescapeString(plainText.Sanitize(strings.TrimSpace(value))))
}

func sanitizeTextPtr(value *string) *string {
	if value == nil {
		return nil
	}
	cleaned := sanitizeText(*value)
	return &cleaned
}

// firstNonEmpty returns the first value that is not blank, trimmed.
func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}
