package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/tradeshop/api/internal/services"
)

const contentTypeJSON = "application/json"

// envelope is the broker-neutral form of a notification: a JSON body plus string attributes
// carrying routing fields and the caller's trace context.
type envelope struct {
	body  []byte
	attrs map[string]string
}

func encodeNotification(ctx context.Context, message services.NotificationMessage) (envelope, error) {
	body, err := json.Marshal(message)
	if err != nil {
		return envelope{}, fmt.Errorf("marshal notification: %w", err)
	}
	attrs := map[string]string{"contentType": contentTypeJSON}
	for key, value := range map[string]string{
		"notificationId": message.ID,
		"kind":           string(message.Kind),
		"userId":         message.UserID,
		"orderId":        message.OrderID,
	} {
		if value = strings.TrimSpace(value); value != "" {
			attrs[key] = value
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(attrs))
	return envelope{body: body, attrs: attrs}, nil
}

// partitionKey keeps one user's notifications in order; messages without a user fall back to
// their own id.
func partitionKey(message services.NotificationMessage) string {
	if key := strings.TrimSpace(message.UserID); key != "" {
		return key
	}
	return message.ID
}
