package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/tradeshop/api/internal/platform/requestctx"
)

const (
	maxCodeLength    = 80
	maxMessageLength = 512
)

// Error is an API failure rendered as the JSON envelope
// {"error": code, "message": ..., "status": ..., "request_id": ..., "trace_id": ...}.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

// NewError builds an Error. A zero status becomes 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    singleLine(code, maxCodeLength),
		Message: singleLine(message, maxMessageLength),
		Status:  status,
	}
}

func (e Error) Error() string {
	return e.Code + ": " + e.Message
}

// WithDetails merges extra top-level fields into the envelope. Reserved keys are ignored.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	e.Details = merged
	return e
}

type envelope struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

var reservedKeys = map[string]struct{}{
	"error": {}, "message": {}, "status": {}, "request_id": {}, "trace_id": {},
}

// WriteError renders err, stamping the chi request ID and trace ID found on ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	if err.Status == 0 {
		err.Status = http.StatusInternalServerError
	}
	body := envelope{
		Error:     err.Code,
		Message:   err.Message,
		Status:    err.Status,
		RequestID: singleLine(middleware.GetReqID(ctx), maxCodeLength),
		TraceID:   requestctx.TraceID(ctx),
	}
	if len(err.Details) == 0 {
		WriteJSON(w, err.Status, body)
		return
	}

	payload := map[string]any{
		"error":   body.Error,
		"message": body.Message,
		"status":  body.Status,
	}
	if body.RequestID != "" {
		payload["request_id"] = body.RequestID
	}
	if body.TraceID != "" {
		payload["trace_id"] = body.TraceID
	}
	for k, v := range err.Details {
		if _, reserved := reservedKeys[k]; !reserved {
			payload[k] = v
		}
	}
	WriteJSON(w, err.Status, payload)
}

func singleLine(value string, limit int) string {
	value = strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(value))
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
