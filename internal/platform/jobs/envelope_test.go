package jobs

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/tradeshop/api/internal/services"
)

func TestEncodeNotificationCarriesTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	env, err := encodeNotification(ctx, services.NotificationMessage{ID: "ntf_4", Kind: services.NotificationOrderStatus, OrderID: " ord_4 "})
	if err != nil {
		t.Fatalf("encodeNotification: %v", err)
	}
	want := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	if env.attrs["traceparent"] != want {
		t.Fatalf("expected traceparent %s, got %q", want, env.attrs["traceparent"])
	}
	if env.attrs["orderId"] != "ord_4" || env.attrs["contentType"] != contentTypeJSON {
		t.Fatalf("unexpected attributes %v", env.attrs)
	}
	if _, ok := env.attrs["userId"]; ok {
		t.Fatalf("blank user id must be omitted")
	}
}

func TestPartitionKey(t *testing.T) {
	if got := partitionKey(services.NotificationMessage{ID: "ntf_1", UserID: "u1"}); got != "u1" {
		t.Fatalf("expected user key, got %q", got)
	}
	if got := partitionKey(services.NotificationMessage{ID: "ntf_1", UserID: " "}); got != "ntf_1" {
		t.Fatalf("expected id fallback, got %q", got)
	}
}
