package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tradeshop/api/internal/services"
)

func newTestTopic(t *testing.T) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "tradeshop-test",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "notifications")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	return srv, topic
}

func TestPubSubNotificationPublisherPublishesOrderedMessages(t *testing.T) {
	srv, topic := newTestTopic(t)
	publisher, err := NewPubSubNotificationPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubNotificationPublisher: %v", err)
	}
	defer publisher.Close()
	if !topic.EnableMessageOrdering {
		t.Fatalf("expected ordering to be enabled")
	}

	ctx := context.Background()
	sent := []services.NotificationMessage{
		{ID: "ntf_1", Kind: services.NotificationOrderConfirmation, Recipients: []string{"ann@example.com"}, UserID: "u1", OrderID: "ord_1", CreatedAt: time.Date(2026, 5, 6, 9, 0, 0, 0, time.UTC)},
		{ID: "ntf_2", Kind: services.NotificationOrderStatus, Recipients: []string{"ann@example.com"}, UserID: "u1", OrderID: "ord_1", CreatedAt: time.Date(2026, 5, 6, 9, 5, 0, 0, time.UTC)},
	}
	for _, msg := range sent {
		id, err := publisher.PublishNotification(ctx, msg)
		if err != nil {
			t.Fatalf("PublishNotification: %v", err)
		}
		if id == "" {
			t.Fatalf("expected server id")
		}
	}

	messages := srv.Messages()
	if len(messages) != len(sent) {
		t.Fatalf("expected %d messages, got %d", len(sent), len(messages))
	}
	for i, m := range messages {
		var payload services.NotificationMessage
		if err := json.Unmarshal(m.Data, &payload); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if payload.ID != sent[i].ID || payload.Kind != sent[i].Kind {
			t.Fatalf("message %d: unexpected payload %+v", i, payload)
		}
		if m.Attributes["kind"] != string(sent[i].Kind) || m.Attributes["userId"] != "u1" || m.Attributes["contentType"] != contentTypeJSON {
			t.Fatalf("message %d: unexpected attributes %v", i, m.Attributes)
		}
	}
}

func TestPubSubNotificationPublisherRejectsNilTopic(t *testing.T) {
	if _, err := NewPubSubNotificationPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
	var p *PubSubNotificationPublisher
	if _, err := p.PublishNotification(context.Background(), services.NotificationMessage{ID: "ntf_1"}); err == nil {
		t.Fatalf("expected error from nil publisher")
	}
}
