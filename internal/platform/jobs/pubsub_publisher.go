package jobs

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/tradeshop/api/internal/services"
)

// PubSubNotificationPublisher sends notifications to a Pub/Sub topic with per-user ordering.
type PubSubNotificationPublisher struct {
	topic *pubsub.Topic
}

var _ services.NotificationPublisher = (*PubSubNotificationPublisher)(nil)

// NewPubSubNotificationPublisher enables message ordering on topic and wraps it.
func NewPubSubNotificationPublisher(topic *pubsub.Topic) (*PubSubNotificationPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub notification publisher: topic is required")
	}
	topic.EnableMessageOrdering = true
	return &PubSubNotificationPublisher{topic: topic}, nil
}

// PublishNotification blocks until Pub/Sub acknowledges the message and returns its server id.
func (p *PubSubNotificationPublisher) PublishNotification(ctx context.Context, message services.NotificationMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub notification publisher: not initialised")
	}
	env, err := encodeNotification(ctx, message)
	if err != nil {
		return "", err
	}

	key := partitionKey(message)
	id, err := p.topic.Publish(ctx, &pubsub.Message{
		Data:        env.body,
		Attributes:  env.attrs,
		OrderingKey: key,
	}).Get(ctx)
	if err != nil {
		// An ordered key stays paused after a failure until resumed.
		p.topic.ResumePublish(key)
		return "", fmt.Errorf("publish notification %s: %w", message.ID, err)
	}
	return id, nil
}

// Close flushes buffered messages and stops the topic's publish goroutines.
func (p *PubSubNotificationPublisher) Close() error {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
	return nil
}
