package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tradeshop/api/internal/services"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotificationPublisher writes notification messages to a Kafka topic, keyed by user id.
type KafkaNotificationPublisher struct {
	writer messageWriter
	clock  func() time.Time
}

var _ services.NotificationPublisher = (*KafkaNotificationPublisher)(nil)

// NewKafkaWriter builds a synchronous writer for the given brokers and topic.
func NewKafkaWriter(brokers []string, topic string) (*kafka.Writer, error) {
	cleaned := make([]string, 0, len(brokers))
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			cleaned = append(cleaned, b)
		}
	}
	if len(cleaned) == 0 {
		return nil, errors.New("kafka notification publisher: brokers are required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("kafka notification publisher: topic is required")
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(cleaned...),
		Topic:                  strings.TrimSpace(topic),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}, nil
}

// NewKafkaNotificationPublisher wraps a Kafka writer.
func NewKafkaNotificationPublisher(writer messageWriter) (*KafkaNotificationPublisher, error) {
	if writer == nil {
		return nil, errors.New("kafka notification publisher: writer is required")
	}
	return &KafkaNotificationPublisher{
		writer: writer,
		clock:  time.Now,
	}, nil
}

// PublishNotification writes the message; the returned id is the notification id since Kafka
// assigns none on write.
func (p *KafkaNotificationPublisher) PublishNotification(ctx context.Context, message services.NotificationMessage) (string, error) {
	if p == nil || p.writer == nil {
		return "", errors.New("kafka notification publisher: not initialised")
	}
	env, err := encodeNotification(ctx, message)
	if err != nil {
		return "", err
	}
	headers := make([]kafka.Header, 0, len(env.attrs))
	for key, value := range env.attrs {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(partitionKey(message)),
		Value:   env.body,
		Headers: headers,
		Time:    p.clock(),
	}); err != nil {
		return "", fmt.Errorf("publish notification: %w", err)
	}
	return message.ID, nil
}

// Close flushes and closes the writer.
func (p *KafkaNotificationPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
