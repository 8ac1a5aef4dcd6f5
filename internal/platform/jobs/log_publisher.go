package jobs

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/tradeshop/api/internal/services"
)

// LogNotificationPublisher writes notifications to the log instead of a queue. It backs local
// development and deployments without a notification transport.
type LogNotificationPublisher struct {
	logger *zap.Logger
}

var _ services.NotificationPublisher = (*LogNotificationPublisher)(nil)

// NewLogNotificationPublisher constructs a log-only publisher.
func NewLogNotificationPublisher(logger *zap.Logger) (*LogNotificationPublisher, error) {
	if logger == nil {
		return nil, errors.New("log notification publisher: logger is required")
	}
	return &LogNotificationPublisher{logger: logger.Named("notifications")}, nil
}

func (p *LogNotificationPublisher) PublishNotification(_ context.Context, message services.NotificationMessage) (string, error) {
	p.logger.Info("notification",
		zap.String("notificationId", message.ID),
		zap.String("kind", string(message.Kind)),
		zap.Strings("recipients", message.Recipients),
		zap.String("subject", message.Subject),
		zap.String("userId", message.UserID),
		zap.String("orderId", message.OrderID),
	)
	return message.ID, nil
}
