package services

import (
	"context"
	"encoding/json"
	"time"

	aws_pkg "checkout-service/pkg/aws"

	"go.uber.org/zap"
)

type NotificationType string

const (
	NotifySuccess NotificationType = "success"
	NotifyError   NotificationType = "error"
	NotifyWarning NotificationType = "warning"
)

// Notification is the single terminal signal of a checkout attempt.
type Notification struct {
	EventType      string           `json:"event_type"`
	Type           NotificationType `json:"type"`
	AttemptID      string           `json:"attempt_id"`
	IdempotencyKey string           `json:"idempotency_key"`
	UserID         string           `json:"user_id"`
	OrderID        string           `json:"order_id,omitempty"`
	Message        string           `json:"message"`
	ErrorKind      string           `json:"error_kind,omitempty"`
	Field          string           `json:"field,omitempty"`
	RedirectURL    string           `json:"redirect_url,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}

// Notifier delivers terminal outcomes to the user channel.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// SNSNotifier publishes notifications to an SNS topic consumed by the
// notification service. A nil publisher or empty topic only logs.
type SNSNotifier struct {
	publisher aws_pkg.SNSPublisher
	topicArn  string
	log       *zap.Logger
}

func NewSNSNotifier(publisher aws_pkg.SNSPublisher, topicArn string, log *zap.Logger) *SNSNotifier {
	return &SNSNotifier{publisher: publisher, topicArn: topicArn, log: log}
}

func (n *SNSNotifier) Notify(ctx context.Context, msg Notification) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if n.publisher == nil || n.topicArn == "" {
		n.log.Info("checkout notification (no topic configured)",
			zap.String("event_type", msg.EventType),
			zap.String("attempt_id", msg.AttemptID),
			zap.String("type", string(msg.Type)),
		)
		return nil
	}

	data, err := json.Marshal(msg)
	if err != nil {
		n.log.Error("Failed to marshal checkout notification", zap.Error(err))
		return err
	}
	attrs := map[string]string{"event_type": msg.EventType, "type": string(msg.Type)}
	if err := n.publisher.Publish(ctx, n.topicArn, data, attrs); err != nil {
		n.log.Error("Failed to publish checkout notification",
			zap.String("attempt_id", msg.AttemptID),
			zap.Error(err),
		)
		return err
	}
	return nil
}
