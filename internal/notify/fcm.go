package notify

import (
	"context"
	"errors"
	"fmt"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"

	"dispatch/internal/metrics"
)

// MessageSender is satisfied by *messaging.Client.
type MessageSender interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

// FCM pushes one topic message per recipient. Devices subscribe to
// "<role>_<id>" topics, so no token lookup is needed here.
type FCM struct {
	client MessageSender
	logger *zap.Logger
}

func NewFCM(client MessageSender, logger *zap.Logger) *FCM {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FCM{client: client, logger: logger}
}

func Topic(r Recipient) string {
	return fmt.Sprintf("%s_%s", r.Role, r.ID)
}

func (f *FCM) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, r := range e.Recipients {
		msg := buildMessage(r, e)
		messageID, err := f.client.Send(ctx, msg)
		if err != nil {
			metrics.NotificationsTotal.WithLabelValues("fcm", "error").Inc()
			errs = append(errs, fmt.Errorf("sending FCM to topic %s: %w", msg.Topic, err))
			continue
		}
		metrics.NotificationsTotal.WithLabelValues("fcm", "ok").Inc()
		f.logger.Debug("FCM sent",
			zap.String("order_id", string(e.OrderID)),
			zap.String("topic", msg.Topic),
			zap.String("message_id", messageID),
		)
	}
	return errors.Join(errs...)
}

func buildMessage(r Recipient, e Event) *messaging.Message {
	data := map[string]string{
		"type":         string(e.Type),
		"order_id":     string(e.OrderID),
		"order_number": e.OrderNumber,
		"status":       e.Status,
	}
	for k, v := range e.Data {
		data[k] = v
	}
	return &messaging.Message{
		Topic: Topic(r),
		Data:  data,
		Notification: &messaging.Notification{
			Title: title(e),
			Body:  fmt.Sprintf("Order %s: %s", e.OrderNumber, e.Status),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
}

func title(e Event) string {
	switch e.Type {
	case EventOrderCreated:
		return "New order"
	case EventOrderAvailable:
		return "Delivery available nearby"
	}
	return "Order update"
}
