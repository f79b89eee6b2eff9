package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"dispatch/internal/metrics"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes every event as JSON keyed by order ID, so one order's
// events stay ordered within a partition.
type Kafka struct {
	w MessageWriter
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

func NewKafka(w MessageWriter) *Kafka {
	return &Kafka{w: w}
}

func (k *Kafka) Notify(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding order event: %w", err)
	}
	err = k.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.OrderID),
		Value: value,
		Time:  e.At,
	})
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues("kafka", "error").Inc()
		return fmt.Errorf("publishing order event: %w", err)
	}
	metrics.NotificationsTotal.WithLabelValues("kafka", "ok").Inc()
	return nil
}

func (k *Kafka) Close() error {
	return k.w.Close()
}
