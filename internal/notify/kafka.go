package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/campusdesk/ticket-sla/internal/config"
	"github.com/campusdesk/ticket-sla/internal/events"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaMirror republishes every dispatched event to a Kafka topic, keyed by
// ticket id so one ticket's events stay ordered within a partition.
type KafkaMirror struct {
	writer messageWriter
}

// NewKafkaMirror returns nil when no brokers are configured.
func NewKafkaMirror(cfg config.NotificationConfig) *KafkaMirror {
	if len(cfg.KafkaBrokers) == 0 {
		return nil
	}
	return &KafkaMirror{writer: &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 10 * time.Second,
	}}
}

// Handle is an events.EventHandler.
func (k *KafkaMirror) Handle(ctx context.Context, event events.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(event.Ticket.ID),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka mirror: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaMirror) Close() error {
	if k == nil {
		return nil
	}
	return k.writer.Close()
}
