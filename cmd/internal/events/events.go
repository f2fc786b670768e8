// Package events publishes message lifecycle events for downstream consumers
// (notifications, analytics). Payloads never include message text.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/karlocehulic19/messaging-app-sub000/cmd/internal/messages"
)

// TypeMessageCreated is the event type emitted after a message is stored.
const TypeMessageCreated = "message.created"

// MessageCreated is the wire payload of a message.created event.
type MessageCreated struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	MessageID  int64     `json:"id"`
	Sender     string    `json:"sender"`
	Receiver   string    `json:"receiver"`
	Date       time.Time `json:"date"`
	OccurredAt time.Time `json:"occurred_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events to one Kafka topic. It implements messages.EventSink.
type KafkaSink struct {
	w   messageWriter
	now func() time.Time
}

// KafkaConfig selects the brokers and topic.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// NewKafkaSink builds an async kafka-go writer. Delivery is best effort:
// the writer batches and does not wait for broker acks.
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("events: no kafka brokers")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("events: empty kafka topic")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
	}
	return &KafkaSink{w: w, now: time.Now}, nil
}

// MessageCreated publishes a message.created event keyed by conversation, so
// events for one pair land on one partition in order.
func (s *KafkaSink) MessageCreated(ctx context.Context, m messages.Message) error {
	ev := MessageCreated{
		EventID:    uuid.NewString(),
		Type:       TypeMessageCreated,
		MessageID:  m.ID,
		Sender:     m.Sender,
		Receiver:   m.Receiver,
		Date:       m.Date,
		OccurredAt: s.now().UTC(),
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ConversationKey(m.Sender, m.Receiver)),
		Value: b,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(TypeMessageCreated)},
		},
		Time: ev.OccurredAt,
	})
}

// Close flushes pending writes.
func (s *KafkaSink) Close() error { return s.w.Close() }

// ConversationKey is the order-independent key of the pair {a, b}.
func ConversationKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// Noop drops every event. It is used when no broker is configured.
type Noop struct{}

func (Noop) MessageCreated(context.Context, messages.Message) error { return nil }

func (Noop) Close() error { return nil }
