package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const flushTimeout = 5 * time.Second

var _ Publisher = (*Producer)(nil)

type Producer struct {
	writer *kafka.Writer
	log    *slog.Logger
}

// NewProducer writes to topic asynchronously. Failed deliveries are logged
// from the writer's completion callback.
func NewProducer(brokers []string, topic string, log *slog.Logger) *Producer {
	l := log.With("component", "events.producer", "topic", topic)
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           flushTimeout,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				l.Error("kafka_delivery_failed", "messages", len(messages), "error", err)
				return
			}
			l.Debug("kafka_delivered", "messages", len(messages))
		},
	}
	return &Producer{writer: w, log: l}
}

func (p *Producer) PublishEvent(ctx context.Context, key string, event Event) error {
	msg, err := message(key, event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write failed: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func message(key string, event Event) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka: json.Marshal failed: %w", err)
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}, nil
}
