package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"habit-streak-backend/internal/config"
	"habit-streak-backend/internal/models"

	"github.com/segmentio/kafka-go"
)

// Event types published to the event stream
const (
	EventSubmitted = "submission.created"
	EventDecided   = "submission.decided"
	EventReminded  = "habit.reminded"
)

// Event describes a state change in the review workflow
type Event struct {
	Type         string         `json:"type"`
	UserID       string         `json:"user_id"`
	HabitID      string         `json:"habit_id"`
	SubmissionID string         `json:"submission_id,omitempty"`
	Outcome      models.Outcome `json:"outcome,omitempty"`
	Streak       *models.Streak `json:"streak,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// EventPublisher delivers workflow events downstream
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher discards events
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON to a Kafka topic, keyed by user id
// so that one user's events stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
}

// NewEventPublisher returns a Kafka publisher, or a NopPublisher when no brokers are configured
func NewEventPublisher(cfg config.KafkaConfig) EventPublisher {
	if len(cfg.Brokers) == 0 {
		return NopPublisher{}
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
		},
	}
}

// Publish writes one event
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.UserID),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close flushes and releases the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
