package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"plantstore-be/internal/logger"
	"plantstore-be/internal/metrics"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Type string

const (
	PaymentCompleted Type = "payment.completed"
	PaymentFailed    Type = "payment.failed"
	PaymentReview    Type = "payment.review"
	OrderCreated     Type = "order.created"
)

// Event is a payment or order lifecycle fact. Key partitions events of one checkout together.
type Event struct {
	Type       Type        `json:"type"`
	Key        string      `json:"key"`
	OccurredAt time.Time   `json:"occurredAt"`
	Data       interface{} `json:"data"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher writes events to topic. With no brokers it returns a Noop publisher.
func NewKafkaPublisher(brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		logger.L().Info("no kafka brokers configured, lifecycle events disabled")
		return Noop{}
	}

	return &kafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (p *kafkaPublisher) Publish(ctx context.Context, e Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.Type, err)
	}

	msg := kafka.Message{
		Key:   []byte(e.Key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}
	if id := logger.RequestIDFrom(ctx); id != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "request_id", Value: []byte(id)})
	}

	err = p.writer.WriteMessages(ctx, msg)
	metrics.EventsPublished.WithLabelValues(string(e.Type), metrics.Outcome(err == nil)).Inc()
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}

	logger.FromCtx(ctx).Debug("event published", zap.String("type", string(e.Type)), zap.String("key", e.Key))
	return nil
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

// PublishLogged publishes e and logs a failure instead of returning it.
func PublishLogged(ctx context.Context, p Publisher, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		logger.FromCtx(ctx).Warn("failed to publish event",
			zap.String("type", string(e.Type)),
			zap.String("key", e.Key),
			zap.Error(err),
		)
	}
}
