package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/botfolio/riskengine/internal/domain"
)

// ProducerConfig holds Kafka connection parameters for the close-event topic.
type ProducerConfig struct {
	Brokers []string
	Topic   string
}

// Producer publishes close events to the analytics Kafka topic. Events are
// keyed by bot ID so one bot's history stays ordered within a partition.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer creates a Producer.
func NewProducer(cfg ProducerConfig, logger *slog.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Producer{
		writer: writer,
		logger: logger.With(slog.String("component", "analytics_producer")),
	}
}

// PublishClose writes one close event to the topic.
func (p *Producer) PublishClose(ctx context.Context, event domain.CloseEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("analytics: marshal close event %s: %w", event.PositionID, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.BotID),
		Value: value,
		Time:  event.ClosedAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("analytics: publish close event %s: %w", event.PositionID, err)
	}

	p.logger.DebugContext(ctx, "close event published",
		slog.String("position_id", event.PositionID),
		slog.String("bot_id", event.BotID),
	)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
