package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher sends events to whatever event-bus integration the
// deployment uses. It is the concrete shape of the external "event
// bus integration" collaborator of spec.md §1.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// LogPublisher logs events through zap instead of a real bus. Used
// in tests and by operators who haven't wired Kafka.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher builds a LogPublisher.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the event at info level, warn for breach/hold events.
func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	level := p.logger.Info
	switch ev.Type {
	case TypeSLABreached, TypeSLABreachPredicted, TypeAntiFlapHold, TypeWorkerSweepDead:
		level = p.logger.Warn
	}
	level("autoscaler event",
		zap.String("event_id", ev.ID),
		zap.String("type", string(ev.Type)),
		zap.String("key", ev.Key.String()),
		zap.Time("timestamp", ev.Timestamp),
		zap.Any("payload", ev.Payload))
	return nil
}

// Close is a no-op for LogPublisher.
func (p *LogPublisher) Close() error { return nil }

// KafkaConfig configures a KafkaPublisher, grounded on
// pkg/messaging/kafka.go's KafkaConfig.
type KafkaConfig struct {
	Brokers       []string
	Topic         string
	RetryAttempts int
	RetryDelay    time.Duration
}

// KafkaPublisher publishes events as JSON-encoded Kafka messages,
// adapted from pkg/messaging/kafka.go's KafkaMessageBus.
type KafkaPublisher struct {
	writer *kafkago.Writer
	cfg    KafkaConfig
}

// NewKafkaPublisher builds a KafkaPublisher writing to a single topic.
func NewKafkaPublisher(cfg KafkaConfig) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafkago.Writer{
			Addr:     kafkago.TCP(cfg.Brokers...),
			Topic:    cfg.Topic,
			Balancer: &kafkago.LeastBytes{},
		},
		cfg: cfg,
	}
}

// Publish JSON-encodes the event and writes it, retrying per the
// configured attempts (spec.md §7's "local recovery preferred" even
// extends to the ambient event transport).
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(ev.Key.String()),
		Value: data,
		Time:  ev.Timestamp,
	}

	attempts := p.cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if lastErr = p.writer.WriteMessages(ctx, msg); lastErr == nil {
			return nil
		}
		if i < attempts-1 && p.cfg.RetryDelay > 0 {
			time.Sleep(p.cfg.RetryDelay)
		}
	}
	return fmt.Errorf("publish event after %d attempts: %w", attempts, lastErr)
}

// Close flushes and closes the underlying Kafka writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
