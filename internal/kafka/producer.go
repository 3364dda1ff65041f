package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/segmentio/kafka-go"
)

// ErrProducerClosed is returned by ProduceJSON after Close.
var ErrProducerClosed = errors.New("kafka: producer is closed")

// Producer writes threat events to the configured topic.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewProducer constructs a producer. Construction does not dial; the
// first ProduceJSON does.
func NewProducer(config *Config, logger *slog.Logger) (*Producer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequiredAcks(config.RequiredAcks),
		MaxAttempts:  config.MaxAttempts,
		BatchTimeout: config.BatchTimeout,
		WriteTimeout: config.WriteTimeout,
		Async:        false,
	}

	logger.Info("kafka producer initialized", "brokers", config.Brokers, "topic", config.Topic)
	return &Producer{writer: writer, logger: logger}, nil
}

// ProduceJSON marshals value and publishes it keyed by key, so events for
// the same threat land on the same partition in order.
func (p *Producer) ProduceJSON(ctx context.Context, key string, value interface{}) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrProducerClosed
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kafka: failed to marshal event: %w", err)
	}

	msg := kafka.Message{Key: []byte(key), Value: data}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: failed to write message: %w", err)
	}
	return nil
}

// Close flushes pending messages and shuts the writer down. Idempotent.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}
