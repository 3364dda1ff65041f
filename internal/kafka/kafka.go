// Package kafka publishes kill switch threat events to a Kafka topic, for
// fleets that centralize triggers in a SOC pipeline. A triggered kill
// switch produces at most a handful of messages per incident, so the
// producer is fully synchronous: a trigger either lands in the pipeline or
// fails visibly in the action log.
package kafka

import (
	"fmt"
	"time"
)

// Config holds producer settings for the threat-event topic.
type Config struct {
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	ClientID string   `yaml:"client_id"`
	// RequiredAcks: 0 fire-and-forget, 1 leader, -1 all in-sync replicas.
	// Threat events default to -1; losing one defeats the point.
	RequiredAcks int           `yaml:"required_acks"`
	MaxAttempts  int           `yaml:"max_attempts"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultConfig returns the default producer configuration.
func DefaultConfig() *Config {
	return &Config{
		Brokers:      []string{"localhost:9092"},
		Topic:        "ransomwatch.threats",
		ClientID:     "ransomwatchd",
		RequiredAcks: -1,
		MaxAttempts:  3,
		BatchTimeout: 100 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka: at least one broker is required")
	}
	for _, b := range c.Brokers {
		if b == "" {
			return fmt.Errorf("kafka: broker address must not be empty")
		}
	}
	if c.Topic == "" {
		return fmt.Errorf("kafka: topic is required")
	}
	switch c.RequiredAcks {
	case -1, 0, 1:
	default:
		return fmt.Errorf("kafka: required_acks must be -1, 0, or 1, got %d", c.RequiredAcks)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("kafka: max_attempts must be positive, got %d", c.MaxAttempts)
	}
	return nil
}
