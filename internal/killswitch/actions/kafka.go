package actions

import (
	"context"
	"fmt"

	"ransomwatch/internal/kafka"
	"ransomwatch/internal/killswitch"
)

// threatEvent is the JSON shape published to Kafka for each triggered threat.
type threatEvent struct {
	ID            string   `json:"id"`
	Level         string   `json:"level"`
	Detector      string   `json:"detector"`
	Description   string   `json:"description"`
	AffectedFiles []string `json:"affected_files"`
	TimestampUnix int64    `json:"timestamp_unix"`
}

// KafkaAction publishes a JSON threat event to a Kafka topic, for
// deployments that correlate kill switch triggers with a broader event
// pipeline.
type KafkaAction struct {
	producer *kafka.Producer
}

// NewKafkaAction wraps an already-constructed Kafka producer.
func NewKafkaAction(producer *kafka.Producer) *KafkaAction {
	return &KafkaAction{producer: producer}
}

func (k *KafkaAction) Name() string { return "kafka_publish" }

func (k *KafkaAction) Execute(ctx context.Context, threat killswitch.ThreatInfo) error {
	event := threatEvent{
		ID:            threat.ID,
		Level:         threat.Level.String(),
		Detector:      threat.DetectorName,
		Description:   threat.Description,
		AffectedFiles: threat.AffectedFiles,
		TimestampUnix: threat.Timestamp.Unix(),
	}

	if err := k.producer.ProduceJSON(ctx, threat.ID, event); err != nil {
		return fmt.Errorf("kafka_publish: %w", err)
	}
	return nil
}
