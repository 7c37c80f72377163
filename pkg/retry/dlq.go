package retry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DeadLetter is a message that could not be processed and is parked for replay
type DeadLetter struct {
	ID       string            `json:"id"`
	Kind     string            `json:"kind"` // e.g. paymongo.webhook
	Key      string            `json:"key"`
	Payload  json.RawMessage   `json:"payload"`
	Error    string            `json:"error"`
	Attempts int               `json:"attempts"`
	FailedAt time.Time         `json:"failed_at"`
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// DLQPublisher parks dead letters somewhere durable
type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, msg *DeadLetter) error
}

// JSONProducer is the subset of the Kafka producer the DLQ needs
type JSONProducer interface {
	ProduceJSON(ctx context.Context, topic, key string, value interface{}, headers map[string]string) error
}

// KafkaDLQPublisher writes dead letters to "<topic>.dlq"
type KafkaDLQPublisher struct {
	producer JSONProducer
	topic    string
	source   string
}

// NewKafkaDLQPublisher creates a DLQ publisher for the given base topic
func NewKafkaDLQPublisher(producer JSONProducer, baseTopic, source string) *KafkaDLQPublisher {
	return &KafkaDLQPublisher{
		producer: producer,
		topic:    DLQTopic(baseTopic),
		source:   source,
	}
}

// DLQTopic returns the dead letter topic for a base topic
func DLQTopic(baseTopic string) string {
	return baseTopic + ".dlq"
}

// PublishToDLQ publishes msg as JSON keyed by msg.Key
func (p *KafkaDLQPublisher) PublishToDLQ(ctx context.Context, msg *DeadLetter) error {
	if msg == nil {
		return errors.New("dead letter cannot be nil")
	}
	if msg.FailedAt.IsZero() {
		msg.FailedAt = time.Now()
	}
	if msg.Source == "" {
		msg.Source = p.source
	}

	headers := map[string]string{
		"content_type": "application/json",
		"kind":         msg.Kind,
		"error":        msg.Error,
		"attempts":     fmt.Sprintf("%d", msg.Attempts),
		"source":       msg.Source,
	}

	if err := p.producer.ProduceJSON(ctx, p.topic, msg.Key, msg, headers); err != nil {
		return fmt.Errorf("failed to publish dead letter %s: %w", msg.ID, err)
	}
	return nil
}

// NoOpDLQPublisher drops dead letters
type NoOpDLQPublisher struct{}

// PublishToDLQ does nothing
func (NoOpDLQPublisher) PublishToDLQ(ctx context.Context, msg *DeadLetter) error {
	return nil
}
