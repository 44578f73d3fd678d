package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// StagePublisher publishes stage-change events to Kafka.
type StagePublisher struct {
	writer *kafka.Writer
}

// NewStagePublisher constructs a publisher for the given topic.
func NewStagePublisher(k *Kafka, topic string) *StagePublisher {
	return &StagePublisher{
		writer: k.NewWriter(topic),
	}
}

// PublishStageEvent writes the stage event to Kafka, keyed by
// opportunity so events for one opportunity stay ordered.
func (p *StagePublisher) PublishStageEvent(ctx context.Context, msg StageEventMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("stage publisher: marshal message: %w", err)
	}

	record := kafka.Message{
		Key:   msg.OpportunityID[:],
		Value: value,
		Time:  time.Now().UTC(),
	}

	if err := p.writer.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("stage publisher: write message: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (p *StagePublisher) Close() error {
	return p.writer.Close()
}
