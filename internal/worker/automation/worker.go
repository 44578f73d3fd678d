package automation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cachimiro/pax-website-sub000/internal/app"
	"github.com/cachimiro/pax-website-sub000/internal/queue"
	automationsvc "github.com/cachimiro/pax-website-sub000/internal/service/automation"
)

// Worker consumes stage-change events and runs the automation fan-out
// for each. Running it off the API path means a slow template, payment
// or task write can never delay a stage update.
type Worker struct {
	container *app.Container
}

// New creates a new automation worker instance.
func New(container *app.Container) *Worker {
	return &Worker{container: container}
}

// Run starts the worker loop.
func (w *Worker) Run(ctx context.Context) error {
	cfg := w.container.Config
	reader := w.container.Kafka.NewReader(cfg.Kafka.StageEventTopic, cfg.Kafka.ConsumerGroupID)
	defer reader.Close()

	w.container.Logger.Info("automation worker started",
		zap.String("topic", cfg.Kafka.StageEventTopic),
		zap.String("group", cfg.Kafka.ConsumerGroupID))

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.container.Logger.Error("automation worker: fetch message", zap.Error(err))
			continue
		}

		if err := w.processMessage(ctx, reader, m); err != nil {
			w.container.Logger.Error("automation worker: process", zap.Error(err))
		}
	}
}

func (w *Worker) processMessage(ctx context.Context, reader *kafka.Reader, m kafka.Message) error {
	var event queue.StageEventMessage
	if err := json.Unmarshal(m.Value, &event); err != nil {
		// A malformed event can never succeed; commit it away.
		_ = reader.CommitMessages(ctx, m)
		return fmt.Errorf("unmarshal stage event: %w", err)
	}

	tracer := otel.Tracer("pax.automationworker")
	sctx, span := tracer.Start(ctx, "automation.stage_event", trace.WithAttributes(
		attribute.String("opportunity.id", event.OpportunityID.String()),
		attribute.String("stage", string(event.Stage)),
	))
	defer span.End()

	w.container.Services().Automation.RunStageAutomations(sctx, automationsvc.Trigger{
		OpportunityID: event.OpportunityID,
		Stage:         event.Stage,
		BookingTime:   event.BookingTime,
		MeetLink:      event.MeetLink,
	})

	if err := reader.CommitMessages(sctx, m); err != nil {
		span.RecordError(err)
		return fmt.Errorf("commit message: %w", err)
	}
	return nil
}
