package scheduler

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/cachimiro/pax-website-sub000/internal/app"
)

// Scheduler runs the queue dispatch pass and the meeting tracking
// sweeps on a fixed tick. Each pass takes a named Redis lock first, so
// running several scheduler replicas processes each sweep exactly once
// per tick.
type Scheduler struct {
	container *app.Container
}

// New constructs a scheduler.
func New(container *app.Container) *Scheduler {
	return &Scheduler{container: container}
}

// Run executes the scheduling loop until cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	cfg := s.container.Config
	interval := cfg.Scheduler.TickInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.tick(ctx); err != nil && ctx.Err() == nil {
			s.container.Logger.Error("scheduler tick failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) error {
	tracer := otel.Tracer("pax.scheduler")
	sctx, span := tracer.Start(ctx, "scheduler.tick")
	defer span.End()

	logger := s.container.Logger
	services := s.container.Services()
	lock := s.container.Locks().Sweep

	s.withLock(sctx, lock, "queue", func(lctx context.Context) {
		processed, err := services.Dispatch.ProcessQueuedMessages(lctx)
		if err != nil {
			span.RecordError(err)
			logger.Error("scheduler: queue pass failed", zap.Error(err))
			return
		}
		span.SetAttributes(attribute.Int("queue.processed", processed))
		if processed > 0 {
			logger.Info("scheduler: queue pass done", zap.Int("processed", processed))
		}
	})

	s.withLock(sctx, lock, "tracking", func(lctx context.Context) {
		result, err := services.Tracking.ProcessMeetingTracking(lctx)
		if err != nil {
			span.RecordError(err)
			logger.Error("scheduler: tracking sweep failed", zap.Error(err))
		} else if result.Checked > 0 || result.Errors > 0 {
			logger.Info("scheduler: tracking sweep done",
				zap.Int("checked", result.Checked),
				zap.Int("updated", result.Updated),
				zap.Int("errors", result.Errors))
		}

		flagged, err := services.Tracking.MonitorUpcomingBookings(lctx)
		if err != nil {
			span.RecordError(err)
			logger.Error("scheduler: upcoming monitor failed", zap.Error(err))
			return
		}
		if flagged > 0 {
			logger.Info("scheduler: upcoming monitor done", zap.Int("flagged", flagged))
		}
	})

	return nil
}

type sweepLock interface {
	Acquire(ctx context.Context, name string) (func(), bool, error)
}

func (s *Scheduler) withLock(ctx context.Context, lock sweepLock, name string, fn func(context.Context)) {
	release, acquired, err := lock.Acquire(ctx, name)
	if err != nil {
		s.container.Logger.Warn("scheduler: lock acquire failed",
			zap.String("lock", name), zap.Error(err))
		return
	}
	if !acquired {
		s.container.Logger.Debug("scheduler: pass held elsewhere", zap.String("lock", name))
		return
	}
	defer release()
	fn(ctx)
}
