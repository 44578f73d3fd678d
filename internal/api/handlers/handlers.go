package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/cachimiro/pax-website-sub000/internal/app"
	"github.com/cachimiro/pax-website-sub000/internal/queue"
	"github.com/cachimiro/pax-website-sub000/internal/repository"
	dispatchsvc "github.com/cachimiro/pax-website-sub000/internal/service/dispatch"
	trackingsvc "github.com/cachimiro/pax-website-sub000/internal/service/tracking"
)

// HandlerSet bundles all HTTP handlers.
type HandlerSet struct {
	container *app.Container
	dispatch  *dispatchsvc.Service
	tracking  *trackingsvc.Service
	stagePub  *queue.StagePublisher
	opps      repository.OpportunityRepository
	messages  repository.MessageLogRepository
}

// NewHandlerSet creates a new handler bundle.
func NewHandlerSet(container *app.Container) *HandlerSet {
	services := container.Services()
	repos := container.Repositories()
	return &HandlerSet{
		container: container,
		dispatch:  services.Dispatch,
		tracking:  services.Tracking,
		stagePub:  container.Publishers().Stage,
		opps:      repos.Opps,
		messages:  repos.Messages,
	}
}

// Register wires all routes onto the fiber app.
func (h *HandlerSet) Register(app *fiber.App) {
	app.Get("/healthz", h.health)

	api := app.Group("/api")
	v1 := api.Group("/v1")

	opportunities := v1.Group("/opportunities")
	opportunities.Post("/:id/stage", h.updateStage)

	cron := v1.Group("/cron")
	cron.Post("/process-queue", h.processQueue)
	cron.Post("/track-meetings", h.trackMeetings)

	v1.Get("/messages", h.listMessages)
	v1.Get("/messages/:id/attempts", h.listMessageAttempts)
}

// ErrorHandler provides centralized error responses.
func (h *HandlerSet) ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()

	if fiberErr, ok := err.(*fiber.Error); ok {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	if code == fiber.StatusInternalServerError {
		h.container.Logger.Error("request failed", zap.Error(err))
	}

	return ctx.Status(code).JSON(fiber.Map{
		"error":    message,
		"trace_id": ctx.GetRespHeader("Trace-Id"),
	})
}

func (h *HandlerSet) health(ctx *fiber.Ctx) error {
	healthCtx, cancel := context.WithTimeout(ctx.Context(), 2*time.Second)
	defer cancel()

	errs := make(map[string]string)

	if err := h.container.Postgres.DB().PingContext(healthCtx); err != nil {
		errs["postgres"] = err.Error()
	}

	if err := h.container.Redis.Inner().Ping(healthCtx).Err(); err != nil {
		errs["redis"] = err.Error()
	}

	if err := h.container.Scylla.Session().Query("SELECT now() FROM system.local").WithContext(healthCtx).Exec(); err != nil {
		errs["scylla"] = err.Error()
	}

	status := fiber.StatusOK
	if len(errs) > 0 {
		status = fiber.StatusServiceUnavailable
	}

	return ctx.Status(status).JSON(fiber.Map{"status": "ok", "errors": errs})
}
