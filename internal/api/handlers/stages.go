package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cachimiro/pax-website-sub000/internal/domain"
	"github.com/cachimiro/pax-website-sub000/internal/queue"
)

type updateStageRequest struct {
	Stage       string     `json:"stage"`
	BookingTime *time.Time `json:"booking_time,omitempty"`
	MeetLink    string     `json:"meet_link,omitempty"`
}

// updateStage writes the new pipeline stage and hands the automation
// fan-out to the worker via Kafka. The stage write is the source of
// truth; a publish failure is logged and surfaced in the response but
// never rolls the stage back.
func (h *HandlerSet) updateStage(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid opportunity id")
	}

	var req updateStageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	stage := domain.Stage(req.Stage)
	if !stage.Valid() {
		return fiber.NewError(http.StatusBadRequest, "unknown stage: "+req.Stage)
	}

	if err := h.opps.UpdateStage(ctx.Context(), id, stage); err != nil {
		return translateError(err)
	}

	event := queue.StageEventMessage{
		OpportunityID: id,
		Stage:         stage,
		BookingTime:   req.BookingTime,
		MeetLink:      req.MeetLink,
		OccurredAt:    time.Now().UTC(),
	}

	automationQueued := true
	if err := h.stagePub.PublishStageEvent(ctx.Context(), event); err != nil {
		automationQueued = false
		h.container.Logger.Error("stage event publish failed",
			zap.String("opportunity_id", id.String()),
			zap.String("stage", string(stage)),
			zap.Error(err))
	}

	return ctx.JSON(fiber.Map{
		"id":                id.String(),
		"stage":             string(stage),
		"automation_queued": automationQueued,
	})
}
