package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// processQueue runs one dispatch pass over the message queue. Exposed
// for external cron callers; the scheduler binary runs the same pass on
// a ticker.
func (h *HandlerSet) processQueue(ctx *fiber.Ctx) error {
	processed, err := h.dispatch.ProcessQueuedMessages(ctx.Context())
	if err != nil {
		return translateError(err)
	}
	return ctx.JSON(fiber.Map{"processed": processed})
}

// trackMeetings runs the post-meeting sweep and the pre-meeting monitor
// back to back.
func (h *HandlerSet) trackMeetings(ctx *fiber.Ctx) error {
	result, err := h.tracking.ProcessMeetingTracking(ctx.Context())
	if err != nil {
		return translateError(err)
	}

	flagged, err := h.tracking.MonitorUpcomingBookings(ctx.Context())
	if err != nil {
		// The sweep already ran; report its numbers with the monitor
		// failure rather than discarding them.
		h.container.Logger.Error("upcoming booking monitor failed", zap.Error(err))
	}

	return ctx.JSON(fiber.Map{
		"checked":            result.Checked,
		"updated":            result.Updated,
		"errors":             result.Errors,
		"pre_meeting_flagged": flagged,
	})
}
