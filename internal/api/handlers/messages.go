package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/cachimiro/pax-website-sub000/internal/domain"
)

type messageResponse struct {
	ID           string     `json:"id"`
	LeadID       string     `json:"lead_id"`
	Channel      string     `json:"channel"`
	TemplateSlug string     `json:"template_slug"`
	Status       string     `json:"status"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	TriggerStage string     `json:"trigger_stage,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// listMessages returns the newest queue rows for operator review.
func (h *HandlerSet) listMessages(ctx *fiber.Ctx) error {
	limit := 50
	if raw := ctx.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			return fiber.NewError(fiber.StatusBadRequest, "limit must be between 1 and 500")
		}
		limit = parsed
	}

	messages, err := h.messages.ListRecent(ctx.Context(), limit)
	if err != nil {
		return translateError(err)
	}

	out := make([]messageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, toMessageResponse(m))
	}
	return ctx.JSON(fiber.Map{"messages": out})
}

type attemptResponse struct {
	ID         string    `json:"id"`
	Channel    string    `json:"channel"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	ExternalID string    `json:"external_id,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// listMessageAttempts returns the delivery attempts recorded for one
// message, so operators can see why a send failed or was retried.
func (h *HandlerSet) listMessageAttempts(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid message id")
	}

	limit := 20
	if raw := ctx.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			return fiber.NewError(http.StatusBadRequest, "limit must be between 1 and 500")
		}
		limit = parsed
	}

	attempts, err := h.dispatch.RecentAttempts(ctx.Context(), id, limit)
	if err != nil {
		return translateError(err)
	}

	out := make([]attemptResponse, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, attemptResponse{
			ID:         a.ID.String(),
			Channel:    string(a.Channel),
			Status:     string(a.Status),
			Error:      a.Error,
			ExternalID: a.ExternalID,
			DurationMS: a.Duration.Milliseconds(),
			CreatedAt:  a.CreatedAt,
		})
	}
	return ctx.JSON(fiber.Map{"message_id": id.String(), "attempts": out})
}

func toMessageResponse(m domain.QueuedMessage) messageResponse {
	return messageResponse{
		ID:           m.ID.String(),
		LeadID:       m.LeadID.String(),
		Channel:      string(m.Channel),
		TemplateSlug: m.TemplateSlug,
		Status:       string(m.Status),
		ScheduledFor: m.ScheduledFor,
		TriggerStage: string(m.Metadata.TriggerStage),
		SentAt:       m.Metadata.SentAt,
		Error:        m.Metadata.Error,
		CreatedAt:    m.CreatedAt,
	}
}
