package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/cachimiro/pax-website-sub000/internal/domain"
)

// StageEventMessage announces one opportunity stage change. The API
// writes the stage synchronously and publishes this event; automation
// fan-out happens asynchronously in the worker so a slow template or
// payment provider never blocks the stage write.
type StageEventMessage struct {
	OpportunityID uuid.UUID    `json:"opportunity_id"`
	Stage         domain.Stage `json:"stage"`
	BookingTime   *time.Time   `json:"booking_time,omitempty"`
	MeetLink      string       `json:"meet_link,omitempty"`
	OccurredAt    time.Time    `json:"occurred_at"`
}
