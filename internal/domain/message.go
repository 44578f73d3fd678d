package domain

import (
	"time"

	"github.com/google/uuid"
)

// Channel enumerates outbound delivery channels.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// DelayRule determines when a triggered message becomes eligible to send.
type DelayRule string

const (
	DelayImmediate            DelayRule = "immediate"
	DelayMinutesBeforeBooking DelayRule = "minutes_before_booking"
	DelayMinutesAfterStage    DelayRule = "minutes_after_stage"
	DelayMinutesAfterEnquiry  DelayRule = "minutes_after_enquiry"
)

// Template is a reusable message definition with placeholders and a
// delay rule. Immutable at send time.
type Template struct {
	Slug         string
	Channels     []Channel
	TriggerStage *Stage
	DelayRule    DelayRule
	DelayMinutes int
	Subject      string
	Body         string
	Active       bool
}

// HasChannel reports whether the template targets the given channel.
func (t Template) HasChannel(c Channel) bool {
	for _, tc := range t.Channels {
		if tc == c {
			return true
		}
	}
	return false
}

// MessageStatus enumerates queued message lifecycle states.
type MessageStatus string

const (
	MessageStatusQueued  MessageStatus = "queued"
	MessageStatusSending MessageStatus = "sending"
	MessageStatusSent    MessageStatus = "sent"
	MessageStatusFailed  MessageStatus = "failed"
)

// MessageMetadata is the JSON payload stored alongside a queued message.
// Subject and Body, when set by the enqueuer, take precedence over a
// template lookup at dispatch time; they may still contain placeholders
// which are re-interpolated against fresh variables.
type MessageMetadata struct {
	Subject       string    `json:"subject,omitempty"`
	Body          string    `json:"body,omitempty"`
	TriggerStage  Stage     `json:"trigger_stage,omitempty"`
	OpportunityID uuid.UUID `json:"opportunity_id,omitempty"`
	AutoTriggered bool      `json:"auto_triggered,omitempty"`
	// PaymentLink and MeetLink are pinned at enqueue time. A checkout
	// URL is minted once per invoice, so dispatch must reuse it rather
	// than resolve a fresh one.
	PaymentLink     string     `json:"payment_link,omitempty"`
	MeetLink        string     `json:"meet_link,omitempty"`
	RenderedSubject string     `json:"rendered_subject,omitempty"`
	RenderedBody    string     `json:"rendered_body,omitempty"`
	Error           string     `json:"error,omitempty"`
	ExternalID      string     `json:"external_id,omitempty"`
	SentAt          *time.Time `json:"sent_at,omitempty"`
}

// QueuedMessage is a materialized, per-lead, per-channel instance of a
// template awaiting dispatch. Rows are never deleted; they double as
// the outbound audit trail.
type QueuedMessage struct {
	ID           uuid.UUID
	LeadID       uuid.UUID
	Channel      Channel
	TemplateSlug string
	Status       MessageStatus
	// ScheduledFor is nil for messages eligible on the next poll.
	ScheduledFor *time.Time
	Metadata     MessageMetadata
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DispatchAttempt records a single delivery attempt for observability.
type DispatchAttempt struct {
	ID         uuid.UUID
	MessageID  uuid.UUID
	Channel    Channel
	Status     MessageStatus
	Error      string
	ExternalID string
	Duration   time.Duration
	CreatedAt  time.Time
}
