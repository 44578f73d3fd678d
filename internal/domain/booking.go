package domain

import (
	"time"

	"github.com/google/uuid"
)

// BookingType enumerates the kinds of customer meetings.
type BookingType string

const (
	BookingCall1      BookingType = "call1"
	BookingCall2      BookingType = "call2"
	BookingOnboarding BookingType = "onboarding"
)

// Video reports whether the booking type is a video call whose
// attendance can be inferred from calendar signals. Onboarding visits
// are in person and always need manual confirmation.
func (t BookingType) Video() bool {
	return t == BookingCall1 || t == BookingCall2
}

// BookingTypeForStage maps a scheduling stage to the booking type it
// refers to.
func BookingTypeForStage(s Stage) (BookingType, bool) {
	switch s {
	case StageCall1Scheduled:
		return BookingCall1, true
	case StageCall2Scheduled:
		return BookingCall2, true
	case StageOnboardingScheduled:
		return BookingOnboarding, true
	}
	return "", false
}

// BookingOutcome enumerates inferred or confirmed meeting outcomes.
type BookingOutcome string

const (
	OutcomePending     BookingOutcome = "pending"
	OutcomeCompleted   BookingOutcome = "completed"
	OutcomeNoShow      BookingOutcome = "no_show"
	OutcomeRescheduled BookingOutcome = "rescheduled"
	OutcomeCancelled   BookingOutcome = "cancelled"
)

// TrackingStatus marks whether the attendance tracker has finished a
// pass over a booking.
type TrackingStatus string

const (
	TrackingPending TrackingStatus = "pending"
	TrackingChecked TrackingStatus = "checked"
)

// Booking is a scheduled customer meeting linked to a calendar event.
type Booking struct {
	ID             uuid.UUID
	OpportunityID  uuid.UUID
	Type           BookingType
	ScheduledAt    time.Time
	DurationMin    int
	Outcome        BookingOutcome
	TrackingStatus TrackingStatus
	GoogleEventID  string
	MeetLink       string
	CustomerJoined bool
	OwnerJoined    bool
	AttendeeCount  int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// End returns the scheduled end of the booking.
func (b Booking) End() time.Time {
	return b.ScheduledAt.Add(time.Duration(b.DurationMin) * time.Minute)
}

// PostCallAction is an append-only record of an automated decision.
// The log is also the dedup source: before re-flagging a condition the
// engine searches for an equivalent prior entry.
type PostCallAction struct {
	ID             uuid.UUID
	BookingID      uuid.UUID
	OpportunityID  uuid.UUID
	ActionType     string
	Reasoning      string
	SuggestedStage *Stage
	Confidence     *float64
	CreatedAt      time.Time
}

// Action types written by the tracking sweeps.
const (
	ActionConfirmOutcome   = "confirm_outcome"
	ActionOutcomeRecorded  = "outcome_recorded"
	ActionExternalMove     = "external_reschedule"
	ActionInviteDeclined   = "invite_declined"
	ActionInviteNoResponse = "invite_no_response"
)
