package calendar

import (
	"context"
	"time"

	apperrors "github.com/cachimiro/pax-website-sub000/pkg/errors"
)

// Attendee response states as reported by the calendar backend.
const (
	ResponseAccepted    = "accepted"
	ResponseDeclined    = "declined"
	ResponseTentative   = "tentative"
	ResponseNeedsAction = "needsAction"
)

// EventStatusCancelled marks an event deleted or cancelled by either side.
const EventStatusCancelled = "cancelled"

// Attendee is one invitee on a calendar event.
type Attendee struct {
	Email          string
	ResponseStatus string
	Organizer      bool
	Self           bool
}

// Event is the subset of a calendar event the tracker reasons about.
type Event struct {
	ID        string
	Status    string
	Start     time.Time
	Created   time.Time
	Updated   time.Time
	Attendees []Attendee
}

// Provider fetches calendar events linked to bookings.
type Provider interface {
	GetEvent(ctx context.Context, eventID string) (*Event, error)
}

// Unconfigured is the provider used when no calendar credentials are
// present. Every lookup reports ErrNotConfigured so tracking passes
// skip bookings instead of misclassifying them.
type Unconfigured struct{}

func (Unconfigured) GetEvent(ctx context.Context, eventID string) (*Event, error) {
	return nil, apperrors.ErrNotConfigured
}
