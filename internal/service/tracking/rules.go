package tracking

import (
	"time"

	"github.com/cachimiro/pax-website-sub000/internal/calendar"
	"github.com/cachimiro/pax-website-sub000/internal/domain"
)

// activityThreshold separates events that were touched after creation
// (links opened, invites answered, times nudged) from ones nobody
// interacted with. The event Updated timestamp moving more than this
// past Created counts as engagement.
const activityThreshold = 2 * time.Minute

type decisionKind int

const (
	// decideOutcome records a terminal outcome on the booking.
	decideOutcome decisionKind = iota
	// deferPass leaves the booking pending for a later pass.
	deferPass
	// askOperator keeps the outcome pending and raises a reminder to
	// confirm it manually.
	askOperator
)

// decision is the classifier verdict for one booking.
type decision struct {
	kind       decisionKind
	outcome    domain.BookingOutcome
	rule       string
	reasoning  string
	confidence float64
}

// signals are the observations the rules match against.
type signals struct {
	cancelled  bool
	declined   bool
	accepted   bool
	noResponse bool
	active     bool
	inPerson   bool
	inGrace    bool
}

type rule struct {
	name       string
	matches    func(signals) bool
	kind       decisionKind
	outcome    domain.BookingOutcome
	reasoning  string
	confidence float64
}

// Attendance cannot be observed directly, so the classifier is an
// ordered cascade over calendar signals: the first matching rule wins.
// Order matters; hard signals (cancellation, declines) sit above the
// soft engagement heuristics.
var attendanceRules = []rule{
	{
		name:       "event_cancelled",
		matches:    func(s signals) bool { return s.cancelled },
		kind:       decideOutcome,
		outcome:    domain.OutcomeCancelled,
		reasoning:  "calendar event was cancelled",
		confidence: 0.95,
	},
	{
		name:       "invite_declined",
		matches:    func(s signals) bool { return s.declined },
		kind:       decideOutcome,
		outcome:    domain.OutcomeCancelled,
		reasoning:  "customer declined the invite",
		confidence: 0.9,
	},
	{
		name:    "within_grace",
		matches: func(s signals) bool { return s.inGrace },
		kind:    deferPass,
	},
	{
		name:       "in_person_meeting",
		matches:    func(s signals) bool { return s.inPerson },
		kind:       askOperator,
		reasoning:  "in-person visit needs manual confirmation",
		confidence: 0.5,
	},
	{
		name:       "accepted_and_active",
		matches:    func(s signals) bool { return s.accepted && s.active },
		kind:       decideOutcome,
		outcome:    domain.OutcomeCompleted,
		reasoning:  "invite accepted and event shows recent activity",
		confidence: 0.8,
	},
	{
		name:       "accepted_no_activity",
		matches:    func(s signals) bool { return s.accepted },
		kind:       askOperator,
		reasoning:  "invite accepted but no activity signal, attendance unclear",
		confidence: 0.5,
	},
	{
		name:       "no_response_no_activity",
		matches:    func(s signals) bool { return s.noResponse && !s.active },
		kind:       decideOutcome,
		outcome:    domain.OutcomeNoShow,
		reasoning:  "invite never answered and event shows no activity",
		confidence: 0.75,
	},
	{
		name:       "activity_fallback",
		matches:    func(s signals) bool { return s.active },
		kind:       decideOutcome,
		outcome:    domain.OutcomeCompleted,
		reasoning:  "event shows recent activity",
		confidence: 0.6,
	},
	{
		name:       "default_no_show",
		matches:    func(s signals) bool { return true },
		kind:       decideOutcome,
		outcome:    domain.OutcomeNoShow,
		reasoning:  "no attendance signal after the meeting window",
		confidence: 0.6,
	},
}

// classify infers an outcome for a finished booking from its calendar
// event.
func classify(b domain.Booking, ev *calendar.Event, now time.Time, noShowGrace time.Duration, ownerEmail string) decision {
	sig := observe(b, ev, now, noShowGrace, ownerEmail)
	for _, r := range attendanceRules {
		if r.matches(sig) {
			return decision{
				kind:       r.kind,
				outcome:    r.outcome,
				rule:       r.name,
				reasoning:  r.reasoning,
				confidence: r.confidence,
			}
		}
	}
	// Unreachable, the last rule always matches.
	return decision{kind: deferPass}
}

func observe(b domain.Booking, ev *calendar.Event, now time.Time, noShowGrace time.Duration, ownerEmail string) signals {
	// The no-show grace runs from the scheduled start: a customer who
	// has not turned up that long into the slot is not coming.
	sig := signals{
		inPerson: !b.Type.Video(),
		inGrace:  now.Before(b.ScheduledAt.Add(noShowGrace)),
	}
	if ev == nil {
		return sig
	}

	sig.cancelled = ev.Status == calendar.EventStatusCancelled
	sig.active = ev.Updated.Sub(ev.Created) > activityThreshold

	sawGuest := false
	for _, a := range ev.Attendees {
		if isOwner(a, ownerEmail) {
			continue
		}
		sawGuest = true
		switch a.ResponseStatus {
		case calendar.ResponseDeclined:
			sig.declined = true
		case calendar.ResponseAccepted:
			sig.accepted = true
		case calendar.ResponseNeedsAction:
			sig.noResponse = true
		}
	}
	if !sawGuest {
		sig.noResponse = true
	}

	return sig
}

// isOwner filters the internal side of the meeting out of attendance
// signals. The organizer and the configured owner mailbox accepting
// their own invite says nothing about the customer.
func isOwner(a calendar.Attendee, ownerEmail string) bool {
	return a.Organizer || a.Self || (ownerEmail != "" && a.Email == ownerEmail)
}
