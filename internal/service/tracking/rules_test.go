package tracking

import (
	"testing"
	"time"

	"github.com/cachimiro/pax-website-sub000/internal/calendar"
	"github.com/cachimiro/pax-website-sub000/internal/domain"
)

const ownerEmail = "owner@pax.example"

func finishedBooking(t domain.BookingType) domain.Booking {
	return domain.Booking{
		Type:        t,
		ScheduledAt: time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC),
		DurationMin: 30,
	}
}

// now well past the booking end plus any grace
var afterGrace = time.Date(2026, time.March, 10, 11, 0, 0, 0, time.UTC)

func activeEvent(created time.Time, attendees ...calendar.Attendee) *calendar.Event {
	return &calendar.Event{
		Status:    "confirmed",
		Created:   created,
		Updated:   created.Add(10 * time.Minute),
		Attendees: attendees,
	}
}

func quietEvent(created time.Time, attendees ...calendar.Attendee) *calendar.Event {
	return &calendar.Event{
		Status:    "confirmed",
		Created:   created,
		Updated:   created.Add(30 * time.Second),
		Attendees: attendees,
	}
}

func TestClassifyCancelledEvent(t *testing.T) {
	b := finishedBooking(domain.BookingCall1)
	ev := &calendar.Event{Status: calendar.EventStatusCancelled}

	d := classify(b, ev, afterGrace, 15*time.Minute, ownerEmail)
	if d.kind != decideOutcome || d.outcome != domain.OutcomeCancelled {
		t.Fatalf("expected cancelled outcome, got %+v", d)
	}
}

func TestClassifyDeclinedInvite(t *testing.T) {
	b := finishedBooking(domain.BookingCall1)
	ev := quietEvent(b.ScheduledAt.Add(-24*time.Hour),
		calendar.Attendee{Email: ownerEmail, ResponseStatus: calendar.ResponseAccepted, Organizer: true},
		calendar.Attendee{Email: "jane@example.com", ResponseStatus: calendar.ResponseDeclined},
	)

	d := classify(b, ev, afterGrace, 15*time.Minute, ownerEmail)
	if d.kind != decideOutcome || d.outcome != domain.OutcomeCancelled {
		t.Fatalf("expected cancelled outcome for declined invite, got %+v", d)
	}
}

func TestClassifyDefersWithinGrace(t *testing.T) {
	b := finishedBooking(domain.BookingCall1)
	// Grace runs from the scheduled start; 5 minutes in the customer
	// may still turn up late.
	justAfterStart := b.ScheduledAt.Add(5 * time.Minute)
	ev := quietEvent(b.ScheduledAt.Add(-24*time.Hour),
		calendar.Attendee{Email: "jane@example.com", ResponseStatus: calendar.ResponseNeedsAction},
	)

	d := classify(b, ev, justAfterStart, 15*time.Minute, ownerEmail)
	if d.kind != deferPass {
		t.Fatalf("expected defer within grace, got %+v", d)
	}
}

func TestClassifyQuietUnansweredSweptAfterMeetingIsNoShow(t *testing.T) {
	b := domain.Booking{
		Type:        domain.BookingCall1,
		ScheduledAt: time.Date(2025, time.January, 10, 10, 0, 0, 0, time.UTC),
		DurationMin: 30,
	}
	ev := quietEvent(b.ScheduledAt.Add(-24*time.Hour),
		calendar.Attendee{Email: "jane@example.com", ResponseStatus: calendar.ResponseNeedsAction},
	)

	// Swept 11 minutes after the end. Well past start plus grace, so
	// the unanswered quiet invite records a no_show instead of
	// deferring.
	sweptAt := time.Date(2025, time.January, 10, 10, 41, 0, 0, time.UTC)
	d := classify(b, ev, sweptAt, 15*time.Minute, ownerEmail)
	if d.kind != decideOutcome || d.outcome != domain.OutcomeNoShow {
		t.Fatalf("expected no_show after the meeting window, got %+v", d)
	}
}

func TestClassifyInPersonNeedsOperator(t *testing.T) {
	b := finishedBooking(domain.BookingOnboarding)
	ev := activeEvent(b.ScheduledAt.Add(-24*time.Hour),
		calendar.Attendee{Email: "jane@example.com", ResponseStatus: calendar.ResponseAccepted},
	)

	d := classify(b, ev, afterGrace, 15*time.Minute, ownerEmail)
	if d.kind != askOperator {
		t.Fatalf("expected manual confirmation for in-person visit, got %+v", d)
	}
}

func TestClassifyAcceptedActiveCompletes(t *testing.T) {
	b := finishedBooking(domain.BookingCall1)
	ev := activeEvent(b.ScheduledAt.Add(-24*time.Hour),
		calendar.Attendee{Email: "jane@example.com", ResponseStatus: calendar.ResponseAccepted},
	)

	d := classify(b, ev, afterGrace, 15*time.Minute, ownerEmail)
	if d.kind != decideOutcome || d.outcome != domain.OutcomeCompleted {
		t.Fatalf("expected completed outcome, got %+v", d)
	}
}

func TestClassifyAcceptedQuietNeedsOperator(t *testing.T) {
	b := finishedBooking(domain.BookingCall2)
	ev := quietEvent(b.ScheduledAt.Add(-24*time.Hour),
		calendar.Attendee{Email: "jane@example.com", ResponseStatus: calendar.ResponseAccepted},
	)

	d := classify(b, ev, afterGrace, 15*time.Minute, ownerEmail)
	if d.kind != askOperator {
		t.Fatalf("expected manual confirmation when accepted but quiet, got %+v", d)
	}
}

func TestClassifyNoResponseQuietIsNoShow(t *testing.T) {
	b := finishedBooking(domain.BookingCall1)
	ev := quietEvent(b.ScheduledAt.Add(-24*time.Hour),
		calendar.Attendee{Email: "jane@example.com", ResponseStatus: calendar.ResponseNeedsAction},
	)

	d := classify(b, ev, afterGrace, 15*time.Minute, ownerEmail)
	if d.kind != decideOutcome || d.outcome != domain.OutcomeNoShow {
		t.Fatalf("expected no_show outcome, got %+v", d)
	}
}

func TestClassifyActivityAloneCompletes(t *testing.T) {
	b := finishedBooking(domain.BookingCall1)
	// Tentative response from the guest, but the event was touched.
	ev := activeEvent(b.ScheduledAt.Add(-24*time.Hour),
		calendar.Attendee{Email: "jane@example.com", ResponseStatus: calendar.ResponseTentative},
	)

	d := classify(b, ev, afterGrace, 15*time.Minute, ownerEmail)
	if d.kind != decideOutcome || d.outcome != domain.OutcomeCompleted {
		t.Fatalf("expected completed via activity fallback, got %+v", d)
	}
}

func TestClassifyDefaultsToNoShow(t *testing.T) {
	b := finishedBooking(domain.BookingCall1)
	ev := quietEvent(b.ScheduledAt.Add(-24*time.Hour),
		calendar.Attendee{Email: "jane@example.com", ResponseStatus: calendar.ResponseTentative},
	)

	d := classify(b, ev, afterGrace, 15*time.Minute, ownerEmail)
	if d.kind != decideOutcome || d.outcome != domain.OutcomeNoShow {
		t.Fatalf("expected default no_show, got %+v", d)
	}
}

func TestClassifyOwnerResponsesIgnored(t *testing.T) {
	b := finishedBooking(domain.BookingCall1)
	// Only the owner answered; the guest list is effectively silent.
	ev := quietEvent(b.ScheduledAt.Add(-24*time.Hour),
		calendar.Attendee{Email: ownerEmail, ResponseStatus: calendar.ResponseAccepted, Organizer: true},
	)

	d := classify(b, ev, afterGrace, 15*time.Minute, ownerEmail)
	if d.kind != decideOutcome || d.outcome != domain.OutcomeNoShow {
		t.Fatalf("expected no_show when only the owner responded, got %+v", d)
	}
}
