package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cachimiro/pax-website-sub000/internal/calendar"
	"github.com/cachimiro/pax-website-sub000/internal/domain"
	apperrors "github.com/cachimiro/pax-website-sub000/pkg/errors"
)

const (
	// monitorWindow is how far ahead the pre-meeting monitor looks.
	monitorWindow = 24 * time.Hour
	// nudgeWindow is how close to the start an unanswered invite has to
	// be before the owner gets flagged.
	nudgeWindow = 6 * time.Hour
)

const (
	declineOfferBody = "Hi {{first_name}}, we saw the call time does not work for you. No problem, pick a better slot here: {{booking_link}}"
)

// MonitorUpcomingBookings scans meetings in the next day for external
// calendar changes: cancellations, moved times, declined invites and
// invites still unanswered close to the start. Returns how many
// bookings were flagged.
func (s *Service) MonitorUpcomingBookings(ctx context.Context) (int, error) {
	now := s.now()
	upcoming, err := s.deps.Bookings.UpcomingWithin(ctx, now, now.Add(monitorWindow), s.batch)
	if err != nil {
		return 0, fmt.Errorf("tracking: select upcoming bookings: %w", err)
	}

	flagged := 0
	for _, b := range upcoming {
		if err := ctx.Err(); err != nil {
			return flagged, err
		}
		if b.GoogleEventID == "" {
			continue
		}

		ev, err := s.fetchEvent(ctx, b.GoogleEventID)
		switch {
		case apperrors.Is(err, apperrors.ErrNotConfigured):
			return flagged, nil
		case apperrors.Is(err, apperrors.ErrNotFound):
			ev = &calendar.Event{Status: calendar.EventStatusCancelled}
		case err != nil:
			s.logger.Warn("event fetch failed",
				zap.String("booking_id", b.ID.String()),
				zap.Error(err))
			continue
		}

		if s.checkUpcoming(ctx, b, ev, now) {
			flagged++
		}
	}
	return flagged, nil
}

// checkUpcoming applies the pre-meeting checks to one booking and
// reports whether anything was flagged.
func (s *Service) checkUpcoming(ctx context.Context, b domain.Booking, ev *calendar.Event, now time.Time) bool {
	if ev.Status == calendar.EventStatusCancelled {
		if err := s.deps.Bookings.RecordOutcome(ctx, b.ID, domain.OutcomeCancelled, domain.TrackingChecked); err != nil {
			s.logger.Warn("record cancellation failed", zap.Error(err))
			return false
		}
		s.logActionOnce(ctx, b, domain.ActionOutcomeRecorded, "cancelled_before_start",
			"cancelled_before_start: calendar event was cancelled ahead of the meeting", nil, 0.95)
		s.addTask(ctx, b, "reschedule_booking", "Meeting was cancelled, offer new times", 24*time.Hour)
		return true
	}

	flagged := false

	if !ev.Start.IsZero() && absDuration(ev.Start.Sub(b.ScheduledAt)) > s.deps.Automation.RescheduleDrift {
		if err := s.deps.Bookings.Reschedule(ctx, b.ID, ev.Start); err != nil {
			s.logger.Warn("reschedule failed", zap.Error(err))
		} else {
			s.logActionOnce(ctx, b, domain.ActionExternalMove, ev.Start.Format(time.RFC3339),
				fmt.Sprintf("external_reschedule: event moved from %s to %s",
					b.ScheduledAt.Format(time.RFC3339), ev.Start.Format(time.RFC3339)), nil, 0.95)
			flagged = true
		}
	}

	declined, unanswered := guestResponses(ev, s.deps.OwnerEmail)

	if declined {
		if s.logActionOnce(ctx, b, domain.ActionInviteDeclined, "declined",
			"invite_declined: customer declined ahead of the meeting", nil, 0.9) {
			s.addTask(ctx, b, "reschedule_booking", "Customer declined the invite, offer new times", 4*time.Hour)
			s.offerRescheduleSMS(ctx, b)
			flagged = true
		}
		return flagged
	}

	if unanswered && !ev.Start.IsZero() && ev.Start.Sub(now) <= nudgeWindow {
		if s.logActionOnce(ctx, b, domain.ActionInviteNoResponse, "no response",
			"invite_no_response: invite still unanswered close to the start", nil, 0.7) {
			s.addTask(ctx, b, "chase_invite", "Invite unanswered, confirm the customer is still coming", 2*time.Hour)
			flagged = true
		}
	}

	return flagged
}

// offerRescheduleSMS queues a single reschedule offer by text. The
// action-log dedup in the caller guarantees at most one per booking.
func (s *Service) offerRescheduleSMS(ctx context.Context, b domain.Booking) {
	opp, err := s.deps.Opps.Get(ctx, b.OpportunityID)
	if err != nil {
		s.logger.Warn("opportunity lookup failed for reschedule offer", zap.Error(err))
		return
	}
	lead, err := s.deps.Leads.Get(ctx, opp.LeadID)
	if err != nil || lead.Phone == "" {
		return
	}

	msg := &domain.QueuedMessage{
		ID:           uuid.New(),
		LeadID:       lead.ID,
		Channel:      domain.ChannelSMS,
		TemplateSlug: "decline_reschedule_offer",
		Status:       domain.MessageStatusQueued,
		Metadata: domain.MessageMetadata{
			Body:          declineOfferBody,
			OpportunityID: opp.ID,
		},
	}
	if err := s.deps.Messages.Insert(ctx, msg); err != nil {
		s.logger.Warn("reschedule offer insert failed", zap.Error(err))
	}
}

// guestResponses summarizes the non-owner side of the invite.
func guestResponses(ev *calendar.Event, ownerEmail string) (declined, unanswered bool) {
	for _, a := range ev.Attendees {
		if isOwner(a, ownerEmail) {
			continue
		}
		switch a.ResponseStatus {
		case calendar.ResponseDeclined:
			declined = true
		case calendar.ResponseNeedsAction:
			unanswered = true
		}
	}
	return declined, unanswered
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
