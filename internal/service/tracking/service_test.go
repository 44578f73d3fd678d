package tracking

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cachimiro/pax-website-sub000/internal/calendar"
	"github.com/cachimiro/pax-website-sub000/internal/config"
	"github.com/cachimiro/pax-website-sub000/internal/domain"
	"github.com/cachimiro/pax-website-sub000/internal/repository"
	"github.com/cachimiro/pax-website-sub000/pkg/logger"
)

type fakeBookingRepo struct {
	due         []domain.Booking
	upcoming    []domain.Booking
	outcomes    map[uuid.UUID]domain.BookingOutcome
	checked     []uuid.UUID
	rescheduled map[uuid.UUID]time.Time
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{
		outcomes:    map[uuid.UUID]domain.BookingOutcome{},
		rescheduled: map[uuid.UUID]time.Time{},
	}
}

func (f *fakeBookingRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeBookingRepo) LatestByType(ctx context.Context, opportunityID uuid.UUID, t domain.BookingType) (*domain.Booking, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeBookingRepo) DueForTracking(ctx context.Context, now time.Time, grace time.Duration, limit int) ([]domain.Booking, error) {
	return f.due, nil
}

func (f *fakeBookingRepo) UpcomingWithin(ctx context.Context, from, until time.Time, limit int) ([]domain.Booking, error) {
	return f.upcoming, nil
}

func (f *fakeBookingRepo) RecordOutcome(ctx context.Context, id uuid.UUID, outcome domain.BookingOutcome, tracking domain.TrackingStatus) error {
	f.outcomes[id] = outcome
	return nil
}

func (f *fakeBookingRepo) MarkChecked(ctx context.Context, id uuid.UUID) error {
	f.checked = append(f.checked, id)
	return nil
}

func (f *fakeBookingRepo) Reschedule(ctx context.Context, id uuid.UUID, newStart time.Time) error {
	f.rescheduled[id] = newStart
	return nil
}

type fakeOppRepo struct{ opp *domain.Opportunity }

func (f *fakeOppRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Opportunity, error) {
	if f.opp == nil {
		return nil, repository.ErrNotFound
	}
	return f.opp, nil
}

func (f *fakeOppRepo) UpdateStage(ctx context.Context, id uuid.UUID, stage domain.Stage) error {
	return nil
}

type fakeLeadRepo struct{ lead *domain.Lead }

func (f *fakeLeadRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Lead, error) {
	if f.lead == nil {
		return nil, repository.ErrNotFound
	}
	return f.lead, nil
}

type fakeTaskRepo struct{ inserted []*domain.Task }

func (f *fakeTaskRepo) Insert(ctx context.Context, task *domain.Task) error {
	f.inserted = append(f.inserted, task)
	return nil
}

func (f *fakeTaskRepo) types() []string {
	out := make([]string, 0, len(f.inserted))
	for _, task := range f.inserted {
		out = append(out, task.Type)
	}
	return out
}

type fakeActionRepo struct{ actions []*domain.PostCallAction }

func (f *fakeActionRepo) Insert(ctx context.Context, action *domain.PostCallAction) error {
	f.actions = append(f.actions, action)
	return nil
}

func (f *fakeActionRepo) Exists(ctx context.Context, bookingID uuid.UUID, actionType, reasoningContains string) (bool, error) {
	for _, a := range f.actions {
		if a.BookingID == bookingID && a.ActionType == actionType &&
			strings.Contains(a.Reasoning, reasoningContains) {
			return true, nil
		}
	}
	return false, nil
}

type fakeMessageRepo struct{ inserted []*domain.QueuedMessage }

func (f *fakeMessageRepo) Insert(ctx context.Context, msg *domain.QueuedMessage) error {
	f.inserted = append(f.inserted, msg)
	return nil
}

func (f *fakeMessageRepo) QueuedPairs(ctx context.Context, leadID, opportunityID uuid.UUID, stage domain.Stage) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

func (f *fakeMessageRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]repository.DueMessage, error) {
	return nil, nil
}

func (f *fakeMessageRepo) Requeue(ctx context.Context, id uuid.UUID) error { return nil }

func (f *fakeMessageRepo) Finish(ctx context.Context, id uuid.UUID, status domain.MessageStatus, meta domain.MessageMetadata) error {
	return nil
}

func (f *fakeMessageRepo) ListRecent(ctx context.Context, limit int) ([]domain.QueuedMessage, error) {
	return nil, nil
}

type fakeCalendar struct{ events map[string]*calendar.Event }

func (f *fakeCalendar) GetEvent(ctx context.Context, eventID string) (*calendar.Event, error) {
	ev, ok := f.events[eventID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return ev, nil
}

type trackingFixture struct {
	bookings *fakeBookingRepo
	opps     *fakeOppRepo
	leads    *fakeLeadRepo
	tasks    *fakeTaskRepo
	actions  *fakeActionRepo
	messages *fakeMessageRepo
	cal      *fakeCalendar
	now      time.Time
}

func newTrackingFixture() *trackingFixture {
	leadID := uuid.New()
	oppID := uuid.New()
	return &trackingFixture{
		bookings: newFakeBookingRepo(),
		opps: &fakeOppRepo{opp: &domain.Opportunity{
			ID:     oppID,
			LeadID: leadID,
			Stage:  domain.StageCall1Scheduled,
		}},
		leads: &fakeLeadRepo{lead: &domain.Lead{
			ID:    leadID,
			Name:  "Jane Doe",
			Email: "jane@example.com",
			Phone: "+447700900123",
		}},
		tasks:    &fakeTaskRepo{},
		actions:  &fakeActionRepo{},
		messages: &fakeMessageRepo{},
		cal:      &fakeCalendar{events: map[string]*calendar.Event{}},
		now:      time.Date(2026, time.March, 10, 11, 0, 0, 0, time.UTC),
	}
}

func (f *trackingFixture) service() *Service {
	return NewService(Deps{
		Bookings: f.bookings,
		Opps:     f.opps,
		Leads:    f.leads,
		Tasks:    f.tasks,
		Actions:  f.actions,
		Messages: f.messages,
		Calendar: f.cal,
		Automation: config.AutomationConfig{
			TrackingGrace:   10 * time.Minute,
			NoShowGrace:     15 * time.Minute,
			RescheduleDrift: 5 * time.Minute,
		},
		OwnerEmail: ownerEmail,
		Logger:     &logger.Logger{Logger: zap.NewNop()},
		Now:        func() time.Time { return f.now },
	})
}

func (f *trackingFixture) addDueBooking(ev *calendar.Event) domain.Booking {
	b := domain.Booking{
		ID:            uuid.New(),
		OpportunityID: f.opps.opp.ID,
		Type:          domain.BookingCall1,
		ScheduledAt:   f.now.Add(-time.Hour),
		DurationMin:   30,
		Outcome:       domain.OutcomePending,
		GoogleEventID: "ev-" + uuid.NewString(),
	}
	f.cal.events[b.GoogleEventID] = ev
	f.bookings.due = append(f.bookings.due, b)
	return b
}

func TestNewServiceDefaultsAutomationWindows(t *testing.T) {
	s := NewService(Deps{Logger: &logger.Logger{Logger: zap.NewNop()}})

	auto := s.deps.Automation
	if auto.TrackingGrace != 10*time.Minute {
		t.Errorf("expected 10m tracking grace, got %v", auto.TrackingGrace)
	}
	if auto.NoShowGrace != 15*time.Minute {
		t.Errorf("expected 15m no-show grace, got %v", auto.NoShowGrace)
	}
	if auto.RescheduleDrift != 5*time.Minute {
		t.Errorf("expected 5m reschedule drift, got %v", auto.RescheduleDrift)
	}
	if auto.SendTimeout != 30*time.Second {
		t.Errorf("expected 30s send timeout, got %v", auto.SendTimeout)
	}
}

func TestSweepRecordsNoShowAndQueuesRebooking(t *testing.T) {
	f := newTrackingFixture()
	b := f.addDueBooking(quietEvent(f.now.Add(-25*time.Hour),
		calendar.Attendee{Email: "jane@example.com", ResponseStatus: calendar.ResponseNeedsAction},
	))

	res, err := f.service().ProcessMeetingTracking(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Checked != 1 || res.Updated != 1 || res.Errors != 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	if f.bookings.outcomes[b.ID] != domain.OutcomeNoShow {
		t.Errorf("expected no_show outcome, got %q", f.bookings.outcomes[b.ID])
	}
	// Rebooking nudge on every reachable channel.
	if len(f.messages.inserted) != 3 {
		t.Fatalf("expected rebooking messages on 3 channels, got %d", len(f.messages.inserted))
	}
	for _, msg := range f.messages.inserted {
		if !strings.Contains(msg.Metadata.Body, "{{booking_link}}") {
			t.Errorf("expected booking link placeholder in rebooking body")
		}
	}
	if got := f.tasks.types(); len(got) != 1 || got[0] != "follow_up_no_show" {
		t.Errorf("expected follow_up_no_show task, got %v", got)
	}
	if len(f.actions.actions) != 1 || f.actions.actions[0].ActionType != domain.ActionOutcomeRecorded {
		t.Fatalf("expected one outcome_recorded action, got %+v", f.actions.actions)
	}
	if f.actions.actions[0].Confidence == nil {
		t.Errorf("expected a confidence value on the action")
	}
}

func TestSweepCompletedSuggestsNextStage(t *testing.T) {
	f := newTrackingFixture()
	b := f.addDueBooking(activeEvent(f.now.Add(-25*time.Hour),
		calendar.Attendee{Email: "jane@example.com", ResponseStatus: calendar.ResponseAccepted},
	))

	if _, err := f.service().ProcessMeetingTracking(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.bookings.outcomes[b.ID] != domain.OutcomeCompleted {
		t.Fatalf("expected completed outcome, got %q", f.bookings.outcomes[b.ID])
	}
	if len(f.actions.actions) != 1 {
		t.Fatalf("expected one action, got %d", len(f.actions.actions))
	}
	suggested := f.actions.actions[0].SuggestedStage
	if suggested == nil || *suggested != domain.StageCall1Complete {
		t.Errorf("expected call1_complete suggestion, got %v", suggested)
	}
	if got := f.tasks.types(); len(got) != 1 || got[0] != "post_call_notes" {
		t.Errorf("expected post_call_notes task, got %v", got)
	}
}

func TestSweepDeletedEventTreatedAsCancelled(t *testing.T) {
	f := newTrackingFixture()
	b := domain.Booking{
		ID:            uuid.New(),
		OpportunityID: f.opps.opp.ID,
		Type:          domain.BookingCall1,
		ScheduledAt:   f.now.Add(-time.Hour),
		DurationMin:   30,
		GoogleEventID: "gone",
	}
	f.bookings.due = append(f.bookings.due, b)

	if _, err := f.service().ProcessMeetingTracking(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.bookings.outcomes[b.ID] != domain.OutcomeCancelled {
		t.Errorf("expected cancelled outcome for deleted event, got %q", f.bookings.outcomes[b.ID])
	}
}

func TestSweepSkipsBookingWithoutEvent(t *testing.T) {
	f := newTrackingFixture()
	f.bookings.due = append(f.bookings.due, domain.Booking{
		ID:            uuid.New(),
		OpportunityID: f.opps.opp.ID,
		Type:          domain.BookingCall1,
		ScheduledAt:   f.now.Add(-time.Hour),
		DurationMin:   30,
	})

	res, err := f.service().ProcessMeetingTracking(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Checked != 0 || res.Updated != 0 {
		t.Errorf("expected nothing processed, got %+v", res)
	}
	if len(f.bookings.outcomes) != 0 || len(f.bookings.checked) != 0 {
		t.Errorf("booking without event must stay untouched")
	}
}

func TestMonitorReschedulesOnDrift(t *testing.T) {
	f := newTrackingFixture()
	b := domain.Booking{
		ID:            uuid.New(),
		OpportunityID: f.opps.opp.ID,
		Type:          domain.BookingCall1,
		ScheduledAt:   f.now.Add(3 * time.Hour),
		DurationMin:   30,
		GoogleEventID: "ev-moved",
	}
	movedTo := b.ScheduledAt.Add(45 * time.Minute)
	f.cal.events[b.GoogleEventID] = &calendar.Event{
		Status: "confirmed",
		Start:  movedTo,
		Attendees: []calendar.Attendee{
			{Email: "jane@example.com", ResponseStatus: calendar.ResponseAccepted},
		},
	}
	f.bookings.upcoming = append(f.bookings.upcoming, b)

	flagged, err := f.service().MonitorUpcomingBookings(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flagged != 1 {
		t.Fatalf("expected 1 flagged booking, got %d", flagged)
	}
	if got := f.bookings.rescheduled[b.ID]; !got.Equal(movedTo) {
		t.Errorf("expected reschedule to %v, got %v", movedTo, got)
	}
	if len(f.actions.actions) != 1 || f.actions.actions[0].ActionType != domain.ActionExternalMove {
		t.Errorf("expected external_reschedule action, got %+v", f.actions.actions)
	}
}

func TestMonitorDeclinedInviteFlaggedOnce(t *testing.T) {
	f := newTrackingFixture()
	b := domain.Booking{
		ID:            uuid.New(),
		OpportunityID: f.opps.opp.ID,
		Type:          domain.BookingCall1,
		ScheduledAt:   f.now.Add(3 * time.Hour),
		DurationMin:   30,
		GoogleEventID: "ev-declined",
	}
	f.cal.events[b.GoogleEventID] = &calendar.Event{
		Status: "confirmed",
		Start:  b.ScheduledAt,
		Attendees: []calendar.Attendee{
			{Email: ownerEmail, ResponseStatus: calendar.ResponseAccepted, Organizer: true},
			{Email: "jane@example.com", ResponseStatus: calendar.ResponseDeclined},
		},
	}
	f.bookings.upcoming = append(f.bookings.upcoming, b)

	svc := f.service()
	flagged, err := svc.MonitorUpcomingBookings(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flagged != 1 {
		t.Fatalf("expected 1 flagged booking, got %d", flagged)
	}
	if len(f.messages.inserted) != 1 || f.messages.inserted[0].Channel != domain.ChannelSMS {
		t.Fatalf("expected a single reschedule offer by sms, got %d", len(f.messages.inserted))
	}

	// A second pass over the same state must not re-flag.
	flagged, err = svc.MonitorUpcomingBookings(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flagged != 0 {
		t.Errorf("expected dedup to suppress the second pass, got %d flagged", flagged)
	}
	if len(f.messages.inserted) != 1 {
		t.Errorf("expected no extra sms on the second pass, got %d", len(f.messages.inserted))
	}
}

func TestMonitorNudgesUnansweredInviteCloseToStart(t *testing.T) {
	f := newTrackingFixture()
	b := domain.Booking{
		ID:            uuid.New(),
		OpportunityID: f.opps.opp.ID,
		Type:          domain.BookingCall1,
		ScheduledAt:   f.now.Add(2 * time.Hour),
		DurationMin:   30,
		GoogleEventID: "ev-silent",
	}
	f.cal.events[b.GoogleEventID] = &calendar.Event{
		Status: "confirmed",
		Start:  b.ScheduledAt,
		Attendees: []calendar.Attendee{
			{Email: "jane@example.com", ResponseStatus: calendar.ResponseNeedsAction},
		},
	}
	f.bookings.upcoming = append(f.bookings.upcoming, b)

	flagged, err := f.service().MonitorUpcomingBookings(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flagged != 1 {
		t.Fatalf("expected 1 flagged booking, got %d", flagged)
	}
	if len(f.actions.actions) != 1 || f.actions.actions[0].ActionType != domain.ActionInviteNoResponse {
		t.Errorf("expected invite_no_response action, got %+v", f.actions.actions)
	}
	if got := f.tasks.types(); len(got) != 1 || got[0] != "chase_invite" {
		t.Errorf("expected chase_invite task, got %v", got)
	}
}

func TestMonitorIgnoresUnansweredInviteWithoutStartTime(t *testing.T) {
	f := newTrackingFixture()
	b := domain.Booking{
		ID:            uuid.New(),
		OpportunityID: f.opps.opp.ID,
		Type:          domain.BookingCall1,
		ScheduledAt:   f.now.Add(20 * time.Hour),
		DurationMin:   30,
		GoogleEventID: "ev-no-start",
	}
	// The event carries no start time, so neither the drift check nor
	// the close-to-start nudge can say anything about it.
	f.cal.events[b.GoogleEventID] = &calendar.Event{
		Status: "confirmed",
		Attendees: []calendar.Attendee{
			{Email: "jane@example.com", ResponseStatus: calendar.ResponseNeedsAction},
		},
	}
	f.bookings.upcoming = append(f.bookings.upcoming, b)

	flagged, err := f.service().MonitorUpcomingBookings(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flagged != 0 {
		t.Fatalf("expected nothing flagged, got %d", flagged)
	}
	if len(f.actions.actions) != 0 || len(f.tasks.inserted) != 0 {
		t.Errorf("expected no actions or tasks for an event without a start time")
	}
}

func TestMonitorCancelledEventRecordsOutcome(t *testing.T) {
	f := newTrackingFixture()
	b := domain.Booking{
		ID:            uuid.New(),
		OpportunityID: f.opps.opp.ID,
		Type:          domain.BookingCall1,
		ScheduledAt:   f.now.Add(3 * time.Hour),
		DurationMin:   30,
		GoogleEventID: "ev-cancelled",
	}
	f.cal.events[b.GoogleEventID] = &calendar.Event{Status: calendar.EventStatusCancelled}
	f.bookings.upcoming = append(f.bookings.upcoming, b)

	flagged, err := f.service().MonitorUpcomingBookings(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flagged != 1 {
		t.Fatalf("expected 1 flagged booking, got %d", flagged)
	}
	if f.bookings.outcomes[b.ID] != domain.OutcomeCancelled {
		t.Errorf("expected cancelled outcome, got %q", f.bookings.outcomes[b.ID])
	}
	if got := f.tasks.types(); len(got) != 1 || got[0] != "reschedule_booking" {
		t.Errorf("expected reschedule_booking task, got %v", got)
	}
}
