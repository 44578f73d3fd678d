package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cachimiro/pax-website-sub000/internal/calendar"
	"github.com/cachimiro/pax-website-sub000/internal/config"
	"github.com/cachimiro/pax-website-sub000/internal/domain"
	"github.com/cachimiro/pax-website-sub000/internal/repository"
	apperrors "github.com/cachimiro/pax-website-sub000/pkg/errors"
	"github.com/cachimiro/pax-website-sub000/pkg/logger"
)

// Deps wires the tracking service.
type Deps struct {
	Bookings   repository.BookingRepository
	Opps       repository.OpportunityRepository
	Leads      repository.LeadRepository
	Tasks      repository.TaskRepository
	Actions    repository.ActionLogRepository
	Messages   repository.MessageLogRepository
	Calendar   calendar.Provider
	Automation config.AutomationConfig
	OwnerEmail string
	BatchSize  int
	Logger     *logger.Logger
	Now        func() time.Time
}

// Service infers meeting attendance from calendar signals and reacts
// to pre-meeting changes like external reschedules and declines.
type Service struct {
	deps   Deps
	logger *logger.Logger
	now    func() time.Time
	batch  int
}

// NewService creates the tracking service.
func NewService(deps Deps) *Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	batch := deps.BatchSize
	if batch <= 0 {
		batch = 20
	}
	if deps.Automation.TrackingGrace <= 0 {
		deps.Automation.TrackingGrace = 10 * time.Minute
	}
	if deps.Automation.NoShowGrace <= 0 {
		deps.Automation.NoShowGrace = 15 * time.Minute
	}
	if deps.Automation.RescheduleDrift <= 0 {
		deps.Automation.RescheduleDrift = 5 * time.Minute
	}
	if deps.Automation.SendTimeout <= 0 {
		deps.Automation.SendTimeout = 30 * time.Second
	}
	return &Service{
		deps:   deps,
		logger: deps.Logger.Named("tracking"),
		now:    now,
		batch:  batch,
	}
}

// Result summarizes one post-meeting sweep.
type Result struct {
	Checked int
	Updated int
	Errors  int
}

// ProcessMeetingTracking sweeps bookings whose scheduled end has passed
// and records an inferred outcome for each. Bookings with no linked
// calendar event are left for the operator; fetch failures leave the
// booking pending for the next pass.
func (s *Service) ProcessMeetingTracking(ctx context.Context) (Result, error) {
	now := s.now()
	due, err := s.deps.Bookings.DueForTracking(ctx, now, s.deps.Automation.TrackingGrace, s.batch)
	if err != nil {
		return Result{}, fmt.Errorf("tracking: select due bookings: %w", err)
	}

	var res Result
	for _, b := range due {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if b.GoogleEventID == "" {
			continue
		}

		ev, err := s.fetchEvent(ctx, b.GoogleEventID)
		switch {
		case apperrors.Is(err, apperrors.ErrNotConfigured):
			// No calendar credentials; nothing this sweep can infer.
			return res, nil
		case apperrors.Is(err, apperrors.ErrNotFound):
			// A deleted event reads the same as a cancellation.
			ev = &calendar.Event{Status: calendar.EventStatusCancelled}
		case err != nil:
			s.logger.Warn("event fetch failed",
				zap.String("booking_id", b.ID.String()),
				zap.Error(err))
			res.Errors++
			continue
		}

		res.Checked++
		d := classify(b, ev, now, s.deps.Automation.NoShowGrace, s.deps.OwnerEmail)

		switch d.kind {
		case deferPass:
			continue
		case askOperator:
			s.remindConfirmOutcome(ctx, b, d)
			if err := s.deps.Bookings.MarkChecked(ctx, b.ID); err != nil {
				s.logger.Warn("mark checked failed", zap.Error(err))
			}
		case decideOutcome:
			if s.recordOutcome(ctx, b, d) {
				res.Updated++
			}
		}
	}
	return res, nil
}

func (s *Service) fetchEvent(ctx context.Context, eventID string) (*calendar.Event, error) {
	if s.deps.Automation.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deps.Automation.SendTimeout)
		defer cancel()
	}
	return s.deps.Calendar.GetEvent(ctx, eventID)
}

// recordOutcome persists a classifier verdict and fans out its side
// effects. Returns false if the booking row could not be updated.
func (s *Service) recordOutcome(ctx context.Context, b domain.Booking, d decision) bool {
	lg := s.logger.With(
		zap.String("booking_id", b.ID.String()),
		zap.String("outcome", string(d.outcome)),
		zap.String("rule", d.rule),
	)

	if err := s.deps.Bookings.RecordOutcome(ctx, b.ID, d.outcome, domain.TrackingChecked); err != nil {
		lg.Warn("record outcome failed", zap.Error(err))
		return false
	}

	s.logActionOnce(ctx, b, domain.ActionOutcomeRecorded, d.rule,
		fmt.Sprintf("%s: %s", d.rule, d.reasoning), suggestedStage(b, d.outcome), d.confidence)

	switch d.outcome {
	case domain.OutcomeNoShow:
		s.queueRebookingInvite(ctx, b)
		s.addTask(ctx, b, "follow_up_no_show", "Customer missed the call, follow up and rebook", 4*time.Hour)
	case domain.OutcomeCancelled:
		s.addTask(ctx, b, "reschedule_booking", "Meeting was cancelled, offer new times", 24*time.Hour)
	case domain.OutcomeCompleted:
		s.addTask(ctx, b, "post_call_notes", "Write up call notes and agree next steps", time.Hour)
	}

	lg.Info("booking outcome recorded")
	return true
}

// suggestedStage proposes the pipeline move implied by an outcome.
// Only a completed first call has an unambiguous next stage; the rest
// stay a human call.
func suggestedStage(b domain.Booking, outcome domain.BookingOutcome) *domain.Stage {
	if outcome == domain.OutcomeCompleted && b.Type == domain.BookingCall1 {
		stage := domain.StageCall1Complete
		return &stage
	}
	return nil
}

func (s *Service) remindConfirmOutcome(ctx context.Context, b domain.Booking, d decision) {
	reasoning := fmt.Sprintf("%s: %s", d.rule, d.reasoning)
	if !s.logActionOnce(ctx, b, domain.ActionConfirmOutcome, d.rule, reasoning, nil, d.confidence) {
		return
	}
	s.addTask(ctx, b, "confirm_outcome", "Confirm whether the meeting went ahead", 4*time.Hour)
}

// logActionOnce appends to the action log unless an equivalent entry
// already exists for the booking. Returns true when a new entry was
// written.
func (s *Service) logActionOnce(ctx context.Context, b domain.Booking, actionType, dedupKey, reasoning string, suggested *domain.Stage, confidence float64) bool {
	exists, err := s.deps.Actions.Exists(ctx, b.ID, actionType, dedupKey)
	if err != nil {
		s.logger.Warn("action dedup lookup failed", zap.Error(err))
		return false
	}
	if exists {
		return false
	}

	action := &domain.PostCallAction{
		ID:            uuid.New(),
		BookingID:     b.ID,
		OpportunityID: b.OpportunityID,
		ActionType:    actionType,
		Reasoning:     reasoning,
		Confidence:    &confidence,
	}
	if suggested != nil {
		action.SuggestedStage = suggested
	}
	if err := s.deps.Actions.Insert(ctx, action); err != nil {
		s.logger.Warn("action insert failed", zap.Error(err))
		return false
	}
	return true
}

func (s *Service) addTask(ctx context.Context, b domain.Booking, taskType, description string, dueIn time.Duration) {
	opp, err := s.deps.Opps.Get(ctx, b.OpportunityID)
	var owner *uuid.UUID
	if err == nil {
		owner = opp.OwnerUserID
	}

	task := &domain.Task{
		ID:            uuid.New(),
		OpportunityID: b.OpportunityID,
		Type:          taskType,
		Description:   description,
		DueAt:         s.now().Add(dueIn),
		OwnerUserID:   owner,
		Status:        domain.TaskStatusOpen,
	}
	if err := s.deps.Tasks.Insert(ctx, task); err != nil {
		s.logger.Warn("task insert failed", zap.String("type", taskType), zap.Error(err))
	}
}

const (
	rebookSubject = "Sorry we missed you, shall we rebook?"
	rebookBody    = "Hi {{first_name}}, we tried to reach you for your wardrobe call but could not connect. Pick a new time that suits you here: {{booking_link}}"
)

// queueRebookingInvite queues a rebooking nudge on every channel the
// lead can be reached on. The sweep marks the booking checked, so the
// nudge cannot repeat for the same meeting.
func (s *Service) queueRebookingInvite(ctx context.Context, b domain.Booking) {
	opp, err := s.deps.Opps.Get(ctx, b.OpportunityID)
	if err != nil {
		s.logger.Warn("opportunity lookup failed for rebooking invite", zap.Error(err))
		return
	}
	lead, err := s.deps.Leads.Get(ctx, opp.LeadID)
	if err != nil {
		s.logger.Warn("lead lookup failed for rebooking invite", zap.Error(err))
		return
	}

	channels := make([]domain.Channel, 0, 3)
	if lead.Email != "" {
		channels = append(channels, domain.ChannelEmail)
	}
	if lead.Phone != "" {
		channels = append(channels, domain.ChannelSMS, domain.ChannelWhatsApp)
	}

	for _, ch := range channels {
		msg := &domain.QueuedMessage{
			ID:           uuid.New(),
			LeadID:       lead.ID,
			Channel:      ch,
			TemplateSlug: "no_show_rebook",
			Status:       domain.MessageStatusQueued,
			Metadata: domain.MessageMetadata{
				Subject:       rebookSubject,
				Body:          rebookBody,
				OpportunityID: opp.ID,
			},
		}
		if err := s.deps.Messages.Insert(ctx, msg); err != nil {
			s.logger.Warn("rebooking message insert failed",
				zap.String("channel", string(ch)), zap.Error(err))
		}
	}
}
