package automation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cachimiro/pax-website-sub000/internal/config"
	"github.com/cachimiro/pax-website-sub000/internal/domain"
	"github.com/cachimiro/pax-website-sub000/internal/payment"
	"github.com/cachimiro/pax-website-sub000/internal/repository"
	apperrors "github.com/cachimiro/pax-website-sub000/pkg/errors"
	"github.com/cachimiro/pax-website-sub000/pkg/logger"
)

// paymentLinkPending is substituted for {{payment_link}} when the
// checkout provider fails; operators send the real link manually.
const paymentLinkPending = "[payment link to follow]"

// Trigger describes one stage change to fan automations out from.
type Trigger struct {
	OpportunityID uuid.UUID
	Stage         domain.Stage
	// BookingTime overrides the booking lookup when the caller already
	// knows the meeting time, e.g. a booking webhook.
	BookingTime *time.Time
	MeetLink    string
}

// Deps wires the automation service.
type Deps struct {
	Leads      repository.LeadRepository
	Opps       repository.OpportunityRepository
	Templates  repository.TemplateRepository
	Messages   repository.MessageLogRepository
	Bookings   repository.BookingRepository
	Tasks      repository.TaskRepository
	Invoices   repository.InvoiceRepository
	Payments   payment.Provider
	Automation config.AutomationConfig
	Logger     *logger.Logger
	// Now is a test hook; defaults to time.Now.
	Now func() time.Time
}

// Service turns pipeline stage changes into queued messages, tasks and
// deposit invoices.
type Service struct {
	deps   Deps
	logger *logger.Logger
	now    func() time.Time
}

// NewService creates the automation service.
func NewService(deps Deps) *Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		deps:   deps,
		logger: deps.Logger.Named("automation"),
		now:    now,
	}
}

type taskDef struct {
	taskType    string
	description string
	dueIn       time.Duration
}

// Operational follow-ups raised alongside the messages for a stage.
var stageTasks = map[domain.Stage]taskDef{
	domain.StageNewEnquiry: {
		taskType:    "qualify_lead",
		description: "Review new enquiry and qualify the lead",
		dueIn:       4 * time.Hour,
	},
	domain.StageCall1Complete: {
		taskType:    "send_design_brief",
		description: "Write up discovery call notes and start the design brief",
		dueIn:       24 * time.Hour,
	},
	domain.StageAwaitingDeposit: {
		taskType:    "chase_deposit",
		description: "Chase the deposit if unpaid",
		dueIn:       48 * time.Hour,
	},
	domain.StageDepositPaid: {
		taskType:    "schedule_onboarding",
		description: "Book the onboarding visit with the customer",
		dueIn:       24 * time.Hour,
	},
	domain.StageInstallationBooked: {
		taskType:    "confirm_materials",
		description: "Confirm materials and fitter availability for the installation",
		dueIn:       72 * time.Hour,
	},
}

// RunStageAutomations fans one stage change out into messages, a stage
// task and, at awaiting_deposit, an invoice with a checkout link. It
// never returns an error: the stage write already happened and a
// partial fan-out must not undo it. Failures are logged per item so one
// bad template or provider cannot suppress the rest.
func (s *Service) RunStageAutomations(ctx context.Context, trig Trigger) {
	lg := s.logger.With(
		zap.String("opportunity_id", trig.OpportunityID.String()),
		zap.String("stage", string(trig.Stage)),
	)

	opp, err := s.deps.Opps.Get(ctx, trig.OpportunityID)
	if err != nil {
		lg.Warn("opportunity lookup failed, skipping automations", zap.Error(err))
		return
	}
	lead, err := s.deps.Leads.Get(ctx, opp.LeadID)
	if err != nil {
		lg.Warn("lead lookup failed, skipping automations", zap.Error(err))
		return
	}

	bookingTime := trig.BookingTime
	meetLink := trig.MeetLink
	if bookingType, ok := domain.BookingTypeForStage(trig.Stage); ok {
		if b, err := s.deps.Bookings.LatestByType(ctx, opp.ID, bookingType); err == nil {
			if bookingTime == nil {
				bookingTime = &b.ScheduledAt
			}
			if meetLink == "" {
				meetLink = b.MeetLink
			}
		} else if !apperrors.Is(err, repository.ErrNotFound) {
			lg.Warn("booking lookup failed", zap.Error(err))
		}
	}

	if def, ok := stageTasks[trig.Stage]; ok {
		task := &domain.Task{
			ID:            uuid.New(),
			OpportunityID: opp.ID,
			Type:          def.taskType,
			Description:   def.description,
			DueAt:         s.now().Add(def.dueIn),
			OwnerUserID:   opp.OwnerUserID,
			Status:        domain.TaskStatusOpen,
		}
		if err := s.deps.Tasks.Insert(ctx, task); err != nil {
			lg.Warn("stage task insert failed", zap.Error(err))
		}
	}

	paymentLink := ""
	if trig.Stage == domain.StageAwaitingDeposit {
		paymentLink = s.ensureDepositLink(ctx, lg, opp, lead)
	}

	tpls, err := s.deps.Templates.ListActiveByStage(ctx, trig.Stage)
	if err != nil {
		lg.Warn("template lookup failed, skipping messages", zap.Error(err))
		return
	}
	if len(tpls) == 0 {
		return
	}

	queued, err := s.deps.Messages.QueuedPairs(ctx, lead.ID, opp.ID, trig.Stage)
	if err != nil {
		// The partial unique index still blocks duplicates, so a failed
		// pre-check degrades to relying on it.
		lg.Warn("dedup lookup failed", zap.Error(err))
		queued = map[string]struct{}{}
	}

	now := s.now()
	for _, tpl := range tpls {
		scheduledFor, ok := scheduleFor(tpl, now, bookingTime)
		if !ok {
			lg.Info("skipping template, send window already passed",
				zap.String("template", tpl.Slug))
			continue
		}

		for _, ch := range []domain.Channel{domain.ChannelEmail, domain.ChannelSMS, domain.ChannelWhatsApp} {
			if !tpl.HasChannel(ch) {
				continue
			}
			if !hasContact(lead, ch) {
				continue
			}
			if _, dup := queued[tpl.Slug+":"+string(ch)]; dup {
				continue
			}

			msg := &domain.QueuedMessage{
				ID:           uuid.New(),
				LeadID:       lead.ID,
				Channel:      ch,
				TemplateSlug: tpl.Slug,
				Status:       domain.MessageStatusQueued,
				ScheduledFor: scheduledFor,
				Metadata: domain.MessageMetadata{
					Subject:       tpl.Subject,
					Body:          tpl.Body,
					TriggerStage:  trig.Stage,
					OpportunityID: opp.ID,
					AutoTriggered: true,
					PaymentLink:   paymentLink,
					MeetLink:      meetLink,
				},
			}
			if err := s.deps.Messages.Insert(ctx, msg); err != nil {
				lg.Warn("message insert failed",
					zap.String("template", tpl.Slug),
					zap.String("channel", string(ch)),
					zap.Error(err))
				continue
			}
			queued[tpl.Slug+":"+string(ch)] = struct{}{}
		}
	}
}

// hasContact reports whether the lead has the contact field the channel
// needs. Messages for missing channels are never queued; the template's
// other channels still go out.
func hasContact(lead *domain.Lead, ch domain.Channel) bool {
	switch ch {
	case domain.ChannelEmail:
		return lead.Email != ""
	case domain.ChannelSMS, domain.ChannelWhatsApp:
		return lead.Phone != ""
	}
	return false
}

// scheduleFor computes when a template becomes eligible. ok is false
// when the template should be skipped outright, e.g. a pre-meeting
// reminder whose send time has already passed.
func scheduleFor(tpl domain.Template, now time.Time, bookingTime *time.Time) (*time.Time, bool) {
	delay := time.Duration(tpl.DelayMinutes) * time.Minute

	switch tpl.DelayRule {
	case domain.DelayImmediate:
		return nil, true
	case domain.DelayMinutesBeforeBooking:
		if bookingTime == nil {
			return nil, false
		}
		at := bookingTime.Add(-delay)
		if !at.After(now) {
			return nil, false
		}
		return &at, true
	case domain.DelayMinutesAfterStage, domain.DelayMinutesAfterEnquiry:
		if delay <= 0 {
			return nil, true
		}
		at := now.Add(delay)
		return &at, true
	}
	return nil, false
}

// ensureDepositLink makes sure an invoice exists for the opportunity
// and returns a checkout URL for 30% of the estimated value. Provider
// failures degrade to a placeholder so the deposit email still goes out.
func (s *Service) ensureDepositLink(ctx context.Context, lg *logger.Logger, opp *domain.Opportunity, lead *domain.Lead) string {
	deposit := domain.DepositPence(opp.ValueEstimate)
	if deposit <= 0 {
		lg.Warn("no value estimate, cannot raise deposit invoice")
		return paymentLinkPending
	}

	existing, err := s.deps.Invoices.GetByOpportunity(ctx, opp.ID)
	if err != nil && !apperrors.Is(err, repository.ErrNotFound) {
		lg.Warn("invoice lookup failed", zap.Error(err))
	}
	// Checkout sessions are minted once per invoice; a re-triggered
	// stage reuses the stored link instead of orphaning a new session.
	if existing != nil && existing.CheckoutURL != "" {
		return existing.CheckoutURL
	}

	sessionCtx := ctx
	if s.deps.Automation.SendTimeout > 0 {
		var cancel context.CancelFunc
		sessionCtx, cancel = context.WithTimeout(ctx, s.deps.Automation.SendTimeout)
		defer cancel()
	}

	session, err := s.deps.Payments.CreateCheckoutSession(sessionCtx, deposit,
		"Wardrobe installation deposit for "+lead.Name,
		map[string]string{"opportunity_id": opp.ID.String()},
	)
	if err != nil && !apperrors.Is(err, apperrors.ErrNotConfigured) {
		lg.Warn("checkout session failed", zap.Error(err))
	}

	if existing == nil {
		invoice := &domain.Invoice{
			ID:            uuid.New(),
			OpportunityID: opp.ID,
			AmountPence:   opp.ValueEstimate,
			DepositPence:  deposit,
			Status:        domain.InvoiceStatusPending,
		}
		if session != nil {
			invoice.CheckoutSessionID = session.ID
			invoice.CheckoutURL = session.URL
		}
		if err := s.deps.Invoices.Insert(ctx, invoice); err != nil {
			lg.Warn("invoice insert failed", zap.Error(err))
		}
	}

	if session == nil {
		return paymentLinkPending
	}
	return session.URL
}
