package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cachimiro/pax-website-sub000/internal/channel"
	"github.com/cachimiro/pax-website-sub000/internal/config"
	"github.com/cachimiro/pax-website-sub000/internal/domain"
	"github.com/cachimiro/pax-website-sub000/internal/repository"
	"github.com/cachimiro/pax-website-sub000/internal/service/variables"
	apperrors "github.com/cachimiro/pax-website-sub000/pkg/errors"
	"github.com/cachimiro/pax-website-sub000/pkg/logger"
)

// Deps wires the dispatch service.
type Deps struct {
	Messages   repository.MessageLogRepository
	Opps       repository.OpportunityRepository
	Users      repository.UserRepository
	Bookings   repository.BookingRepository
	Templates  repository.TemplateRepository
	Attempts   repository.AttemptStore
	Sender     channel.Sender
	Site       config.SiteConfig
	Automation config.AutomationConfig
	BatchSize  int
	Logger     *logger.Logger
	Now        func() time.Time
}

// Service drains the message queue: claims due rows, re-renders them
// against current pipeline state and hands them to the channel sender.
type Service struct {
	deps   Deps
	logger *logger.Logger
	now    func() time.Time
	batch  int
}

// NewService creates the dispatch service.
func NewService(deps Deps) *Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	batch := deps.BatchSize
	if batch <= 0 {
		batch = 50
	}
	return &Service{
		deps:   deps,
		logger: deps.Logger.Named("dispatch"),
		now:    now,
		batch:  batch,
	}
}

// RecentAttempts returns the delivery attempts recorded for a message,
// newest first.
func (s *Service) RecentAttempts(ctx context.Context, messageID uuid.UUID, limit int) ([]domain.DispatchAttempt, error) {
	if limit <= 0 {
		limit = 20
	}
	attempts, err := s.deps.Attempts.ListByMessage(ctx, messageID, limit)
	if err != nil {
		return nil, fmt.Errorf("dispatch: list attempts: %w", err)
	}
	return attempts, nil
}

// ProcessQueuedMessages runs one queue pass and returns how many
// claimed messages reached a terminal status. Messages are claimed
// first, so two overlapping passes never double-send; a crash after
// claiming re-delivers once the claim goes stale (at-least-once).
func (s *Service) ProcessQueuedMessages(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.deps.Messages.ClaimDue(ctx, now, s.batch)
	if err != nil {
		return 0, fmt.Errorf("dispatch: claim due: %w", err)
	}

	processed := 0
	for _, row := range due {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if s.dispatchOne(ctx, row) {
			processed++
		}
	}
	return processed, nil
}

// dispatchOne sends a single claimed message. Returns true when the
// row reached sent or failed, false when it was requeued.
func (s *Service) dispatchOne(ctx context.Context, row repository.DueMessage) bool {
	msg := row.Message
	lg := s.logger.With(
		zap.String("message_id", msg.ID.String()),
		zap.String("channel", string(msg.Channel)),
		zap.String("template", msg.TemplateSlug),
	)

	subject, body, ok := s.resolveContent(ctx, lg, msg)
	if !ok {
		meta := msg.Metadata
		meta.Error = "template not found: " + msg.TemplateSlug
		s.finish(ctx, lg, msg.ID, domain.MessageStatusFailed, meta, msg.Channel, 0, "")
		return true
	}

	to, ok := contactFor(msg.Channel, row)
	if !ok {
		// Contact details can be backfilled later; leave the row queued
		// rather than burning it.
		if err := s.deps.Messages.Requeue(ctx, msg.ID); err != nil {
			lg.Warn("requeue failed", zap.Error(err))
		}
		return false
	}

	vars := s.resolveVariables(ctx, row)
	renderedSubject := variables.Render(subject, vars)
	renderedBody := variables.Render(body, vars)

	sendCtx := ctx
	if s.deps.Automation.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, s.deps.Automation.SendTimeout)
		defer cancel()
	}

	started := s.now()
	var result channel.Result
	var sendErr error
	switch msg.Channel {
	case domain.ChannelEmail:
		result, sendErr = s.deps.Sender.SendEmail(sendCtx, to, renderedSubject, renderedBody)
	case domain.ChannelSMS:
		result, sendErr = s.deps.Sender.SendSMS(sendCtx, to, renderedBody)
	case domain.ChannelWhatsApp:
		result, sendErr = s.deps.Sender.SendWhatsApp(sendCtx, to, renderedBody)
	default:
		sendErr = fmt.Errorf("dispatch: unknown channel %q", msg.Channel)
	}
	duration := s.now().Sub(started)

	meta := msg.Metadata
	meta.RenderedSubject = renderedSubject
	meta.RenderedBody = renderedBody

	status := domain.MessageStatusSent
	if sendErr != nil || !result.Success {
		status = domain.MessageStatusFailed
		if sendErr != nil {
			meta.Error = sendErr.Error()
		} else {
			meta.Error = result.Error
		}
		lg.Warn("send failed", zap.Error(sendErr), zap.String("provider_error", result.Error))
	} else {
		sentAt := s.now()
		meta.SentAt = &sentAt
		meta.ExternalID = result.ExternalID
	}

	s.finish(ctx, lg, msg.ID, status, meta, msg.Channel, duration, result.ExternalID)
	return true
}

func (s *Service) finish(ctx context.Context, lg *logger.Logger, id uuid.UUID, status domain.MessageStatus, meta domain.MessageMetadata, ch domain.Channel, duration time.Duration, externalID string) {
	if err := s.deps.Messages.Finish(ctx, id, status, meta); err != nil {
		lg.Error("finish failed, row will be reclaimed as stale", zap.Error(err))
		return
	}

	attempt := domain.DispatchAttempt{
		ID:         uuid.New(),
		MessageID:  id,
		Channel:    ch,
		Status:     status,
		Error:      meta.Error,
		ExternalID: externalID,
		Duration:   duration,
		CreatedAt:  s.now(),
	}
	if err := s.deps.Attempts.AppendAttempt(ctx, attempt); err != nil {
		lg.Warn("attempt append failed", zap.Error(err))
	}
}

// resolveContent decides what text to send. Literal subject and body
// stored at enqueue time win over a fresh template lookup; they may
// still carry placeholders.
func (s *Service) resolveContent(ctx context.Context, lg *logger.Logger, msg domain.QueuedMessage) (subject, body string, ok bool) {
	if msg.Metadata.Body != "" {
		return msg.Metadata.Subject, msg.Metadata.Body, true
	}

	tpl, err := s.deps.Templates.GetBySlug(ctx, msg.TemplateSlug)
	if err != nil {
		lg.Warn("template lookup failed", zap.Error(err))
		return "", "", false
	}
	return tpl.Subject, tpl.Body, true
}

// resolveVariables builds a fresh variable snapshot at send time so a
// rescheduled booking renders with its current date and time. Lookups
// are best effort; anything missing renders as a visible placeholder.
func (s *Service) resolveVariables(ctx context.Context, row repository.DueMessage) map[string]string {
	msg := row.Message
	in := variables.Input{
		Lead: &domain.Lead{
			ID:    msg.LeadID,
			Name:  row.LeadName,
			Email: row.LeadEmail,
			Phone: row.LeadPhone,
		},
		MeetLink:    msg.Metadata.MeetLink,
		PaymentLink: msg.Metadata.PaymentLink,
		SiteURL:     s.deps.Site.BaseURL,
		BookingPath: s.deps.Site.BookingPath,
	}

	if msg.Metadata.OpportunityID == uuid.Nil {
		return variables.Resolve(in)
	}

	opp, err := s.deps.Opps.Get(ctx, msg.Metadata.OpportunityID)
	if err != nil {
		if !apperrors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("opportunity lookup failed", zap.Error(err))
		}
		return variables.Resolve(in)
	}
	in.Opportunity = opp

	if opp.OwnerUserID != nil {
		if owner, err := s.deps.Users.Get(ctx, *opp.OwnerUserID); err == nil {
			in.OwnerName = owner.Name
		}
	}

	stage := msg.Metadata.TriggerStage
	if stage == "" {
		stage = opp.Stage
	}
	if bookingType, ok := domain.BookingTypeForStage(stage); ok {
		if b, err := s.deps.Bookings.LatestByType(ctx, opp.ID, bookingType); err == nil {
			in.Booking = b
		}
	}

	return variables.Resolve(in)
}

// contactFor returns the destination address for the channel.
func contactFor(ch domain.Channel, row repository.DueMessage) (string, bool) {
	switch ch {
	case domain.ChannelEmail:
		return row.LeadEmail, row.LeadEmail != ""
	case domain.ChannelSMS, domain.ChannelWhatsApp:
		return row.LeadPhone, row.LeadPhone != ""
	}
	return "", false
}
