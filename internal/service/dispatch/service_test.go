package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cachimiro/pax-website-sub000/internal/channel"
	"github.com/cachimiro/pax-website-sub000/internal/domain"
	"github.com/cachimiro/pax-website-sub000/internal/repository"
	"github.com/cachimiro/pax-website-sub000/pkg/logger"
)

type fakeMessages struct {
	due      []repository.DueMessage
	requeued []uuid.UUID
	finished map[uuid.UUID]domain.MessageStatus
	metas    map[uuid.UUID]domain.MessageMetadata
}

func newFakeMessages(due ...repository.DueMessage) *fakeMessages {
	return &fakeMessages{
		due:      due,
		finished: map[uuid.UUID]domain.MessageStatus{},
		metas:    map[uuid.UUID]domain.MessageMetadata{},
	}
}

func (f *fakeMessages) Insert(ctx context.Context, msg *domain.QueuedMessage) error { return nil }

func (f *fakeMessages) QueuedPairs(ctx context.Context, leadID, opportunityID uuid.UUID, stage domain.Stage) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

func (f *fakeMessages) ClaimDue(ctx context.Context, now time.Time, limit int) ([]repository.DueMessage, error) {
	return f.due, nil
}

func (f *fakeMessages) Requeue(ctx context.Context, id uuid.UUID) error {
	f.requeued = append(f.requeued, id)
	return nil
}

func (f *fakeMessages) Finish(ctx context.Context, id uuid.UUID, status domain.MessageStatus, meta domain.MessageMetadata) error {
	f.finished[id] = status
	f.metas[id] = meta
	return nil
}

func (f *fakeMessages) ListRecent(ctx context.Context, limit int) ([]domain.QueuedMessage, error) {
	return nil, nil
}

type fakeOpps struct{}

func (fakeOpps) Get(ctx context.Context, id uuid.UUID) (*domain.Opportunity, error) {
	return nil, repository.ErrNotFound
}

func (fakeOpps) UpdateStage(ctx context.Context, id uuid.UUID, stage domain.Stage) error {
	return nil
}

type fakeUsers struct{}

func (fakeUsers) Get(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return nil, repository.ErrNotFound
}

type fakeBookings struct{}

func (fakeBookings) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return nil, repository.ErrNotFound
}

func (fakeBookings) LatestByType(ctx context.Context, opportunityID uuid.UUID, t domain.BookingType) (*domain.Booking, error) {
	return nil, repository.ErrNotFound
}

func (fakeBookings) DueForTracking(ctx context.Context, now time.Time, grace time.Duration, limit int) ([]domain.Booking, error) {
	return nil, nil
}

func (fakeBookings) UpcomingWithin(ctx context.Context, from, until time.Time, limit int) ([]domain.Booking, error) {
	return nil, nil
}

func (fakeBookings) RecordOutcome(ctx context.Context, id uuid.UUID, outcome domain.BookingOutcome, tracking domain.TrackingStatus) error {
	return nil
}

func (fakeBookings) MarkChecked(ctx context.Context, id uuid.UUID) error { return nil }

func (fakeBookings) Reschedule(ctx context.Context, id uuid.UUID, newStart time.Time) error {
	return nil
}

type fakeTemplates struct{ tpl *domain.Template }

func (f *fakeTemplates) ListActiveByStage(ctx context.Context, stage domain.Stage) ([]domain.Template, error) {
	return nil, nil
}

func (f *fakeTemplates) GetBySlug(ctx context.Context, slug string) (*domain.Template, error) {
	if f.tpl == nil {
		return nil, repository.ErrNotFound
	}
	return f.tpl, nil
}

type fakeAttempts struct{ appended []domain.DispatchAttempt }

func (f *fakeAttempts) AppendAttempt(ctx context.Context, attempt domain.DispatchAttempt) error {
	f.appended = append(f.appended, attempt)
	return nil
}

func (f *fakeAttempts) ListByMessage(ctx context.Context, messageID uuid.UUID, limit int) ([]domain.DispatchAttempt, error) {
	out := make([]domain.DispatchAttempt, 0, len(f.appended))
	for _, a := range f.appended {
		if a.MessageID != messageID {
			continue
		}
		out = append(out, a)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type sentCall struct {
	channel domain.Channel
	to      string
	subject string
	body    string
}

type fakeSender struct {
	calls  []sentCall
	result channel.Result
	err    error
}

func (f *fakeSender) SendEmail(ctx context.Context, to, subject, body string) (channel.Result, error) {
	f.calls = append(f.calls, sentCall{channel: domain.ChannelEmail, to: to, subject: subject, body: body})
	return f.result, f.err
}

func (f *fakeSender) SendSMS(ctx context.Context, to, body string) (channel.Result, error) {
	f.calls = append(f.calls, sentCall{channel: domain.ChannelSMS, to: to, body: body})
	return f.result, f.err
}

func (f *fakeSender) SendWhatsApp(ctx context.Context, to, body string) (channel.Result, error) {
	f.calls = append(f.calls, sentCall{channel: domain.ChannelWhatsApp, to: to, body: body})
	return f.result, f.err
}

func dueMessage(ch domain.Channel, meta domain.MessageMetadata) repository.DueMessage {
	return repository.DueMessage{
		Message: domain.QueuedMessage{
			ID:           uuid.New(),
			LeadID:       uuid.New(),
			Channel:      ch,
			TemplateSlug: "welcome",
			Status:       domain.MessageStatusSending,
			Metadata:     meta,
		},
		LeadName:  "Jane Doe",
		LeadEmail: "jane@example.com",
		LeadPhone: "+447700900123",
	}
}

func newService(messages *fakeMessages, sender *fakeSender, templates *fakeTemplates, attempts *fakeAttempts) *Service {
	return NewService(Deps{
		Messages:  messages,
		Opps:      fakeOpps{},
		Users:     fakeUsers{},
		Bookings:  fakeBookings{},
		Templates: templates,
		Attempts:  attempts,
		Sender:    sender,
		Logger:    &logger.Logger{Logger: zap.NewNop()},
	})
}

func TestProcessQueuedMessagesSendsAndRecords(t *testing.T) {
	row := dueMessage(domain.ChannelEmail, domain.MessageMetadata{
		Subject: "Hello {{first_name}}",
		Body:    "Hi {{first_name}}, welcome.",
	})
	messages := newFakeMessages(row)
	sender := &fakeSender{result: channel.Result{Success: true, ExternalID: "ext-1"}}
	attempts := &fakeAttempts{}

	processed, err := newService(messages, sender, &fakeTemplates{}, attempts).ProcessQueuedMessages(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected 1 processed, got %d", processed)
	}

	if len(sender.calls) != 1 {
		t.Fatalf("expected 1 send, got %d", len(sender.calls))
	}
	call := sender.calls[0]
	if call.to != "jane@example.com" {
		t.Errorf("unexpected recipient %q", call.to)
	}
	if call.subject != "Hello Jane" || call.body != "Hi Jane, welcome." {
		t.Errorf("unexpected rendered content: %q / %q", call.subject, call.body)
	}

	id := row.Message.ID
	if messages.finished[id] != domain.MessageStatusSent {
		t.Errorf("expected sent status, got %q", messages.finished[id])
	}
	meta := messages.metas[id]
	if meta.ExternalID != "ext-1" || meta.SentAt == nil {
		t.Errorf("expected send audit in metadata, got %+v", meta)
	}
	if meta.RenderedBody != "Hi Jane, welcome." {
		t.Errorf("expected rendered body in metadata, got %q", meta.RenderedBody)
	}

	if len(attempts.appended) != 1 {
		t.Fatalf("expected 1 attempt record, got %d", len(attempts.appended))
	}
	if attempts.appended[0].Status != domain.MessageStatusSent {
		t.Errorf("unexpected attempt status %q", attempts.appended[0].Status)
	}
}

func TestRecentAttemptsReturnsRecordedSends(t *testing.T) {
	row := dueMessage(domain.ChannelEmail, domain.MessageMetadata{
		Subject: "Hello",
		Body:    "Hi there.",
	})
	messages := newFakeMessages(row)
	sender := &fakeSender{result: channel.Result{Success: true, ExternalID: "ext-1"}}
	attempts := &fakeAttempts{}
	svc := newService(messages, sender, &fakeTemplates{}, attempts)

	if _, err := svc.ProcessQueuedMessages(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := svc.RecentAttempts(context.Background(), row.Message.ID, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(got))
	}
	if got[0].MessageID != row.Message.ID || got[0].Status != domain.MessageStatusSent {
		t.Errorf("unexpected attempt %+v", got[0])
	}

	// Attempts for other messages stay out of the listing.
	other, err := svc.RecentAttempts(context.Background(), uuid.New(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no attempts for an unknown message, got %d", len(other))
	}
}

func TestProcessQueuedMessagesRequeuesMissingContact(t *testing.T) {
	row := dueMessage(domain.ChannelSMS, domain.MessageMetadata{Body: "hello"})
	row.LeadPhone = ""
	messages := newFakeMessages(row)
	sender := &fakeSender{result: channel.Result{Success: true}}

	processed, err := newService(messages, sender, &fakeTemplates{}, &fakeAttempts{}).ProcessQueuedMessages(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 0 {
		t.Fatalf("expected 0 processed, got %d", processed)
	}
	if len(sender.calls) != 0 {
		t.Errorf("sender should not be called without a phone number")
	}
	if len(messages.requeued) != 1 || messages.requeued[0] != row.Message.ID {
		t.Errorf("expected row to be requeued")
	}
}

func TestProcessQueuedMessagesMarksFailedOnProviderError(t *testing.T) {
	row := dueMessage(domain.ChannelWhatsApp, domain.MessageMetadata{Body: "hello"})
	messages := newFakeMessages(row)
	sender := &fakeSender{err: errors.New("provider down")}

	processed, err := newService(messages, sender, &fakeTemplates{}, &fakeAttempts{}).ProcessQueuedMessages(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected 1 processed, got %d", processed)
	}

	id := row.Message.ID
	if messages.finished[id] != domain.MessageStatusFailed {
		t.Errorf("expected failed status, got %q", messages.finished[id])
	}
	if messages.metas[id].Error == "" {
		t.Errorf("expected provider error in metadata")
	}
}

func TestMetadataBodyWinsOverTemplate(t *testing.T) {
	row := dueMessage(domain.ChannelEmail, domain.MessageMetadata{
		Subject: "pinned subject",
		Body:    "pinned body",
	})
	messages := newFakeMessages(row)
	sender := &fakeSender{result: channel.Result{Success: true}}
	templates := &fakeTemplates{tpl: &domain.Template{
		Slug:    "welcome",
		Subject: "template subject",
		Body:    "template body",
	}}

	if _, err := newService(messages, sender, templates, &fakeAttempts{}).ProcessQueuedMessages(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.calls) != 1 {
		t.Fatalf("expected 1 send, got %d", len(sender.calls))
	}
	if sender.calls[0].body != "pinned body" || sender.calls[0].subject != "pinned subject" {
		t.Errorf("expected pinned metadata content, got %q / %q",
			sender.calls[0].subject, sender.calls[0].body)
	}
}

func TestTemplateLookupFallbackWhenMetadataEmpty(t *testing.T) {
	row := dueMessage(domain.ChannelEmail, domain.MessageMetadata{})
	messages := newFakeMessages(row)
	sender := &fakeSender{result: channel.Result{Success: true}}
	templates := &fakeTemplates{tpl: &domain.Template{
		Slug:    "welcome",
		Subject: "template subject",
		Body:    "template body",
	}}

	if _, err := newService(messages, sender, templates, &fakeAttempts{}).ProcessQueuedMessages(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.calls) != 1 || sender.calls[0].body != "template body" {
		t.Fatalf("expected template body to be sent")
	}
}

func TestMissingTemplateMarksFailed(t *testing.T) {
	row := dueMessage(domain.ChannelEmail, domain.MessageMetadata{})
	messages := newFakeMessages(row)
	sender := &fakeSender{result: channel.Result{Success: true}}

	processed, err := newService(messages, sender, &fakeTemplates{}, &fakeAttempts{}).ProcessQueuedMessages(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected 1 processed, got %d", processed)
	}
	if messages.finished[row.Message.ID] != domain.MessageStatusFailed {
		t.Errorf("expected failed status for missing template")
	}
	if len(sender.calls) != 0 {
		t.Errorf("sender should not be called for missing template")
	}
}
