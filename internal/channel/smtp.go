package channel

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"

	"github.com/cachimiro/pax-website-sub000/internal/config"
)

// SMTPSender delivers email over an authenticated SMTP relay.
type SMTPSender struct {
	cfg config.SMTPConfig
}

// NewSMTPSender creates an SMTP email sender.
func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send delivers one email. A fresh client per send keeps connection
// state out of the sender, queue volume is low enough not to care.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) (Result, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat(s.cfg.FromName, s.cfg.FromEmail); err != nil {
		return Result{Error: err.Error()}, fmt.Errorf("smtp: from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return Result{Error: err.Error()}, fmt.Errorf("smtp: to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	messageID := uuid.NewString()
	msg.SetMessageIDWithValue(messageID)

	client, err := mail.NewClient(s.cfg.Host,
		mail.WithPort(s.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.Username),
		mail.WithPassword(s.cfg.Password),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	)
	if err != nil {
		return Result{Error: err.Error()}, fmt.Errorf("smtp: new client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return Result{Error: err.Error()}, fmt.Errorf("smtp: send: %w", err)
	}

	return Result{Success: true, ExternalID: messageID}, nil
}
