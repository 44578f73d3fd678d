package channel

import (
	"context"

	"go.uber.org/zap"

	"github.com/cachimiro/pax-website-sub000/internal/config"
	"github.com/cachimiro/pax-website-sub000/pkg/logger"
)

// Result describes the outcome of a single send.
type Result struct {
	Success    bool
	ExternalID string
	Error      string
}

// Sender delivers rendered messages over the supported channels.
type Sender interface {
	SendEmail(ctx context.Context, to, subject, body string) (Result, error)
	SendSMS(ctx context.Context, to, body string) (Result, error)
	SendWhatsApp(ctx context.Context, to, body string) (Result, error)
}

// EmailSender delivers a single email.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) (Result, error)
}

// TextSender delivers SMS and WhatsApp messages.
type TextSender interface {
	SendSMS(ctx context.Context, to, body string) (Result, error)
	SendWhatsApp(ctx context.Context, to, body string) (Result, error)
}

// Gateway routes sends to the configured providers. A channel with no
// credentials runs in dry-run mode: the send is logged and reported as
// successful so development environments exercise the full pipeline
// without delivering anything.
type Gateway struct {
	email  EmailSender
	texts  TextSender
	logger *logger.Logger
}

// NewGateway builds a gateway from channel configuration.
func NewGateway(cfg config.ChannelsConfig, lg *logger.Logger) *Gateway {
	g := &Gateway{logger: lg.Named("channel")}
	if cfg.SMTP.Host != "" {
		g.email = NewSMTPSender(cfg.SMTP)
	}
	if cfg.Twilio.AccountSID != "" && cfg.Twilio.AuthToken != "" {
		g.texts = NewTwilioSender(cfg.Twilio)
	}
	return g
}

// NewGatewayWith builds a gateway from explicit providers, nil meaning
// dry-run for that channel.
func NewGatewayWith(email EmailSender, texts TextSender, lg *logger.Logger) *Gateway {
	return &Gateway{email: email, texts: texts, logger: lg.Named("channel")}
}

func (g *Gateway) SendEmail(ctx context.Context, to, subject, body string) (Result, error) {
	if g.email == nil {
		return g.dryRun("email", to), nil
	}
	return g.email.Send(ctx, to, subject, body)
}

func (g *Gateway) SendSMS(ctx context.Context, to, body string) (Result, error) {
	if g.texts == nil {
		return g.dryRun("sms", to), nil
	}
	return g.texts.SendSMS(ctx, to, body)
}

func (g *Gateway) SendWhatsApp(ctx context.Context, to, body string) (Result, error) {
	if g.texts == nil {
		return g.dryRun("whatsapp", to), nil
	}
	return g.texts.SendWhatsApp(ctx, to, body)
}

func (g *Gateway) dryRun(channel, to string) Result {
	g.logger.Info("dry-run send",
		zap.String("channel", channel),
		zap.String("to", to),
	)
	return Result{Success: true, ExternalID: "dry-run"}
}
