package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cachimiro/pax-website-sub000/internal/config"
)

const defaultTwilioBaseURL = "https://api.twilio.com"

// TwilioSender delivers SMS and WhatsApp messages via the Twilio
// Messages REST API.
type TwilioSender struct {
	cfg    config.TwilioConfig
	client *http.Client
}

// NewTwilioSender creates a Twilio text sender.
func NewTwilioSender(cfg config.TwilioConfig) *TwilioSender {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTwilioBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TwilioSender{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *TwilioSender) SendSMS(ctx context.Context, to, body string) (Result, error) {
	return s.send(ctx, s.cfg.SMSFrom, to, body)
}

func (s *TwilioSender) SendWhatsApp(ctx context.Context, to, body string) (Result, error) {
	from := s.cfg.WhatsAppFrom
	if !strings.HasPrefix(from, "whatsapp:") {
		from = "whatsapp:" + from
	}
	if !strings.HasPrefix(to, "whatsapp:") {
		to = "whatsapp:" + to
	}
	return s.send(ctx, from, to, body)
}

type twilioResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (s *TwilioSender) send(ctx context.Context, from, to, body string) (Result, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimSuffix(s.cfg.BaseURL, "/"), s.cfg.AccountSID)

	form := url.Values{}
	form.Set("From", from)
	form.Set("To", to)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{Error: err.Error()}, fmt.Errorf("twilio: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{Error: err.Error()}, fmt.Errorf("twilio: request: %w", err)
	}
	defer resp.Body.Close()

	var parsed twilioResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{Error: err.Error()}, fmt.Errorf("twilio: decode response: %w", err)
	}

	if resp.StatusCode >= 300 {
		msg := parsed.Message
		if msg == "" {
			msg = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		}
		return Result{Error: msg}, fmt.Errorf("twilio: send failed: %s", msg)
	}

	return Result{Success: true, ExternalID: parsed.SID}, nil
}
