package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cachimiro/pax-website-sub000/internal/config"
)

const defaultStripeBaseURL = "https://api.stripe.com"

// StripeProvider creates hosted checkout sessions via the Stripe API.
type StripeProvider struct {
	cfg    config.PaymentConfig
	client *http.Client
}

// NewProvider builds the payment provider for the given config, falling
// back to the Unconfigured provider when no secret key is set.
func NewProvider(cfg config.PaymentConfig) Provider {
	if cfg.SecretKey == "" {
		return Unconfigured{}
	}
	return NewStripeProvider(cfg)
}

// NewStripeProvider creates a Stripe-backed provider.
func NewStripeProvider(cfg config.PaymentConfig) *StripeProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultStripeBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &StripeProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type stripeSessionResponse struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// CreateCheckoutSession creates a one-off payment session in GBP.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, amountPence int64, description string, metadata map[string]string) (*Session, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", p.cfg.SuccessURL)
	form.Set("cancel_url", p.cfg.CancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", "gbp")
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(amountPence, 10))
	form.Set("line_items[0][price_data][product_data][name]", description)
	for key, value := range metadata {
		form.Set(fmt.Sprintf("metadata[%s]", key), value)
	}

	endpoint := strings.TrimSuffix(p.cfg.BaseURL, "/") + "/v1/checkout/sessions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("stripe: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+p.cfg.SecretKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stripe: request: %w", err)
	}
	defer resp.Body.Close()

	var parsed stripeSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("stripe: decode response: %w", err)
	}

	if resp.StatusCode >= 300 {
		msg := fmt.Sprintf("unexpected status %d", resp.StatusCode)
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return nil, fmt.Errorf("stripe: create session: %s", msg)
	}

	return &Session{ID: parsed.ID, URL: parsed.URL}, nil
}
