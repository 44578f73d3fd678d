package payment

import (
	"context"

	apperrors "github.com/cachimiro/pax-website-sub000/pkg/errors"
)

// Session is a hosted checkout session for a deposit payment.
type Session struct {
	ID  string
	URL string
}

// Provider creates payment checkout sessions.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, amountPence int64, description string, metadata map[string]string) (*Session, error)
}

// Unconfigured is the provider used when no payment credentials are
// present. Callers substitute a placeholder link for the customer.
type Unconfigured struct{}

func (Unconfigured) CreateCheckoutSession(ctx context.Context, amountPence int64, description string, metadata map[string]string) (*Session, error) {
	return nil, apperrors.ErrNotConfigured
}
