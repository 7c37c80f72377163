package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
)

// StripeConfig holds configuration for the Stripe gateway
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// StripeGateway implements PaymentGateway using Stripe PaymentIntents
type StripeGateway struct {
	config *StripeConfig
}

// NewStripeGateway creates a new Stripe gateway
func NewStripeGateway(config *StripeConfig) (*StripeGateway, error) {
	if config == nil {
		return nil, fmt.Errorf("stripe config is required")
	}
	if config.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}

	// Set Stripe API key globally
	stripe.Key = config.SecretKey

	return &StripeGateway{config: config}, nil
}

// Name returns the gateway name
func (g *StripeGateway) Name() string {
	return NameStripe
}

// CreateIntent creates a Stripe PaymentIntent. Amount is already in the
// smallest currency unit.
func (g *StripeGateway) CreateIntent(ctx context.Context, req *IntentRequest) (*Intent, error) {
	if req == nil {
		return nil, fmt.Errorf("intent request is required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: make(map[string]string),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.Metadata[k] = v
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return &Intent{
		ID:          pi.ID,
		ClientKey:   pi.ClientSecret,
		Status:      string(pi.Status),
		Amount:      pi.Amount,
		Currency:    strings.ToUpper(string(pi.Currency)),
		Description: pi.Description,
	}, nil
}

// GetIntentStatus retrieves a Stripe PaymentIntent
func (g *StripeGateway) GetIntentStatus(ctx context.Context, intentID string) (*IntentStatus, error) {
	if intentID == "" {
		return nil, fmt.Errorf("payment intent id is required")
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := paymentintent.Get(intentID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment intent: %w", err)
	}

	return StatusFromStripe(pi), nil
}

// StatusFromStripe converts a Stripe PaymentIntent, as fetched or as carried
// by a webhook event, into an IntentStatus
func StatusFromStripe(pi *stripe.PaymentIntent) *IntentStatus {
	status := &IntentStatus{
		IntentID:   pi.ID,
		Status:     string(pi.Status),
		PaidAmount: pi.AmountReceived,
		ClientKey:  pi.ClientSecret,
		Metadata:   pi.Metadata,
	}
	if pi.LatestCharge != nil {
		status.PaymentID = pi.LatestCharge.ID
	}
	return status
}
