// Package gateway adapts payment providers to the intent contract the
// reconciliation engine consumes.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	NamePayMongo = "paymongo"
	NameStripe   = "stripe"
	NameMock     = "mock"
)

// PaymentGateway creates payment intents and reports their authoritative
// status. Implementations never retry.
type PaymentGateway interface {
	// CreateIntent creates a payment intent for amount minor units
	CreateIntent(ctx context.Context, req *IntentRequest) (*Intent, error)

	// GetIntentStatus fetches the current status of an intent
	GetIntentStatus(ctx context.Context, intentID string) (*IntentStatus, error)

	// Name returns the provider name stored on payment rows
	Name() string
}

// IntentRequest is a request to charge Amount minor units
type IntentRequest struct {
	Amount      int64
	Currency    string
	Description string
	Metadata    map[string]string
}

// Intent is a created payment intent
type Intent struct {
	ID             string
	ClientKey      string
	Status         string
	Amount         int64
	Currency       string
	Description    string
	PaymentMethods []string
}

// IntentStatus is the provider's view of an intent
type IntentStatus struct {
	IntentID   string
	Status     string
	PaidAmount int64
	PaymentID  string
	ClientKey  string
	Metadata   map[string]string
}

// Intent statuses. PayMongo uses awaiting_*, Stripe requires_*.
const (
	IntentStatusSucceeded          = "succeeded"
	IntentStatusProcessing         = "processing"
	IntentStatusAwaitingNextAction = "awaiting_next_action"
	IntentStatusRequiresAction     = "requires_action"
	IntentStatusRequiresCapture    = "requires_capture"
	IntentStatusCanceled           = "canceled"
)

// Succeeded reports whether the provider considers the intent paid
func (s *IntentStatus) Succeeded() bool {
	return s.Status == IntentStatusSucceeded
}

// InFlight reports whether the customer has submitted a payment the provider
// has not settled yet
func (s *IntentStatus) InFlight() bool {
	switch s.Status {
	case IntentStatusProcessing, IntentStatusAwaitingNextAction, IntentStatusRequiresAction, IntentStatusRequiresCapture:
		return true
	}
	return false
}

// Canceled reports whether the intent can no longer be paid
func (s *IntentStatus) Canceled() bool {
	return s.Status == IntentStatusCanceled || s.Status == "cancelled"
}

// Config selects and configures a gateway
type Config struct {
	Gateway        string
	RequestTimeout time.Duration

	PayMongo *PayMongoConfig
	Stripe   *StripeConfig
	Mock     *MockConfig
}

// New builds the gateway named by cfg.Gateway
func New(cfg *Config) (PaymentGateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("gateway config is required")
	}

	switch strings.ToLower(cfg.Gateway) {
	case NamePayMongo, "":
		pm := cfg.PayMongo
		if pm == nil {
			pm = &PayMongoConfig{}
		}
		if pm.Timeout == 0 {
			pm.Timeout = cfg.RequestTimeout
		}
		return NewPayMongoGateway(pm)
	case NameStripe:
		return NewStripeGateway(cfg.Stripe)
	case NameMock:
		return NewMockGateway(cfg.Mock), nil
	default:
		return nil, fmt.Errorf("unknown payment gateway %q", cfg.Gateway)
	}
}
