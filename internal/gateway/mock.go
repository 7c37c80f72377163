package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// alphanumericChars for generating provider-like IDs
const alphanumericChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomAlphanumeric(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = alphanumericChars[rand.Intn(len(alphanumericChars))]
	}
	return string(b)
}

// MockConfig holds configuration for the mock gateway
type MockConfig struct {
	// AutoSucceed marks intents as paid as soon as they are created
	AutoSucceed bool

	// Delay is the simulated provider latency
	Delay time.Duration
}

// MockGateway is an in-memory PaymentGateway for development and tests
type MockGateway struct {
	config  *MockConfig
	mu      sync.RWMutex
	intents map[string]*mockIntent

	// returned once by the next call
	failNext error
}

type mockIntent struct {
	intent *Intent
	status *IntentStatus
}

// NewMockGateway creates a new mock gateway
func NewMockGateway(config *MockConfig) *MockGateway {
	if config == nil {
		config = &MockConfig{}
	}
	return &MockGateway{config: config, intents: make(map[string]*mockIntent)}
}

// Name returns the gateway name
func (g *MockGateway) Name() string {
	return NameMock
}

// CreateIntent records a new intent
func (g *MockGateway) CreateIntent(ctx context.Context, req *IntentRequest) (*Intent, error) {
	if err := g.simulate(ctx); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("intent request is required")
	}

	id := "pi_mock_" + randomAlphanumeric(24)
	intent := &Intent{
		ID:          id,
		ClientKey:   id + "_client_" + randomAlphanumeric(16),
		Status:      "awaiting_payment_method",
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
	}
	metadata := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	status := &IntentStatus{IntentID: id, Status: intent.Status, ClientKey: intent.ClientKey, Metadata: metadata}

	g.mu.Lock()
	g.intents[id] = &mockIntent{intent: intent, status: status}
	g.mu.Unlock()

	if g.config.AutoSucceed {
		g.MarkPaid(id, req.Amount)
	}
	return intent, nil
}

// GetIntentStatus returns a copy of the recorded status
func (g *MockGateway) GetIntentStatus(ctx context.Context, intentID string) (*IntentStatus, error) {
	if err := g.simulate(ctx); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	mi, ok := g.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("payment intent %s not found", intentID)
	}
	cp := *mi.status
	return &cp, nil
}

// MarkPaid simulates the customer completing payment of amount
func (g *MockGateway) MarkPaid(intentID string, amount int64) {
	g.setStatus(intentID, IntentStatusSucceeded, amount)
}

// MarkProcessing simulates a submitted payment the provider has not settled
func (g *MockGateway) MarkProcessing(intentID string) {
	g.setStatus(intentID, IntentStatusProcessing, 0)
}

// MarkCanceled simulates an intent cancelled at the provider
func (g *MockGateway) MarkCanceled(intentID string) {
	g.setStatus(intentID, IntentStatusCanceled, 0)
}

// MarkFailed simulates a declined payment
func (g *MockGateway) MarkFailed(intentID string) {
	g.setStatus(intentID, "awaiting_payment_method", 0)
}

// Register adds an intent with explicit status, for tests that bypass CreateIntent
func (g *MockGateway) Register(status *IntentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := *status
	g.intents[status.IntentID] = &mockIntent{intent: &Intent{ID: status.IntentID, Status: status.Status}, status: &cp}
}

// FailNext makes the next call fail with err
func (g *MockGateway) FailNext(err error) {
	g.mu.Lock()
	g.failNext = err
	g.mu.Unlock()
}

func (g *MockGateway) setStatus(intentID, status string, amount int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	mi, ok := g.intents[intentID]
	if !ok {
		return
	}
	mi.status.Status = status
	mi.status.PaidAmount = amount
	mi.intent.Status = status
	if status == IntentStatusSucceeded && mi.status.PaymentID == "" {
		mi.status.PaymentID = "pay_mock_" + randomAlphanumeric(24)
	}
}

func (g *MockGateway) simulate(ctx context.Context) error {
	g.mu.Lock()
	err := g.failNext
	g.failNext = nil
	g.mu.Unlock()
	if err != nil {
		return err
	}

	if g.config.Delay > 0 {
		select {
		case <-time.After(g.config.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
