package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Normalized webhook event types
const (
	EventPaymentPaid   = "payment.paid"
	EventPaymentFailed = "payment.failed"
)

// StripeSignatureHeader carries the Stripe webhook signature
const StripeSignatureHeader = "Stripe-Signature"

// WebhookEvent is a provider webhook reduced to what reconciliation needs
type WebhookEvent struct {
	Provider  string
	ID        string
	Type      string
	IntentID  string
	PaymentID string
	Amount    int64
}

// DedupeKey identifies the delivery for de-duplication
func (e *WebhookEvent) DedupeKey() string {
	if e.ID != "" {
		return e.Provider + ":" + e.ID
	}
	return e.Provider + ":" + e.Type + ":" + e.IntentID
}

type payMongoEvent struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Type string `json:"type"`
			Data struct {
				ID         string `json:"id"`
				Attributes struct {
					PaymentIntentID string `json:"payment_intent_id"`
					Amount          int64  `json:"amount"`
				} `json:"attributes"`
			} `json:"data"`
		} `json:"attributes"`
	} `json:"data"`
}

// ParsePayMongoEvent decodes a PayMongo event envelope of the form
// {data:{id, attributes:{type, data:{id, attributes:{payment_intent_id, amount}}}}}
func ParsePayMongoEvent(payload []byte) (*WebhookEvent, error) {
	var raw payMongoEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode paymongo event: %w", err)
	}
	attrs := raw.Data.Attributes
	if attrs.Type == "" {
		return nil, fmt.Errorf("paymongo event has no type")
	}

	return &WebhookEvent{
		Provider:  NamePayMongo,
		ID:        raw.Data.ID,
		Type:      attrs.Type,
		IntentID:  attrs.Data.Attributes.PaymentIntentID,
		PaymentID: attrs.Data.ID,
		Amount:    attrs.Data.Attributes.Amount,
	}, nil
}

// ParseStripeEvent verifies and decodes a Stripe webhook. An empty secret
// skips verification. PaymentIntent events are mapped onto the normalized
// types; other events keep their Stripe type.
func ParseStripeEvent(payload []byte, signature, secret string) (*WebhookEvent, error) {
	var (
		event stripe.Event
		err   error
	)
	if secret != "" {
		event, err = webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
	} else {
		err = json.Unmarshal(payload, &event)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to verify stripe event: %w", err)
	}

	evt := &WebhookEvent{Provider: NameStripe, ID: event.ID, Type: string(event.Type)}
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		evt.Type = EventPaymentPaid
	case stripe.EventTypePaymentIntentPaymentFailed:
		evt.Type = EventPaymentFailed
	default:
		return evt, nil
	}

	if event.Data == nil {
		return nil, fmt.Errorf("stripe event %s has no data", event.ID)
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("failed to decode payment intent: %w", err)
	}
	status := StatusFromStripe(&pi)
	evt.IntentID = status.IntentID
	evt.PaymentID = status.PaymentID
	evt.Amount = pi.Amount
	return evt, nil
}
