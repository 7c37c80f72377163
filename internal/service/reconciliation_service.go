package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/moshiverse/busmate/internal/domain"
	"github.com/moshiverse/busmate/internal/gateway"
	"github.com/moshiverse/busmate/internal/metrics"
	"github.com/moshiverse/busmate/internal/repository"
	"github.com/moshiverse/busmate/pkg/logger"
	"github.com/moshiverse/busmate/pkg/retry"
	"github.com/moshiverse/busmate/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// DefaultMinIntentAmount is the smallest amount PayMongo accepts, in centavos
const DefaultMinIntentAmount int64 = 2000

// Webhook outcomes reported in metrics and acks
const (
	WebhookOutcomeProcessed = "processed"
	WebhookOutcomeDuplicate = "duplicate"
	WebhookOutcomeIgnored   = "ignored"
	WebhookOutcomeRejected  = "rejected"
	WebhookOutcomeFailed    = "failed"
)

// PaymentIntentResult is returned to the client to complete payment
type PaymentIntentResult struct {
	ID             string   `json:"id"`
	ClientKey      string   `json:"client_key"`
	Status         string   `json:"status"`
	Amount         int64    `json:"amount"`
	Currency       string   `json:"currency"`
	Description    string   `json:"description"`
	PublicKey      string   `json:"public_key,omitempty"`
	PaymentMethods []string `json:"payment_methods,omitempty"`
	BookingID      string   `json:"booking_id"`
}

// WebhookAck is always returned to the provider
type WebhookAck struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome,omitempty"`
}

// ReconciliationService turns gateway payment confirmations into confirmed
// bookings
type ReconciliationService interface {
	// CreatePaymentIntent opens a gateway intent for a PENDING booking
	CreatePaymentIntent(ctx context.Context, bookingID, description string) (*PaymentIntentResult, error)

	// Confirm checks the intent with the gateway and confirms the booking
	// when it succeeded. Safe to call any number of times.
	Confirm(ctx context.Context, intentID string) (*domain.Booking, error)

	// VerifyPayment is Confirm for client-driven verification
	VerifyPayment(ctx context.Context, intentID string) (*domain.Booking, error)

	// HandleWebhook processes a PayMongo delivery. It never fails.
	HandleWebhook(ctx context.Context, payload []byte, signature string) *WebhookAck

	// HandleStripeWebhook processes a Stripe delivery. It never fails.
	HandleStripeWebhook(ctx context.Context, payload []byte, signature string) *WebhookAck

	// GetIntentStatus passes the gateway status through
	GetIntentStatus(ctx context.Context, intentID string) (*gateway.IntentStatus, error)

	// BookingForIntent finds the booking an intent was opened for without
	// changing anything
	BookingForIntent(ctx context.Context, intentID string) (*domain.Booking, error)

	// SettleHold decides whether a stale hold with a payment intent may expire
	SettleHold(ctx context.Context, hold *domain.Booking) (keep bool, err error)
}

// ReconciliationConfig configures the reconciliation service
type ReconciliationConfig struct {
	MinAmount             int64
	PublicKey             string
	PayMongoWebhookSecret string
	StripeWebhookSecret   string
}

type reconciliationService struct {
	store   repository.Store
	gw      gateway.PaymentGateway
	ledger  *bookingService
	dedupe  WebhookDeduper
	dlq     retry.DLQPublisher
	cfg     ReconciliationConfig
	timeNow func() time.Time
}

// NewReconciliationService creates a new reconciliation service. Nil
// de-duplicator and DLQ publisher fall back to no-ops.
func NewReconciliationService(
	store repository.Store,
	gw gateway.PaymentGateway,
	cache SeatCache,
	publisher EventPublisher,
	dedupe WebhookDeduper,
	dlq retry.DLQPublisher,
	cfg *ReconciliationConfig,
) ReconciliationService {
	c := ReconciliationConfig{MinAmount: DefaultMinIntentAmount}
	if cfg != nil {
		c = *cfg
		if c.MinAmount <= 0 {
			c.MinAmount = DefaultMinIntentAmount
		}
	}
	if dedupe == nil {
		dedupe = NewNoOpWebhookDeduper()
	}
	if dlq == nil {
		dlq = retry.NoOpDLQPublisher{}
	}
	return &reconciliationService{
		store:   store,
		gw:      gw,
		ledger:  newBookingService(store, cache, publisher, nil),
		dedupe:  dedupe,
		dlq:     dlq,
		cfg:     c,
		timeNow: time.Now,
	}
}

func (s *reconciliationService) CreatePaymentIntent(ctx context.Context, bookingID, description string) (*PaymentIntentResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reconciliation.create_intent")
	defer span.End()

	if strings.TrimSpace(bookingID) == "" {
		return nil, domain.ErrInvalidBookingID
	}
	span.SetAttributes(attribute.String("booking_id", bookingID))

	booking, err := s.store.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !booking.IsPending() {
		return nil, domain.ErrInvalidState
	}
	if booking.Amount < s.cfg.MinAmount {
		span.SetStatus(codes.Error, "amount below gateway minimum")
		return nil, domain.ErrInvalidAmount
	}
	if description == "" {
		description = "BusMate booking " + booking.ID
	}

	if booking.PaymentReference != "" {
		existing, err := s.gw.GetIntentStatus(ctx, booking.PaymentReference)
		if err != nil {
			metrics.RecordGatewayError(ctx, s.gw.Name(), "get_intent_status")
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, domain.NewGatewayError(s.gw.Name(), "get_intent_status", err)
		}
		switch {
		case existing.Succeeded():
			// paid already; the client verifies instead of paying twice
			span.SetStatus(codes.Error, "intent already paid")
			return nil, domain.ErrInvalidState
		case !existing.Canceled():
			span.SetAttributes(attribute.Bool("reused", true))
			span.SetStatus(codes.Ok, "")
			return &PaymentIntentResult{
				ID:          existing.IntentID,
				ClientKey:   existing.ClientKey,
				Status:      existing.Status,
				Amount:      booking.Amount,
				Currency:    booking.Currency,
				Description: description,
				PublicKey:   s.cfg.PublicKey,
				BookingID:   booking.ID,
			}, nil
		}
	}

	intent, err := s.gw.CreateIntent(ctx, &gateway.IntentRequest{
		Amount:      booking.Amount,
		Currency:    booking.Currency,
		Description: description,
		Metadata: map[string]string{
			"booking_id": booking.ID,
			"user_id":    booking.UserID,
		},
	})
	if err != nil {
		metrics.RecordGatewayError(ctx, s.gw.Name(), "create_intent")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, domain.NewGatewayError(s.gw.Name(), "create_intent", err)
	}

	// the intent id lets a webhook without metadata find the booking
	err = s.store.InTx(ctx, func(tx repository.Repositories) error {
		locked, err := tx.Bookings().GetForUpdate(ctx, booking.ID)
		if err != nil {
			return err
		}
		// another request opened an intent meanwhile
		if !locked.IsPending() || locked.PaymentReference != booking.PaymentReference {
			return domain.ErrInvalidState
		}
		locked.PaymentReference = intent.ID
		locked.UpdatedAt = s.timeNow().UTC()
		return tx.Bookings().Update(ctx, locked)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	logger.Get().Info("payment intent created",
		zap.String("booking_id", booking.ID),
		zap.String("intent_id", intent.ID),
		zap.String("gateway", s.gw.Name()),
		zap.Int64("amount", booking.Amount),
	)

	span.SetStatus(codes.Ok, "")
	return &PaymentIntentResult{
		ID:             intent.ID,
		ClientKey:      intent.ClientKey,
		Status:         intent.Status,
		Amount:         booking.Amount,
		Currency:       booking.Currency,
		Description:    description,
		PublicKey:      s.cfg.PublicKey,
		PaymentMethods: intent.PaymentMethods,
		BookingID:      booking.ID,
	}, nil
}

func (s *reconciliationService) VerifyPayment(ctx context.Context, intentID string) (*domain.Booking, error) {
	return s.Confirm(ctx, intentID)
}

func (s *reconciliationService) Confirm(ctx context.Context, intentID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reconciliation.confirm")
	defer span.End()

	if strings.TrimSpace(intentID) == "" {
		return nil, domain.ErrInvalidIntentID
	}
	span.SetAttributes(
		attribute.String("intent_id", intentID),
		attribute.String("gateway", s.gw.Name()),
	)

	status, err := s.gw.GetIntentStatus(ctx, intentID)
	if err != nil {
		metrics.RecordGatewayError(ctx, s.gw.Name(), "get_intent_status")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, domain.NewGatewayError(s.gw.Name(), "get_intent_status", err)
	}
	if !status.Succeeded() {
		span.SetStatus(codes.Error, "payment not succeeded")
		return nil, &domain.PaymentStatusError{IntentID: intentID, Status: status.Status}
	}

	bookingID, err := s.resolveBookingID(ctx, intentID, status)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("booking_id", bookingID))

	provider := s.gw.Name()
	ref := status.PaymentID
	if ref == "" {
		ref = intentID
	}

	var (
		booking *domain.Booking
		changed bool
	)
	err = s.store.InTx(ctx, func(tx repository.Repositories) error {
		current, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}

		if current.IsConfirmed() {
			prior, err := tx.Payments().GetByProviderRef(ctx, provider, intentID)
			if err != nil {
				return err
			}
			if prior != nil && prior.IsSuccessful() && prior.BookingID == current.ID {
				booking = current
				return nil
			}
		}

		if current.IsPending() && status.PaidAmount != current.Amount {
			return domain.ErrAmountMismatch
		}

		if booking, changed, err = s.ledger.confirmInTx(ctx, tx, bookingID, ref); err != nil {
			return err
		}

		payment := domain.NewPayment(booking.ID, provider, intentID, status.PaidAmount, domain.PaymentStatusSuccess, s.timeNow().UTC())
		_, err = tx.Payments().Record(ctx, payment)
		return err
	})
	if err != nil {
		if domain.IsConflictError(err) {
			err = s.recordUnapplied(ctx, bookingID, intentID, status.PaidAmount, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if changed {
		s.ledger.afterConfirm(ctx, booking, provider)
	}
	span.SetAttributes(attribute.Bool("changed", changed))
	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// recordUnapplied keeps a captured payment that could not confirm its
// booking as REFUND_DUE so it is never lost. It runs after the confirm
// transaction rolled back.
func (s *reconciliationService) recordUnapplied(ctx context.Context, bookingID, intentID string, amount int64, cause error) error {
	provider := s.gw.Name()
	payment := domain.NewPayment(bookingID, provider, intentID, amount, domain.PaymentStatusRefundDue, s.timeNow().UTC())
	inserted, err := s.store.Payments().Record(ctx, payment)
	if err != nil {
		return errors.Join(cause, err)
	}

	if inserted {
		reason := "invalid_state"
		if errors.Is(cause, domain.ErrAmountMismatch) {
			reason = "amount_mismatch"
		}
		metrics.RecordRefundDue(ctx, provider, reason)
		logger.Get().Error("payment captured but not applied, refund due",
			zap.String("booking_id", bookingID),
			zap.String("intent_id", intentID),
			zap.Int64("amount", amount),
			zap.Error(cause),
		)
	}
	return &domain.UnappliedPaymentError{
		BookingID: bookingID,
		IntentID:  intentID,
		Amount:    amount,
		Recorded:  inserted,
		Err:       cause,
	}
}

// resolveBookingID prefers the booking id the intent was created with and
// falls back to the stored payment reference
func (s *reconciliationService) resolveBookingID(ctx context.Context, intentID string, status *gateway.IntentStatus) (string, error) {
	if id := status.Metadata["booking_id"]; id != "" {
		return id, nil
	}
	for _, ref := range []string{intentID, status.PaymentID} {
		if ref == "" {
			continue
		}
		booking, err := s.store.Bookings().GetByPaymentReference(ctx, ref)
		if err == nil {
			return booking.ID, nil
		}
		if !errors.Is(err, domain.ErrBookingNotFound) {
			return "", err
		}
	}
	return "", domain.ErrBookingNotFound
}

func (s *reconciliationService) GetIntentStatus(ctx context.Context, intentID string) (*gateway.IntentStatus, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reconciliation.get_intent_status")
	defer span.End()

	if strings.TrimSpace(intentID) == "" {
		return nil, domain.ErrInvalidIntentID
	}
	status, err := s.gw.GetIntentStatus(ctx, intentID)
	if err != nil {
		metrics.RecordGatewayError(ctx, s.gw.Name(), "get_intent_status")
		return nil, domain.NewGatewayError(s.gw.Name(), "get_intent_status", err)
	}
	return status, nil
}

func (s *reconciliationService) BookingForIntent(ctx context.Context, intentID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reconciliation.booking_for_intent")
	defer span.End()

	if strings.TrimSpace(intentID) == "" {
		return nil, domain.ErrInvalidIntentID
	}

	booking, err := s.store.Bookings().GetByPaymentReference(ctx, intentID)
	if err == nil || !errors.Is(err, domain.ErrBookingNotFound) {
		return booking, err
	}

	// a confirmed booking carries the provider payment id instead
	payment, err := s.store.Payments().GetByProviderRef(ctx, s.gw.Name(), intentID)
	if err != nil {
		return nil, err
	}
	if payment != nil {
		return s.store.Bookings().GetByID(ctx, payment.BookingID)
	}

	status, err := s.GetIntentStatus(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if id := status.Metadata["booking_id"]; id != "" {
		return s.store.Bookings().GetByID(ctx, id)
	}
	return nil, domain.ErrBookingNotFound
}

func (s *reconciliationService) SettleHold(ctx context.Context, hold *domain.Booking) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reconciliation.settle_hold")
	defer span.End()

	if hold.PaymentReference == "" {
		return false, nil
	}
	span.SetAttributes(
		attribute.String("booking_id", hold.ID),
		attribute.String("intent_id", hold.PaymentReference),
	)

	status, err := s.gw.GetIntentStatus(ctx, hold.PaymentReference)
	if err != nil {
		metrics.RecordGatewayError(ctx, s.gw.Name(), "get_intent_status")
		span.SetStatus(codes.Error, err.Error())
		return true, domain.NewGatewayError(s.gw.Name(), "get_intent_status", err)
	}
	span.SetAttributes(attribute.String("intent_status", status.Status))

	switch {
	case status.Succeeded():
		_, err := s.Confirm(ctx, hold.PaymentReference)
		if domain.IsUnappliedPayment(err) {
			// the charge is kept for refund and the seats can go
			return false, nil
		}
		return true, err
	case status.InFlight():
		return true, nil
	}
	return false, nil
}

func (s *reconciliationService) HandleWebhook(ctx context.Context, payload []byte, signature string) *WebhookAck {
	ctx, span := telemetry.StartSpan(ctx, "service.reconciliation.webhook.paymongo")
	defer span.End()

	if s.cfg.PayMongoWebhookSecret != "" && !gateway.VerifyPayMongoSignature(payload, signature, s.cfg.PayMongoWebhookSecret) {
		s.logWebhookError(ctx, &domain.WebhookProcessingError{EventType: "unknown", Err: domain.ErrInvalidSignature})
		metrics.RecordWebhook(ctx, gateway.NamePayMongo, "unknown", WebhookOutcomeRejected)
		return &WebhookAck{Received: true, Outcome: WebhookOutcomeRejected}
	}

	evt, err := gateway.ParsePayMongoEvent(payload)
	if err != nil {
		s.logWebhookError(ctx, &domain.WebhookProcessingError{EventType: "unknown", Err: errors.Join(domain.ErrInvalidPayload, err)})
		metrics.RecordWebhook(ctx, gateway.NamePayMongo, "unknown", WebhookOutcomeRejected)
		return &WebhookAck{Received: true, Outcome: WebhookOutcomeRejected}
	}
	return s.processEvent(ctx, evt, payload)
}

func (s *reconciliationService) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) *WebhookAck {
	ctx, span := telemetry.StartSpan(ctx, "service.reconciliation.webhook.stripe")
	defer span.End()

	evt, err := gateway.ParseStripeEvent(payload, signature, s.cfg.StripeWebhookSecret)
	if err != nil {
		s.logWebhookError(ctx, &domain.WebhookProcessingError{EventType: "unknown", Err: errors.Join(domain.ErrInvalidSignature, err)})
		metrics.RecordWebhook(ctx, gateway.NameStripe, "unknown", WebhookOutcomeRejected)
		return &WebhookAck{Received: true, Outcome: WebhookOutcomeRejected}
	}
	return s.processEvent(ctx, evt, payload)
}

// processEvent is the single funnel every provider webhook goes through
func (s *reconciliationService) processEvent(ctx context.Context, evt *gateway.WebhookEvent, payload []byte) *WebhookAck {
	log := logger.Get().With(
		zap.String("provider", evt.Provider),
		zap.String("event_id", evt.ID),
		zap.String("event_type", evt.Type),
		zap.String("intent_id", evt.IntentID),
	)

	outcome := s.applyEvent(ctx, evt, payload, log)
	metrics.RecordWebhook(ctx, evt.Provider, evt.Type, outcome)
	return &WebhookAck{Received: true, Outcome: outcome}
}

func (s *reconciliationService) applyEvent(ctx context.Context, evt *gateway.WebhookEvent, payload []byte, log *logger.Logger) string {
	if evt.Type != gateway.EventPaymentPaid && evt.Type != gateway.EventPaymentFailed {
		log.Info("webhook event type not handled")
		return WebhookOutcomeIgnored
	}
	if evt.IntentID == "" {
		s.logWebhookError(ctx, &domain.WebhookProcessingError{EventType: evt.Type, Err: domain.ErrInvalidIntentID})
		return WebhookOutcomeRejected
	}
	if evt.Provider != s.gw.Name() {
		log.Warn("webhook provider does not match the configured gateway", zap.String("gateway", s.gw.Name()))
		return WebhookOutcomeIgnored
	}

	key := evt.DedupeKey()
	if !s.dedupe.Claim(ctx, key) {
		log.Info("duplicate webhook delivery dropped")
		return WebhookOutcomeDuplicate
	}

	var err error
	switch evt.Type {
	case gateway.EventPaymentPaid:
		_, err = s.Confirm(ctx, evt.IntentID)
	case gateway.EventPaymentFailed:
		err = s.recordFailure(ctx, evt)
	}
	if err == nil {
		log.Info("webhook processed")
		return WebhookOutcomeProcessed
	}

	s.logWebhookError(ctx, &domain.WebhookProcessingError{EventType: evt.Type, IntentID: evt.IntentID, Err: err})
	var unapplied *domain.UnappliedPaymentError
	if errors.As(err, &unapplied) {
		if unapplied.Recorded {
			s.deadLetter(ctx, evt, payload, err)
		}
		return WebhookOutcomeFailed
	}
	if domain.IsConflictError(err) {
		// a redelivery would hit the same conflict
		return WebhookOutcomeFailed
	}

	s.dedupe.Release(ctx, key)
	if !domain.IsPaymentNotSucceeded(err) {
		s.deadLetter(ctx, evt, payload, err)
	}
	return WebhookOutcomeFailed
}

// recordFailure stores a FAILED payment for the intent; a later success for
// the same intent replaces it
func (s *reconciliationService) recordFailure(ctx context.Context, evt *gateway.WebhookEvent) error {
	booking, err := s.store.Bookings().GetByPaymentReference(ctx, evt.IntentID)
	if err != nil {
		return err
	}

	payment := domain.NewPayment(booking.ID, evt.Provider, evt.IntentID, evt.Amount, domain.PaymentStatusFailed, s.timeNow().UTC())
	inserted, err := s.store.Payments().Record(ctx, payment)
	if err != nil {
		return err
	}

	metrics.RecordPaymentFailed(ctx, evt.Provider)
	logger.Get().Warn("payment failed",
		zap.String("booking_id", booking.ID),
		zap.String("intent_id", evt.IntentID),
		zap.Bool("recorded", inserted),
	)
	return nil
}

func (s *reconciliationService) deadLetter(ctx context.Context, evt *gateway.WebhookEvent, payload []byte, cause error) {
	msg := &retry.DeadLetter{
		ID:       uuid.New().String(),
		Kind:     evt.Provider + ".webhook",
		Key:      evt.IntentID,
		Payload:  payload,
		Error:    cause.Error(),
		Attempts: 1,
		FailedAt: s.timeNow(),
		Metadata: map[string]string{"event_type": evt.Type, "event_id": evt.ID},
	}
	if err := s.dlq.PublishToDLQ(ctx, msg); err != nil {
		logger.Get().Error("failed to park webhook in DLQ", zap.String("intent_id", evt.IntentID), zap.Error(err))
	}
}

func (s *reconciliationService) logWebhookError(ctx context.Context, err *domain.WebhookProcessingError) {
	logger.Get().Error("webhook processing failed",
		zap.String("event_type", err.EventType),
		zap.String("intent_id", err.IntentID),
		zap.String("trace_id", telemetry.GetTraceID(ctx)),
		zap.Error(err),
	)
}
