package metrics

import (
	"context"
	"sync"

	"github.com/moshiverse/busmate/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// Booking counters
	BookingsCreated   *telemetry.Counter
	BookingsConfirmed *telemetry.Counter
	BookingsCancelled *telemetry.Counter
	BookingsExpired   *telemetry.Counter

	// Seat inventory
	SeatConflicts  *telemetry.Counter
	SeatsGenerated *telemetry.Counter

	// Payments
	WebhookEvents  *telemetry.Counter
	PaymentsFailed *telemetry.Counter
	GatewayErrors  *telemetry.Counter
	RefundsDue     *telemetry.Counter

	// Time from hold to confirmation
	ConfirmationDelay *telemetry.Histogram

	initOnce sync.Once
	initErr  error
)

// Init initializes all metrics on the global meter provider. Record helpers
// are no-ops until Init has run.
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	counters := []struct {
		target **telemetry.Counter
		opts   telemetry.MetricOpts
	}{
		{&BookingsCreated, telemetry.MetricOpts{Name: "bookings_created_total", Description: "Total number of bookings created", Unit: "1"}},
		{&BookingsConfirmed, telemetry.MetricOpts{Name: "bookings_confirmed_total", Description: "Total number of bookings confirmed", Unit: "1"}},
		{&BookingsCancelled, telemetry.MetricOpts{Name: "bookings_cancelled_total", Description: "Total number of bookings cancelled", Unit: "1"}},
		{&BookingsExpired, telemetry.MetricOpts{Name: "bookings_expired_total", Description: "Total number of holds reclaimed", Unit: "1"}},
		{&SeatConflicts, telemetry.MetricOpts{Name: "seat_conflicts_total", Description: "Reservations rejected because a seat was taken", Unit: "1"}},
		{&SeatsGenerated, telemetry.MetricOpts{Name: "seats_generated_total", Description: "Total number of seats generated", Unit: "1"}},
		{&WebhookEvents, telemetry.MetricOpts{Name: "webhook_events_total", Description: "Payment webhook deliveries by type and outcome", Unit: "1"}},
		{&PaymentsFailed, telemetry.MetricOpts{Name: "payments_failed_total", Description: "Failed payments reported by the gateway", Unit: "1"}},
		{&GatewayErrors, telemetry.MetricOpts{Name: "gateway_errors_total", Description: "Payment gateway calls that failed", Unit: "1"}},
		{&RefundsDue, telemetry.MetricOpts{Name: "payments_refund_due_total", Description: "Captured payments that could not confirm their booking", Unit: "1"}},
	}

	for _, c := range counters {
		counter, err := telemetry.NewCounter(c.opts)
		if err != nil {
			return err
		}
		*c.target = counter
	}

	var err error
	ConfirmationDelay, err = telemetry.NewHistogram(telemetry.MetricOpts{
		Name:        "booking_confirmation_delay_seconds",
		Description: "Time from booking creation to payment confirmation",
		Unit:        "s",
	})
	return err
}

// RecordBookingCreated records a new hold
func RecordBookingCreated(ctx context.Context, scheduleID string, seats int) {
	BookingsCreated.Inc(ctx,
		attribute.String("schedule_id", scheduleID),
		attribute.Int("seats", seats),
	)
}

// RecordBookingConfirmed records a confirmation and how long the hold lasted
func RecordBookingConfirmed(ctx context.Context, provider string, delaySeconds float64) {
	BookingsConfirmed.Inc(ctx, attribute.String("provider", provider))
	ConfirmationDelay.Record(ctx, delaySeconds, attribute.String("provider", provider))
}

// RecordBookingCancelled records a cancellation; expired is true when the
// hold reclaimer cancelled it
func RecordBookingCancelled(ctx context.Context, expired bool) {
	if expired {
		BookingsExpired.Inc(ctx)
		return
	}
	BookingsCancelled.Inc(ctx)
}

// RecordSeatConflict records a rejected reservation
func RecordSeatConflict(ctx context.Context, scheduleID string) {
	SeatConflicts.Inc(ctx, attribute.String("schedule_id", scheduleID))
}

// RecordSeatsGenerated records a generated seat map
func RecordSeatsGenerated(ctx context.Context, n int) {
	SeatsGenerated.Add(ctx, int64(n))
}

// RecordWebhook records one webhook delivery
func RecordWebhook(ctx context.Context, provider, eventType, outcome string) {
	WebhookEvents.Inc(ctx,
		attribute.String("provider", provider),
		attribute.String("event_type", eventType),
		attribute.String("outcome", outcome),
	)
}

// RecordPaymentFailed records a failed payment
func RecordPaymentFailed(ctx context.Context, provider string) {
	PaymentsFailed.Inc(ctx, attribute.String("provider", provider))
}

// RecordGatewayError records a failed gateway call
func RecordGatewayError(ctx context.Context, gateway, op string) {
	GatewayErrors.Inc(ctx,
		attribute.String("gateway", gateway),
		attribute.String("op", op),
	)
}

// RecordRefundDue records a captured payment left for refund; reason is the
// error that kept it off the booking
func RecordRefundDue(ctx context.Context, provider, reason string) {
	RefundsDue.Inc(ctx,
		attribute.String("provider", provider),
		attribute.String("reason", reason),
	)
}
