package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/moshiverse/busmate/internal/dto"
	"github.com/moshiverse/busmate/internal/gateway"
	"github.com/moshiverse/busmate/internal/service"
	"github.com/moshiverse/busmate/pkg/logger"
	"github.com/moshiverse/busmate/pkg/response"
	"github.com/moshiverse/busmate/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// maxWebhookBody caps the webhook payload read into memory
const maxWebhookBody = 1 << 20

// PaymentHandler handles payment intent and webhook HTTP requests
type PaymentHandler struct {
	reconciliation service.ReconciliationService
	bookingService service.BookingService
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(reconciliation service.ReconciliationService, bookingService service.BookingService) *PaymentHandler {
	return &PaymentHandler{reconciliation: reconciliation, bookingService: bookingService}
}

// CreateIntent handles POST /payments/intents
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.payment.create_intent")
	defer span.End()

	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.CreatePaymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	span.SetAttributes(attribute.String("booking_id", req.BookingID))

	booking, err := h.bookingService.GetBooking(ctx, req.BookingID)
	if err != nil {
		handleError(c, err)
		return
	}
	if !canAccess(c, userID, booking) {
		return
	}

	intent, err := h.reconciliation.CreatePaymentIntent(ctx, req.BookingID, req.Description)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("intent_id", intent.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, intent)
}

// GetIntentStatus handles GET /payments/intents/:id
func (h *PaymentHandler) GetIntentStatus(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.payment.intent_status")
	defer span.End()

	status, err := h.reconciliation.GetIntentStatus(ctx, c.Param("id"))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}
	response.Success(c, dto.FromIntentStatus(status))
}

// VerifyPayment handles POST /payments/intents/:id/verify
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.payment.verify")
	defer span.End()

	userID, ok := currentUser(c)
	if !ok {
		return
	}

	intentID := c.Param("id")
	span.SetAttributes(attribute.String("intent_id", intentID))

	owned, err := h.reconciliation.BookingForIntent(ctx, intentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}
	if !canAccess(c, userID, owned) {
		return
	}

	booking, err := h.reconciliation.VerifyPayment(ctx, intentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.FromDomain(booking))
}

// PayMongoWebhook handles POST /payments/webhook. The provider always gets 200.
func (h *PaymentHandler) PayMongoWebhook(c *gin.Context) {
	payload, ok := readWebhookBody(c)
	if !ok {
		return
	}
	ack := h.reconciliation.HandleWebhook(c.Request.Context(), payload, c.GetHeader(gateway.PayMongoSignatureHeader))
	c.JSON(http.StatusOK, ack)
}

// StripeWebhook handles POST /payments/webhook/stripe. The provider always gets 200.
func (h *PaymentHandler) StripeWebhook(c *gin.Context) {
	payload, ok := readWebhookBody(c)
	if !ok {
		return
	}
	ack := h.reconciliation.HandleStripeWebhook(c.Request.Context(), payload, c.GetHeader(gateway.StripeSignatureHeader))
	c.JSON(http.StatusOK, ack)
}

func readWebhookBody(c *gin.Context) ([]byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	payload, err := c.GetRawData()
	if err != nil {
		logger.Get().Warn("failed to read webhook body", zap.Error(err))
		c.JSON(http.StatusOK, &service.WebhookAck{Received: true, Outcome: service.WebhookOutcomeRejected})
		return nil, false
	}
	return payload, true
}
