package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/moshiverse/busmate/internal/domain"
	"github.com/moshiverse/busmate/internal/dto"
	"github.com/moshiverse/busmate/internal/service"
	"github.com/moshiverse/busmate/internal/ticket"
	"github.com/moshiverse/busmate/pkg/response"
	"github.com/moshiverse/busmate/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// BookingHandler handles booking HTTP requests
type BookingHandler struct {
	bookingService service.BookingService
	qrSize         int
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookingService service.BookingService) *BookingHandler {
	return &BookingHandler{bookingService: bookingService, qrSize: ticket.DefaultQRSize}
}

// CreateBooking handles POST /bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.create")
	defer span.End()

	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("schedule_id", req.ScheduleID),
		attribute.Int("seat_count", len(req.SeatNumbers)),
	)

	booking, err := h.bookingService.CreateBooking(ctx, &service.CreateBookingInput{
		UserID:      userID,
		ScheduleID:  req.ScheduleID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		SeatNumbers: req.SeatNumbers,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("booking_id", booking.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, dto.FromDomain(booking))
}

// ListMyBookings handles GET /bookings
func (h *BookingHandler) ListMyBookings(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.list_mine")
	defer span.End()

	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var q dto.ListBookingsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	bookings, total, err := h.bookingService.ListUserBookings(ctx, userID, q.Page, q.PageSize)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}
	response.Paginated(c, dto.FromDomainList(bookings), response.NewPageMeta(q.Page, q.PageSize, total))
}

// GetBooking handles GET /bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.get")
	defer span.End()

	userID, ok := currentUser(c)
	if !ok {
		return
	}

	booking, err := h.bookingService.GetBooking(ctx, c.Param("id"))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}
	if !canAccess(c, userID, booking) {
		return
	}
	response.Success(c, dto.FromDomain(booking))
}

// ConfirmBooking handles POST /bookings/:id/confirm. Admin only; payments
// normally confirm through the reconciliation endpoints.
func (h *BookingHandler) ConfirmBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.confirm")
	defer span.End()

	bookingID := c.Param("id")
	var req dto.ConfirmBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("payment_reference", req.PaymentReference),
	)

	booking, err := h.bookingService.ConfirmBooking(ctx, bookingID, req.PaymentReference)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.FromDomain(booking))
}

// CancelBooking handles POST /bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.cancel")
	defer span.End()

	userID, ok := currentUser(c)
	if !ok {
		return
	}

	bookingID := c.Param("id")
	span.SetAttributes(attribute.String("booking_id", bookingID))

	booking, err := h.bookingService.GetBooking(ctx, bookingID)
	if err != nil {
		handleError(c, err)
		return
	}
	if !canAccess(c, userID, booking) {
		return
	}

	booking, err = h.bookingService.CancelBooking(ctx, bookingID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.FromDomain(booking))
}

// TicketQR handles GET /bookings/:id/ticket.png
func (h *BookingHandler) TicketQR(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.ticket")
	defer span.End()

	userID, ok := currentUser(c)
	if !ok {
		return
	}

	booking, err := h.bookingService.GetBooking(ctx, c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	if !canAccess(c, userID, booking) {
		return
	}
	if booking.Status != domain.BookingStatusConfirmed || booking.TicketToken == "" {
		handleError(c, domain.ErrInvalidState)
		return
	}

	png, err := ticket.RenderQR(booking.TicketToken, h.qrSize)
	if err != nil {
		span.RecordError(err)
		response.InternalError(c, err)
		return
	}

	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, "image/png", png)
}
