package handler

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/moshiverse/busmate/internal/dto"
	"github.com/moshiverse/busmate/internal/service"
	"github.com/moshiverse/busmate/pkg/response"
	"github.com/moshiverse/busmate/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// SeatHandler handles seat map HTTP requests
type SeatHandler struct {
	seatService service.SeatService
}

// NewSeatHandler creates a new seat handler
func NewSeatHandler(seatService service.SeatService) *SeatHandler {
	return &SeatHandler{seatService: seatService}
}

// GenerateSeats handles POST /schedules/:id/seats/generate
func (h *SeatHandler) GenerateSeats(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.seat.generate")
	defer span.End()

	scheduleID := c.Param("id")
	span.SetAttributes(attribute.String("schedule_id", scheduleID))

	var req dto.GenerateSeatsRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	count, err := h.seatService.GenerateSeats(ctx, scheduleID, req.LayoutSpec())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Created(c, &dto.GenerateSeatsResponse{ScheduleID: scheduleID, SeatCount: count})
}

// ListSeats handles GET /schedules/:id/seats
func (h *SeatHandler) ListSeats(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.seat.list")
	defer span.End()

	scheduleID := c.Param("id")
	seats, err := h.seatService.ListSeats(ctx, scheduleID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}
	summary, err := h.seatService.SeatSummary(ctx, scheduleID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	response.Success(c, dto.NewSeatMapResponse(scheduleID, seats, summary))
}
