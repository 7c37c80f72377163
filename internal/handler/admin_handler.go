package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/moshiverse/busmate/internal/domain"
	"github.com/moshiverse/busmate/internal/dto"
	"github.com/moshiverse/busmate/internal/service"
	"github.com/moshiverse/busmate/pkg/response"
	"github.com/moshiverse/busmate/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// AdminHandler handles administrative endpoints: cascade deletes, the booking
// list and manual hold expiry
type AdminHandler struct {
	cascade        service.CascadeService
	bookingService service.BookingService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(cascade service.CascadeService, bookingService service.BookingService) *AdminHandler {
	return &AdminHandler{cascade: cascade, bookingService: bookingService}
}

// DeleteSchedule handles DELETE /admin/schedules/:id
func (h *AdminHandler) DeleteSchedule(c *gin.Context) {
	h.runCascade(c, "schedule", h.cascade.DeleteSchedule)
}

// DeleteBus handles DELETE /admin/buses/:id
func (h *AdminHandler) DeleteBus(c *gin.Context) {
	h.runCascade(c, "bus", h.cascade.DeleteBus)
}

// DeleteRoute handles DELETE /admin/routes/:id
func (h *AdminHandler) DeleteRoute(c *gin.Context) {
	h.runCascade(c, "route", h.cascade.DeleteRoute)
}

func (h *AdminHandler) runCascade(c *gin.Context, kind string, fn func(context.Context, string) (*service.CascadeResult, error)) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.admin.delete_"+kind)
	defer span.End()

	id := c.Param("id")
	span.SetAttributes(attribute.String(kind+"_id", id))

	result, err := fn(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// ListBookings handles GET /admin/bookings
func (h *AdminHandler) ListBookings(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.admin.list_bookings")
	defer span.End()

	var q dto.ListBookingsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	bookings, total, err := h.bookingService.ListBookings(ctx, domain.BookingStatus(q.Status), q.Page, q.PageSize)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}
	response.Paginated(c, dto.FromDomainList(bookings), response.NewPageMeta(q.Page, q.PageSize, total))
}

// ExpireHolds handles POST /admin/holds/expire
func (h *AdminHandler) ExpireHolds(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.admin.expire_holds")
	defer span.End()

	var q struct {
		Limit int `form:"limit,default=100" binding:"min=1,max=1000"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	n, err := h.bookingService.ExpireHolds(ctx, q.Limit)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"expired": n})
}
