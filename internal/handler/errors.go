package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/moshiverse/busmate/internal/domain"
	"github.com/moshiverse/busmate/pkg/middleware"
	"github.com/moshiverse/busmate/pkg/response"
)

// handleError converts domain errors to HTTP responses
func handleError(c *gin.Context, err error) {
	switch {
	case domain.IsNotFoundError(err):
		response.Fail(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrSeatUnavailable):
		response.Fail(c, http.StatusConflict, "SEAT_UNAVAILABLE", err.Error())
	case errors.Is(err, domain.ErrAlreadyGenerated):
		response.Fail(c, http.StatusConflict, "ALREADY_GENERATED", err.Error())
	case errors.Is(err, domain.ErrAmountMismatch):
		response.Fail(c, http.StatusConflict, "AMOUNT_MISMATCH", err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		response.Fail(c, http.StatusConflict, "INVALID_STATE", err.Error())
	case errors.Is(err, domain.ErrInvalidAmount):
		response.Fail(c, http.StatusBadRequest, "INVALID_AMOUNT", err.Error())
	case errors.Is(err, domain.ErrInvalidLayout):
		response.Fail(c, http.StatusBadRequest, "INVALID_LAYOUT", err.Error())
	case domain.IsValidationError(err):
		response.Fail(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case domain.IsPaymentNotSucceeded(err):
		response.Fail(c, http.StatusPaymentRequired, "PAYMENT_NOT_SUCCEEDED", err.Error())
	case domain.IsGatewayError(err):
		_ = c.Error(err)
		response.Fail(c, http.StatusBadGateway, "GATEWAY_ERROR", "payment provider unavailable, please retry")
	default:
		response.InternalError(c, err)
	}
}

// currentUser returns the caller id or writes 401
func currentUser(c *gin.Context) (string, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
	}
	return userID, ok
}

// canAccess reports whether the caller may see booking; writes 403 otherwise
func canAccess(c *gin.Context, userID string, booking *domain.Booking) bool {
	if booking.UserID == userID || middleware.IsAdmin(c) {
		return true
	}
	response.Forbidden(c, "booking belongs to another user")
	return false
}
