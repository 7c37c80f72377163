package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the JSON envelope every endpoint returns
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorData  `json:"error,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

// ErrorData describes a failed request
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// PageMeta accompanies paginated lists
type PageMeta struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPageMeta computes TotalPages from total and pageSize
func NewPageMeta(page, pageSize, total int) *PageMeta {
	pages := 0
	if pageSize > 0 {
		pages = (total + pageSize - 1) / pageSize
	}
	return &PageMeta{Page: page, PageSize: pageSize, Total: total, TotalPages: pages}
}

// Error builds an error envelope without writing it
func Error(code, message string) Response {
	return Response{Error: &ErrorData{Code: code, Message: message}}
}

// Success writes 200 with data
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// Created writes 201 with data
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

// Paginated writes 200 with data and page metadata
func Paginated(c *gin.Context, data interface{}, meta *PageMeta) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data, Meta: meta})
}

// Fail writes an error envelope with the given status
func Fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, Error(code, message))
}

// BadRequest writes 400
func BadRequest(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

// NotFound writes 404
func NotFound(c *gin.Context, message string) {
	Fail(c, http.StatusNotFound, "NOT_FOUND", message)
}

// Unauthorized writes 401
func Unauthorized(c *gin.Context, message string) {
	Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

// Forbidden writes 403
func Forbidden(c *gin.Context, message string) {
	Fail(c, http.StatusForbidden, "FORBIDDEN", message)
}

// InternalError writes 500 without leaking err to the client
func InternalError(c *gin.Context, err error) {
	if err != nil {
		_ = c.Error(err)
	}
	Fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}
