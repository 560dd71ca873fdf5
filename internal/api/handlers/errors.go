package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/yieldvault/yield_service/internal/domain/entities"
	domainerrors "github.com/yieldvault/yield_service/internal/domain/errors"
	"github.com/yieldvault/yield_service/pkg/logger"
)

// Error codes shared by every handler
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeValidationError    = "VALIDATION_ERROR"
	ErrCodeInvalidID          = "INVALID_ID"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeInvalidSignature   = "INVALID_SIGNATURE"
	ErrCodeWebhookNotReady    = "WEBHOOK_NOT_CONFIGURED"
)

const (
	MsgInvalidRequest     = "Invalid request payload"
	MsgUnauthorized       = "Authentication required"
	MsgInternalError      = "Internal server error"
	MsgServiceUnavailable = "Service temporarily unavailable, please try again"
)

// ErrorResponseBuilder provides a fluent interface for building error responses
type ErrorResponseBuilder struct {
	status  int
	code    string
	message string
	details map[string]interface{}
}

// NewError creates a new ErrorResponseBuilder
func NewError(status int, code string) *ErrorResponseBuilder {
	return &ErrorResponseBuilder{
		status: status,
		code:   code,
	}
}

// Message sets the error message
func (e *ErrorResponseBuilder) Message(msg string) *ErrorResponseBuilder {
	e.message = msg
	return e
}

// Detail adds a single detail to the error response
func (e *ErrorResponseBuilder) Detail(key string, value interface{}) *ErrorResponseBuilder {
	if e.details == nil {
		e.details = make(map[string]interface{})
	}
	e.details[key] = value
	return e
}

// Details merges a set of details into the response
func (e *ErrorResponseBuilder) Details(details map[string]interface{}) *ErrorResponseBuilder {
	for k, v := range details {
		e.Detail(k, v)
	}
	return e
}

// Send writes the error response and stops the handler chain
func (e *ErrorResponseBuilder) Send(c *gin.Context) {
	if id := c.GetString("request_id"); id != "" {
		e.Detail("request_id", id)
	}
	c.AbortWithStatusJSON(e.status, entities.ErrorResponse{
		Code:    e.code,
		Message: e.message,
		Details: e.details,
	})
}

// SendBadRequest sends a 400 Bad Request error
func SendBadRequest(c *gin.Context, code, message string) {
	NewError(http.StatusBadRequest, code).Message(message).Send(c)
}

// SendUnauthorized sends a 401 Unauthorized error
func SendUnauthorized(c *gin.Context, code, message string) {
	NewError(http.StatusUnauthorized, code).Message(message).Send(c)
}

// SendServiceUnavailable sends a 503 Service Unavailable error
func SendServiceUnavailable(c *gin.Context, message string) {
	NewError(http.StatusServiceUnavailable, ErrCodeServiceUnavailable).Message(message).Send(c)
}

// SendValidationError sends a validation error with field details
func SendValidationError(c *gin.Context, message string, fieldErrors map[string]string) {
	NewError(http.StatusBadRequest, ErrCodeValidationError).
		Message(message).
		Detail("validation_errors", fieldErrors).
		Send(c)
}

// handleError maps a service error onto the HTTP error taxonomy.
// Validation is 400, not-found 404, conflicts 409, forbidden 403 and
// external dependency failures 503 with a retry hint.
func handleError(c *gin.Context, log *logger.Logger, err error) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		SendValidationError(c, "Request validation failed", fieldErrors(ve))
		return
	}

	status, fallback := http.StatusInternalServerError, ErrCodeInternalError
	switch {
	case domainerrors.IsInvalidInput(err):
		status, fallback = http.StatusBadRequest, ErrCodeValidationError
	case domainerrors.IsNotFound(err):
		status, fallback = http.StatusNotFound, ErrCodeNotFound
	case domainerrors.IsConflict(err):
		status, fallback = http.StatusConflict, ErrCodeConflict
	case domainerrors.IsForbidden(err):
		status, fallback = http.StatusForbidden, ErrCodeForbidden
	case domainerrors.IsUnauthorized(err):
		status, fallback = http.StatusUnauthorized, ErrCodeUnauthorized
	case domainerrors.IsServiceUnavailable(err):
		status, fallback = http.StatusServiceUnavailable, ErrCodeServiceUnavailable
	}

	code := fallback
	var de *domainerrors.DomainError
	if errors.As(err, &de) && de.Code != "" {
		code = de.Code
	}

	switch status {
	case http.StatusInternalServerError:
		log.Error("Request failed", "error", err, "path", c.FullPath(), "request_id", c.GetString("request_id"))
		NewError(status, ErrCodeInternalError).Message(MsgInternalError).Send(c)
	case http.StatusServiceUnavailable:
		// causes from upstream clients stay in the logs
		log.Warn("Dependency unavailable", "error", err, "path", c.FullPath())
		c.Header("Retry-After", "30")
		NewError(status, code).Message(MsgServiceUnavailable).Detail("retryable", true).Send(c)
	default:
		NewError(status, code).Message(err.Error()).Details(domainerrors.GetErrorDetails(err)).Send(c)
	}
}

func fieldErrors(ve validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(ve))
	for _, fe := range ve {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
