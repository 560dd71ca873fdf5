package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/yieldvault/yield_service/internal/api/middleware"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// validate is shared by every handler; validator caches struct metadata
var validate = validator.New(validator.WithRequiredStructEnabled())

// getUserID extracts and validates user ID from context
func getUserID(c *gin.Context) (uuid.UUID, error) {
	userIDVal, exists := c.Get(middleware.ContextUserID)
	if !exists {
		return uuid.Nil, fmt.Errorf("user ID not found in context")
	}

	switch v := userIDVal.(type) {
	case uuid.UUID:
		return v, nil
	case string:
		return uuid.Parse(v)
	default:
		return uuid.Nil, fmt.Errorf("invalid user ID type in context")
	}
}

// requireUserID writes a 401 and returns false when the caller is anonymous
func requireUserID(c *gin.Context) (uuid.UUID, bool) {
	userID, err := getUserID(c)
	if err != nil {
		SendUnauthorized(c, ErrCodeUnauthorized, MsgUnauthorized)
		return uuid.Nil, false
	}
	return userID, true
}

// pathUUID parses a uuid path parameter and writes a 400 on failure
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		NewError(http.StatusBadRequest, ErrCodeInvalidID).
			Message(fmt.Sprintf("invalid %s", name)).
			Detail("field", name).
			Send(c)
		return uuid.Nil, false
	}
	return id, true
}

// bindJSON decodes and validates a request body
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		NewError(http.StatusBadRequest, ErrCodeInvalidRequest).
			Message(MsgInvalidRequest).
			Detail("error", err.Error()).
			Send(c)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok {
			SendValidationError(c, "Request validation failed", fieldErrors(ve))
			return false
		}
		SendBadRequest(c, ErrCodeInvalidRequest, err.Error())
		return false
	}
	return true
}

// pagination reads limit/offset query parameters with bounds
func pagination(c *gin.Context) (limit, offset int) {
	limit = parseIntParam(c, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset = parseIntParam(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// parseIntParam parses a query parameter to int with default value
func parseIntParam(c *gin.Context, param string, defaultVal int) int {
	if val := c.Query(param); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}
