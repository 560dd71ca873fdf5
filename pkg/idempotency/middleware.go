package idempotency

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// HeaderIdempotencyKey is the HTTP header for idempotency key
	HeaderIdempotencyKey = "Idempotency-Key"

	// MaxBodySize is the maximum request body size for idempotency (1MB)
	MaxBodySize = 1 << 20
)

// responseWriter wraps gin.ResponseWriter to capture response
type responseWriter struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	}
	return false
}

// Middleware replays the stored response of a request whose Idempotency-Key
// was seen before, and stores the response of new keyed requests.
func Middleware(store Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isMutating(c.Request.Method) {
			c.Next()
			return
		}

		// Check for idempotency key header
		idempotencyKey := c.GetHeader(HeaderIdempotencyKey)
		if idempotencyKey == "" {
			// Idempotency is optional; if not provided, proceed normally
			c.Next()
			return
		}

		// Validate idempotency key
		if err := ValidateKey(idempotencyKey); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":       "INVALID_IDEMPOTENCY_KEY",
				"message":    err.Error(),
				"request_id": c.GetString("request_id"),
			})
			c.Abort()
			return
		}

		// Read request body
		bodyBytes, err := ReadBody(c.Request.Body, MaxBodySize)
		if err != nil {
			logger.Error("Failed to read request body",
				zap.String("idempotency_key", idempotencyKey),
				zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{
				"code":       "INVALID_REQUEST",
				"message":    "Failed to read request body",
				"request_id": c.GetString("request_id"),
			})
			c.Abort()
			return
		}

		// Restore body for downstream handlers
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		var userID *uuid.UUID
		if raw, exists := c.Get("user_id"); exists {
			if uid, ok := raw.(uuid.UUID); ok {
				userID = &uid
			}
		}
		storeKey := ScopedKey(userID, idempotencyKey)
		requestHash := HashRequest(c.Request.Method, c.FullPath(), bodyBytes)

		existing, err := store.Get(c.Request.Context(), storeKey)
		if err != nil {
			logger.Error("Failed to check idempotency key",
				zap.String("idempotency_key", idempotencyKey),
				zap.Error(err))
			// On error, proceed with request (fail open)
			c.Next()
			return
		}

		// If key exists, validate and return cached response
		if existing != nil {
			shouldCache, reason := ShouldReturnCached(
				&Response{Status: existing.ResponseStatus, Body: existing.ResponseBody},
				requestHash,
				existing.RequestHash,
			)

			if !shouldCache {
				logger.Warn("Idempotency key conflict",
					zap.String("idempotency_key", idempotencyKey),
					zap.String("reason", reason))
				c.JSON(http.StatusConflict, gin.H{
					"code":       "IDEMPOTENCY_CONFLICT",
					"message":    reason,
					"request_id": c.GetString("request_id"),
				})
				c.Abort()
				return
			}

			// Return cached response
			logger.Info("Returning cached response",
				zap.String("idempotency_key", idempotencyKey),
				zap.Int("status", existing.ResponseStatus))

			var responseBody interface{}
			if err := json.Unmarshal(existing.ResponseBody, &responseBody); err == nil {
				c.JSON(existing.ResponseStatus, responseBody)
			} else {
				c.Data(existing.ResponseStatus, "application/json", existing.ResponseBody)
			}
			c.Abort()
			return
		}

		// Capture response
		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBuffer(nil),
			status:         http.StatusOK,
		}
		c.Writer = writer

		// Process request
		c.Next()

		expiresAt := time.Now().Add(DefaultTTL)
		if writer.status >= http.StatusInternalServerError {
			return
		}

		record := &Record{
			IdempotencyKey: storeKey,
			RequestPath:    c.Request.URL.Path,
			RequestMethod:  c.Request.Method,
			RequestHash:    requestHash,
			UserID:         userID,
			ResponseStatus: writer.status,
			ResponseBody:   writer.body.Bytes(),
			ExpiresAt:      expiresAt,
		}

		if err := store.Create(c.Request.Context(), record); err != nil {
			// Log error but don't fail the request
			logger.Error("Failed to store idempotency key",
				zap.String("idempotency_key", idempotencyKey),
				zap.Error(err))
		} else {
			logger.Info("Stored idempotency key",
				zap.String("idempotency_key", idempotencyKey),
				zap.Int("status", writer.status))
		}
	}
}

// RequireIdempotency rejects mutating requests without an Idempotency-Key header
func RequireIdempotency() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isMutating(c.Request.Method) {
			c.Next()
			return
		}

		if c.GetHeader(HeaderIdempotencyKey) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":       "IDEMPOTENCY_KEY_REQUIRED",
				"message":    "This endpoint requires an Idempotency-Key header",
				"request_id": c.GetString("request_id"),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
