package middleware

import (
	"context"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yieldvault/yield_service/internal/domain/entities"
	"github.com/yieldvault/yield_service/pkg/auth"
	"github.com/yieldvault/yield_service/pkg/logger"
	"github.com/yieldvault/yield_service/pkg/metrics"
)

const (
	MaxRequestSize = 1 << 20 // 1MB

	ContextUserID   = "user_id"
	ContextUserRole = "user_role"
	ContextClaims   = "claims"
)

// ActivityToucher records that an account holder was seen
type ActivityToucher interface {
	TouchActivity(ctx context.Context, id uuid.UUID) error
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, entities.ErrorResponse{
		Code:    code,
		Message: message,
		Details: map[string]interface{}{"request_id": c.GetString("request_id")},
	})
}

// RequestID adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// RequestSizeLimit limits the size of incoming requests
func RequestSizeLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxRequestSize)
		c.Next()
	}
}

// Logger logs HTTP requests with structured logging
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		requestID := c.GetString("request_id")
		requestLogger := log.ForRequest(requestID, c.Request.Method, path)

		c.Set("logger", requestLogger)

		c.Next()

		requestLogger.Info("HTTP Request",
			"status_code", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
			"response_size", c.Writer.Size(),
		)
	}
}

// Metrics records request counts and latency by route template
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Recovery handles panics and returns 500 errors
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID := c.GetString("request_id")
				requestLogger := log.ForRequest(requestID, c.Request.Method, c.Request.URL.Path)

				requestLogger.Error("Panic recovered",
					"error", err,
					"stack", string(debug.Stack()),
				)

				abort(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
			}
		}()
		c.Next()
	}
}

// CORS handles Cross-Origin Resource Sharing
func CORS(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		for _, allowedOrigin := range allowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				c.Header("Access-Control-Allow-Origin", origin)
				break
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID, Idempotency-Key")
		c.Header("Access-Control-Expose-Headers", "X-Request-ID")
		c.Header("Access-Control-Max-Age", "3600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}

// SecurityHeaders adds security headers to responses
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// Authenticate validates the identity provider's bearer token. revocations may be nil.
func Authenticate(secret string, revocations auth.Revocations, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization header required")
			return
		}

		tokenParts := strings.SplitN(authHeader, " ", 2)
		if len(tokenParts) != 2 || !strings.EqualFold(tokenParts[0], "Bearer") {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid authorization format")
			return
		}

		claims, err := auth.ValidateToken(strings.TrimSpace(tokenParts[1]), secret)
		if err != nil {
			abort(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid token")
			return
		}

		if revocations != nil {
			revoked, err := revocations.IsRevoked(c.Request.Context(), claims)
			if err != nil {
				log.Warn("Token revocation check failed", "error", err, "user_id", claims.UserID)
				abort(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Service temporarily unavailable")
				return
			}
			if revoked {
				abort(c, http.StatusUnauthorized, "INVALID_TOKEN", "Token has been revoked")
				return
			}
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Set(ContextClaims, claims)

		c.Next()
	}
}

// RequireAdmin checks the admin role set by Authenticate
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextUserRole) != auth.RoleAdmin {
			abort(c, http.StatusForbidden, "ADMIN_PRIVILEGES_REQUIRED", "Admin access required")
			return
		}
		c.Next()
	}
}

// TrackActivity touches the caller's account after authenticated requests.
// Failures are logged and never fail the request.
func TrackActivity(toucher ActivityToucher, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		userID, ok := c.Get(ContextUserID)
		if !ok || c.Writer.Status() >= http.StatusInternalServerError {
			return
		}
		id, ok := userID.(uuid.UUID)
		if !ok {
			return
		}
		if err := toucher.TouchActivity(c.Request.Context(), id); err != nil {
			log.Debug("Activity touch skipped", "user_id", id, "error", err)
		}
	}
}
