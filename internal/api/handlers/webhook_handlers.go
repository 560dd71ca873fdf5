package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yieldvault/yield_service/internal/domain/entities"
	"github.com/yieldvault/yield_service/internal/domain/services/payment"
	"github.com/yieldvault/yield_service/pkg/logger"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body
const SignatureHeader = "X-Webhook-Signature"

// WebhookHandlers handles payment gateway callbacks
type WebhookHandlers struct {
	payments            *payment.Service
	webhookSecret       string
	skipSignatureVerify bool
	logger              *logger.Logger
}

// NewWebhookHandlers creates a new WebhookHandlers instance. Without a
// secret every callback is refused unless skipSignatureVerify is set.
func NewWebhookHandlers(payments *payment.Service, webhookSecret string, skipSignatureVerify bool, logger *logger.Logger) *WebhookHandlers {
	return &WebhookHandlers{
		payments:            payments,
		webhookSecret:       webhookSecret,
		skipSignatureVerify: skipSignatureVerify,
		logger:              logger,
	}
}

// GatewayWebhook handles POST /api/v1/webhooks/gateway
// @Summary Payment gateway notification
// @Tags webhooks
// @Accept json
// @Produce json
// @Param X-Webhook-Signature header string true "HMAC-SHA256 of the body"
// @Success 200 {object} entities.PaymentStatusView
// @Failure 401 {object} entities.ErrorResponse
// @Router /api/v1/webhooks/gateway [post]
func (h *WebhookHandlers) GatewayWebhook(c *gin.Context) {
	rawBody, err := c.GetRawData()
	if err != nil {
		SendBadRequest(c, ErrCodeInvalidRequest, "Failed to read request body")
		return
	}

	if !h.skipSignatureVerify {
		if h.webhookSecret == "" {
			h.logger.Error("Gateway webhook received but no secret is configured")
			SendUnauthorized(c, ErrCodeWebhookNotReady, "Webhook verification is not configured")
			return
		}
		if err := verifyHMACSignature(rawBody, c.GetHeader(SignatureHeader), h.webhookSecret); err != nil {
			h.logger.Warn("Webhook signature verification failed", "error", err, "client_ip", c.ClientIP())
			SendUnauthorized(c, ErrCodeInvalidSignature, "Webhook signature verification failed")
			return
		}
	}

	var n entities.GatewayNotification
	if err := json.Unmarshal(rawBody, &n); err != nil {
		SendBadRequest(c, ErrCodeInvalidRequest, "Invalid webhook payload")
		return
	}
	if err := validate.Struct(&n); err != nil {
		handleError(c, h.logger, err)
		return
	}

	view, err := h.payments.HandleNotification(c.Request.Context(), &n)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	h.logger.Info("Gateway webhook processed",
		"order_ref", n.OrderRef,
		"reported_status", n.Status,
		"status", view.Status)

	c.JSON(http.StatusOK, view)
}

// SignPayload returns the signature a gateway sends for payload
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// verifyHMACSignature verifies HMAC-SHA256 webhook signature
func verifyHMACSignature(payload []byte, signature, secret string) error {
	if signature == "" {
		return fmt.Errorf("missing webhook signature")
	}

	signature = strings.TrimPrefix(signature, "sha256=")
	signature = strings.TrimPrefix(signature, "hmac-sha256=")

	expected := SignPayload(payload, secret)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return fmt.Errorf("signature mismatch")
	}

	return nil
}
