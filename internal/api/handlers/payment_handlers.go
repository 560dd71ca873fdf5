package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yieldvault/yield_service/internal/domain/entities"
	"github.com/yieldvault/yield_service/internal/domain/services/payment"
	"github.com/yieldvault/yield_service/pkg/logger"
)

// PaymentHandlers serves gateway payment intents
type PaymentHandlers struct {
	payments *payment.Service
	logger   *logger.Logger
}

// NewPaymentHandlers creates a new PaymentHandlers instance
func NewPaymentHandlers(payments *payment.Service, logger *logger.Logger) *PaymentHandlers {
	return &PaymentHandlers{payments: payments, logger: logger}
}

// Create handles POST /api/v1/payments
// @Summary Start a gateway payment
// @Tags payments
// @Accept json
// @Produce json
// @Param Idempotency-Key header string true "Idempotency key"
// @Param request body entities.CreatePaymentRequest true "Amount"
// @Success 201 {object} entities.PaymentIntent
// @Failure 400 {object} entities.ErrorResponse
// @Failure 503 {object} entities.ErrorResponse
// @Router /api/v1/payments [post]
func (h *PaymentHandlers) Create(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req entities.CreatePaymentRequest
	if !bindJSON(c, &req) {
		return
	}

	intent, err := h.payments.CreateIntent(c.Request.Context(), userID, &req)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, intent)
}

// Status handles GET /api/v1/payments/:orderRef/status
// @Summary Poll a payment
// @Description Gateway outages are reported as still pending.
// @Tags payments
// @Produce json
// @Param orderRef path string true "Order reference"
// @Success 200 {object} entities.PaymentStatusView
// @Failure 404 {object} entities.ErrorResponse
// @Router /api/v1/payments/{orderRef}/status [get]
func (h *PaymentHandlers) Status(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	view, err := h.payments.CheckStatus(c.Request.Context(), userID, c.Param("orderRef"))
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, view)
}
