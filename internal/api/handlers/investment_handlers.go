package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yieldvault/yield_service/internal/domain/entities"
	"github.com/yieldvault/yield_service/internal/domain/services/investment"
	"github.com/yieldvault/yield_service/internal/domain/services/payment"
	"github.com/yieldvault/yield_service/pkg/logger"
)

// InvestmentHandlers serves an owner's investment entries
type InvestmentHandlers struct {
	investments *investment.Service
	payments    *payment.Service
	logger      *logger.Logger
}

// NewInvestmentHandlers creates a new InvestmentHandlers instance
func NewInvestmentHandlers(investments *investment.Service, payments *payment.Service, logger *logger.Logger) *InvestmentHandlers {
	return &InvestmentHandlers{
		investments: investments,
		payments:    payments,
		logger:      logger,
	}
}

// Submit handles POST /api/v1/investments
// @Summary Record a direct USDT transfer
// @Description Creates a pending entry for a TRC20 transaction hash. The entry settles once the transfer is verified.
// @Tags investments
// @Accept json
// @Produce json
// @Param Idempotency-Key header string true "Idempotency key"
// @Param request body entities.SubmitInvestmentRequest true "Transfer"
// @Success 201 {object} entities.InvestmentEntry
// @Failure 400 {object} entities.ErrorResponse
// @Failure 409 {object} entities.ErrorResponse
// @Router /api/v1/investments [post]
func (h *InvestmentHandlers) Submit(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req entities.SubmitInvestmentRequest
	if !bindJSON(c, &req) {
		return
	}

	entry, err := h.investments.Submit(c.Request.Context(), userID, &req)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// List handles GET /api/v1/investments
// @Summary List investment entries
// @Tags investments
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/investments [get]
func (h *InvestmentHandlers) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	limit, offset := pagination(c)

	entries, err := h.investments.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"investments": entries,
		"limit":       limit,
		"offset":      offset,
	})
}

// Get handles GET /api/v1/investments/:id
func (h *InvestmentHandlers) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	entry, err := h.investments.GetForOwner(c.Request.Context(), userID, id)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

// Verify handles POST /api/v1/investments/:id/verify
// @Summary Verify a pending transfer on chain
// @Description Settles the entry when the transfer matches. Verifier outages return 503 and leave the entry pending.
// @Tags investments
// @Produce json
// @Param id path string true "Investment ID"
// @Success 200 {object} settlement.Result
// @Failure 400 {object} entities.ErrorResponse
// @Failure 503 {object} entities.ErrorResponse
// @Router /api/v1/investments/{id}/verify [post]
func (h *InvestmentHandlers) Verify(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	result, err := h.payments.VerifyTransfer(c.Request.Context(), userID, id)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Confirm handles POST /api/v1/investments/:id/confirm. Only routed
// outside production.
func (h *InvestmentHandlers) Confirm(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	result, err := h.investments.ConfirmByOwner(c.Request.Context(), userID, id)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
