package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yieldvault/yield_service/internal/domain/entities"
	"github.com/yieldvault/yield_service/internal/domain/services/withdrawal"
	"github.com/yieldvault/yield_service/pkg/logger"
)

// WithdrawalHandlers serves an owner's withdrawal requests
type WithdrawalHandlers struct {
	withdrawals *withdrawal.Service
	logger      *logger.Logger
}

// NewWithdrawalHandlers creates a new WithdrawalHandlers instance
func NewWithdrawalHandlers(withdrawals *withdrawal.Service, logger *logger.Logger) *WithdrawalHandlers {
	return &WithdrawalHandlers{withdrawals: withdrawals, logger: logger}
}

// Create handles POST /api/v1/withdrawals
// @Summary Request a withdrawal
// @Description Interest requests are capped by the monthly accrual and limited to one per calendar month. Principal requests are limited to unlocked principal.
// @Tags withdrawals
// @Accept json
// @Produce json
// @Param Idempotency-Key header string true "Idempotency key"
// @Param request body entities.CreateWithdrawalRequest true "Withdrawal"
// @Success 201 {object} entities.WithdrawalRequest
// @Failure 400 {object} entities.ErrorResponse
// @Failure 403 {object} entities.ErrorResponse
// @Router /api/v1/withdrawals [post]
func (h *WithdrawalHandlers) Create(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req entities.CreateWithdrawalRequest
	if !bindJSON(c, &req) {
		return
	}

	w, err := h.withdrawals.Request(c.Request.Context(), userID, &req)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, w)
}

// List handles GET /api/v1/withdrawals
func (h *WithdrawalHandlers) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	limit, offset := pagination(c)

	items, err := h.withdrawals.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"withdrawals": items,
		"limit":       limit,
		"offset":      offset,
	})
}

// Eligibility handles GET /api/v1/withdrawals/eligibility
// @Summary What can be withdrawn right now
// @Tags withdrawals
// @Produce json
// @Success 200 {object} entities.WithdrawalEligibility
// @Router /api/v1/withdrawals/eligibility [get]
func (h *WithdrawalHandlers) Eligibility(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	view, err := h.withdrawals.Eligibility(c.Request.Context(), userID)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// Cancel handles POST /api/v1/withdrawals/:id/cancel
func (h *WithdrawalHandlers) Cancel(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	w, err := h.withdrawals.Cancel(c.Request.Context(), userID, id)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, w)
}
