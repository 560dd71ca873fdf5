package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yieldvault/yield_service/internal/domain/entities"
	"github.com/yieldvault/yield_service/internal/domain/services/account"
	"github.com/yieldvault/yield_service/internal/domain/services/investment"
	"github.com/yieldvault/yield_service/internal/domain/services/settlement"
	"github.com/yieldvault/yield_service/internal/domain/services/withdrawal"
	"github.com/yieldvault/yield_service/internal/workers/payment_reconciler"
	"github.com/yieldvault/yield_service/pkg/logger"
)

const adminRunTimeout = 10 * time.Minute

// AccrualTrigger runs the nightly accrual for a given day on demand
type AccrualTrigger interface {
	RunFor(ctx context.Context, asOf time.Time) (*entities.AccrualRunReport, error)
}

// ReconcileTrigger runs one reconciliation pass on demand
type ReconcileTrigger interface {
	RunOnce(ctx context.Context) (*payment_reconciler.Result, error)
}

// AdminHandlers serves the admin correction and operations endpoints
type AdminHandlers struct {
	accounts    *account.Service
	investments *investment.Service
	settlement  *settlement.Service
	withdrawals *withdrawal.Service
	accrual     AccrualTrigger
	reconciler  ReconcileTrigger
	logger      *logger.Logger
}

// NewAdminHandlers creates a new AdminHandlers instance
func NewAdminHandlers(
	accounts *account.Service,
	investments *investment.Service,
	settlement *settlement.Service,
	withdrawals *withdrawal.Service,
	accrual AccrualTrigger,
	reconciler ReconcileTrigger,
	logger *logger.Logger,
) *AdminHandlers {
	return &AdminHandlers{
		accounts:    accounts,
		investments: investments,
		settlement:  settlement,
		withdrawals: withdrawals,
		accrual:     accrual,
		reconciler:  reconciler,
		logger:      logger,
	}
}

// ConfirmInvestment handles POST /api/v1/admin/investments/:id/confirm
// @Summary Confirm a pending investment
// @Description Idempotent. Confirming a confirmed entry returns it unchanged; a rejected entry is a conflict.
// @Tags admin
// @Produce json
// @Param id path string true "Investment ID"
// @Success 200 {object} settlement.Result
// @Failure 409 {object} entities.ErrorResponse
// @Router /api/v1/admin/investments/{id}/confirm [post]
func (h *AdminHandlers) ConfirmInvestment(c *gin.Context) {
	adminID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	result, err := h.settlement.Confirm(c.Request.Context(), id, entities.TriggerAdmin)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	h.logger.Info("Investment confirmed by admin",
		"investment_id", id.String(),
		"admin_id", adminID.String(),
		"already_confirmed", result.AlreadyConfirmed)

	c.JSON(http.StatusOK, result)
}

// RejectInvestment handles POST /api/v1/admin/investments/:id/reject
func (h *AdminHandlers) RejectInvestment(c *gin.Context) {
	adminID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req entities.RejectInvestmentRequest
	if !bindJSON(c, &req) {
		return
	}

	entry, err := h.investments.Reject(c.Request.Context(), id, req.Reason, adminID.String())
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

// UpdateInvestment handles PATCH /api/v1/admin/investments/:id
// @Summary Correct an investment entry
// @Description Amount changes on confirmed entries adjust the owner's principal by the difference.
// @Tags admin
// @Accept json
// @Produce json
// @Param id path string true "Investment ID"
// @Param request body entities.AdminUpdateInvestmentRequest true "Changes"
// @Success 200 {object} entities.InvestmentEntry
// @Router /api/v1/admin/investments/{id} [patch]
func (h *AdminHandlers) UpdateInvestment(c *gin.Context) {
	adminID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req entities.AdminUpdateInvestmentRequest
	if !bindJSON(c, &req) {
		return
	}

	entry, err := h.investments.AdminUpdate(c.Request.Context(), id, &req, adminID.String())
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

// DeleteInvestment handles DELETE /api/v1/admin/investments/:id
func (h *AdminHandlers) DeleteInvestment(c *gin.Context) {
	adminID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.investments.AdminDelete(c.Request.Context(), id, adminID.String()); err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GrantInvestment handles POST /api/v1/admin/investments/grant
func (h *AdminHandlers) GrantInvestment(c *gin.Context) {
	adminID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req entities.GrantInvestmentRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.settlement.Grant(c.Request.Context(), &req, adminID.String())
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// DecideWithdrawal handles POST /api/v1/admin/withdrawals/:id/decision
// @Summary Approve, reject, process or cancel a withdrawal
// @Tags admin
// @Accept json
// @Produce json
// @Param id path string true "Withdrawal ID"
// @Param request body entities.DecideWithdrawalRequest true "Decision"
// @Success 200 {object} entities.WithdrawalRequest
// @Failure 400 {object} entities.ErrorResponse
// @Failure 409 {object} entities.ErrorResponse
// @Router /api/v1/admin/withdrawals/{id}/decision [post]
func (h *AdminHandlers) DecideWithdrawal(c *gin.Context) {
	adminID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req entities.DecideWithdrawalRequest
	if !bindJSON(c, &req) {
		return
	}

	w, err := h.withdrawals.Decide(c.Request.Context(), id, &req, adminID)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, w)
}

// FreezeAccount handles POST /api/v1/admin/accounts/:id/freeze
func (h *AdminHandlers) FreezeAccount(c *gin.Context) {
	h.setFrozen(c, true)
}

// UnfreezeAccount handles POST /api/v1/admin/accounts/:id/unfreeze
func (h *AdminHandlers) UnfreezeAccount(c *gin.Context) {
	h.setFrozen(c, false)
}

func (h *AdminHandlers) setFrozen(c *gin.Context, frozen bool) {
	adminID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var (
		acct *entities.Account
		err  error
	)
	if frozen {
		acct, err = h.accounts.Freeze(c.Request.Context(), id, adminID.String())
	} else {
		acct, err = h.accounts.Unfreeze(c.Request.Context(), id, adminID.String())
	}
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, acct)
}

type runAccrualRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// RunAccrual handles POST /api/v1/admin/accrual/run
// @Summary Run the daily accrual now
// @Description Safe to repeat for the same date; accounts already credited are skipped.
// @Tags admin
// @Accept json
// @Produce json
// @Success 200 {object} entities.AccrualRunReport
// @Failure 409 {object} entities.ErrorResponse
// @Router /api/v1/admin/accrual/run [post]
func (h *AdminHandlers) RunAccrual(c *gin.Context) {
	var req runAccrualRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	asOf := time.Now().UTC()
	if req.Date != "" {
		// validated above
		asOf, _ = time.Parse("2006-01-02", req.Date)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), adminRunTimeout)
	defer cancel()

	report, err := h.accrual.RunFor(ctx, asOf)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// ReconcilePayments handles POST /api/v1/admin/payments/reconcile
func (h *AdminHandlers) ReconcilePayments(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), adminRunTimeout)
	defer cancel()

	result, err := h.reconciler.RunOnce(ctx)
	if err != nil && result == nil {
		handleError(c, h.logger, err)
		return
	}
	if err != nil {
		h.logger.Warn("Reconciliation finished with errors", "error", err)
	}

	c.JSON(http.StatusOK, result)
}
