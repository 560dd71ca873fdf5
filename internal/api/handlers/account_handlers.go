package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yieldvault/yield_service/internal/domain/entities"
	"github.com/yieldvault/yield_service/internal/domain/services/account"
	"github.com/yieldvault/yield_service/pkg/logger"
)

// AccountHandlers serves the account holder's own account
type AccountHandlers struct {
	accounts *account.Service
	logger   *logger.Logger
}

// NewAccountHandlers creates a new AccountHandlers instance
func NewAccountHandlers(accounts *account.Service, logger *logger.Logger) *AccountHandlers {
	return &AccountHandlers{accounts: accounts, logger: logger}
}

// Register handles POST /api/v1/accounts/register
// @Summary Open a ledger account
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body entities.RegisterAccountRequest false "Optional referral code"
// @Success 201 {object} entities.Account
// @Failure 400 {object} entities.ErrorResponse
// @Failure 409 {object} entities.ErrorResponse
// @Router /api/v1/accounts/register [post]
func (h *AccountHandlers) Register(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req entities.RegisterAccountRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	acct, err := h.accounts.Register(c.Request.Context(), userID, &req)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, acct)
}

// Me handles GET /api/v1/accounts/me
// @Summary Account dashboard
// @Description Balances, current daily rate, referral summary and withdrawal eligibility
// @Tags accounts
// @Produce json
// @Success 200 {object} entities.AccountDashboard
// @Failure 404 {object} entities.ErrorResponse
// @Router /api/v1/accounts/me [get]
func (h *AccountHandlers) Me(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	dashboard, err := h.accounts.Dashboard(c.Request.Context(), userID)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dashboard)
}
