package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yieldvault/yield_service/internal/api/middleware"
	"github.com/yieldvault/yield_service/internal/domain/entities"
	domainerrors "github.com/yieldvault/yield_service/internal/domain/errors"
	"github.com/yieldvault/yield_service/internal/domain/services/account"
	"github.com/yieldvault/yield_service/internal/domain/services/investment"
	"github.com/yieldvault/yield_service/internal/domain/services/payment"
	"github.com/yieldvault/yield_service/internal/domain/services/settlement"
	"github.com/yieldvault/yield_service/internal/domain/services/withdrawal"
	"github.com/yieldvault/yield_service/internal/infrastructure/memstore"
	"github.com/yieldvault/yield_service/internal/workers/payment_reconciler"
	"github.com/yieldvault/yield_service/pkg/logger"
)

const webhookSecret = "test-webhook-secret"

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Name() string { return "mockpay" }

func (m *mockGateway) CreatePayment(ctx context.Context, amount decimal.Decimal, orderRef string) (string, error) {
	args := m.Called(ctx, amount, orderRef)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) GetStatus(ctx context.Context, orderRef string) (entities.GatewayPaymentStatus, error) {
	args := m.Called(ctx, orderRef)
	return args.Get(0).(entities.GatewayPaymentStatus), args.Error(1)
}

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) Verify(ctx context.Context, txRef string) (*entities.TransferVerification, error) {
	args := m.Called(ctx, txRef)
	if v := args.Get(0); v != nil {
		return v.(*entities.TransferVerification), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockNotifier struct{}

func (mockNotifier) NotifyWithdrawalRequested(context.Context, *entities.WithdrawalRequest) error {
	return nil
}

type stubAccrual struct {
	report *entities.AccrualRunReport
	err    error
	asOf   time.Time
}

func (s *stubAccrual) RunFor(_ context.Context, asOf time.Time) (*entities.AccrualRunReport, error) {
	s.asOf = asOf
	return s.report, s.err
}

type stubReconciler struct {
	result *payment_reconciler.Result
	err    error
}

func (s *stubReconciler) RunOnce(context.Context) (*payment_reconciler.Result, error) {
	return s.result, s.err
}

type fixture struct {
	store    *memstore.Store
	router   *gin.Engine
	gateway  *mockGateway
	verifier *mockVerifier
	accrual  *stubAccrual
	recon    *stubReconciler
	ctx      context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memstore.New()
	policy := entities.DefaultLedgerPolicy()
	log := logger.NewNop()

	settler := settlement.NewService(store, policy, log)
	withdrawals := withdrawal.NewService(store, policy, mockNotifier{}, log)
	accounts := account.NewService(store, policy, withdrawals, log)
	investments := investment.NewService(store, settler, policy, log)
	gw := &mockGateway{}
	verifier := &mockVerifier{}
	payments := payment.NewService(store, settler, gw, verifier, policy, payment.Config{DepositAddress: "TDeposit"}, log)

	f := &fixture{
		store:    store,
		gateway:  gw,
		verifier: verifier,
		accrual:  &stubAccrual{report: &entities.AccrualRunReport{Processed: 3, Credited: 2}},
		recon:    &stubReconciler{result: &payment_reconciler.Result{}},
		ctx:      context.Background(),
	}

	accountH := NewAccountHandlers(accounts, log)
	investmentH := NewInvestmentHandlers(investments, payments, log)
	paymentH := NewPaymentHandlers(payments, log)
	withdrawalH := NewWithdrawalHandlers(withdrawals, log)
	adminH := NewAdminHandlers(accounts, investments, settler, withdrawals, f.accrual, f.recon, log)
	webhookH := NewWebhookHandlers(payments, webhookSecret, false, log)

	r := gin.New()
	r.POST("/webhooks/gateway", webhookH.GatewayWebhook)

	authed := r.Group("/", func(c *gin.Context) {
		if id, err := uuid.Parse(c.GetHeader("X-Test-User")); err == nil {
			c.Set(middleware.ContextUserID, id)
		}
	})
	authed.POST("/accounts/register", accountH.Register)
	authed.GET("/accounts/me", accountH.Me)
	authed.POST("/investments", investmentH.Submit)
	authed.GET("/investments", investmentH.List)
	authed.GET("/investments/:id", investmentH.Get)
	authed.POST("/investments/:id/verify", investmentH.Verify)
	authed.POST("/investments/:id/confirm", investmentH.Confirm)
	authed.POST("/payments", paymentH.Create)
	authed.GET("/payments/:orderRef/status", paymentH.Status)
	authed.POST("/withdrawals", withdrawalH.Create)
	authed.GET("/withdrawals", withdrawalH.List)
	authed.GET("/withdrawals/eligibility", withdrawalH.Eligibility)
	authed.POST("/withdrawals/:id/cancel", withdrawalH.Cancel)
	authed.POST("/admin/investments/:id/confirm", adminH.ConfirmInvestment)
	authed.POST("/admin/investments/:id/reject", adminH.RejectInvestment)
	authed.PATCH("/admin/investments/:id", adminH.UpdateInvestment)
	authed.DELETE("/admin/investments/:id", adminH.DeleteInvestment)
	authed.POST("/admin/investments/grant", adminH.GrantInvestment)
	authed.POST("/admin/withdrawals/:id/decision", adminH.DecideWithdrawal)
	authed.POST("/admin/accounts/:id/freeze", adminH.FreezeAccount)
	authed.POST("/admin/accounts/:id/unfreeze", adminH.UnfreezeAccount)
	authed.POST("/admin/accrual/run", adminH.RunAccrual)
	authed.POST("/admin/payments/reconcile", adminH.ReconcilePayments)

	f.router = r
	return f
}

func (f *fixture) do(method, path string, user uuid.UUID, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.([]byte); ok {
			buf.Write(raw)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != uuid.Nil {
		req.Header.Set("X-Test-User", user.String())
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) register(t *testing.T) uuid.UUID {
	t.Helper()
	user := uuid.New()
	w := f.do(http.MethodPost, "/accounts/register", user, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return user
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) entities.ErrorResponse {
	t.Helper()
	var resp entities.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestRegisterAndDashboard(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/accounts/me", uuid.New(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	user := f.register(t)

	w = f.do(http.MethodPost, "/accounts/register", user, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(http.MethodGet, "/accounts/me", user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var dashboard entities.AccountDashboard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dashboard))
	assert.Equal(t, user, dashboard.Account.ID)
	assert.NotNil(t, dashboard.Eligibility)
}

func TestRegisterRequiresUser(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/accounts/register", uuid.Nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, ErrCodeUnauthorized, decodeError(t, w).Code)
}

func TestRegisterWithUnknownReferralCode(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/accounts/register", uuid.New(), map[string]string{"referralCode": "NOPE1234"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitInvestment(t *testing.T) {
	f := newFixture(t)
	user := f.register(t)

	tests := []struct {
		name   string
		body   interface{}
		status int
	}{
		{"malformed json", []byte(`{"amount":`), http.StatusBadRequest},
		{"missing reference", map[string]string{"amount": "100"}, http.StatusBadRequest},
		{"below minimum", map[string]string{"amount": "5", "externalRef": "tx-hash-below-min"}, http.StatusBadRequest},
		{"accepted", map[string]string{"amount": "100", "externalRef": "tx-hash-0001"}, http.StatusCreated},
		{"duplicate reference", map[string]string{"amount": "100", "externalRef": "tx-hash-0001"}, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/investments", user, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	w := f.do(http.MethodGet, "/investments?limit=500", user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Investments []entities.InvestmentEntry `json:"investments"`
		Limit       int                        `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Investments, 1)
	assert.Equal(t, defaultPageSize, list.Limit)
}

func TestConfirmAndRejectFlow(t *testing.T) {
	f := newFixture(t)
	user := f.register(t)
	admin := uuid.New()

	w := f.do(http.MethodPost, "/investments", user, map[string]string{"amount": "250", "externalRef": "tx-hash-confirm"})
	require.Equal(t, http.StatusCreated, w.Code)
	var entry entities.InvestmentEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))

	// other users cannot see or confirm it
	w = f.do(http.MethodPost, "/investments/"+entry.ID.String()+"/confirm", uuid.New(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodPost, "/admin/investments/"+entry.ID.String()+"/confirm", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/admin/investments/"+entry.ID.String()+"/confirm", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var again settlement.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &again))
	assert.True(t, again.AlreadyConfirmed)

	acct, err := f.store.Repos().Accounts.GetByID(f.ctx, user)
	require.NoError(t, err)
	assert.True(t, acct.Principal.Equal(decimal.NewFromInt(250)))

	w = f.do(http.MethodPost, "/investments", user, map[string]string{"amount": "50", "externalRef": "tx-hash-reject"})
	require.Equal(t, http.StatusCreated, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))

	w = f.do(http.MethodPost, "/admin/investments/"+entry.ID.String()+"/reject", admin, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/admin/investments/"+entry.ID.String()+"/reject", admin, map[string]string{"reason": "no funds"})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/admin/investments/"+entry.ID.String()+"/confirm", admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_REJECTED", decodeError(t, w).Code)
}

func TestVerifyTransferVerifierDown(t *testing.T) {
	f := newFixture(t)
	user := f.register(t)

	w := f.do(http.MethodPost, "/investments", user, map[string]string{"amount": "100", "externalRef": "tx-hash-verify"})
	require.Equal(t, http.StatusCreated, w.Code)
	var entry entities.InvestmentEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))

	f.verifier.On("Verify", mock.Anything, "tx-hash-verify").
		Return(nil, domainerrors.ServiceUnavailableError("tronscan", errors.New("timeout"))).Once()

	w = f.do(http.MethodPost, "/investments/"+entry.ID.String()+"/verify", user, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	resp := decodeError(t, w)
	assert.Equal(t, true, resp.Details["retryable"])
	assert.NotContains(t, w.Body.String(), "timeout")

	w = f.do(http.MethodGet, "/investments/"+entry.ID.String(), user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	assert.Equal(t, entities.InvestmentStatusPending, entry.Status)
}

func TestInvalidPathID(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/investments/not-a-uuid/verify", uuid.New(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeInvalidID, decodeError(t, w).Code)
}

func TestPaymentStatusGatewayDownIsPending(t *testing.T) {
	f := newFixture(t)
	user := f.register(t)

	f.gateway.On("CreatePayment", mock.Anything, mock.Anything, mock.Anything).Return("https://pay.example/checkout", nil).Once()
	w := f.do(http.MethodPost, "/payments", user, map[string]string{"amount": "100"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var intent entities.PaymentIntent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &intent))

	f.gateway.On("GetStatus", mock.Anything, intent.OrderRef).Return(entities.GatewayPaymentStatus(""), errors.New("connection refused")).Once()
	w = f.do(http.MethodGet, "/payments/"+intent.OrderRef+"/status", user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view entities.PaymentStatusView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, entities.PaymentIntentStatusPending, view.Status)
	assert.NotEmpty(t, view.Message)

	w = f.do(http.MethodGet, "/payments/"+intent.OrderRef+"/status", uuid.New(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGatewayWebhook(t *testing.T) {
	f := newFixture(t)
	user := f.register(t)

	f.gateway.On("CreatePayment", mock.Anything, mock.Anything, mock.Anything).Return("https://pay.example/checkout", nil).Once()
	w := f.do(http.MethodPost, "/payments", user, map[string]string{"amount": "100"})
	require.Equal(t, http.StatusCreated, w.Code)
	var intent entities.PaymentIntent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &intent))

	body := []byte(`{"orderRef":"` + intent.OrderRef + `","status":"paid","amount":"100"}`)

	send := func(signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if signature != "" {
			req.Header.Set(SignatureHeader, signature)
		}
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		return rec
	}

	w = send("")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = send("sha256=deadbeef")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, ErrCodeInvalidSignature, decodeError(t, w).Code)

	w = send("sha256=" + SignPayload(body, webhookSecret))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// redelivery credits nothing new
	w = send(SignPayload(body, webhookSecret))
	require.Equal(t, http.StatusOK, w.Code)

	acct, err := f.store.Repos().Accounts.GetByID(f.ctx, user)
	require.NoError(t, err)
	assert.True(t, acct.Principal.Equal(decimal.NewFromInt(100)))
}

func TestGatewayWebhookFailsClosedWithoutSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewWebhookHandlers(nil, "", false, logger.NewNop())
	r := gin.New()
	r.POST("/webhooks/gateway", h.GatewayWebhook)

	body := []byte(`{"orderRef":"x","status":"paid"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, SignPayload(body, ""))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), ErrCodeWebhookNotReady)
}

func TestWithdrawalEndpoints(t *testing.T) {
	f := newFixture(t)
	user := f.register(t)
	admin := uuid.New()

	w := f.do(http.MethodPost, "/withdrawals", user, map[string]string{"amount": "50", "kind": "bonus", "destinationAddress": "TXYZ1234567890abcdefghijklmnopqr"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeValidationError, decodeError(t, w).Code)

	w = f.do(http.MethodPost, "/withdrawals", user, map[string]string{"amount": "50", "kind": "interest", "destinationAddress": "TXYZ1234567890abcdefghijklmnopqr"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/withdrawals/eligibility", user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var elig entities.WithdrawalEligibility
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &elig))
	assert.False(t, elig.MeetsPrincipalMinimum)

	w = f.do(http.MethodPost, "/admin/withdrawals/"+uuid.NewString()+"/decision", admin, map[string]string{"decision": "approve"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodPost, "/admin/withdrawals/"+uuid.NewString()+"/decision", admin, map[string]string{"decision": "maybe"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/withdrawals", user, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFreezeBlocksSubmission(t *testing.T) {
	f := newFixture(t)
	user := f.register(t)
	admin := uuid.New()

	w := f.do(http.MethodPost, "/admin/accounts/"+user.String()+"/freeze", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/investments", user, map[string]string{"amount": "100", "externalRef": "tx-hash-frozen"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPost, "/admin/accounts/"+user.String()+"/unfreeze", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/investments", user, map[string]string{"amount": "100", "externalRef": "tx-hash-frozen"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestGrantAndAdminCorrection(t *testing.T) {
	f := newFixture(t)
	user := f.register(t)
	admin := uuid.New()

	w := f.do(http.MethodPost, "/admin/investments/grant", admin, map[string]interface{}{"ownerId": user, "amount": "300", "note": "promo"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var result settlement.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))

	w = f.do(http.MethodPatch, "/admin/investments/"+result.Entry.ID.String(), admin, map[string]string{"amount": "200"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	acct, err := f.store.Repos().Accounts.GetByID(f.ctx, user)
	require.NoError(t, err)
	assert.True(t, acct.Principal.Equal(decimal.NewFromInt(200)))

	w = f.do(http.MethodDelete, "/admin/investments/"+result.Entry.ID.String(), admin, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	acct, err = f.store.Repos().Accounts.GetByID(f.ctx, user)
	require.NoError(t, err)
	assert.True(t, acct.Principal.IsZero())
}

func TestRunAccrual(t *testing.T) {
	f := newFixture(t)
	admin := uuid.New()

	w := f.do(http.MethodPost, "/admin/accrual/run", admin, map[string]string{"date": "2024-06-14"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC), f.accrual.asOf)

	w = f.do(http.MethodPost, "/admin/accrual/run", admin, map[string]string{"date": "14/06/2024"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.accrual.err = domainerrors.ConflictError("accrual run", "already in progress")
	w = f.do(http.MethodPost, "/admin/accrual/run", admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestReconcilePayments(t *testing.T) {
	f := newFixture(t)
	admin := uuid.New()

	f.recon.result = &payment_reconciler.Result{Payments: &entities.ReconcileReport{Checked: 2}}
	f.recon.err = errors.New("transfers reconciliation: boom")
	w := f.do(http.MethodPost, "/admin/payments/reconcile", admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	f.recon.result, f.recon.err = nil, domainerrors.ConflictError("reconciliation run", "already in progress")
	w = f.do(http.MethodPost, "/admin/payments/reconcile", admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHealthAndReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	failing := false
	h := NewHealthHandler(map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
		"redis": func(context.Context) error {
			if failing {
				return errors.New("dial tcp: refused")
			}
			return nil
		},
	}, logger.NewNop(), "test")

	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	assert.Equal(t, http.StatusOK, get("/health").Code)
	assert.Equal(t, http.StatusOK, get("/ready").Code)

	failing = true
	w := get("/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Checks["redis"].Status)
	assert.Equal(t, "healthy", resp.Checks["database"].Status)
	assert.Equal(t, http.StatusOK, get("/health").Code)
}
