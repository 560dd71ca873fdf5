// Package payment brings external deposits into the ledger: hosted gateway
// payments and on-chain TRC20 transfers. External calls happen before any
// row is locked; settlement then commits the decided outcome.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yieldvault/yield_service/internal/domain/entities"
	domainerrors "github.com/yieldvault/yield_service/internal/domain/errors"
	"github.com/yieldvault/yield_service/internal/domain/repositories"
	"github.com/yieldvault/yield_service/internal/domain/services/settlement"
	"github.com/yieldvault/yield_service/pkg/logger"
	"github.com/yieldvault/yield_service/pkg/metrics"
)

const (
	defaultBatchSize = 100
	defaultMinAge    = 2 * time.Minute

	pendingMessage = "payment is still pending, please try again shortly"
)

// Gateway is a hosted-checkout payment provider
type Gateway interface {
	Name() string
	CreatePayment(ctx context.Context, amount decimal.Decimal, orderRef string) (string, error)
	GetStatus(ctx context.Context, orderRef string) (entities.GatewayPaymentStatus, error)
}

// TransferVerifier looks up an on-chain transfer by transaction reference
type TransferVerifier interface {
	Verify(ctx context.Context, txRef string) (*entities.TransferVerification, error)
}

// Config tunes the payment service
type Config struct {
	DepositAddress string
	BatchSize      int
	MinAge         time.Duration
}

// Service manages gateway payment intents and TRC20 verification
type Service struct {
	store      repositories.Store
	settlement *settlement.Service
	gateway    Gateway
	verifier   TransferVerifier
	policy     entities.LedgerPolicy
	cfg        Config
	logger     *logger.Logger
	now        func() time.Time
}

// NewService creates a new payment service
func NewService(
	store repositories.Store,
	settlement *settlement.Service,
	gateway Gateway,
	verifier TransferVerifier,
	policy entities.LedgerPolicy,
	cfg Config,
	logger *logger.Logger,
) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MinAge <= 0 {
		cfg.MinAge = defaultMinAge
	}
	return &Service{
		store:      store,
		settlement: settlement,
		gateway:    gateway,
		verifier:   verifier,
		policy:     policy,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock replaces the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// NewOrderRef returns a fresh order reference
func NewOrderRef() string {
	return entities.OrderRefPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// CreateIntent opens a gateway payment for the owner. The intent is stored
// before the gateway is called so a fast webhook always finds it.
func (s *Service) CreateIntent(ctx context.Context, ownerID uuid.UUID, req *entities.CreatePaymentRequest) (*entities.PaymentIntent, error) {
	if req.Amount.LessThan(s.policy.MinInvestment) {
		return nil, domainerrors.MinimumAmountError("amount", s.policy.MinInvestment.String(), req.Amount.String())
	}

	repos := s.store.Repos()
	account, err := repos.Accounts.GetByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if account.Status == entities.AccountStatusFrozen {
		return nil, domainerrors.AccountFrozenError(ownerID.String())
	}

	now := s.now()
	intent := &entities.PaymentIntent{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Amount:    req.Amount,
		OrderRef:  NewOrderRef(),
		Provider:  s.gateway.Name(),
		Status:    entities.PaymentIntentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repos.PaymentIntents.Create(ctx, intent); err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	url, err := s.gateway.CreatePayment(ctx, intent.Amount, intent.OrderRef)
	metrics.RecordExternalCall("gateway_create", err)
	if err != nil {
		s.logger.Error("Gateway payment creation failed",
			"order_ref", intent.OrderRef,
			"account_id", ownerID.String(),
			"error", err)
		if _, markErr := s.transition(ctx, intent.OrderRef, entities.PaymentIntentStatusFailed); markErr != nil {
			s.logger.Error("Failed to mark payment intent failed", "order_ref", intent.OrderRef, "error", markErr)
		}
		return nil, domainerrors.ServiceUnavailableError("payment gateway", err)
	}

	intent.PaymentURL = &url
	intent.Status = entities.PaymentIntentStatusProcessing
	intent.UpdatedAt = s.now()
	if err := repos.PaymentIntents.Update(ctx, intent); err != nil {
		return nil, fmt.Errorf("failed to store payment url: %w", err)
	}

	s.logger.Info("Payment intent created",
		"order_ref", intent.OrderRef,
		"account_id", ownerID.String(),
		"amount", intent.Amount.String(),
		"provider", intent.Provider)

	return intent, nil
}

// HandleNotification applies a webhook whose signature the caller verified
func (s *Service) HandleNotification(ctx context.Context, n *entities.GatewayNotification) (*entities.PaymentStatusView, error) {
	intent, err := s.store.Repos().PaymentIntents.GetByOrderRef(ctx, n.OrderRef)
	if err != nil {
		return nil, err
	}

	if n.Amount != "" {
		reported, err := decimal.NewFromString(n.Amount)
		if err != nil {
			return nil, domainerrors.ValidationError("amount", "amount is not a number")
		}
		if !reported.Equal(intent.Amount) {
			s.logger.Warn("Gateway reported a different amount",
				"order_ref", n.OrderRef,
				"expected", intent.Amount.String(),
				"reported", reported.String())
			return nil, domainerrors.ValidationError("amount", "amount does not match the payment intent")
		}
	}

	return s.apply(ctx, intent, entities.ParseGatewayStatus(n.Status), entities.TriggerGatewayWebhook)
}

// CheckStatus answers a user polling their payment. Gateway failures are
// reported as still pending rather than as errors.
func (s *Service) CheckStatus(ctx context.Context, ownerID uuid.UUID, orderRef string) (*entities.PaymentStatusView, error) {
	intent, err := s.store.Repos().PaymentIntents.GetByOrderRef(ctx, orderRef)
	if err != nil {
		return nil, err
	}
	if intent.OwnerID != ownerID {
		return nil, domainerrors.ErrPaymentIntentNotFound
	}
	if intent.Status.IsTerminal() {
		return viewOf(intent, ""), nil
	}

	status, err := s.gateway.GetStatus(ctx, orderRef)
	metrics.RecordExternalCall("gateway_status", err)
	if err != nil {
		s.logger.Warn("Gateway status check failed", "order_ref", orderRef, "error", err)
		return &entities.PaymentStatusView{
			OrderRef: orderRef,
			Status:   entities.PaymentIntentStatusPending,
			Message:  pendingMessage,
		}, nil
	}

	return s.apply(ctx, intent, status, entities.TriggerGatewayPoll)
}

// ReconcilePendingPayments asks the gateway about open intents older than
// the configured age and settles or closes them.
func (s *Service) ReconcilePendingPayments(ctx context.Context) (*entities.ReconcileReport, error) {
	intents, err := s.store.Repos().PaymentIntents.ListOpen(ctx, s.now().Add(-s.cfg.MinAge), s.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list open payment intents: %w", err)
	}

	report := &entities.ReconcileReport{}
	for _, intent := range intents {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		status, err := s.gateway.GetStatus(ctx, intent.OrderRef)
		metrics.RecordExternalCall("gateway_status", err)
		if err != nil {
			report.Errors++
			s.logger.Warn("Gateway status check failed during reconciliation",
				"order_ref", intent.OrderRef,
				"error", err)
			continue
		}

		view, err := s.apply(ctx, intent, status, entities.TriggerGatewayRecon)
		if err != nil {
			report.Errors++
			s.logger.Error("Failed to reconcile payment intent",
				"order_ref", intent.OrderRef,
				"error", err)
			continue
		}
		switch view.Status {
		case entities.PaymentIntentStatusCompleted:
			report.Confirmed++
		case entities.PaymentIntentStatusFailed, entities.PaymentIntentStatusCancelled:
			report.Failed++
		default:
			report.Pending++
		}
	}

	s.logger.Info("Payment reconciliation completed",
		"checked", report.Checked,
		"confirmed", report.Confirmed,
		"failed", report.Failed,
		"pending", report.Pending,
		"errors", report.Errors)

	return report, nil
}

// apply moves an intent according to the gateway's status
func (s *Service) apply(ctx context.Context, intent *entities.PaymentIntent, status entities.GatewayPaymentStatus, trigger string) (*entities.PaymentStatusView, error) {
	target := status.IntentStatus()
	switch target {
	case entities.PaymentIntentStatusCompleted:
		result, err := s.settlement.SettlePayment(ctx, intent.OrderRef, trigger)
		if err != nil {
			return nil, err
		}
		return &entities.PaymentStatusView{
			OrderRef:           intent.OrderRef,
			Status:             entities.PaymentIntentStatusCompleted,
			LinkedInvestmentID: &result.Entry.ID,
		}, nil
	case entities.PaymentIntentStatusFailed, entities.PaymentIntentStatusCancelled:
		updated, err := s.transition(ctx, intent.OrderRef, target)
		if err != nil {
			return nil, err
		}
		return viewOf(updated, ""), nil
	default:
		return viewOf(intent, pendingMessage), nil
	}
}

// transition closes an open intent. Intents already terminal are returned
// unchanged.
func (s *Service) transition(ctx context.Context, orderRef string, target entities.PaymentIntentStatus) (*entities.PaymentIntent, error) {
	var out *entities.PaymentIntent
	err := s.store.WithTx(ctx, func(ctx context.Context, tx *repositories.Repositories) error {
		intent, err := tx.PaymentIntents.GetByOrderRefForUpdate(ctx, orderRef)
		if err != nil {
			return err
		}
		out = intent
		if intent.Status.IsTerminal() {
			return nil
		}
		intent.Status = target
		intent.UpdatedAt = s.now()
		return tx.PaymentIntents.Update(ctx, intent)
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update payment intent: %w", err)
	}

	s.logger.Info("Payment intent closed",
		"order_ref", orderRef,
		"status", string(out.Status))
	return out, nil
}

func viewOf(intent *entities.PaymentIntent, message string) *entities.PaymentStatusView {
	return &entities.PaymentStatusView{
		OrderRef:           intent.OrderRef,
		Status:             intent.Status,
		LinkedInvestmentID: intent.LinkedInvestmentID,
		Message:            message,
	}
}
