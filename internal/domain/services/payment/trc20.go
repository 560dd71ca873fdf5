package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yieldvault/yield_service/internal/domain/entities"
	domainerrors "github.com/yieldvault/yield_service/internal/domain/errors"
	"github.com/yieldvault/yield_service/internal/domain/repositories"
	"github.com/yieldvault/yield_service/internal/domain/services/settlement"
	"github.com/yieldvault/yield_service/pkg/metrics"
)

// amountTolerance is the largest difference between submitted and on-chain
// amounts still accepted as a match
var amountTolerance = decimal.RequireFromString("0.01")

// VerifyTransfer checks the owner's pending entry against the chain and
// settles it when the transfer matches. Verifier failures leave the entry
// pending and surface as retryable errors.
func (s *Service) VerifyTransfer(ctx context.Context, ownerID, entryID uuid.UUID) (*settlement.Result, error) {
	entry, err := s.store.Repos().Investments.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.OwnerID != ownerID {
		return nil, domainerrors.ErrInvestmentNotFound
	}
	switch entry.Status {
	case entities.InvestmentStatusConfirmed:
		return &settlement.Result{Entry: entry, AlreadyConfirmed: true}, nil
	case entities.InvestmentStatusRejected:
		return nil, domainerrors.AlreadyRejectedError(entry.ID.String())
	}

	return s.verifyAndSettle(ctx, entry, entities.TriggerChainVerifier)
}

// ReconcilePendingTransfers verifies pending direct entries older than the
// configured age.
func (s *Service) ReconcilePendingTransfers(ctx context.Context) (*entities.ReconcileReport, error) {
	entries, err := s.store.Repos().Investments.ListPendingDirect(ctx, s.now().Add(-s.cfg.MinAge), s.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending investments: %w", err)
	}

	report := &entities.ReconcileReport{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		_, err := s.verifyAndSettle(ctx, entry, entities.TriggerChainPoller)
		switch {
		case err == nil:
			report.Confirmed++
		case domainerrors.IsServiceUnavailable(err):
			report.Errors++
		case domainerrors.IsInvalidInput(err):
			report.Failed++
		default:
			report.Errors++
			s.logger.Error("Failed to reconcile transfer",
				"investment_id", entry.ID.String(),
				"error", err)
		}
	}

	s.logger.Info("Transfer reconciliation completed",
		"checked", report.Checked,
		"confirmed", report.Confirmed,
		"failed", report.Failed,
		"errors", report.Errors)

	return report, nil
}

func (s *Service) verifyAndSettle(ctx context.Context, entry *entities.InvestmentEntry, trigger string) (*settlement.Result, error) {
	// no lock is held while the verifier runs
	v, err := s.verifier.Verify(ctx, entry.ExternalRef)
	metrics.RecordExternalCall("tron_verifier", err)
	if err != nil {
		s.logger.Warn("Transfer verification unavailable",
			"investment_id", entry.ID.String(),
			"tx_ref", entry.ExternalRef,
			"error", err)
		return nil, domainerrors.ServiceUnavailableError("blockchain verifier", err)
	}

	if reason := s.mismatch(entry, v); reason != "" {
		if err := s.rejectPending(ctx, entry.ID, reason); err != nil {
			return nil, err
		}
		s.logger.Warn("Transfer rejected",
			"investment_id", entry.ID.String(),
			"tx_ref", entry.ExternalRef,
			"reason", reason)
		return nil, domainerrors.TransferInvalidError(entry.ExternalRef, reason)
	}

	return s.settlement.Confirm(ctx, entry.ID, trigger)
}

// mismatch explains why a verified transfer cannot back the entry
func (s *Service) mismatch(entry *entities.InvestmentEntry, v *entities.TransferVerification) string {
	if !v.Valid {
		if v.Reason != "" {
			return v.Reason
		}
		return "transaction is not a valid confirmed transfer"
	}
	if s.cfg.DepositAddress != "" && v.Recipient != s.cfg.DepositAddress {
		return "transfer was not sent to the deposit address"
	}
	if v.Amount.Sub(entry.Amount).Abs().GreaterThan(amountTolerance) {
		return fmt.Sprintf("transferred amount %s does not match %s", v.Amount.String(), entry.Amount.String())
	}
	return ""
}

// rejectPending rejects the entry if it is still pending when the lock is taken
func (s *Service) rejectPending(ctx context.Context, id uuid.UUID, reason string) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx *repositories.Repositories) error {
		entry, err := tx.Investments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if entry.Status != entities.InvestmentStatusPending {
			return nil
		}
		now := s.now()
		entry.Status = entities.InvestmentStatusRejected
		entry.RejectionReason = &reason
		entry.UpdatedAt = now
		return tx.Investments.Update(ctx, entry)
	})
}
