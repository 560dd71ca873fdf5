package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/yieldvault/yield_service/internal/domain/entities"
	domainerrors "github.com/yieldvault/yield_service/internal/domain/errors"
)

const withdrawalColumns = `
	id, owner_id, requested_amount, kind, destination_address, status, note,
	decided_by, payout_tx_hash, requested_at, decided_at, processed_at, updated_at`

// WithdrawalRepository handles withdrawal persistence
type WithdrawalRepository struct {
	db sqlx.ExtContext
}

// NewWithdrawalRepository creates a new withdrawal repository
func NewWithdrawalRepository(db sqlx.ExtContext) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

// Create creates a new withdrawal record
func (r *WithdrawalRepository) Create(ctx context.Context, w *entities.WithdrawalRequest) error {
	query := `
		INSERT INTO withdrawals (` + withdrawalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.ExecContext(ctx, query,
		w.ID,
		w.OwnerID,
		w.RequestedAmount,
		w.Kind,
		w.DestinationAddress,
		w.Status,
		w.Note,
		w.DecidedBy,
		w.PayoutTxHash,
		w.RequestedAt,
		w.DecidedAt,
		w.ProcessedAt,
		w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create withdrawal: %w", err)
	}

	return nil
}

// GetByID retrieves a withdrawal by ID
func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.WithdrawalRequest, error) {
	return r.get(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id)
}

// GetForUpdate retrieves a withdrawal and locks its row for the transaction
func (r *WithdrawalRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*entities.WithdrawalRequest, error) {
	return r.get(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, id)
}

func (r *WithdrawalRepository) get(ctx context.Context, query string, id uuid.UUID) (*entities.WithdrawalRequest, error) {
	var withdrawal entities.WithdrawalRequest
	if err := sqlx.GetContext(ctx, r.db, &withdrawal, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}
	return &withdrawal, nil
}

// Update persists the decision fields of a withdrawal
func (r *WithdrawalRepository) Update(ctx context.Context, w *entities.WithdrawalRequest) error {
	query := `
		UPDATE withdrawals SET
			status = $2,
			note = $3,
			decided_by = $4,
			payout_tx_hash = $5,
			decided_at = $6,
			processed_at = $7,
			updated_at = $8
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query,
		w.ID, w.Status, w.Note, w.DecidedBy, w.PayoutTxHash, w.DecidedAt, w.ProcessedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update withdrawal: %w", err)
	}
	if rowsAffected(res) == 0 {
		return domainerrors.ErrWithdrawalNotFound
	}

	return nil
}

// ListByOwner retrieves withdrawals for a user, newest first
func (r *WithdrawalRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*entities.WithdrawalRequest, error) {
	query := `
		SELECT ` + withdrawalColumns + `
		FROM withdrawals
		WHERE owner_id = $1
		ORDER BY requested_at DESC
		LIMIT $2 OFFSET $3
	`

	var withdrawals []*entities.WithdrawalRequest
	if err := sqlx.SelectContext(ctx, r.db, &withdrawals, query, ownerID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to get withdrawals: %w", err)
	}

	return withdrawals, nil
}

// CountInWindow counts requests of one kind and status set within [from, to)
func (r *WithdrawalRepository) CountInWindow(ctx context.Context, ownerID uuid.UUID, kind entities.WithdrawalKind, statuses []entities.WithdrawalStatus, from, to time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM withdrawals
		WHERE owner_id = $1
		  AND kind = $2
		  AND status = ANY($3)
		  AND requested_at >= $4
		  AND requested_at < $5
	`

	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	var count int
	if err := sqlx.GetContext(ctx, r.db, &count, query, ownerID, kind, pq.Array(names), from, to); err != nil {
		return 0, fmt.Errorf("failed to count withdrawals: %w", err)
	}

	return count, nil
}

// SumPrincipal sums principal requests in the given statuses
func (r *WithdrawalRepository) SumPrincipal(ctx context.Context, ownerID uuid.UUID, statuses []entities.WithdrawalStatus, excludeID *uuid.UUID) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(requested_amount), 0)
		FROM withdrawals
		WHERE owner_id = $1
		  AND kind = $2
		  AND status = ANY($3)
		  AND ($4::uuid IS NULL OR id <> $4::uuid)
	`

	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	var total decimal.Decimal
	err := sqlx.GetContext(ctx, r.db, &total, query,
		ownerID,
		entities.WithdrawalKindPrincipal,
		pq.Array(names),
		excludeID,
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum principal withdrawals: %w", err)
	}

	return total, nil
}
