package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/yieldvault/yield_service/internal/domain/entities"
	domainerrors "github.com/yieldvault/yield_service/internal/domain/errors"
	"github.com/yieldvault/yield_service/pkg/tracing"
)

const investmentColumns = `
	id, owner_id, amount, origin, status, external_ref, lock_in_days,
	lock_in_ends_at, withdrawable, confirmed_at, rejection_reason,
	source_investment_id, settled_by, created_at, updated_at`

// InvestmentRepository handles investment entry persistence
type InvestmentRepository struct {
	db sqlx.ExtContext
}

// NewInvestmentRepository creates a new investment repository
func NewInvestmentRepository(db sqlx.ExtContext) *InvestmentRepository {
	return &InvestmentRepository{db: db}
}

const insertInvestment = `
	INSERT INTO investments (` + investmentColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

func investmentArgs(e *entities.InvestmentEntry) []interface{} {
	return []interface{}{
		e.ID,
		e.OwnerID,
		e.Amount,
		e.Origin,
		e.Status,
		e.ExternalRef,
		e.LockInDays,
		e.LockInEndsAt,
		e.Withdrawable,
		e.ConfirmedAt,
		e.RejectionReason,
		e.SourceInvestmentID,
		e.SettledBy,
		e.CreatedAt,
		e.UpdatedAt,
	}
}

// Create inserts an entry; a taken external reference is reported as
// ErrDuplicateReference
func (r *InvestmentRepository) Create(ctx context.Context, e *entities.InvestmentEntry) error {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{
		Operation: "INSERT",
		Table:     "investments",
	})
	defer span.End()

	_, err := r.db.ExecContext(ctx, insertInvestment, investmentArgs(e)...)
	tracing.EndDBSpan(span, err, 1)
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.DuplicateReferenceError(e.ExternalRef)
		}
		return fmt.Errorf("failed to create investment: %w", err)
	}

	return nil
}

// CreateIfAbsent inserts an entry unless its external reference, or the
// referral credit for its source investment, already exists
func (r *InvestmentRepository) CreateIfAbsent(ctx context.Context, e *entities.InvestmentEntry) (bool, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{
		Operation: "INSERT",
		Table:     "investments",
	})
	defer span.End()

	res, err := r.db.ExecContext(ctx, insertInvestment+` ON CONFLICT DO NOTHING`, investmentArgs(e)...)
	if err != nil {
		tracing.EndDBSpan(span, err, -1)
		return false, fmt.Errorf("failed to create investment: %w", err)
	}

	n := rowsAffected(res)
	tracing.EndDBSpan(span, nil, n)
	return n > 0, nil
}

// GetByID retrieves an investment by ID
func (r *InvestmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.InvestmentEntry, error) {
	return r.get(ctx, `SELECT `+investmentColumns+` FROM investments WHERE id = $1`, id)
}

// GetForUpdate retrieves an investment and locks its row for the transaction
func (r *InvestmentRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*entities.InvestmentEntry, error) {
	return r.get(ctx, `SELECT `+investmentColumns+` FROM investments WHERE id = $1 FOR UPDATE`, id)
}

// GetByExternalRef retrieves an investment by its external reference
func (r *InvestmentRepository) GetByExternalRef(ctx context.Context, externalRef string) (*entities.InvestmentEntry, error) {
	return r.get(ctx, `SELECT `+investmentColumns+` FROM investments WHERE external_ref = $1`, externalRef)
}

func (r *InvestmentRepository) get(ctx context.Context, query string, arg interface{}) (*entities.InvestmentEntry, error) {
	var entry entities.InvestmentEntry
	if err := sqlx.GetContext(ctx, r.db, &entry, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.ErrInvestmentNotFound
		}
		return nil, fmt.Errorf("failed to get investment: %w", err)
	}
	return &entry, nil
}

// Update persists all mutable investment fields
func (r *InvestmentRepository) Update(ctx context.Context, e *entities.InvestmentEntry) error {
	query := `
		UPDATE investments SET
			amount = $2,
			status = $3,
			lock_in_days = $4,
			lock_in_ends_at = $5,
			withdrawable = $6,
			confirmed_at = $7,
			rejection_reason = $8,
			settled_by = $9,
			updated_at = $10
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query,
		e.ID,
		e.Amount,
		e.Status,
		e.LockInDays,
		e.LockInEndsAt,
		e.Withdrawable,
		e.ConfirmedAt,
		e.RejectionReason,
		e.SettledBy,
		e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update investment: %w", err)
	}
	if rowsAffected(res) == 0 {
		return domainerrors.ErrInvestmentNotFound
	}

	return nil
}

// Delete removes an investment entry
func (r *InvestmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM investments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete investment: %w", err)
	}
	if rowsAffected(res) == 0 {
		return domainerrors.ErrInvestmentNotFound
	}
	return nil
}

// ListByOwner lists an owner's entries, newest first
func (r *InvestmentRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*entities.InvestmentEntry, error) {
	query := `
		SELECT ` + investmentColumns + `
		FROM investments
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	var entries []*entities.InvestmentEntry
	if err := sqlx.SelectContext(ctx, r.db, &entries, query, ownerID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list investments: %w", err)
	}

	return entries, nil
}

// ListPendingDirect lists pending direct entries awaiting verification, oldest first
func (r *InvestmentRepository) ListPendingDirect(ctx context.Context, createdBefore time.Time, limit int) ([]*entities.InvestmentEntry, error) {
	query := `
		SELECT ` + investmentColumns + `
		FROM investments
		WHERE status = $1 AND origin = $2 AND created_at < $3
		ORDER BY created_at
		LIMIT $4
	`

	var entries []*entities.InvestmentEntry
	err := sqlx.SelectContext(ctx, r.db, &entries, query,
		entities.InvestmentStatusPending, entities.InvestmentOriginDirect, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending investments: %w", err)
	}

	return entries, nil
}

// SumWithdrawablePrincipal sums confirmed direct entries past their lock-in
func (r *InvestmentRepository) SumWithdrawablePrincipal(ctx context.Context, ownerID uuid.UUID) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM investments
		WHERE owner_id = $1 AND status = $2 AND origin = $3 AND withdrawable = TRUE
	`

	var total decimal.Decimal
	err := sqlx.GetContext(ctx, r.db, &total, query,
		ownerID, entities.InvestmentStatusConfirmed, entities.InvestmentOriginDirect)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum withdrawable principal: %w", err)
	}

	return total, nil
}

// UnlockMatured marks confirmed entries withdrawable once their lock-in ended
func (r *InvestmentRepository) UnlockMatured(ctx context.Context, now time.Time) (int64, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{
		Operation: "UPDATE",
		Table:     "investments",
	})
	defer span.End()

	query := `
		UPDATE investments
		SET withdrawable = TRUE, updated_at = $1
		WHERE status = $2
		  AND withdrawable = FALSE
		  AND lock_in_ends_at IS NOT NULL
		  AND lock_in_ends_at <= $1
	`

	res, err := r.db.ExecContext(ctx, query, now, entities.InvestmentStatusConfirmed)
	if err != nil {
		tracing.EndDBSpan(span, err, -1)
		return 0, fmt.Errorf("failed to unlock matured investments: %w", err)
	}

	n := rowsAffected(res)
	tracing.EndDBSpan(span, nil, n)
	return n, nil
}
