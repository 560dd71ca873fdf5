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
)

const accountColumns = `
	id, referral_code, principal, available_principal, interest_accrued,
	monthly_interest_accrued, monthly_interest_period, direct_referral_count,
	direct_active_referral_count, reward_points, last_activity_at, status,
	created_at, updated_at`

// AccountRepository handles account persistence
type AccountRepository struct {
	db sqlx.ExtContext
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db sqlx.ExtContext) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account
func (r *AccountRepository) Create(ctx context.Context, a *entities.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.ExecContext(ctx, query,
		a.ID,
		a.ReferralCode,
		a.Principal,
		a.AvailablePrincipal,
		a.InterestAccrued,
		a.MonthlyInterestAccrued,
		a.MonthlyInterestPeriod,
		a.DirectReferralCount,
		a.DirectActiveReferralCount,
		a.RewardPoints,
		a.LastActivityAt,
		a.Status,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrAccountExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by ID
func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Account, error) {
	return r.get(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

// GetByReferralCode retrieves the account owning a referral code
func (r *AccountRepository) GetByReferralCode(ctx context.Context, code string) (*entities.Account, error) {
	return r.get(ctx, `SELECT `+accountColumns+` FROM accounts WHERE referral_code = $1`, code)
}

// GetForUpdate retrieves an account and locks its row for the transaction
func (r *AccountRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*entities.Account, error) {
	return r.get(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
}

func (r *AccountRepository) get(ctx context.Context, query string, arg interface{}) (*entities.Account, error) {
	var account entities.Account
	if err := sqlx.GetContext(ctx, r.db, &account, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// Update persists all mutable account fields
func (r *AccountRepository) Update(ctx context.Context, a *entities.Account) error {
	query := `
		UPDATE accounts SET
			principal = $2,
			available_principal = $3,
			interest_accrued = $4,
			monthly_interest_accrued = $5,
			monthly_interest_period = $6,
			direct_referral_count = $7,
			direct_active_referral_count = $8,
			reward_points = $9,
			last_activity_at = $10,
			status = $11,
			updated_at = $12
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query,
		a.ID,
		a.Principal,
		a.AvailablePrincipal,
		a.InterestAccrued,
		a.MonthlyInterestAccrued,
		a.MonthlyInterestPeriod,
		a.DirectReferralCount,
		a.DirectActiveReferralCount,
		a.RewardPoints,
		a.LastActivityAt,
		a.Status,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if rowsAffected(res) == 0 {
		return domainerrors.ErrAccountNotFound
	}

	return nil
}

// ListAccrualCandidates pages through active accounts eligible for accrual
func (r *AccountRepository) ListAccrualCandidates(ctx context.Context, minPrincipal decimal.Decimal, afterID uuid.UUID, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM accounts
		WHERE status = $1 AND principal >= $2 AND id > $3
		ORDER BY id
		LIMIT $4
	`

	var ids []uuid.UUID
	if err := sqlx.SelectContext(ctx, r.db, &ids, query, entities.AccountStatusActive, minPrincipal, afterID, limit); err != nil {
		return nil, fmt.Errorf("failed to list accrual candidates: %w", err)
	}

	return ids, nil
}

// TouchActivity records user activity, skipping the write when the stored
// timestamp is recent enough
func (r *AccountRepository) TouchActivity(ctx context.Context, id uuid.UUID, at time.Time, minInterval time.Duration) (bool, error) {
	query := `
		UPDATE accounts
		SET last_activity_at = $2, updated_at = $2
		WHERE id = $1 AND last_activity_at <= $3
	`

	res, err := r.db.ExecContext(ctx, query, id, at, at.Add(-minInterval))
	if err != nil {
		return false, fmt.Errorf("failed to touch account activity: %w", err)
	}

	return rowsAffected(res) > 0, nil
}
