package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/yieldvault/yield_service/internal/domain/entities"
	domainerrors "github.com/yieldvault/yield_service/internal/domain/errors"
)

const referralColumns = `
	id, referrer_id, referred_id, status, activated_at, cumulative_income,
	created_at, updated_at`

// ReferralRepository handles referral edge persistence
type ReferralRepository struct {
	db sqlx.ExtContext
}

// NewReferralRepository creates a new referral repository
func NewReferralRepository(db sqlx.ExtContext) *ReferralRepository {
	return &ReferralRepository{db: db}
}

// Create inserts an edge; referred_id is unique
func (r *ReferralRepository) Create(ctx context.Context, edge *entities.ReferralEdge) error {
	query := `
		INSERT INTO referrals (` + referralColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		edge.ID,
		edge.ReferrerID,
		edge.ReferredID,
		edge.Status,
		edge.ActivatedAt,
		edge.CumulativeIncome,
		edge.CreatedAt,
		edge.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrDuplicateReferral
		}
		return fmt.Errorf("failed to create referral: %w", err)
	}

	return nil
}

// GetByReferred retrieves the edge of a referred user
func (r *ReferralRepository) GetByReferred(ctx context.Context, referredID uuid.UUID) (*entities.ReferralEdge, error) {
	return r.get(ctx, `SELECT `+referralColumns+` FROM referrals WHERE referred_id = $1`, referredID)
}

// GetByReferredForUpdate retrieves and locks the edge of a referred user
func (r *ReferralRepository) GetByReferredForUpdate(ctx context.Context, referredID uuid.UUID) (*entities.ReferralEdge, error) {
	return r.get(ctx, `SELECT `+referralColumns+` FROM referrals WHERE referred_id = $1 FOR UPDATE`, referredID)
}

func (r *ReferralRepository) get(ctx context.Context, query string, arg interface{}) (*entities.ReferralEdge, error) {
	var edge entities.ReferralEdge
	if err := sqlx.GetContext(ctx, r.db, &edge, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.ErrReferralNotFound
		}
		return nil, fmt.Errorf("failed to get referral: %w", err)
	}
	return &edge, nil
}

// Update persists status, activation and income
func (r *ReferralRepository) Update(ctx context.Context, edge *entities.ReferralEdge) error {
	query := `
		UPDATE referrals
		SET status = $2, activated_at = $3, cumulative_income = $4, updated_at = $5
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query,
		edge.ID, edge.Status, edge.ActivatedAt, edge.CumulativeIncome, edge.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update referral: %w", err)
	}
	if rowsAffected(res) == 0 {
		return domainerrors.ErrReferralNotFound
	}

	return nil
}

// ListByReferrer lists the edges a user created by referring others
func (r *ReferralRepository) ListByReferrer(ctx context.Context, referrerID uuid.UUID) ([]*entities.ReferralEdge, error) {
	query := `SELECT ` + referralColumns + ` FROM referrals WHERE referrer_id = $1 ORDER BY created_at`

	var edges []*entities.ReferralEdge
	if err := sqlx.SelectContext(ctx, r.db, &edges, query, referrerID); err != nil {
		return nil, fmt.Errorf("failed to list referrals: %w", err)
	}

	return edges, nil
}
