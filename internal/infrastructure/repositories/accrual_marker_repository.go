package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/yieldvault/yield_service/internal/domain/entities"
)

// AccrualMarkerRepository handles per-day accrual markers
type AccrualMarkerRepository struct {
	db sqlx.ExtContext
}

// NewAccrualMarkerRepository creates a new accrual marker repository
func NewAccrualMarkerRepository(db sqlx.ExtContext) *AccrualMarkerRepository {
	return &AccrualMarkerRepository{db: db}
}

// TryInsert records the marker unless the account was already credited for the date
func (r *AccrualMarkerRepository) TryInsert(ctx context.Context, m *entities.AccrualMarker) (bool, error) {
	query := `
		INSERT INTO accrual_markers (id, account_id, accrual_date, rate, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_id, accrual_date) DO NOTHING
	`

	res, err := r.db.ExecContext(ctx, query,
		m.ID, m.AccountID, m.AccrualDate.UTC().Format("2006-01-02"), m.Rate, m.Amount, m.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert accrual marker: %w", err)
	}

	return rowsAffected(res) > 0, nil
}

// ListByAccount lists the most recent markers of an account
func (r *AccrualMarkerRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*entities.AccrualMarker, error) {
	query := `
		SELECT id, account_id, accrual_date, rate, amount, created_at
		FROM accrual_markers
		WHERE account_id = $1
		ORDER BY accrual_date DESC
		LIMIT $2
	`

	var markers []*entities.AccrualMarker
	if err := sqlx.SelectContext(ctx, r.db, &markers, query, accountID, limit); err != nil {
		return nil, fmt.Errorf("failed to list accrual markers: %w", err)
	}

	return markers, nil
}
