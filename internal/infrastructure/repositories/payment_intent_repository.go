package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/yieldvault/yield_service/internal/domain/entities"
	domainerrors "github.com/yieldvault/yield_service/internal/domain/errors"
)

const paymentIntentColumns = `
	id, owner_id, amount, order_ref, provider, status, payment_url,
	linked_investment_id, completed_at, created_at, updated_at`

// PaymentIntentRepository handles payment intent persistence
type PaymentIntentRepository struct {
	db sqlx.ExtContext
}

// NewPaymentIntentRepository creates a new payment intent repository
func NewPaymentIntentRepository(db sqlx.ExtContext) *PaymentIntentRepository {
	return &PaymentIntentRepository{db: db}
}

// Create inserts an intent; order_ref is unique
func (r *PaymentIntentRepository) Create(ctx context.Context, p *entities.PaymentIntent) error {
	query := `
		INSERT INTO payment_intents (` + paymentIntentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.OwnerID,
		p.Amount,
		p.OrderRef,
		p.Provider,
		p.Status,
		p.PaymentURL,
		p.LinkedInvestmentID,
		p.CompletedAt,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.DuplicateReferenceError(p.OrderRef)
		}
		return fmt.Errorf("failed to create payment intent: %w", err)
	}

	return nil
}

// GetByOrderRef retrieves an intent by order reference
func (r *PaymentIntentRepository) GetByOrderRef(ctx context.Context, orderRef string) (*entities.PaymentIntent, error) {
	return r.get(ctx, `SELECT `+paymentIntentColumns+` FROM payment_intents WHERE order_ref = $1`, orderRef)
}

// GetByOrderRefForUpdate retrieves and locks an intent. Every settlement
// trigger for a gateway payment serializes on this row.
func (r *PaymentIntentRepository) GetByOrderRefForUpdate(ctx context.Context, orderRef string) (*entities.PaymentIntent, error) {
	return r.get(ctx, `SELECT `+paymentIntentColumns+` FROM payment_intents WHERE order_ref = $1 FOR UPDATE`, orderRef)
}

func (r *PaymentIntentRepository) get(ctx context.Context, query, orderRef string) (*entities.PaymentIntent, error) {
	var intent entities.PaymentIntent
	if err := sqlx.GetContext(ctx, r.db, &intent, query, orderRef); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.ErrPaymentIntentNotFound
		}
		return nil, fmt.Errorf("failed to get payment intent: %w", err)
	}
	return &intent, nil
}

// Update persists status, link and payment URL
func (r *PaymentIntentRepository) Update(ctx context.Context, p *entities.PaymentIntent) error {
	query := `
		UPDATE payment_intents SET
			status = $2,
			payment_url = $3,
			linked_investment_id = $4,
			completed_at = $5,
			updated_at = $6
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query,
		p.ID, p.Status, p.PaymentURL, p.LinkedInvestmentID, p.CompletedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update payment intent: %w", err)
	}
	if rowsAffected(res) == 0 {
		return domainerrors.ErrPaymentIntentNotFound
	}

	return nil
}

// ListOpen lists pending or processing intents older than the cutoff
func (r *PaymentIntentRepository) ListOpen(ctx context.Context, createdBefore time.Time, limit int) ([]*entities.PaymentIntent, error) {
	query := `
		SELECT ` + paymentIntentColumns + `
		FROM payment_intents
		WHERE status IN ($1, $2) AND created_at < $3
		ORDER BY created_at
		LIMIT $4
	`

	var intents []*entities.PaymentIntent
	err := sqlx.SelectContext(ctx, r.db, &intents, query,
		entities.PaymentIntentStatusPending, entities.PaymentIntentStatusProcessing, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list open payment intents: %w", err)
	}

	return intents, nil
}
