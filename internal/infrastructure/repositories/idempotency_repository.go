package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/yieldvault/yield_service/pkg/idempotency"
	"github.com/yieldvault/yield_service/pkg/tracing"
	"go.uber.org/zap"
)

// IdempotencyRepository stores replayable responses keyed by Idempotency-Key
type IdempotencyRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

var _ idempotency.Store = (*IdempotencyRepository)(nil)

// NewIdempotencyRepository creates a new idempotency repository
func NewIdempotencyRepository(db *sqlx.DB, logger *zap.Logger) *IdempotencyRepository {
	return &IdempotencyRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves an unexpired record; a missing key returns nil, nil
func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*idempotency.Record, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{
		Operation: "SELECT",
		Table:     "idempotency_keys",
	})
	defer span.End()

	query := `
		SELECT id, idempotency_key, request_path, request_method, request_hash,
		       user_id, response_status, response_body, created_at, expires_at
		FROM idempotency_keys
		WHERE idempotency_key = $1 AND expires_at > NOW()
	`

	var record idempotency.Record
	err := r.db.GetContext(ctx, &record, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		tracing.EndDBSpan(span, nil, 0)
		return nil, nil
	}

	tracing.EndDBSpan(span, err, 1)

	if err != nil {
		r.logger.Error("Failed to get idempotency key",
			zap.String("key", key),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get idempotency key: %w", err)
	}

	return &record, nil
}

// Create stores a new idempotency record
func (r *IdempotencyRepository) Create(ctx context.Context, record *idempotency.Record) error {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{
		Operation: "INSERT",
		Table:     "idempotency_keys",
	})
	defer span.End()

	query := `
		INSERT INTO idempotency_keys (
			idempotency_key, request_path, request_method, request_hash,
			user_id, response_status, response_body, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id, created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		record.IdempotencyKey,
		record.RequestPath,
		record.RequestMethod,
		record.RequestHash,
		record.UserID,
		record.ResponseStatus,
		[]byte(record.ResponseBody),
		record.ExpiresAt,
	).Scan(&record.ID, &record.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// a concurrent request with the same key stored its response first
		err = nil
	}

	tracing.EndDBSpan(span, err, 1)

	if err != nil {
		r.logger.Error("Failed to create idempotency key",
			zap.String("key", record.IdempotencyKey),
			zap.Error(err))
		return fmt.Errorf("failed to create idempotency key: %w", err)
	}

	return nil
}

// DeleteExpired removes expired idempotency keys
func (r *IdempotencyRepository) DeleteExpired(ctx context.Context) (int64, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{
		Operation: "DELETE",
		Table:     "idempotency_keys",
	})
	defer span.End()

	result, err := r.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE expires_at <= NOW()`)
	if err != nil {
		tracing.EndDBSpan(span, err, -1)
		r.logger.Error("Failed to delete expired idempotency keys", zap.Error(err))
		return 0, fmt.Errorf("failed to delete expired idempotency keys: %w", err)
	}

	n := rowsAffected(result)
	tracing.EndDBSpan(span, nil, n)

	r.logger.Info("Deleted expired idempotency keys", zap.Int64("count", n))
	return n, nil
}
