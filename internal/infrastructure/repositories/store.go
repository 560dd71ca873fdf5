package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/yieldvault/yield_service/internal/domain/repositories"
)

const uniqueViolation = "23505"

// PostgresStore implements repositories.Store on top of sqlx
type PostgresStore struct {
	db *sqlx.DB
}

var _ repositories.Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store bound to the given connection pool
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Repos returns repositories that run each statement on the pool
func (s *PostgresStore) Repos() *repositories.Repositories {
	return newRepositories(s.db)
}

// WithTx executes fn within a read committed transaction. Row locks taken
// with the ForUpdate getters are held until fn returns.
func (s *PostgresStore) WithTx(ctx context.Context, fn repositories.TxFunc) (err error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, newRepositories(tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func newRepositories(q sqlx.ExtContext) *repositories.Repositories {
	return &repositories.Repositories{
		Accounts:       NewAccountRepository(q),
		Investments:    NewInvestmentRepository(q),
		Referrals:      NewReferralRepository(q),
		Withdrawals:    NewWithdrawalRepository(q),
		PaymentIntents: NewPaymentIntentRepository(q),
		AccrualMarkers: NewAccrualMarkerRepository(q),
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
