package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yieldvault/yield_service/internal/domain/entities"
)

// AccountRepository persists investor accounts.
// GetForUpdate must be called inside a transaction and holds the row lock
// until commit.
type AccountRepository interface {
	Create(ctx context.Context, account *entities.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Account, error)
	GetByReferralCode(ctx context.Context, code string) (*entities.Account, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*entities.Account, error)
	Update(ctx context.Context, account *entities.Account) error
	// ListAccrualCandidates returns ids of active accounts holding at least
	// minPrincipal, ordered by id and starting after afterID.
	ListAccrualCandidates(ctx context.Context, minPrincipal decimal.Decimal, afterID uuid.UUID, limit int) ([]uuid.UUID, error)
	// TouchActivity moves lastActivityAt forward when it is older than
	// at minus minInterval and reports whether a row changed.
	TouchActivity(ctx context.Context, id uuid.UUID, at time.Time, minInterval time.Duration) (bool, error)
}

// InvestmentRepository persists investment entries. externalRef is unique.
type InvestmentRepository interface {
	// Create fails with ErrDuplicateReference when externalRef is taken
	Create(ctx context.Context, entry *entities.InvestmentEntry) error
	// CreateIfAbsent inserts the entry unless externalRef is taken, or a
	// referral credit for the same source exists, and reports whether a row
	// was inserted
	CreateIfAbsent(ctx context.Context, entry *entities.InvestmentEntry) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entities.InvestmentEntry, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*entities.InvestmentEntry, error)
	GetByExternalRef(ctx context.Context, externalRef string) (*entities.InvestmentEntry, error)
	Update(ctx context.Context, entry *entities.InvestmentEntry) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*entities.InvestmentEntry, error)
	// ListPendingDirect returns pending direct entries created before the cutoff
	ListPendingDirect(ctx context.Context, createdBefore time.Time, limit int) ([]*entities.InvestmentEntry, error)
	// SumWithdrawablePrincipal sums confirmed, direct, withdrawable entries
	SumWithdrawablePrincipal(ctx context.Context, ownerID uuid.UUID) (decimal.Decimal, error)
	// UnlockMatured flips withdrawable on confirmed entries whose lock-in ended
	UnlockMatured(ctx context.Context, now time.Time) (int64, error)
}

// ReferralRepository persists referral edges. referredID is unique.
type ReferralRepository interface {
	// Create fails with ErrDuplicateReferral when the referred user already has an edge
	Create(ctx context.Context, edge *entities.ReferralEdge) error
	GetByReferred(ctx context.Context, referredID uuid.UUID) (*entities.ReferralEdge, error)
	GetByReferredForUpdate(ctx context.Context, referredID uuid.UUID) (*entities.ReferralEdge, error)
	Update(ctx context.Context, edge *entities.ReferralEdge) error
	ListByReferrer(ctx context.Context, referrerID uuid.UUID) ([]*entities.ReferralEdge, error)
}

// WithdrawalRepository persists withdrawal requests
type WithdrawalRepository interface {
	Create(ctx context.Context, req *entities.WithdrawalRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.WithdrawalRequest, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*entities.WithdrawalRequest, error)
	Update(ctx context.Context, req *entities.WithdrawalRequest) error
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*entities.WithdrawalRequest, error)
	// CountInWindow counts the owner's requests of a kind, in one of the
	// statuses, requested within [from, to)
	CountInWindow(ctx context.Context, ownerID uuid.UUID, kind entities.WithdrawalKind, statuses []entities.WithdrawalStatus, from, to time.Time) (int, error)
	// SumPrincipal sums the owner's principal requests in one of the
	// statuses, excluding the given request id when set
	SumPrincipal(ctx context.Context, ownerID uuid.UUID, statuses []entities.WithdrawalStatus, excludeID *uuid.UUID) (decimal.Decimal, error)
}

// PaymentIntentRepository persists gateway payment intents. orderRef is unique.
type PaymentIntentRepository interface {
	Create(ctx context.Context, intent *entities.PaymentIntent) error
	GetByOrderRef(ctx context.Context, orderRef string) (*entities.PaymentIntent, error)
	GetByOrderRefForUpdate(ctx context.Context, orderRef string) (*entities.PaymentIntent, error)
	Update(ctx context.Context, intent *entities.PaymentIntent) error
	// ListOpen returns pending or processing intents created before the cutoff
	ListOpen(ctx context.Context, createdBefore time.Time, limit int) ([]*entities.PaymentIntent, error)
}

// AccrualMarkerRepository persists per-day accrual markers
type AccrualMarkerRepository interface {
	// TryInsert inserts the marker unless one exists for the same account
	// and date, and reports whether it was inserted
	TryInsert(ctx context.Context, marker *entities.AccrualMarker) (bool, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*entities.AccrualMarker, error)
}

// Repositories groups the repositories bound to one connection or transaction
type Repositories struct {
	Accounts       AccountRepository
	Investments    InvestmentRepository
	Referrals      ReferralRepository
	Withdrawals    WithdrawalRepository
	PaymentIntents PaymentIntentRepository
	AccrualMarkers AccrualMarkerRepository
}

// TxFunc runs inside a transaction with repositories bound to it
type TxFunc func(ctx context.Context, tx *Repositories) error

// Store gives access to repositories outside and inside transactions.
// Within fn only tx must be used; the error returned by fn rolls the
// transaction back.
type Store interface {
	Repos() *Repositories
	WithTx(ctx context.Context, fn TxFunc) error
}
