// Package account manages investor accounts: registration with an optional
// referral code, activity tracking for dormancy, admin freezes and the
// owner's dashboard.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yieldvault/yield_service/internal/domain/entities"
	domainerrors "github.com/yieldvault/yield_service/internal/domain/errors"
	"github.com/yieldvault/yield_service/internal/domain/repositories"
	"github.com/yieldvault/yield_service/internal/domain/services/accrual"
	"github.com/yieldvault/yield_service/internal/domain/services/referral"
	"github.com/yieldvault/yield_service/pkg/logger"
)

const (
	referralCodeLength   = 8
	referralCodeAttempts = 5

	// DefaultActivityInterval throttles lastActivityAt writes
	DefaultActivityInterval = time.Hour
)

// EligibilityProvider computes withdrawal eligibility for a loaded account
type EligibilityProvider interface {
	EligibilityFor(ctx context.Context, account *entities.Account) (*entities.WithdrawalEligibility, error)
}

// Service manages investor accounts
type Service struct {
	store            repositories.Store
	policy           entities.LedgerPolicy
	eligibility      EligibilityProvider
	activityInterval time.Duration
	logger           *logger.Logger
	now              func() time.Time
}

// NewService creates a new account service
func NewService(store repositories.Store, policy entities.LedgerPolicy, eligibility EligibilityProvider, logger *logger.Logger) *Service {
	return &Service{
		store:            store,
		policy:           policy,
		eligibility:      eligibility,
		activityInterval: DefaultActivityInterval,
		logger:           logger,
		now:              time.Now,
	}
}

// SetClock replaces the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SetActivityInterval changes how often activity is persisted
func (s *Service) SetActivityInterval(d time.Duration) {
	s.activityInterval = d
}

// Register creates the account for an authenticated user and, when a
// referral code is given, attaches the user to its owner.
func (s *Service) Register(ctx context.Context, userID uuid.UUID, req *entities.RegisterAccountRequest) (*entities.Account, error) {
	code := strings.ToUpper(strings.TrimSpace(req.ReferralCode))

	var created *entities.Account
	err := s.store.WithTx(ctx, func(ctx context.Context, tx *repositories.Repositories) error {
		if _, err := tx.Accounts.GetByID(ctx, userID); err == nil {
			return domainerrors.ErrAccountExists
		} else if !errors.Is(err, domainerrors.ErrNotFound) {
			return fmt.Errorf("failed to check account: %w", err)
		}

		ownCode, err := s.uniqueCode(ctx, tx)
		if err != nil {
			return err
		}

		now := s.now()
		created = entities.NewAccount(userID, ownCode, now)
		if err := tx.Accounts.Create(ctx, created); err != nil {
			return err
		}

		if code != "" {
			if _, err := referral.Attach(ctx, tx, code, userID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Account registered",
		"account_id", userID.String(),
		"referral_code", created.ReferralCode,
		"referred", code != "")

	return created, nil
}

func (s *Service) uniqueCode(ctx context.Context, tx *repositories.Repositories) (string, error) {
	for i := 0; i < referralCodeAttempts; i++ {
		code := GenerateReferralCode()
		_, err := tx.Accounts.GetByReferralCode(ctx, code)
		if errors.Is(err, domainerrors.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check referral code: %w", err)
		}
	}
	return "", domainerrors.InternalError("could not allocate a referral code", nil)
}

// GenerateReferralCode returns a random upper-case referral code
func GenerateReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:referralCodeLength])
}

// Get returns an account
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*entities.Account, error) {
	return s.store.Repos().Accounts.GetByID(ctx, id)
}

// TouchActivity records that the user was active. Writes are throttled to
// one per activity interval.
func (s *Service) TouchActivity(ctx context.Context, id uuid.UUID) error {
	_, err := s.store.Repos().Accounts.TouchActivity(ctx, id, s.now(), s.activityInterval)
	return err
}

// Freeze blocks new investments, payments and withdrawals for an account
// and stops its accrual.
func (s *Service) Freeze(ctx context.Context, id uuid.UUID, adminID string) (*entities.Account, error) {
	return s.setStatus(ctx, id, entities.AccountStatusFrozen, adminID)
}

// Unfreeze returns a frozen account to active
func (s *Service) Unfreeze(ctx context.Context, id uuid.UUID, adminID string) (*entities.Account, error) {
	return s.setStatus(ctx, id, entities.AccountStatusActive, adminID)
}

func (s *Service) setStatus(ctx context.Context, id uuid.UUID, status entities.AccountStatus, adminID string) (*entities.Account, error) {
	var out *entities.Account
	err := s.store.WithTx(ctx, func(ctx context.Context, tx *repositories.Repositories) error {
		account, err := tx.Accounts.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		out = account
		if account.Status == status {
			return nil
		}
		account.Status = status
		account.UpdatedAt = s.now()
		return tx.Accounts.Update(ctx, account)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Account status changed",
		"account_id", id.String(),
		"status", string(status),
		"admin_id", adminID)

	return out, nil
}

// Dashboard summarizes an account for its owner
func (s *Service) Dashboard(ctx context.Context, id uuid.UUID) (*entities.AccountDashboard, error) {
	repos := s.store.Repos()
	account, err := repos.Accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	quote := accrual.Compute(s.policy, account, s.now())
	summary, err := referral.Summarize(ctx, repos, id)
	if err != nil {
		return nil, err
	}

	dashboard := &entities.AccountDashboard{
		Account:          account,
		DailyRate:        quote.Rate,
		ProjectedDaily:   quote.Interest,
		Dormant:          quote.Dormant,
		ReferralIncome:   summary.Income,
		PendingReferrals: summary.Pending,
		ActiveReferrals:  summary.Active,
	}

	if s.eligibility != nil {
		elig, err := s.eligibility.EligibilityFor(ctx, account)
		if err != nil {
			return nil, err
		}
		dashboard.Eligibility = elig
	}

	return dashboard, nil
}
