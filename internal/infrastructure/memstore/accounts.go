package memstore

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yieldvault/yield_service/internal/domain/entities"
	domainerrors "github.com/yieldvault/yield_service/internal/domain/errors"
)

type accountRepository struct {
	v *view
}

func (r *accountRepository) Create(ctx context.Context, account *entities.Account) error {
	return r.v.run(func(d *data) error {
		if _, ok := d.accounts[account.ID]; ok {
			return domainerrors.ErrAccountExists
		}
		if _, ok := d.referralCodes[account.ReferralCode]; ok {
			return domainerrors.ErrAccountExists
		}
		d.accounts[account.ID] = *account
		d.referralCodes[account.ReferralCode] = account.ID
		return nil
	})
}

func (r *accountRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Account, error) {
	var out *entities.Account
	err := r.v.run(func(d *data) error {
		a, ok := d.accounts[id]
		if !ok {
			return domainerrors.ErrAccountNotFound
		}
		out = &a
		return nil
	})
	return out, err
}

func (r *accountRepository) GetByReferralCode(ctx context.Context, code string) (*entities.Account, error) {
	var out *entities.Account
	err := r.v.run(func(d *data) error {
		id, ok := d.referralCodes[code]
		if !ok {
			return domainerrors.ErrAccountNotFound
		}
		a := d.accounts[id]
		out = &a
		return nil
	})
	return out, err
}

func (r *accountRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*entities.Account, error) {
	return r.GetByID(ctx, id)
}

func (r *accountRepository) Update(ctx context.Context, account *entities.Account) error {
	return r.v.run(func(d *data) error {
		if _, ok := d.accounts[account.ID]; !ok {
			return domainerrors.ErrAccountNotFound
		}
		if hook := r.v.hooks().BeforeAccountUpdate; hook != nil {
			if err := hook(account); err != nil {
				return err
			}
		}
		d.accounts[account.ID] = *account
		return nil
	})
}

func (r *accountRepository) ListAccrualCandidates(ctx context.Context, minPrincipal decimal.Decimal, afterID uuid.UUID, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.v.run(func(d *data) error {
		for id, a := range d.accounts {
			if a.Status != entities.AccountStatusActive || a.Principal.LessThan(minPrincipal) {
				continue
			}
			if bytes.Compare(id[:], afterID[:]) <= 0 {
				continue
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (r *accountRepository) TouchActivity(ctx context.Context, id uuid.UUID, at time.Time, minInterval time.Duration) (bool, error) {
	touched := false
	err := r.v.run(func(d *data) error {
		a, ok := d.accounts[id]
		if !ok {
			return domainerrors.ErrAccountNotFound
		}
		if a.LastActivityAt.After(at.Add(-minInterval)) {
			return nil
		}
		a.LastActivityAt = at
		a.UpdatedAt = at
		d.accounts[id] = a
		touched = true
		return nil
	})
	return touched, err
}
