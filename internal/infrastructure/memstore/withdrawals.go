package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yieldvault/yield_service/internal/domain/entities"
	domainerrors "github.com/yieldvault/yield_service/internal/domain/errors"
)

type withdrawalRepository struct {
	v *view
}

func (r *withdrawalRepository) Create(ctx context.Context, req *entities.WithdrawalRequest) error {
	return r.v.run(func(d *data) error {
		d.withdrawals[req.ID] = *req
		return nil
	})
}

func (r *withdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.WithdrawalRequest, error) {
	var out *entities.WithdrawalRequest
	err := r.v.run(func(d *data) error {
		w, ok := d.withdrawals[id]
		if !ok {
			return domainerrors.ErrWithdrawalNotFound
		}
		out = &w
		return nil
	})
	return out, err
}

func (r *withdrawalRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*entities.WithdrawalRequest, error) {
	return r.GetByID(ctx, id)
}

func (r *withdrawalRepository) Update(ctx context.Context, req *entities.WithdrawalRequest) error {
	return r.v.run(func(d *data) error {
		if _, ok := d.withdrawals[req.ID]; !ok {
			return domainerrors.ErrWithdrawalNotFound
		}
		d.withdrawals[req.ID] = *req
		return nil
	})
}

func (r *withdrawalRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*entities.WithdrawalRequest, error) {
	var out []*entities.WithdrawalRequest
	err := r.v.run(func(d *data) error {
		for _, w := range d.withdrawals {
			w := w
			if w.OwnerID == ownerID {
				out = append(out, &w)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestedAt.After(out[j].RequestedAt)
	})
	return paginate(out, limit, offset), nil
}

func (r *withdrawalRepository) CountInWindow(ctx context.Context, ownerID uuid.UUID, kind entities.WithdrawalKind, statuses []entities.WithdrawalStatus, from, to time.Time) (int, error) {
	count := 0
	err := r.v.run(func(d *data) error {
		for _, w := range d.withdrawals {
			if w.OwnerID != ownerID || w.Kind != kind {
				continue
			}
			if w.RequestedAt.Before(from) || !w.RequestedAt.Before(to) {
				continue
			}
			for _, s := range statuses {
				if w.Status == s {
					count++
					break
				}
			}
		}
		return nil
	})
	return count, err
}

func (r *withdrawalRepository) SumPrincipal(ctx context.Context, ownerID uuid.UUID, statuses []entities.WithdrawalStatus, excludeID *uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	err := r.v.run(func(d *data) error {
		for id, w := range d.withdrawals {
			if w.OwnerID != ownerID || w.Kind != entities.WithdrawalKindPrincipal {
				continue
			}
			if excludeID != nil && id == *excludeID {
				continue
			}
			for _, s := range statuses {
				if w.Status == s {
					total = total.Add(w.RequestedAmount)
					break
				}
			}
		}
		return nil
	})
	return total, err
}
