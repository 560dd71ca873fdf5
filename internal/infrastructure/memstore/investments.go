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

type investmentRepository struct {
	v *view
}

func (r *investmentRepository) Create(ctx context.Context, entry *entities.InvestmentEntry) error {
	return r.v.run(func(d *data) error {
		if _, ok := d.investmentRefs[entry.ExternalRef]; ok {
			return domainerrors.DuplicateReferenceError(entry.ExternalRef)
		}
		d.investments[entry.ID] = *entry
		d.investmentRefs[entry.ExternalRef] = entry.ID
		return nil
	})
}

func (r *investmentRepository) CreateIfAbsent(ctx context.Context, entry *entities.InvestmentEntry) (bool, error) {
	inserted := false
	err := r.v.run(func(d *data) error {
		if _, ok := d.investmentRefs[entry.ExternalRef]; ok {
			return nil
		}
		if hasReferralCredit(d, entry) {
			return nil
		}
		d.investments[entry.ID] = *entry
		d.investmentRefs[entry.ExternalRef] = entry.ID
		inserted = true
		return nil
	})
	return inserted, err
}

func (r *investmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.InvestmentEntry, error) {
	var out *entities.InvestmentEntry
	err := r.v.run(func(d *data) error {
		e, ok := d.investments[id]
		if !ok {
			return domainerrors.ErrInvestmentNotFound
		}
		out = &e
		return nil
	})
	return out, err
}

func (r *investmentRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*entities.InvestmentEntry, error) {
	return r.GetByID(ctx, id)
}

func (r *investmentRepository) GetByExternalRef(ctx context.Context, externalRef string) (*entities.InvestmentEntry, error) {
	var out *entities.InvestmentEntry
	err := r.v.run(func(d *data) error {
		id, ok := d.investmentRefs[externalRef]
		if !ok {
			return domainerrors.ErrInvestmentNotFound
		}
		e := d.investments[id]
		out = &e
		return nil
	})
	return out, err
}

func (r *investmentRepository) Update(ctx context.Context, entry *entities.InvestmentEntry) error {
	return r.v.run(func(d *data) error {
		existing, ok := d.investments[entry.ID]
		if !ok {
			return domainerrors.ErrInvestmentNotFound
		}
		if existing.ExternalRef != entry.ExternalRef {
			if _, taken := d.investmentRefs[entry.ExternalRef]; taken {
				return domainerrors.DuplicateReferenceError(entry.ExternalRef)
			}
			delete(d.investmentRefs, existing.ExternalRef)
			d.investmentRefs[entry.ExternalRef] = entry.ID
		}
		d.investments[entry.ID] = *entry
		return nil
	})
}

func (r *investmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.v.run(func(d *data) error {
		e, ok := d.investments[id]
		if !ok {
			return domainerrors.ErrInvestmentNotFound
		}
		delete(d.investmentRefs, e.ExternalRef)
		delete(d.investments, id)
		return nil
	})
}

func (r *investmentRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*entities.InvestmentEntry, error) {
	return r.list(func(e *entities.InvestmentEntry) bool {
		return e.OwnerID == ownerID
	}, limit, offset, true)
}

func (r *investmentRepository) ListPendingDirect(ctx context.Context, createdBefore time.Time, limit int) ([]*entities.InvestmentEntry, error) {
	return r.list(func(e *entities.InvestmentEntry) bool {
		return e.Status == entities.InvestmentStatusPending &&
			e.Origin == entities.InvestmentOriginDirect &&
			e.CreatedAt.Before(createdBefore)
	}, limit, 0, false)
}

func (r *investmentRepository) list(match func(*entities.InvestmentEntry) bool, limit, offset int, newestFirst bool) ([]*entities.InvestmentEntry, error) {
	var out []*entities.InvestmentEntry
	err := r.v.run(func(d *data) error {
		for _, e := range d.investments {
			e := e
			if match(&e) {
				out = append(out, &e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return paginate(out, limit, offset), nil
}

func (r *investmentRepository) SumWithdrawablePrincipal(ctx context.Context, ownerID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	err := r.v.run(func(d *data) error {
		for _, e := range d.investments {
			if e.OwnerID == ownerID &&
				e.Status == entities.InvestmentStatusConfirmed &&
				e.Origin == entities.InvestmentOriginDirect &&
				e.Withdrawable {
				total = total.Add(e.Amount)
			}
		}
		return nil
	})
	return total, err
}

func (r *investmentRepository) UnlockMatured(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.v.run(func(d *data) error {
		for id, e := range d.investments {
			if e.Status != entities.InvestmentStatusConfirmed || e.Withdrawable || e.LockInEndsAt == nil {
				continue
			}
			if e.LockInEndsAt.After(now) {
				continue
			}
			e.Withdrawable = true
			e.UpdatedAt = now
			d.investments[id] = e
			n++
		}
		return nil
	})
	return n, err
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// hasReferralCredit mirrors the partial unique index on source_investment_id
func hasReferralCredit(d *data, entry *entities.InvestmentEntry) bool {
	if entry.Origin != entities.InvestmentOriginReferralCredit || entry.SourceInvestmentID == nil {
		return false
	}
	for _, e := range d.investments {
		if e.Origin == entities.InvestmentOriginReferralCredit &&
			e.SourceInvestmentID != nil && *e.SourceInvestmentID == *entry.SourceInvestmentID {
			return true
		}
	}
	return false
}
