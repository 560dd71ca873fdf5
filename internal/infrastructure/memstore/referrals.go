package memstore

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/yieldvault/yield_service/internal/domain/entities"
	domainerrors "github.com/yieldvault/yield_service/internal/domain/errors"
)

type referralRepository struct {
	v *view
}

func (r *referralRepository) Create(ctx context.Context, edge *entities.ReferralEdge) error {
	return r.v.run(func(d *data) error {
		if _, ok := d.referrals[edge.ReferredID]; ok {
			return domainerrors.ErrDuplicateReferral
		}
		d.referrals[edge.ReferredID] = *edge
		return nil
	})
}

func (r *referralRepository) GetByReferred(ctx context.Context, referredID uuid.UUID) (*entities.ReferralEdge, error) {
	var out *entities.ReferralEdge
	err := r.v.run(func(d *data) error {
		e, ok := d.referrals[referredID]
		if !ok {
			return domainerrors.ErrReferralNotFound
		}
		out = &e
		return nil
	})
	return out, err
}

func (r *referralRepository) GetByReferredForUpdate(ctx context.Context, referredID uuid.UUID) (*entities.ReferralEdge, error) {
	return r.GetByReferred(ctx, referredID)
}

func (r *referralRepository) Update(ctx context.Context, edge *entities.ReferralEdge) error {
	return r.v.run(func(d *data) error {
		if _, ok := d.referrals[edge.ReferredID]; !ok {
			return domainerrors.ErrReferralNotFound
		}
		d.referrals[edge.ReferredID] = *edge
		return nil
	})
}

func (r *referralRepository) ListByReferrer(ctx context.Context, referrerID uuid.UUID) ([]*entities.ReferralEdge, error) {
	var out []*entities.ReferralEdge
	err := r.v.run(func(d *data) error {
		for _, e := range d.referrals {
			e := e
			if e.ReferrerID == referrerID {
				out = append(out, &e)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, err
}
