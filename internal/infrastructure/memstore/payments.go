package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/yieldvault/yield_service/internal/domain/entities"
	domainerrors "github.com/yieldvault/yield_service/internal/domain/errors"
)

type paymentIntentRepository struct {
	v *view
}

func (r *paymentIntentRepository) Create(ctx context.Context, intent *entities.PaymentIntent) error {
	return r.v.run(func(d *data) error {
		if _, ok := d.intents[intent.OrderRef]; ok {
			return domainerrors.DuplicateReferenceError(intent.OrderRef)
		}
		d.intents[intent.OrderRef] = *intent
		return nil
	})
}

func (r *paymentIntentRepository) GetByOrderRef(ctx context.Context, orderRef string) (*entities.PaymentIntent, error) {
	var out *entities.PaymentIntent
	err := r.v.run(func(d *data) error {
		p, ok := d.intents[orderRef]
		if !ok {
			return domainerrors.ErrPaymentIntentNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *paymentIntentRepository) GetByOrderRefForUpdate(ctx context.Context, orderRef string) (*entities.PaymentIntent, error) {
	return r.GetByOrderRef(ctx, orderRef)
}

func (r *paymentIntentRepository) Update(ctx context.Context, intent *entities.PaymentIntent) error {
	return r.v.run(func(d *data) error {
		if _, ok := d.intents[intent.OrderRef]; !ok {
			return domainerrors.ErrPaymentIntentNotFound
		}
		d.intents[intent.OrderRef] = *intent
		return nil
	})
}

func (r *paymentIntentRepository) ListOpen(ctx context.Context, createdBefore time.Time, limit int) ([]*entities.PaymentIntent, error) {
	var out []*entities.PaymentIntent
	err := r.v.run(func(d *data) error {
		for _, p := range d.intents {
			p := p
			if p.Status != entities.PaymentIntentStatusPending && p.Status != entities.PaymentIntentStatusProcessing {
				continue
			}
			if p.CreatedAt.Before(createdBefore) {
				out = append(out, &p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return paginate(out, limit, 0), nil
}
