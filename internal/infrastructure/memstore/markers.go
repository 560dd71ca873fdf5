package memstore

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/yieldvault/yield_service/internal/domain/entities"
)

type accrualMarkerRepository struct {
	v *view
}

func (r *accrualMarkerRepository) TryInsert(ctx context.Context, marker *entities.AccrualMarker) (bool, error) {
	key := markerKey{accountID: marker.AccountID, date: marker.AccrualDate.UTC().Format("2006-01-02")}
	inserted := false
	err := r.v.run(func(d *data) error {
		if _, ok := d.markers[key]; ok {
			return nil
		}
		d.markers[key] = *marker
		inserted = true
		return nil
	})
	return inserted, err
}

func (r *accrualMarkerRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*entities.AccrualMarker, error) {
	var out []*entities.AccrualMarker
	err := r.v.run(func(d *data) error {
		for k, m := range d.markers {
			m := m
			if k.accountID == accountID {
				out = append(out, &m)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AccrualDate.After(out[j].AccrualDate)
	})
	return paginate(out, limit, 0), nil
}
