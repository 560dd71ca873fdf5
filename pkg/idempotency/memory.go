package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps idempotency records in process
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	now     func() time.Time
}

// NewMemoryStore creates an empty in-process store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

// Get returns the unexpired record for key, or nil
func (s *MemoryStore) Get(ctx context.Context, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[key]
	if !ok || !r.ExpiresAt.After(s.now()) {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

// Create stores the record unless the key is already present
func (s *MemoryStore) Create(ctx context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.IdempotencyKey]; ok {
		return nil
	}
	record.ID = uuid.New()
	record.CreatedAt = s.now()
	cp := *record
	s.records[record.IdempotencyKey] = &cp
	return nil
}

// DeleteExpired drops expired records
func (s *MemoryStore) DeleteExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	now := s.now()
	for k, r := range s.records {
		if !r.ExpiresAt.After(now) {
			delete(s.records, k)
			n++
		}
	}
	return n, nil
}
