// Package memstore is an in-process implementation of the repository
// contracts. Transactions are serialized by a single mutex and run against
// a copy of the data that replaces the live data on commit.
package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/yieldvault/yield_service/internal/domain/entities"
	"github.com/yieldvault/yield_service/internal/domain/repositories"
)

type markerKey struct {
	accountID uuid.UUID
	date      string
}

type data struct {
	accounts       map[uuid.UUID]entities.Account
	referralCodes  map[string]uuid.UUID
	investments    map[uuid.UUID]entities.InvestmentEntry
	investmentRefs map[string]uuid.UUID
	referrals      map[uuid.UUID]entities.ReferralEdge
	withdrawals    map[uuid.UUID]entities.WithdrawalRequest
	intents        map[string]entities.PaymentIntent
	markers        map[markerKey]entities.AccrualMarker
}

func newData() *data {
	return &data{
		accounts:       make(map[uuid.UUID]entities.Account),
		referralCodes:  make(map[string]uuid.UUID),
		investments:    make(map[uuid.UUID]entities.InvestmentEntry),
		investmentRefs: make(map[string]uuid.UUID),
		referrals:      make(map[uuid.UUID]entities.ReferralEdge),
		withdrawals:    make(map[uuid.UUID]entities.WithdrawalRequest),
		intents:        make(map[string]entities.PaymentIntent),
		markers:        make(map[markerKey]entities.AccrualMarker),
	}
}

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.accounts {
		c.accounts[k] = v
	}
	for k, v := range d.referralCodes {
		c.referralCodes[k] = v
	}
	for k, v := range d.investments {
		c.investments[k] = v
	}
	for k, v := range d.investmentRefs {
		c.investmentRefs[k] = v
	}
	for k, v := range d.referrals {
		c.referrals[k] = v
	}
	for k, v := range d.withdrawals {
		c.withdrawals[k] = v
	}
	for k, v := range d.intents {
		c.intents[k] = v
	}
	for k, v := range d.markers {
		c.markers[k] = v
	}
	return c
}

// Hooks lets tests inject failures into writes
type Hooks struct {
	BeforeAccountUpdate func(account *entities.Account) error
}

// Store is a repositories.Store held in memory
type Store struct {
	mu    sync.Mutex
	data  *data
	hooks Hooks
}

var _ repositories.Store = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{data: newData()}
}

// SetHooks replaces the write hooks
func (s *Store) SetHooks(h Hooks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = h
}

// Repos returns repositories that each lock the store for a single call
func (s *Store) Repos() *repositories.Repositories {
	return newRepositories(&view{store: s})
}

// WithTx runs fn against a private copy of the data and publishes the copy
// only when fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn repositories.TxFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	working := s.data.clone()
	if err := fn(ctx, newRepositories(&view{store: s, tx: working})); err != nil {
		return err
	}
	s.data = working
	return nil
}

// view resolves the data a repository call operates on
type view struct {
	store *Store
	tx    *data
}

func (v *view) run(fn func(d *data) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.data)
}

func (v *view) hooks() Hooks {
	return v.store.hooks
}

func newRepositories(v *view) *repositories.Repositories {
	return &repositories.Repositories{
		Accounts:       &accountRepository{v: v},
		Investments:    &investmentRepository{v: v},
		Referrals:      &referralRepository{v: v},
		Withdrawals:    &withdrawalRepository{v: v},
		PaymentIntents: &paymentIntentRepository{v: v},
		AccrualMarkers: &accrualMarkerRepository{v: v},
	}
}
