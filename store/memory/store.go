package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xraph/quota"
	"github.com/xraph/quota/bundle"
	"github.com/xraph/quota/payment"
	quotastore "github.com/xraph/quota/store"
	"github.com/xraph/quota/types"
	"github.com/xraph/quota/usage"
)

// compile-time interface checks
var (
	_ quotastore.Store = (*Store)(nil)
	_ usage.Store      = (*Store)(nil)
	_ bundle.Store     = (*Store)(nil)
	_ payment.Store    = (*Store)(nil)
)

// Store is an in-memory implementation of store.Store. Values are copied on
// the way in and out so callers never share state with the store.
type Store struct {
	mu     sync.RWMutex
	closed bool

	records  map[types.Principal]usage.Record
	bundles  map[uint64]bundle.Bundle
	balances map[balanceKey]int64
	price    *types.Money
}

type balanceKey struct {
	principal types.Principal
	currency  string
}

func New() *Store {
	return &Store{
		records:  make(map[types.Principal]usage.Record),
		bundles:  make(map[uint64]bundle.Bundle),
		balances: make(map[balanceKey]int64),
	}
}

func keyFor(p types.Principal, currency string) balanceKey {
	return balanceKey{principal: p, currency: strings.ToLower(currency)}
}

// Record Store implementation
func (s *Store) GetRecord(_ context.Context, p types.Principal) (*usage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, quota.ErrStoreClosed
	}
	r, ok := s.records[p]
	if !ok {
		return nil, quota.ErrUserNotFound
	}
	return &r, nil
}

func (s *Store) CreateRecord(_ context.Context, r *usage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return quota.ErrStoreClosed
	}
	if _, exists := s.records[r.Principal]; exists {
		return quota.ErrAlreadyExists
	}
	if r.Version != 1 {
		return fmt.Errorf("%w: new record must carry version 1, got %d", quota.ErrConflict, r.Version)
	}
	s.records[r.Principal] = *r
	return nil
}

func (s *Store) UpdateRecord(_ context.Context, r *usage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return quota.ErrStoreClosed
	}
	cur, exists := s.records[r.Principal]
	if !exists {
		return quota.ErrUserNotFound
	}
	if cur.Version+1 != r.Version {
		return quota.ErrConflict
	}
	s.records[r.Principal] = *r
	return nil
}

func (s *Store) CountRecords(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, quota.ErrStoreClosed
	}
	return uint64(len(s.records)), nil
}

// Catalog Store implementation
func (s *Store) PutBundle(_ context.Context, b *bundle.Bundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return quota.ErrStoreClosed
	}
	s.bundles[b.ID] = *b
	return nil
}

func (s *Store) GetBundle(_ context.Context, bundleID uint64) (*bundle.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, quota.ErrStoreClosed
	}
	b, ok := s.bundles[bundleID]
	if !ok {
		return nil, quota.ErrPackageNotFound
	}
	return &b, nil
}

func (s *Store) ListBundles(_ context.Context, opts bundle.ListOpts) ([]*bundle.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, quota.ErrStoreClosed
	}

	result := make([]*bundle.Bundle, 0, len(s.bundles))
	for _, b := range s.bundles {
		if opts.ActiveOnly && !b.Active {
			continue
		}
		c := b
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	// Apply limit/offset
	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

func (s *Store) SetBundleActive(_ context.Context, bundleID uint64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return quota.ErrStoreClosed
	}
	b, ok := s.bundles[bundleID]
	if !ok {
		return quota.ErrPackageNotFound
	}
	b.Active = active
	b.Touch()
	s.bundles[bundleID] = b
	return nil
}

func (s *Store) GetPricePerGB(_ context.Context) (types.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return types.Money{}, quota.ErrStoreClosed
	}
	if s.price == nil {
		return types.Money{}, quota.ErrNotFound
	}
	return *s.price, nil
}

func (s *Store) SetPricePerGB(_ context.Context, price types.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return quota.ErrStoreClosed
	}
	s.price = &price
	return nil
}

// Balance Store implementation
func (s *Store) GetBalance(_ context.Context, p types.Principal, currency string) (types.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return types.Money{}, quota.ErrStoreClosed
	}
	return types.Minor(s.balances[keyFor(p, currency)], currency), nil
}

func (s *Store) Debit(_ context.Context, p types.Principal, amount types.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return quota.ErrStoreClosed
	}
	k := keyFor(p, amount.Currency)
	if s.balances[k] < amount.Amount {
		return payment.ErrInsufficientFunds
	}
	s.balances[k] -= amount.Amount
	return nil
}

func (s *Store) Credit(_ context.Context, p types.Principal, amount types.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return quota.ErrStoreClosed
	}
	s.balances[keyFor(p, amount.Currency)] += amount.Amount
	return nil
}

// Store management
func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return quota.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
