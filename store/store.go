package store

import (
	"context"

	"github.com/xraph/quota/bundle"
	"github.com/xraph/quota/types"
	"github.com/xraph/quota/usage"
)

// Store is the unified storage interface for all quota entities.
// Methods are declared explicitly rather than by embedding the entity
// interfaces so each backend's surface is visible in one place.
type Store interface {
	// Record methods
	GetRecord(ctx context.Context, p types.Principal) (*usage.Record, error)
	CreateRecord(ctx context.Context, r *usage.Record) error
	UpdateRecord(ctx context.Context, r *usage.Record) error
	CountRecords(ctx context.Context) (uint64, error)

	// Catalog methods
	PutBundle(ctx context.Context, b *bundle.Bundle) error
	GetBundle(ctx context.Context, bundleID uint64) (*bundle.Bundle, error)
	ListBundles(ctx context.Context, opts bundle.ListOpts) ([]*bundle.Bundle, error)
	SetBundleActive(ctx context.Context, bundleID uint64, active bool) error
	GetPricePerGB(ctx context.Context) (types.Money, error)
	SetPricePerGB(ctx context.Context, price types.Money) error

	// Balance methods
	GetBalance(ctx context.Context, p types.Principal, currency string) (types.Money, error)
	Debit(ctx context.Context, p types.Principal, amount types.Money) error
	Credit(ctx context.Context, p types.Principal, amount types.Money) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
