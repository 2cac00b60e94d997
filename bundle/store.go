package bundle

import (
	"context"

	"github.com/xraph/quota/types"
)

// Store persists the package catalog.
type Store interface {
	// PutBundle inserts or fully replaces the bundle with b.ID.
	PutBundle(ctx context.Context, b *Bundle) error
	GetBundle(ctx context.Context, bundleID uint64) (*Bundle, error)
	ListBundles(ctx context.Context, opts ListOpts) ([]*Bundle, error)
	SetBundleActive(ctx context.Context, bundleID uint64, active bool) error

	// GetPricePerGB returns the persisted upgrade price, or the not-found
	// sentinel when none has been set.
	GetPricePerGB(ctx context.Context) (types.Money, error)
	SetPricePerGB(ctx context.Context, price types.Money) error
}
