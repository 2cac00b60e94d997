// Package bundle defines purchasable quota packages and the catalog store
// that also holds the mutable per-GB price.
package bundle

import (
	"github.com/xraph/quota/types"
)

// Bundle is an administrator-defined package of additional gigabytes sold at
// a fixed price.
type Bundle struct {
	types.Entity
	ID              uint64      `json:"id"`
	AdditionalGB    uint64      `json:"additional_gb"`
	AdditionalBytes uint64      `json:"additional_bytes"`
	Price           types.Money `json:"price"`
	Active          bool        `json:"active"`
}

// New builds an active bundle, deriving the byte size from gb.
func New(bundleID, gb uint64, price types.Money) (*Bundle, error) {
	bytes, err := types.GBToBytes(gb)
	if err != nil {
		return nil, err
	}
	return &Bundle{
		Entity:          types.NewEntity(),
		ID:              bundleID,
		AdditionalGB:    gb,
		AdditionalBytes: bytes,
		Price:           price,
		Active:          true,
	}, nil
}

// Purchasable reports whether the bundle can currently be bought.
func (b *Bundle) Purchasable() bool {
	return b != nil && b.Active
}

// ListOpts filters catalog listings.
type ListOpts struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}
