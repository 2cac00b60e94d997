// Package usage defines the per-user quota record and its storage contract.
package usage

import (
	"github.com/xraph/quota/safemath"
	"github.com/xraph/quota/types"
)

// Record is a user's quota allocation and current usage, in bytes.
type Record struct {
	types.Entity
	Principal   types.Principal `json:"principal"`
	QuotaLimit  uint64          `json:"quota_limit"`
	UsedStorage uint64          `json:"used_storage"`
	LastUpdated uint64          `json:"last_updated"`

	// Version is bumped on every write. A stored record with version N only
	// accepts an update carrying version N+1.
	Version uint64 `json:"version"`
}

// New returns an unsaved record at the default quota with zero usage.
func New(p types.Principal, marker uint64) *Record {
	return &Record{
		Entity:      types.NewEntity(),
		Principal:   p,
		QuotaLimit:  types.DefaultQuota,
		LastUpdated: marker,
	}
}

// Available returns the remaining bytes, clamped at zero when the user is
// over quota.
func (r *Record) Available() uint64 {
	return safemath.SubSaturating(r.QuotaLimit, r.UsedStorage)
}

// Persisted reports whether the record has been written at least once.
func (r *Record) Persisted() bool { return r.Version > 0 }

// Clone returns a copy that can be mutated without affecting r.
func (r *Record) Clone() *Record {
	c := *r
	return &c
}
