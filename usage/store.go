package usage

import (
	"context"

	"github.com/xraph/quota/types"
)

// Store persists quota records. Records are never deleted.
type Store interface {
	// GetRecord returns the stored record or an error wrapping the
	// not-found sentinel of the quota package.
	GetRecord(ctx context.Context, p types.Principal) (*Record, error)

	// CreateRecord inserts a record with Version 1. It fails if a record
	// for the principal already exists.
	CreateRecord(ctx context.Context, r *Record) error

	// UpdateRecord replaces a record whose stored version is r.Version-1.
	UpdateRecord(ctx context.Context, r *Record) error

	// CountRecords returns the number of users that have a record.
	CountRecords(ctx context.Context) (uint64, error)
}
