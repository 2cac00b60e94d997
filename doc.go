// Package quota provides a storage quota accounting engine for Go
// applications.
//
// Quota is a library, not a service. The host authenticates callers, moves
// files around and decides what a "user" is; the engine keeps the books:
//
//   - Per-user quota records with lazy creation at a default of 100 MiB
//   - Upload and deletion accounting with overflow-checked arithmetic
//   - Paid quota upgrades priced per GB, charged exactly once
//   - An administrator-managed catalog of quota packages
//   - Owner-gated administrative overrides, price changes and withdrawals
//   - Pluggable persistence (memory, SQLite, PostgreSQL, MongoDB via Grove)
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/quota"
//	    "github.com/xraph/quota/store/memory"
//	)
//
//	q := quota.New(memory.New(),
//	    quota.WithOwner("admin"),
//	    quota.WithPricePerGB(quota.USD(100)),
//	)
//	if err := q.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer q.Stop()
//
// # Callers
//
// Every mutating operation acts on the principal carried by the context:
//
//	ctx = quota.WithCaller(ctx, "alice")
//	if err := q.RecordUpload(ctx, 50*quota.MiB); quota.IsQuotaError(err) {
//	    // reject the upload
//	}
//
// Administrative operations additionally require the caller to be the owner
// configured with WithOwner.
//
// # Upgrades
//
// UpgradeQuota and PurchaseQuotaPackage validate and stage the new limit,
// charge the caller once through the payment rail, then commit. A staged
// grant that cannot be committed after a successful charge is refunded, so
// either both the payment and the quota change happen or neither does.
//
// # Errors
//
// Failures are reported with the sentinel errors in this package
// (ErrUnauthorized, ErrQuotaExceeded, ErrInsufficientPayment,
// ErrUserNotFound, ErrInvalidAmount, ...). Every failed operation leaves
// persisted state unchanged. ErrConflict means another writer modified the
// same record concurrently; the caller may retry.
package quota
