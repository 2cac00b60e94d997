// Package plugin lets extensions observe quota engine events.
//
// A plugin implements Plugin plus any number of the hook interfaces below.
// Hooks fire after the corresponding change has been committed; a failing or
// slow hook is logged and never affects the operation that triggered it.
package plugin

import (
	"context"

	"github.com/xraph/quota/bundle"
	"github.com/xraph/quota/payment"
	"github.com/xraph/quota/types"
	"github.com/xraph/quota/usage"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. engine is the *quota.Engine.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnUserInitialized is called the first time a user record is created.
type OnUserInitialized interface {
	Plugin
	OnUserInitialized(ctx context.Context, rec *usage.Record) error
}

// OnUploadRecorded is called after an upload is accounted.
type OnUploadRecorded interface {
	Plugin
	OnUploadRecorded(ctx context.Context, rec *usage.Record, size uint64) error
}

// OnDeletionRecorded is called after a deletion is accounted.
type OnDeletionRecorded interface {
	Plugin
	OnDeletionRecorded(ctx context.Context, rec *usage.Record, size uint64) error
}

// OnQuotaExceeded is called when an upload is rejected for lack of space.
type OnQuotaExceeded interface {
	Plugin
	OnQuotaExceeded(ctx context.Context, user types.Principal, used, limit, requested uint64) error
}

// ──────────────────────────────────────────────────
// Upgrade hooks
// ──────────────────────────────────────────────────

// OnQuotaUpgraded is called after a paid per-GB upgrade commits.
type OnQuotaUpgraded interface {
	Plugin
	OnQuotaUpgraded(ctx context.Context, rec *usage.Record, addedBytes uint64, receipt *payment.Receipt) error
}

// OnPackagePurchased is called after a package purchase commits.
type OnPackagePurchased interface {
	Plugin
	OnPackagePurchased(ctx context.Context, rec *usage.Record, b *bundle.Bundle, receipt *payment.Receipt) error
}

// OnPaymentRefunded is called when a charge is reversed because the quota
// grant could not be committed.
type OnPaymentRefunded interface {
	Plugin
	OnPaymentRefunded(ctx context.Context, refund *payment.Receipt, cause error) error
}

// ──────────────────────────────────────────────────
// Administrative hooks
// ──────────────────────────────────────────────────

// OnPackageCreated is called when a package is created or replaced.
type OnPackageCreated interface {
	Plugin
	OnPackageCreated(ctx context.Context, b *bundle.Bundle) error
}

// OnPackageStatusChanged is called when a package is activated or
// deactivated. b carries the new status.
type OnPackageStatusChanged interface {
	Plugin
	OnPackageStatusChanged(ctx context.Context, b *bundle.Bundle) error
}

// OnQuotaOverridden is called after an administrator sets a user's quota.
type OnQuotaOverridden interface {
	Plugin
	OnQuotaOverridden(ctx context.Context, rec *usage.Record, previousLimit uint64) error
}

// OnPriceUpdated is called when the per-GB price changes.
type OnPriceUpdated interface {
	Plugin
	OnPriceUpdated(ctx context.Context, previous, current types.Money) error
}

// OnFundsWithdrawn is called after custodial funds are paid out.
type OnFundsWithdrawn interface {
	Plugin
	OnFundsWithdrawn(ctx context.Context, receipt *payment.Receipt) error
}

// OnOwnershipTransferred is called when the owner identity is rotated.
type OnOwnershipTransferred interface {
	Plugin
	OnOwnershipTransferred(ctx context.Context, previous, current types.Principal) error
}
