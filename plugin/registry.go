package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/quota/bundle"
	"github.com/xraph/quota/payment"
	"github.com/xraph/quota/types"
	"github.com/xraph/quota/usage"
)

const defaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// Hook implementations are discovered once at registration time.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                 []OnInit
	onShutdown             []OnShutdown
	onUserInitialized      []OnUserInitialized
	onUploadRecorded       []OnUploadRecorded
	onDeletionRecorded     []OnDeletionRecorded
	onQuotaExceeded        []OnQuotaExceeded
	onQuotaUpgraded        []OnQuotaUpgraded
	onPackagePurchased     []OnPackagePurchased
	onPaymentRefunded      []OnPaymentRefunded
	onPackageCreated       []OnPackageCreated
	onPackageStatusChanged []OnPackageStatusChanged
	onQuotaOverridden      []OnQuotaOverridden
	onPriceUpdated         []OnPriceUpdated
	onFundsWithdrawn       []OnFundsWithdrawn
	onOwnershipTransferred []OnOwnershipTransferred
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: defaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout bounds how long a single hook call may run.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnUserInitialized); ok {
		r.onUserInitialized = append(r.onUserInitialized, v)
	}
	if v, ok := p.(OnUploadRecorded); ok {
		r.onUploadRecorded = append(r.onUploadRecorded, v)
	}
	if v, ok := p.(OnDeletionRecorded); ok {
		r.onDeletionRecorded = append(r.onDeletionRecorded, v)
	}
	if v, ok := p.(OnQuotaExceeded); ok {
		r.onQuotaExceeded = append(r.onQuotaExceeded, v)
	}
	if v, ok := p.(OnQuotaUpgraded); ok {
		r.onQuotaUpgraded = append(r.onQuotaUpgraded, v)
	}
	if v, ok := p.(OnPackagePurchased); ok {
		r.onPackagePurchased = append(r.onPackagePurchased, v)
	}
	if v, ok := p.(OnPaymentRefunded); ok {
		r.onPaymentRefunded = append(r.onPaymentRefunded, v)
	}
	if v, ok := p.(OnPackageCreated); ok {
		r.onPackageCreated = append(r.onPackageCreated, v)
	}
	if v, ok := p.(OnPackageStatusChanged); ok {
		r.onPackageStatusChanged = append(r.onPackageStatusChanged, v)
	}
	if v, ok := p.(OnQuotaOverridden); ok {
		r.onQuotaOverridden = append(r.onQuotaOverridden, v)
	}
	if v, ok := p.(OnPriceUpdated); ok {
		r.onPriceUpdated = append(r.onPriceUpdated, v)
	}
	if v, ok := p.(OnFundsWithdrawn); ok {
		r.onFundsWithdrawn = append(r.onFundsWithdrawn, v)
	}
	if v, ok := p.(OnOwnershipTransferred); ok {
		r.onOwnershipTransferred = append(r.onOwnershipTransferred, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnUserInitialized", reflect.TypeOf((*OnUserInitialized)(nil)).Elem()},
	{"OnUploadRecorded", reflect.TypeOf((*OnUploadRecorded)(nil)).Elem()},
	{"OnDeletionRecorded", reflect.TypeOf((*OnDeletionRecorded)(nil)).Elem()},
	{"OnQuotaExceeded", reflect.TypeOf((*OnQuotaExceeded)(nil)).Elem()},
	{"OnQuotaUpgraded", reflect.TypeOf((*OnQuotaUpgraded)(nil)).Elem()},
	{"OnPackagePurchased", reflect.TypeOf((*OnPackagePurchased)(nil)).Elem()},
	{"OnPaymentRefunded", reflect.TypeOf((*OnPaymentRefunded)(nil)).Elem()},
	{"OnPackageCreated", reflect.TypeOf((*OnPackageCreated)(nil)).Elem()},
	{"OnPackageStatusChanged", reflect.TypeOf((*OnPackageStatusChanged)(nil)).Elem()},
	{"OnQuotaOverridden", reflect.TypeOf((*OnQuotaOverridden)(nil)).Elem()},
	{"OnPriceUpdated", reflect.TypeOf((*OnPriceUpdated)(nil)).Elem()},
	{"OnFundsWithdrawn", reflect.TypeOf((*OnFundsWithdrawn)(nil)).Elem()},
	{"OnOwnershipTransferred", reflect.TypeOf((*OnOwnershipTransferred)(nil)).Elem()},
}

// implementedInterfaces lists the hook interfaces p implements.
func implementedInterfaces(p Plugin) []string {
	var names []string
	t := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if t.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// snapshot copies a cached hook slice under the read lock.
func snapshot[T any](r *Registry, list *[]T) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *list
}

// dispatch invokes fn for each hook, logging failures.
func dispatch[T Plugin](ctx context.Context, r *Registry, hook string, hooks []T, fn func(T) error) {
	for _, p := range hooks {
		if err := r.callWithTimeout(ctx, p.Name(), func() error { return fn(p) }); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	dispatch(ctx, r, "OnInit", snapshot(r, &r.onInit), func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	dispatch(ctx, r, "OnShutdown", snapshot(r, &r.onShutdown), func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitUserInitialized emits a user initialized event.
func (r *Registry) EmitUserInitialized(ctx context.Context, rec *usage.Record) {
	dispatch(ctx, r, "OnUserInitialized", snapshot(r, &r.onUserInitialized), func(p OnUserInitialized) error {
		return p.OnUserInitialized(ctx, rec)
	})
}

// EmitUploadRecorded emits an upload recorded event.
func (r *Registry) EmitUploadRecorded(ctx context.Context, rec *usage.Record, size uint64) {
	dispatch(ctx, r, "OnUploadRecorded", snapshot(r, &r.onUploadRecorded), func(p OnUploadRecorded) error {
		return p.OnUploadRecorded(ctx, rec, size)
	})
}

// EmitDeletionRecorded emits a deletion recorded event.
func (r *Registry) EmitDeletionRecorded(ctx context.Context, rec *usage.Record, size uint64) {
	dispatch(ctx, r, "OnDeletionRecorded", snapshot(r, &r.onDeletionRecorded), func(p OnDeletionRecorded) error {
		return p.OnDeletionRecorded(ctx, rec, size)
	})
}

// EmitQuotaExceeded emits a quota exceeded event.
func (r *Registry) EmitQuotaExceeded(ctx context.Context, user types.Principal, used, limit, requested uint64) {
	dispatch(ctx, r, "OnQuotaExceeded", snapshot(r, &r.onQuotaExceeded), func(p OnQuotaExceeded) error {
		return p.OnQuotaExceeded(ctx, user, used, limit, requested)
	})
}

// EmitQuotaUpgraded emits a quota upgraded event.
func (r *Registry) EmitQuotaUpgraded(ctx context.Context, rec *usage.Record, addedBytes uint64, receipt *payment.Receipt) {
	dispatch(ctx, r, "OnQuotaUpgraded", snapshot(r, &r.onQuotaUpgraded), func(p OnQuotaUpgraded) error {
		return p.OnQuotaUpgraded(ctx, rec, addedBytes, receipt)
	})
}

// EmitPackagePurchased emits a package purchased event.
func (r *Registry) EmitPackagePurchased(ctx context.Context, rec *usage.Record, b *bundle.Bundle, receipt *payment.Receipt) {
	dispatch(ctx, r, "OnPackagePurchased", snapshot(r, &r.onPackagePurchased), func(p OnPackagePurchased) error {
		return p.OnPackagePurchased(ctx, rec, b, receipt)
	})
}

// EmitPaymentRefunded emits a payment refunded event.
func (r *Registry) EmitPaymentRefunded(ctx context.Context, refund *payment.Receipt, cause error) {
	dispatch(ctx, r, "OnPaymentRefunded", snapshot(r, &r.onPaymentRefunded), func(p OnPaymentRefunded) error {
		return p.OnPaymentRefunded(ctx, refund, cause)
	})
}

// EmitPackageCreated emits a package created event.
func (r *Registry) EmitPackageCreated(ctx context.Context, b *bundle.Bundle) {
	dispatch(ctx, r, "OnPackageCreated", snapshot(r, &r.onPackageCreated), func(p OnPackageCreated) error {
		return p.OnPackageCreated(ctx, b)
	})
}

// EmitPackageStatusChanged emits a package status changed event.
func (r *Registry) EmitPackageStatusChanged(ctx context.Context, b *bundle.Bundle) {
	dispatch(ctx, r, "OnPackageStatusChanged", snapshot(r, &r.onPackageStatusChanged), func(p OnPackageStatusChanged) error {
		return p.OnPackageStatusChanged(ctx, b)
	})
}

// EmitQuotaOverridden emits a quota overridden event.
func (r *Registry) EmitQuotaOverridden(ctx context.Context, rec *usage.Record, previousLimit uint64) {
	dispatch(ctx, r, "OnQuotaOverridden", snapshot(r, &r.onQuotaOverridden), func(p OnQuotaOverridden) error {
		return p.OnQuotaOverridden(ctx, rec, previousLimit)
	})
}

// EmitPriceUpdated emits a price updated event.
func (r *Registry) EmitPriceUpdated(ctx context.Context, previous, current types.Money) {
	dispatch(ctx, r, "OnPriceUpdated", snapshot(r, &r.onPriceUpdated), func(p OnPriceUpdated) error {
		return p.OnPriceUpdated(ctx, previous, current)
	})
}

// EmitFundsWithdrawn emits a funds withdrawn event.
func (r *Registry) EmitFundsWithdrawn(ctx context.Context, receipt *payment.Receipt) {
	dispatch(ctx, r, "OnFundsWithdrawn", snapshot(r, &r.onFundsWithdrawn), func(p OnFundsWithdrawn) error {
		return p.OnFundsWithdrawn(ctx, receipt)
	})
}

// EmitOwnershipTransferred emits an ownership transferred event.
func (r *Registry) EmitOwnershipTransferred(ctx context.Context, previous, current types.Principal) {
	dispatch(ctx, r, "OnOwnershipTransferred", snapshot(r, &r.onOwnershipTransferred), func(p OnOwnershipTransferred) error {
		return p.OnOwnershipTransferred(ctx, previous, current)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block quota accounting.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.timeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
