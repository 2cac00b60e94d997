package quota

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/xraph/quota/clock"
	"github.com/xraph/quota/payment"
	"github.com/xraph/quota/plugin"
	"github.com/xraph/quota/store"
	"github.com/xraph/quota/types"
)

// DefaultCustodian is the principal that receives upgrade payments when no
// custodian is configured.
const DefaultCustodian types.Principal = "quota-custody"

// DefaultPricePerGB is the upgrade price used until an administrator sets one.
var DefaultPricePerGB = types.USD(100)

// Engine is the storage quota accounting engine.
type Engine struct {
	store   store.Store
	rail    payment.Rail
	clock   clock.Source
	plugins *plugin.Registry
	logger  *slog.Logger
	locks   *userLocks

	// catalogMu serializes price updates.
	catalogMu    sync.Mutex
	mu           sync.RWMutex
	owner        types.Principal
	custodian    types.Principal
	defaultPrice types.Money
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:        s,
		clock:        clock.NewWall(),
		plugins:      plugin.NewRegistry(),
		logger:       slog.Default(),
		locks:        newUserLocks(),
		custodian:    DefaultCustodian,
		defaultPrice: DefaultPricePerGB,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.rail == nil {
		e.rail = payment.NewStoreRail(s, e.logger)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithOwner sets the principal allowed to call administrative operations.
// Without an owner every administrative call is rejected.
func WithOwner(owner types.Principal) Option {
	return func(e *Engine) {
		e.owner = owner
	}
}

// WithCustodian sets the principal that holds upgrade payments.
func WithCustodian(custodian types.Principal) Option {
	return func(e *Engine) {
		if !custodian.IsZero() {
			e.custodian = custodian
		}
	}
}

// WithRail replaces the store-backed payment rail.
func WithRail(r payment.Rail) Option {
	return func(e *Engine) {
		e.rail = r
	}
}

// WithClock sets the source of LastUpdated markers.
func WithClock(c clock.Source) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithPricePerGB sets the price used until one is persisted. Its currency,
// lowercased, is the engine's currency.
func WithPricePerGB(price types.Money) Option {
	return func(e *Engine) {
		e.defaultPrice = types.Minor(price.Amount, price.Currency)
	}
}

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	price, err := e.PricePerGB(ctx)
	if err != nil {
		return err
	}

	e.logger.Info("quota engine started",
		"owner", e.Owner(),
		"custodian", e.custodian,
		"price_per_gb", price.String(),
		"plugins", e.plugins.Count(),
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (e *Engine) Stop() error {
	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Owner returns the current owner identity.
func (e *Engine) Owner() types.Principal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.owner
}

// Custodian returns the principal that receives upgrade payments.
func (e *Engine) Custodian() types.Principal { return e.custodian }

// Currency returns the currency all prices must be quoted in.
func (e *Engine) Currency() string { return e.defaultPrice.Currency }

// PricePerGB returns the effective upgrade price: the persisted value if an
// administrator has set one, else the configured default.
func (e *Engine) PricePerGB(ctx context.Context) (types.Money, error) {
	price, err := e.store.GetPricePerGB(ctx)
	if errors.Is(err, ErrNotFound) {
		return e.defaultPrice, nil
	}
	if err != nil {
		return types.Money{}, err
	}
	return price, nil
}

// GetTotalUsers returns the number of users that have a quota record.
func (e *Engine) GetTotalUsers(ctx context.Context) (uint64, error) {
	return e.store.CountRecords(ctx)
}
