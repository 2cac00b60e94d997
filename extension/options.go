package extension

import (
	"github.com/xraph/grove"

	"github.com/xraph/quota"
	"github.com/xraph/quota/plugin"
	"github.com/xraph/quota/store"
)

// Option configures the quota Forge extension.
type Option func(*Extension)

// WithStore sets the store for the quota engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDB sets the grove database the extension builds its store on.
// The backend is chosen by Config.StoreDriver.
func WithGroveDB(db *grove.DB, driver string) Option {
	return func(e *Extension) {
		e.groveDB = db
		e.config.StoreDriver = driver
	}
}

// WithQuotaOption passes a quota.Option through to the underlying engine.
func WithQuotaOption(opt quota.Option) Option {
	return func(e *Extension) {
		e.quotaOpts = append(e.quotaOpts, opt)
	}
}

// WithPlugin registers a quota plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.quotaOpts = append(e.quotaOpts, quota.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithOwner sets the administrative principal.
func WithOwner(owner string) Option {
	return func(e *Extension) { e.config.Owner = owner }
}

// WithCustodian sets the principal that collects upgrade payments.
func WithCustodian(custodian string) Option {
	return func(e *Extension) { e.config.Custodian = custodian }
}

// WithPricePerGB sets the initial per-GB price in minor units of currency.
func WithPricePerGB(amount int64, currency string) Option {
	return func(e *Extension) {
		e.config.PricePerGB = amount
		e.config.Currency = currency
	}
}
