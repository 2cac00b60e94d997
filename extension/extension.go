// Package extension provides the Forge extension adapter for the quota
// engine.
//
// It implements the forge.Extension interface to integrate the engine
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.quota" or "quota" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/quota"
	"github.com/xraph/quota/store"
	"github.com/xraph/quota/store/memory"
	mongostore "github.com/xraph/quota/store/mongo"
	"github.com/xraph/quota/store/postgres"
	"github.com/xraph/quota/store/sqlite"
	"github.com/xraph/quota/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "quota"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Per-user storage quota accounting with paid upgrades"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the quota engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config    Config
	engine    *quota.Engine
	store     store.Store
	groveDB   *grove.DB
	quotaOpts []quota.Option
}

// New creates a new quota Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying quota engine.
// This is nil until Register is called.
func (e *Extension) Engine() *quota.Engine { return e.engine }

// Config returns the resolved configuration.
func (e *Extension) Config() Config { return e.config }

// Register implements [forge.Extension]. It loads configuration,
// initializes the quota engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		s, err := buildStore(e.groveDB, e.config.StoreDriver)
		if err != nil {
			return err
		}
		e.store = s
	}

	opts, err := e.buildQuotaOpts()
	if err != nil {
		return err
	}

	e.engine = quota.New(e.store, opts...)

	return vessel.Provide(fapp.Container(), func() (*quota.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("quota: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("quota: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildStore constructs the store backend for driver on top of db.
func buildStore(db *grove.DB, driver string) (store.Store, error) {
	if db == nil {
		if driver != "" && driver != DriverMemory {
			return nil, fmt.Errorf("quota: store driver %q requires a grove database", driver)
		}
		return memory.New(), nil
	}

	switch driver {
	case DriverSQLite:
		return sqlite.New(db), nil
	case DriverPostgres:
		return postgres.New(db), nil
	case DriverMongo:
		return mongostore.New(db), nil
	default:
		return nil, fmt.Errorf("quota: unknown store driver %q", driver)
	}
}

// buildQuotaOpts constructs quota.Option values from the resolved config.
func (e *Extension) buildQuotaOpts() ([]quota.Option, error) {
	opts := make([]quota.Option, 0, len(e.quotaOpts)+3)

	if e.config.Owner != "" {
		opts = append(opts, quota.WithOwner(types.Principal(e.config.Owner)))
	}
	if e.config.Custodian != "" {
		opts = append(opts, quota.WithCustodian(types.Principal(e.config.Custodian)))
	}
	if e.config.PricePerGB < 0 {
		return nil, fmt.Errorf("quota: price_per_gb must be positive, got %d", e.config.PricePerGB)
	}
	if e.config.PricePerGB > 0 {
		opts = append(opts, quota.WithPricePerGB(types.Minor(e.config.PricePerGB, e.config.Currency)))
	}

	// Pass-through options win over config-derived ones.
	opts = append(opts, e.quotaOpts...)

	return opts, nil
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("quota: configuration is required but not found in config files; " +
				"ensure 'extensions.quota' or 'quota' key exists in your config")
		}

		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("quota: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("owner", e.config.Owner),
		forge.F("custodian", e.config.Custodian),
		forge.F("currency", e.config.Currency),
		forge.F("price_per_gb", e.config.PricePerGB),
		forge.F("store_driver", e.config.StoreDriver),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.quota", "quota"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("quota: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("quota: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Custodian == "" {
		cfg.Custodian = defaults.Custodian
	}
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	if cfg.PricePerGB == 0 {
		cfg.PricePerGB = defaults.PricePerGB
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	if yamlConfig.Owner == "" {
		yamlConfig.Owner = programmaticConfig.Owner
	}
	if yamlConfig.Custodian == "" {
		yamlConfig.Custodian = programmaticConfig.Custodian
	}
	if yamlConfig.Currency == "" {
		yamlConfig.Currency = programmaticConfig.Currency
	}
	if yamlConfig.PricePerGB == 0 {
		yamlConfig.PricePerGB = programmaticConfig.PricePerGB
	}
	if yamlConfig.StoreDriver == "" {
		yamlConfig.StoreDriver = programmaticConfig.StoreDriver
	}

	return mergeWithDefaults(yamlConfig)
}
