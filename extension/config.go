package extension

// Store driver names accepted by Config.StoreDriver.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config holds the quota extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.quota" or "quota" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Owner is the principal allowed to call administrative operations.
	Owner string `json:"owner" mapstructure:"owner" yaml:"owner"`

	// Custodian is the principal that receives upgrade payments
	// (default: "quota-custody").
	Custodian string `json:"custodian" mapstructure:"custodian" yaml:"custodian"`

	// Currency is the ISO 4217 currency code for prices (default: "usd").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// PricePerGB is the initial per-GB upgrade price in minor units of
	// Currency (default: 100). A price set by an administrator and persisted
	// in the store takes precedence.
	PricePerGB int64 `json:"price_per_gb" mapstructure:"price_per_gb" yaml:"price_per_gb"`

	// StoreDriver selects the store backend built around the grove.DB passed
	// with WithGroveDB: "sqlite", "postgres" or "mongo". Ignored when a store
	// is supplied directly; "memory" or empty without a grove.DB uses the
	// in-memory store.
	StoreDriver string `json:"store_driver" mapstructure:"store_driver" yaml:"store_driver"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Custodian:  "quota-custody",
		Currency:   "usd",
		PricePerGB: 100,
	}
}
