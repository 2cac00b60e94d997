package types

import "github.com/xraph/quota/safemath"

// Byte size units.
const (
	KiB uint64 = 1 << 10
	MiB uint64 = 1 << 20
	GiB uint64 = 1 << 30
	TiB uint64 = 1 << 40

	// BytesPerGB is the conversion factor for purchased gigabytes.
	BytesPerGB = GiB
)

// Quota bounds.
const (
	DefaultQuota = 100 * MiB
	MaxFileSize  = 5 * GiB
	MaxQuota     = 1 * TiB

	// MaxPackageGB bounds both package sizes and direct upgrades.
	MaxPackageGB uint64 = 1000

	// MaxPriceUnits is the price ceiling in major currency units.
	MaxPriceUnits int64 = 100
)

// GBToBytes converts purchased gigabytes to bytes with overflow checking.
func GBToBytes(gb uint64) (uint64, error) {
	return safemath.Mul(gb, BytesPerGB)
}

// MaxPrice returns the price ceiling for packages and per-GB pricing in the
// given currency (100 major units).
func MaxPrice(currency string) Money {
	return Major(MaxPriceUnits, currency)
}
