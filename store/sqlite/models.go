package sqlite

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/quota/bundle"
	"github.com/xraph/quota/types"
	"github.com/xraph/quota/usage"
)

// Unsigned quantities are stored as signed 64-bit integers. Byte counts are
// bounded by the 1 TiB maximum quota; package IDs round-trip bit for bit.

// ==================== Record models ====================

type recordModel struct {
	grove.BaseModel `grove:"table:quota_records"`

	Principal   string    `grove:"principal,pk"`
	QuotaLimit  int64     `grove:"quota_limit"`
	UsedStorage int64     `grove:"used_storage"`
	LastUpdated int64     `grove:"last_updated"`
	Version     int64     `grove:"version"`
	CreatedAt   time.Time `grove:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"`
}

func toRecordModel(r *usage.Record) *recordModel {
	return &recordModel{
		Principal:   string(r.Principal),
		QuotaLimit:  int64(r.QuotaLimit),
		UsedStorage: int64(r.UsedStorage),
		LastUpdated: int64(r.LastUpdated),
		Version:     int64(r.Version),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func fromRecordModel(m *recordModel) *usage.Record {
	return &usage.Record{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Principal:   types.Principal(m.Principal),
		QuotaLimit:  uint64(m.QuotaLimit),
		UsedStorage: uint64(m.UsedStorage),
		LastUpdated: uint64(m.LastUpdated),
		Version:     uint64(m.Version),
	}
}

// ==================== Bundle models ====================

type bundleModel struct {
	grove.BaseModel `grove:"table:quota_packages"`

	ID              int64     `grove:"id,pk"`
	AdditionalGB    int64     `grove:"additional_gb"`
	AdditionalBytes int64     `grove:"additional_bytes"`
	PriceAmount     int64     `grove:"price_amount"`
	PriceCurrency   string    `grove:"price_currency"`
	Active          bool      `grove:"active"`
	CreatedAt       time.Time `grove:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"`
}

func toBundleModel(b *bundle.Bundle) *bundleModel {
	return &bundleModel{
		ID:              int64(b.ID),
		AdditionalGB:    int64(b.AdditionalGB),
		AdditionalBytes: int64(b.AdditionalBytes),
		PriceAmount:     b.Price.Amount,
		PriceCurrency:   b.Price.Currency,
		Active:          b.Active,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func fromBundleModel(m *bundleModel) *bundle.Bundle {
	return &bundle.Bundle{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:              uint64(m.ID),
		AdditionalGB:    uint64(m.AdditionalGB),
		AdditionalBytes: uint64(m.AdditionalBytes),
		Price:           types.Minor(m.PriceAmount, m.PriceCurrency),
		Active:          m.Active,
	}
}

// ==================== Balance models ====================

type balanceModel struct {
	grove.BaseModel `grove:"table:quota_balances"`

	Principal string    `grove:"principal,pk"`
	Currency  string    `grove:"currency,pk"`
	Amount    int64     `grove:"amount"`
	UpdatedAt time.Time `grove:"updated_at"`
}

// ==================== Setting models ====================

const settingPricePerGB = "price_per_gb"

type settingModel struct {
	grove.BaseModel `grove:"table:quota_settings"`

	Key       string    `grove:"key,pk"`
	Amount    int64     `grove:"amount"`
	Currency  string    `grove:"currency"`
	UpdatedAt time.Time `grove:"updated_at"`
}
