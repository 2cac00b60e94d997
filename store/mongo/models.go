package mongo

import (
	"strings"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/quota/bundle"
	"github.com/xraph/quota/types"
	"github.com/xraph/quota/usage"
)

// ==================== Record models ====================

type recordModel struct {
	grove.BaseModel `grove:"table:quota_records"`

	Principal   string    `grove:"principal,pk"  bson:"_id"`
	QuotaLimit  int64     `grove:"quota_limit"   bson:"quota_limit"`
	UsedStorage int64     `grove:"used_storage"  bson:"used_storage"`
	LastUpdated int64     `grove:"last_updated"  bson:"last_updated"`
	Version     int64     `grove:"version"       bson:"version"`
	CreatedAt   time.Time `grove:"created_at"    bson:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"    bson:"updated_at"`
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

	ID              int64     `grove:"id,pk"            bson:"_id"`
	AdditionalGB    int64     `grove:"additional_gb"    bson:"additional_gb"`
	AdditionalBytes int64     `grove:"additional_bytes" bson:"additional_bytes"`
	PriceAmount     int64     `grove:"price_amount"     bson:"price_amount"`
	PriceCurrency   string    `grove:"price_currency"   bson:"price_currency"`
	Active          bool      `grove:"active"           bson:"active"`
	CreatedAt       time.Time `grove:"created_at"       bson:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"       bson:"updated_at"`
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

	ID        string    `grove:"id,pk"      bson:"_id"`
	Principal string    `grove:"principal"  bson:"principal"`
	Currency  string    `grove:"currency"   bson:"currency"`
	Amount    int64     `grove:"amount"     bson:"amount"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

// balanceID is the document key for a principal's balance in one currency.
// Currency codes are case-insensitive.
func balanceID(p types.Principal, currency string) string {
	return strings.ToLower(currency) + ":" + string(p)
}

// ==================== Setting models ====================

const settingPricePerGB = "price_per_gb"

type settingModel struct {
	grove.BaseModel `grove:"table:quota_settings"`

	Key       string    `grove:"key,pk"     bson:"_id"`
	Amount    int64     `grove:"amount"     bson:"amount"`
	Currency  string    `grove:"currency"   bson:"currency"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}
