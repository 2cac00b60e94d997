package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/quota"
	"github.com/xraph/quota/bundle"
	"github.com/xraph/quota/payment"
	quotastore "github.com/xraph/quota/store"
	"github.com/xraph/quota/types"
	"github.com/xraph/quota/usage"
)

// Collection name constants.
const (
	colRecords  = "quota_records"
	colPackages = "quota_packages"
	colBalances = "quota_balances"
	colSettings = "quota_settings"
)

// compile-time interface check
var _ quotastore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all quota collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("quota/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Record Store ====================

func (s *Store) GetRecord(ctx context.Context, p types.Principal) (*usage.Record, error) {
	var m recordModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": string(p)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, quota.ErrUserNotFound
		}
		return nil, fmt.Errorf("quota/mongo: get record: %w", err)
	}
	return fromRecordModel(&m), nil
}

func (s *Store) CreateRecord(ctx context.Context, r *usage.Record) error {
	m := toRecordModel(r)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return quota.ErrAlreadyExists
		}
		return fmt.Errorf("quota/mongo: create record: %w", err)
	}
	return nil
}

func (s *Store) UpdateRecord(ctx context.Context, r *usage.Record) error {
	res, err := s.mdb.NewUpdate((*recordModel)(nil)).
		Filter(bson.M{"_id": string(r.Principal), "version": int64(r.Version) - 1}).
		Set("quota_limit", int64(r.QuotaLimit)).
		Set("used_storage", int64(r.UsedStorage)).
		Set("last_updated", int64(r.LastUpdated)).
		Set("version", int64(r.Version)).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("quota/mongo: update record: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, err := s.GetRecord(ctx, r.Principal); err != nil {
			return err
		}
		return quota.ErrConflict
	}
	return nil
}

func (s *Store) CountRecords(ctx context.Context) (uint64, error) {
	n, err := s.mdb.Collection(colRecords).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("quota/mongo: count records: %w", err)
	}
	return uint64(n), nil
}

// ==================== Catalog Store ====================

func (s *Store) PutBundle(ctx context.Context, b *bundle.Bundle) error {
	m := toBundleModel(b)
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		SetUpdate(bson.M{"$set": bson.M{
			"additional_gb":    m.AdditionalGB,
			"additional_bytes": m.AdditionalBytes,
			"price_amount":     m.PriceAmount,
			"price_currency":   m.PriceCurrency,
			"active":           m.Active,
			"created_at":       m.CreatedAt,
			"updated_at":       m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("quota/mongo: put package: %w", err)
	}
	return nil
}

func (s *Store) GetBundle(ctx context.Context, bundleID uint64) (*bundle.Bundle, error) {
	var m bundleModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": int64(bundleID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, quota.ErrPackageNotFound
		}
		return nil, fmt.Errorf("quota/mongo: get package: %w", err)
	}
	return fromBundleModel(&m), nil
}

func (s *Store) ListBundles(ctx context.Context, opts bundle.ListOpts) ([]*bundle.Bundle, error) {
	var models []bundleModel

	filter := bson.M{}
	if opts.ActiveOnly {
		filter["active"] = true
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("quota/mongo: list packages: %w", err)
	}

	result := make([]*bundle.Bundle, len(models))
	for i := range models {
		result[i] = fromBundleModel(&models[i])
	}
	return result, nil
}

func (s *Store) SetBundleActive(ctx context.Context, bundleID uint64, active bool) error {
	res, err := s.mdb.NewUpdate((*bundleModel)(nil)).
		Filter(bson.M{"_id": int64(bundleID)}).
		Set("active", active).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("quota/mongo: set package active: %w", err)
	}
	if res.MatchedCount() == 0 {
		return quota.ErrPackageNotFound
	}
	return nil
}

func (s *Store) GetPricePerGB(ctx context.Context) (types.Money, error) {
	var m settingModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": settingPricePerGB}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return types.Money{}, quota.ErrNotFound
		}
		return types.Money{}, fmt.Errorf("quota/mongo: get price: %w", err)
	}
	return types.Minor(m.Amount, m.Currency), nil
}

func (s *Store) SetPricePerGB(ctx context.Context, price types.Money) error {
	_, err := s.mdb.NewUpdate((*settingModel)(nil)).
		Filter(bson.M{"_id": settingPricePerGB}).
		SetUpdate(bson.M{"$set": bson.M{
			"amount":     price.Amount,
			"currency":   strings.ToLower(price.Currency),
			"updated_at": now(),
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("quota/mongo: set price: %w", err)
	}
	return nil
}

// ==================== Balance Store ====================

func (s *Store) GetBalance(ctx context.Context, p types.Principal, currency string) (types.Money, error) {
	var m balanceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": balanceID(p, currency)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return types.Zero(currency), nil
		}
		return types.Money{}, fmt.Errorf("quota/mongo: get balance: %w", err)
	}
	return types.Minor(m.Amount, m.Currency), nil
}

func (s *Store) Debit(ctx context.Context, p types.Principal, amount types.Money) error {
	res, err := s.mdb.NewUpdate((*balanceModel)(nil)).
		Filter(bson.M{
			"_id":    balanceID(p, amount.Currency),
			"amount": bson.M{"$gte": amount.Amount},
		}).
		SetUpdate(bson.M{
			"$inc": bson.M{"amount": -amount.Amount},
			"$set": bson.M{"updated_at": now()},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("quota/mongo: debit: %w", err)
	}
	if res.MatchedCount() == 0 {
		return payment.ErrInsufficientFunds
	}
	return nil
}

func (s *Store) Credit(ctx context.Context, p types.Principal, amount types.Money) error {
	_, err := s.mdb.NewUpdate((*balanceModel)(nil)).
		Filter(bson.M{"_id": balanceID(p, amount.Currency)}).
		SetUpdate(bson.M{
			"$inc":         bson.M{"amount": amount.Amount},
			"$set":         bson.M{"updated_at": now()},
			"$setOnInsert": bson.M{"principal": string(p), "currency": strings.ToLower(amount.Currency)},
		}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("quota/mongo: credit: %w", err)
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all quota collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colRecords: {
			{Keys: bson.D{{Key: "updated_at", Value: -1}}},
		},
		colPackages: {
			{Keys: bson.D{{Key: "active", Value: 1}, {Key: "_id", Value: 1}}},
		},
		colBalances: {
			{
				Keys:    bson.D{{Key: "principal", Value: 1}, {Key: "currency", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
		},
		colSettings: {},
	}
}
