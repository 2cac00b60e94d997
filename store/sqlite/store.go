package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/quota"
	"github.com/xraph/quota/bundle"
	"github.com/xraph/quota/payment"
	quotastore "github.com/xraph/quota/store"
	"github.com/xraph/quota/types"
	"github.com/xraph/quota/usage"
)

// compile-time interface check
var _ quotastore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("quota/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("quota/sqlite: migration failed: %w", err)
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
	m := new(recordModel)
	err := s.sdb.NewSelect(m).
		Where("principal = ?", string(p)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, quota.ErrUserNotFound
		}
		return nil, err
	}
	return fromRecordModel(m), nil
}

func (s *Store) CreateRecord(ctx context.Context, r *usage.Record) error {
	m := toRecordModel(r)
	res, err := s.sdb.NewInsert(m).
		OnConflict("(principal) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return quota.ErrAlreadyExists
	}
	return nil
}

func (s *Store) UpdateRecord(ctx context.Context, r *usage.Record) error {
	res, err := s.sdb.NewUpdate((*recordModel)(nil)).
		Set("quota_limit = ?", int64(r.QuotaLimit)).
		Set("used_storage = ?", int64(r.UsedStorage)).
		Set("last_updated = ?", int64(r.LastUpdated)).
		Set("version = ?", int64(r.Version)).
		Set("updated_at = ?", now()).
		Where("principal = ?", string(r.Principal)).
		Where("version = ?", int64(r.Version)-1).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.GetRecord(ctx, r.Principal); err != nil {
			return err
		}
		return quota.ErrConflict
	}
	return nil
}

func (s *Store) CountRecords(ctx context.Context) (uint64, error) {
	var n int64
	if err := s.sdb.NewRaw(`SELECT COUNT(*) FROM quota_records`).Scan(ctx, &n); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// ==================== Catalog Store ====================

func (s *Store) PutBundle(ctx context.Context, b *bundle.Bundle) error {
	m := toBundleModel(b)
	_, err := s.sdb.NewInsert(m).
		OnConflict("(id) DO UPDATE").
		Set("additional_gb = EXCLUDED.additional_gb").
		Set("additional_bytes = EXCLUDED.additional_bytes").
		Set("price_amount = EXCLUDED.price_amount").
		Set("price_currency = EXCLUDED.price_currency").
		Set("active = EXCLUDED.active").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetBundle(ctx context.Context, bundleID uint64) (*bundle.Bundle, error) {
	m := new(bundleModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", int64(bundleID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, quota.ErrPackageNotFound
		}
		return nil, err
	}
	return fromBundleModel(m), nil
}

func (s *Store) ListBundles(ctx context.Context, opts bundle.ListOpts) ([]*bundle.Bundle, error) {
	var models []bundleModel
	q := s.sdb.NewSelect(&models)

	if opts.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*bundle.Bundle, len(models))
	for i := range models {
		result[i] = fromBundleModel(&models[i])
	}
	return result, nil
}

func (s *Store) SetBundleActive(ctx context.Context, bundleID uint64, active bool) error {
	res, err := s.sdb.NewUpdate((*bundleModel)(nil)).
		Set("active = ?", active).
		Set("updated_at = ?", now()).
		Where("id = ?", int64(bundleID)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return quota.ErrPackageNotFound
	}
	return nil
}

func (s *Store) GetPricePerGB(ctx context.Context) (types.Money, error) {
	m := new(settingModel)
	err := s.sdb.NewSelect(m).
		Where("key = ?", settingPricePerGB).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return types.Money{}, quota.ErrNotFound
		}
		return types.Money{}, err
	}
	return types.Minor(m.Amount, m.Currency), nil
}

func (s *Store) SetPricePerGB(ctx context.Context, price types.Money) error {
	m := &settingModel{
		Key:       settingPricePerGB,
		Amount:    price.Amount,
		Currency:  strings.ToLower(price.Currency),
		UpdatedAt: now(),
	}
	_, err := s.sdb.NewInsert(m).
		OnConflict("(key) DO UPDATE").
		Set("amount = EXCLUDED.amount").
		Set("currency = EXCLUDED.currency").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// ==================== Balance Store ====================

func (s *Store) GetBalance(ctx context.Context, p types.Principal, currency string) (types.Money, error) {
	m := new(balanceModel)
	err := s.sdb.NewSelect(m).
		Where("principal = ?", string(p)).
		Where("currency = ?", strings.ToLower(currency)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return types.Zero(currency), nil
		}
		return types.Money{}, err
	}
	return types.Minor(m.Amount, m.Currency), nil
}

func (s *Store) Debit(ctx context.Context, p types.Principal, amount types.Money) error {
	res, err := s.sdb.NewUpdate((*balanceModel)(nil)).
		Set("amount = amount - ?", amount.Amount).
		Set("updated_at = ?", now()).
		Where("principal = ?", string(p)).
		Where("currency = ?", strings.ToLower(amount.Currency)).
		Where("amount >= ?", amount.Amount).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return payment.ErrInsufficientFunds
	}
	return nil
}

func (s *Store) Credit(ctx context.Context, p types.Principal, amount types.Money) error {
	m := &balanceModel{
		Principal: string(p),
		Currency:  strings.ToLower(amount.Currency),
		Amount:    amount.Amount,
		UpdatedAt: now(),
	}
	_, err := s.sdb.NewInsert(m).
		OnConflict("(principal, currency) DO UPDATE").
		Set("amount = quota_balances.amount + EXCLUDED.amount").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
