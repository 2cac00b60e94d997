// Package observability provides a metrics extension for the quota engine
// that records lifecycle event counts via go-utils MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/quota/bundle"
	"github.com/xraph/quota/payment"
	"github.com/xraph/quota/plugin"
	"github.com/xraph/quota/types"
	"github.com/xraph/quota/usage"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnInit                 = (*MetricsExtension)(nil)
	_ plugin.OnUserInitialized      = (*MetricsExtension)(nil)
	_ plugin.OnUploadRecorded       = (*MetricsExtension)(nil)
	_ plugin.OnDeletionRecorded     = (*MetricsExtension)(nil)
	_ plugin.OnQuotaExceeded        = (*MetricsExtension)(nil)
	_ plugin.OnQuotaUpgraded        = (*MetricsExtension)(nil)
	_ plugin.OnPackagePurchased     = (*MetricsExtension)(nil)
	_ plugin.OnPaymentRefunded      = (*MetricsExtension)(nil)
	_ plugin.OnPackageCreated       = (*MetricsExtension)(nil)
	_ plugin.OnPackageStatusChanged = (*MetricsExtension)(nil)
	_ plugin.OnQuotaOverridden      = (*MetricsExtension)(nil)
	_ plugin.OnPriceUpdated         = (*MetricsExtension)(nil)
	_ plugin.OnFundsWithdrawn       = (*MetricsExtension)(nil)
	_ plugin.OnOwnershipTransferred = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide quota metrics.
// Register it as a quota plugin to track usage and revenue.
type MetricsExtension struct {
	factory MetricFactory

	// Ledger metrics
	UsersInitialized  Counter
	UploadsRecorded   Counter
	UploadBytes       Counter
	UploadSize        Histogram
	DeletionsRecorded Counter
	DeletedBytes      Counter
	QuotaExceeded     Counter

	// Upgrade metrics
	QuotaUpgrades     Counter
	UpgradeBytes      Counter
	PackagePurchases  Counter
	PaymentsCollected Counter
	PaymentAmount     Histogram
	PaymentsRefunded  Counter

	// Administrative metrics
	PackagesCreated    Counter
	PackagesActivated  Counter
	PackagesRetired    Counter
	QuotaOverrides     Counter
	PriceUpdates       Counter
	Withdrawals        Counter
	OwnershipTransfers Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Ledger metrics
		UsersInitialized:  factory.Counter("quota.users.initialized"),
		UploadsRecorded:   factory.Counter("quota.uploads.recorded"),
		UploadBytes:       factory.Counter("quota.uploads.bytes"),
		UploadSize:        factory.Histogram("quota.uploads.size_bytes"),
		DeletionsRecorded: factory.Counter("quota.deletions.recorded"),
		DeletedBytes:      factory.Counter("quota.deletions.bytes"),
		QuotaExceeded:     factory.Counter("quota.exceeded"),

		// Upgrade metrics
		QuotaUpgrades:     factory.Counter("quota.upgrades"),
		UpgradeBytes:      factory.Counter("quota.upgrades.bytes"),
		PackagePurchases:  factory.Counter("quota.packages.purchased"),
		PaymentsCollected: factory.Counter("quota.payments.collected"),
		PaymentAmount:     factory.Histogram("quota.payments.amount_minor"),
		PaymentsRefunded:  factory.Counter("quota.payments.refunded"),

		// Administrative metrics
		PackagesCreated:    factory.Counter("quota.packages.created"),
		PackagesActivated:  factory.Counter("quota.packages.activated"),
		PackagesRetired:    factory.Counter("quota.packages.deactivated"),
		QuotaOverrides:     factory.Counter("quota.admin.overrides"),
		PriceUpdates:       factory.Counter("quota.admin.price_updates"),
		Withdrawals:        factory.Counter("quota.admin.withdrawals"),
		OwnershipTransfers: factory.Counter("quota.admin.ownership_transfers"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnUserInitialized implements plugin.OnUserInitialized.
func (m *MetricsExtension) OnUserInitialized(_ context.Context, _ *usage.Record) error {
	m.UsersInitialized.Inc()
	return nil
}

// OnUploadRecorded implements plugin.OnUploadRecorded.
func (m *MetricsExtension) OnUploadRecorded(_ context.Context, _ *usage.Record, size uint64) error {
	m.UploadsRecorded.Inc()
	m.UploadBytes.Add(float64(size))
	m.UploadSize.Observe(float64(size))
	return nil
}

// OnDeletionRecorded implements plugin.OnDeletionRecorded.
func (m *MetricsExtension) OnDeletionRecorded(_ context.Context, _ *usage.Record, size uint64) error {
	m.DeletionsRecorded.Inc()
	m.DeletedBytes.Add(float64(size))
	return nil
}

// OnQuotaExceeded implements plugin.OnQuotaExceeded.
func (m *MetricsExtension) OnQuotaExceeded(_ context.Context, _ types.Principal, _, _, _ uint64) error {
	m.QuotaExceeded.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Upgrade hooks
// ──────────────────────────────────────────────────

// OnQuotaUpgraded implements plugin.OnQuotaUpgraded.
func (m *MetricsExtension) OnQuotaUpgraded(_ context.Context, _ *usage.Record, addedBytes uint64, receipt *payment.Receipt) error {
	m.QuotaUpgrades.Inc()
	m.UpgradeBytes.Add(float64(addedBytes))
	m.observePayment(receipt)
	return nil
}

// OnPackagePurchased implements plugin.OnPackagePurchased.
func (m *MetricsExtension) OnPackagePurchased(_ context.Context, _ *usage.Record, b *bundle.Bundle, receipt *payment.Receipt) error {
	m.PackagePurchases.Inc()
	m.UpgradeBytes.Add(float64(b.AdditionalBytes))
	m.observePayment(receipt)
	return nil
}

// OnPaymentRefunded implements plugin.OnPaymentRefunded.
func (m *MetricsExtension) OnPaymentRefunded(_ context.Context, _ *payment.Receipt, _ error) error {
	m.PaymentsRefunded.Inc()
	return nil
}

func (m *MetricsExtension) observePayment(receipt *payment.Receipt) {
	m.PaymentsCollected.Inc()
	if receipt != nil {
		m.PaymentAmount.Observe(float64(receipt.Amount.Amount))
	}
}

// ──────────────────────────────────────────────────
// Administrative hooks
// ──────────────────────────────────────────────────

// OnPackageCreated implements plugin.OnPackageCreated.
func (m *MetricsExtension) OnPackageCreated(_ context.Context, _ *bundle.Bundle) error {
	m.PackagesCreated.Inc()
	return nil
}

// OnPackageStatusChanged implements plugin.OnPackageStatusChanged.
func (m *MetricsExtension) OnPackageStatusChanged(_ context.Context, b *bundle.Bundle) error {
	if b.Active {
		m.PackagesActivated.Inc()
	} else {
		m.PackagesRetired.Inc()
	}
	return nil
}

// OnQuotaOverridden implements plugin.OnQuotaOverridden.
func (m *MetricsExtension) OnQuotaOverridden(_ context.Context, _ *usage.Record, _ uint64) error {
	m.QuotaOverrides.Inc()
	return nil
}

// OnPriceUpdated implements plugin.OnPriceUpdated.
func (m *MetricsExtension) OnPriceUpdated(_ context.Context, _, _ types.Money) error {
	m.PriceUpdates.Inc()
	return nil
}

// OnFundsWithdrawn implements plugin.OnFundsWithdrawn.
func (m *MetricsExtension) OnFundsWithdrawn(_ context.Context, _ *payment.Receipt) error {
	m.Withdrawals.Inc()
	return nil
}

// OnOwnershipTransferred implements plugin.OnOwnershipTransferred.
func (m *MetricsExtension) OnOwnershipTransferred(_ context.Context, _, _ types.Principal) error {
	m.OwnershipTransfers.Inc()
	return nil
}
