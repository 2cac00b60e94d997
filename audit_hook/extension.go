// Package audithook bridges quota engine events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/xraph/quota/bundle"
	"github.com/xraph/quota/id"
	"github.com/xraph/quota/payment"
	"github.com/xraph/quota/plugin"
	"github.com/xraph/quota/types"
	"github.com/xraph/quota/usage"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnUserInitialized      = (*Extension)(nil)
	_ plugin.OnUploadRecorded       = (*Extension)(nil)
	_ plugin.OnDeletionRecorded     = (*Extension)(nil)
	_ plugin.OnQuotaExceeded        = (*Extension)(nil)
	_ plugin.OnQuotaUpgraded        = (*Extension)(nil)
	_ plugin.OnPackagePurchased     = (*Extension)(nil)
	_ plugin.OnPaymentRefunded      = (*Extension)(nil)
	_ plugin.OnPackageCreated       = (*Extension)(nil)
	_ plugin.OnPackageStatusChanged = (*Extension)(nil)
	_ plugin.OnQuotaOverridden      = (*Extension)(nil)
	_ plugin.OnPriceUpdated         = (*Extension)(nil)
	_ plugin.OnFundsWithdrawn       = (*Extension)(nil)
	_ plugin.OnOwnershipTransferred = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	ID         id.AuditEventID `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	Action     string          `json:"action"`
	Resource   string          `json:"resource"`
	Category   string          `json:"category"`
	ResourceID string          `json:"resource_id,omitempty"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
	Outcome    string          `json:"outcome"`
	Severity   string          `json:"severity"`
	Reason     string          `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges quota engine events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	uploads  bool
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnUserInitialized implements plugin.OnUserInitialized.
func (e *Extension) OnUserInitialized(ctx context.Context, rec *usage.Record) error {
	return e.record(ctx, ActionUserInitialized, SeverityInfo, OutcomeSuccess,
		ResourceQuota, rec.Principal.String(), CategoryUsage, nil,
		"quota_limit", rec.QuotaLimit,
	)
}

// OnUploadRecorded implements plugin.OnUploadRecorded.
func (e *Extension) OnUploadRecorded(ctx context.Context, rec *usage.Record, size uint64) error {
	if !e.uploads {
		return nil
	}
	return e.record(ctx, ActionUploadRecorded, SeverityInfo, OutcomeSuccess,
		ResourceQuota, rec.Principal.String(), CategoryUsage, nil,
		"size", size,
		"used_storage", rec.UsedStorage,
		"quota_limit", rec.QuotaLimit,
	)
}

// OnDeletionRecorded implements plugin.OnDeletionRecorded.
func (e *Extension) OnDeletionRecorded(ctx context.Context, rec *usage.Record, size uint64) error {
	if !e.uploads {
		return nil
	}
	return e.record(ctx, ActionDeletionRecorded, SeverityInfo, OutcomeSuccess,
		ResourceQuota, rec.Principal.String(), CategoryUsage, nil,
		"size", size,
		"used_storage", rec.UsedStorage,
	)
}

// OnQuotaExceeded implements plugin.OnQuotaExceeded.
func (e *Extension) OnQuotaExceeded(ctx context.Context, user types.Principal, used, limit, requested uint64) error {
	return e.record(ctx, ActionQuotaExceeded, SeverityWarning, OutcomeFailure,
		ResourceQuota, user.String(), CategoryAccess, nil,
		"used", used,
		"limit", limit,
		"requested", requested,
	)
}

// ──────────────────────────────────────────────────
// Upgrade hooks
// ──────────────────────────────────────────────────

// OnQuotaUpgraded implements plugin.OnQuotaUpgraded.
func (e *Extension) OnQuotaUpgraded(ctx context.Context, rec *usage.Record, addedBytes uint64, receipt *payment.Receipt) error {
	return e.record(ctx, ActionQuotaUpgraded, SeverityInfo, OutcomeSuccess,
		ResourceQuota, rec.Principal.String(), CategoryPayment, nil,
		"added_bytes", addedBytes,
		"quota_limit", rec.QuotaLimit,
		"receipt_id", receipt.ID.String(),
		"amount", receipt.Amount.String(),
	)
}

// OnPackagePurchased implements plugin.OnPackagePurchased.
func (e *Extension) OnPackagePurchased(ctx context.Context, rec *usage.Record, b *bundle.Bundle, receipt *payment.Receipt) error {
	return e.record(ctx, ActionPackagePurchased, SeverityInfo, OutcomeSuccess,
		ResourcePackage, strconv.FormatUint(b.ID, 10), CategoryPayment, nil,
		"user", rec.Principal.String(),
		"additional_gb", b.AdditionalGB,
		"quota_limit", rec.QuotaLimit,
		"receipt_id", receipt.ID.String(),
		"amount", receipt.Amount.String(),
	)
}

// OnPaymentRefunded implements plugin.OnPaymentRefunded.
func (e *Extension) OnPaymentRefunded(ctx context.Context, refund *payment.Receipt, cause error) error {
	return e.record(ctx, ActionPaymentRefunded, SeverityError, OutcomePartial,
		ResourcePayment, refund.ID.String(), CategoryPayment, cause,
		"to", refund.To.String(),
		"amount", refund.Amount.String(),
	)
}

// ──────────────────────────────────────────────────
// Administrative hooks
// ──────────────────────────────────────────────────

// OnPackageCreated implements plugin.OnPackageCreated.
func (e *Extension) OnPackageCreated(ctx context.Context, b *bundle.Bundle) error {
	return e.record(ctx, ActionPackageCreated, SeverityInfo, OutcomeSuccess,
		ResourcePackage, strconv.FormatUint(b.ID, 10), CategoryAdmin, nil,
		"additional_gb", b.AdditionalGB,
		"price", b.Price.String(),
	)
}

// OnPackageStatusChanged implements plugin.OnPackageStatusChanged.
func (e *Extension) OnPackageStatusChanged(ctx context.Context, b *bundle.Bundle) error {
	action, severity := ActionPackageActivated, SeverityInfo
	if !b.Active {
		action, severity = ActionPackageDeactivated, SeverityWarning
	}
	return e.record(ctx, action, severity, OutcomeSuccess,
		ResourcePackage, strconv.FormatUint(b.ID, 10), CategoryAdmin, nil,
		"active", b.Active,
	)
}

// OnQuotaOverridden implements plugin.OnQuotaOverridden.
func (e *Extension) OnQuotaOverridden(ctx context.Context, rec *usage.Record, previousLimit uint64) error {
	return e.record(ctx, ActionQuotaOverridden, SeverityWarning, OutcomeSuccess,
		ResourceQuota, rec.Principal.String(), CategoryAdmin, nil,
		"previous_limit", previousLimit,
		"quota_limit", rec.QuotaLimit,
		"used_storage", rec.UsedStorage,
	)
}

// OnPriceUpdated implements plugin.OnPriceUpdated.
func (e *Extension) OnPriceUpdated(ctx context.Context, previous, current types.Money) error {
	return e.record(ctx, ActionPriceUpdated, SeverityInfo, OutcomeSuccess,
		ResourcePrice, "per_gb", CategoryAdmin, nil,
		"previous", previous.String(),
		"current", current.String(),
	)
}

// OnFundsWithdrawn implements plugin.OnFundsWithdrawn.
func (e *Extension) OnFundsWithdrawn(ctx context.Context, receipt *payment.Receipt) error {
	return e.record(ctx, ActionFundsWithdrawn, SeverityWarning, OutcomeSuccess,
		ResourcePayment, receipt.ID.String(), CategoryAdmin, nil,
		"from", receipt.From.String(),
		"to", receipt.To.String(),
		"amount", receipt.Amount.String(),
	)
}

// OnOwnershipTransferred implements plugin.OnOwnershipTransferred.
func (e *Extension) OnOwnershipTransferred(ctx context.Context, previous, current types.Principal) error {
	return e.record(ctx, ActionOwnershipTransferred, SeverityCritical, OutcomeSuccess,
		ResourceOwner, current.String(), CategoryAdmin, nil,
		"previous", previous.String(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		ID:         id.NewAuditEventID(),
		Timestamp:  time.Now().UTC(),
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
