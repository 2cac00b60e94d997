package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/quota/payment"
	"github.com/xraph/quota/safemath"
	"github.com/xraph/quota/types"
	"github.com/xraph/quota/usage"
)

// grantBytes returns a copy of rec with its limit raised by bytes. It has no
// payment side effect; callers charge exactly once before committing the
// result.
func grantBytes(rec *usage.Record, bytes uint64) (*usage.Record, error) {
	limit, err := safemath.Add(rec.QuotaLimit, bytes)
	if err != nil {
		return nil, invalid("quota", "limit would overflow")
	}
	if limit > types.MaxQuota {
		return nil, invalid("quota", "limit %d exceeds the maximum %d", limit, types.MaxQuota)
	}

	staged := rec.Clone()
	staged.QuotaLimit = limit
	return staged, nil
}

// charge moves amount from payer to the custodian.
func (e *Engine) charge(ctx context.Context, payer types.Principal, amount types.Money) (*payment.Receipt, error) {
	receipt, err := e.rail.Transfer(ctx, amount, payer, e.custodian)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInsufficientPayment, err)
	}
	return receipt, nil
}

// paidGrant is the outcome of buyGrant.
type paidGrant struct {
	record  *usage.Record
	receipt *payment.Receipt
	refund  *payment.Receipt
	created bool
}

// buyGrant stages a grant of bytes for payer, charges cost once and commits
// the grant. If the commit fails the charge is reversed and the refund is
// reported alongside the error. It holds the payer's lock throughout.
func (e *Engine) buyGrant(ctx context.Context, payer types.Principal, bytes uint64, cost types.Money) (paidGrant, error) {
	var g paidGrant
	err := e.locks.do(payer, func() error {
		rec, err := e.ensureInitialized(ctx, payer)
		if err != nil {
			return err
		}
		staged, err := grantBytes(rec, bytes)
		if err != nil {
			return err
		}

		receipt, err := e.charge(ctx, payer, cost)
		if err != nil {
			return err
		}
		created, err := e.commit(ctx, staged)
		if err != nil {
			g.refund, err = e.refund(ctx, receipt, err)
			return err
		}

		g = paidGrant{record: staged, receipt: receipt, created: created}
		return nil
	})
	return g, err
}

// refund reverses receipt after the paid grant failed with cause.
func (e *Engine) refund(ctx context.Context, receipt *payment.Receipt, cause error) (*payment.Receipt, error) {
	// The refund must run even if ctx was canceled mid-commit.
	refund, err := e.rail.Transfer(context.WithoutCancel(ctx), receipt.Amount, receipt.To, receipt.From)
	if err != nil {
		e.logger.Error("quota: refund after failed grant",
			"user", receipt.From,
			"transfer_id", receipt.ID.String(),
			"amount", receipt.Amount.String(),
			"commit_error", cause,
			"refund_error", err,
		)
		return nil, errors.Join(cause, fmt.Errorf("%w: %w", ErrRefundFailed, err))
	}

	e.logger.Warn("quota grant failed after payment, refunded",
		"user", receipt.From,
		"transfer_id", receipt.ID.String(),
		"refund_id", refund.ID.String(),
		"error", cause,
	)
	return refund, cause
}

// UpgradeQuota buys gb additional gigabytes for the caller at the current
// per-GB price and returns the updated record.
func (e *Engine) UpgradeQuota(ctx context.Context, gb uint64) (*usage.Record, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateGB("additional_gb", gb); err != nil {
		return nil, err
	}
	bytes, err := types.GBToBytes(gb)
	if err != nil {
		return nil, invalid("additional_gb", "byte size overflows")
	}
	price, err := e.PricePerGB(ctx)
	if err != nil {
		return nil, err
	}
	cost, err := price.MulChecked(gb)
	if err != nil {
		return nil, invalid("additional_gb", "cost overflows")
	}

	g, err := e.buyGrant(ctx, caller, bytes, cost)
	if err != nil {
		if g.refund != nil {
			e.plugins.EmitPaymentRefunded(context.WithoutCancel(ctx), g.refund, err)
		}
		return nil, err
	}

	if g.created {
		e.plugins.EmitUserInitialized(ctx, g.record.Clone())
	}
	e.plugins.EmitQuotaUpgraded(ctx, g.record.Clone(), bytes, g.receipt)

	e.logger.Debug("quota upgraded",
		"user", caller,
		"additional_gb", gb,
		"cost", cost.String(),
		"quota", g.record.QuotaLimit,
		"transfer_id", g.receipt.ID.String(),
	)
	return g.record, nil
}

// PurchaseQuotaPackage buys an active package for the caller and returns the
// updated record. The package price is charged once.
func (e *Engine) PurchaseQuotaPackage(ctx context.Context, bundleID uint64) (*usage.Record, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}

	b, err := e.store.GetBundle(ctx, bundleID)
	if err != nil {
		if errors.Is(err, ErrPackageNotFound) {
			return nil, fmt.Errorf("%w: package %d: %w", ErrInvalidAmount, bundleID, err)
		}
		return nil, err
	}
	if !b.Purchasable() {
		return nil, invalid("package", "package %d is not active", bundleID)
	}

	g, err := e.buyGrant(ctx, caller, b.AdditionalBytes, b.Price)
	if err != nil {
		if g.refund != nil {
			e.plugins.EmitPaymentRefunded(context.WithoutCancel(ctx), g.refund, err)
		}
		return nil, err
	}

	if g.created {
		e.plugins.EmitUserInitialized(ctx, g.record.Clone())
	}
	e.plugins.EmitPackagePurchased(ctx, g.record.Clone(), b, g.receipt)

	e.logger.Debug("quota package purchased",
		"user", caller,
		"package_id", b.ID,
		"price", b.Price.String(),
		"quota", g.record.QuotaLimit,
		"transfer_id", g.receipt.ID.String(),
	)
	return g.record, nil
}
