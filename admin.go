package quota

import (
	"context"
	"fmt"

	"github.com/xraph/quota/payment"
	"github.com/xraph/quota/types"
	"github.com/xraph/quota/usage"
)

// requireOwner returns the caller if it is the configured owner.
func (e *Engine) requireOwner(ctx context.Context) (types.Principal, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return "", err
	}
	owner := e.Owner()
	if owner.IsZero() || caller != owner {
		return "", ErrUnauthorized
	}
	return caller, nil
}

// AdminSetUserQuota sets user's limit, creating the record if needed. Usage
// is preserved; a limit below current usage is accepted and blocks further
// uploads until usage drops.
func (e *Engine) AdminSetUserQuota(ctx context.Context, user types.Principal, newQuota uint64) error {
	if _, err := e.requireOwner(ctx); err != nil {
		return err
	}
	if user.IsZero() {
		return invalid("user", "is required")
	}
	if newQuota == 0 {
		return invalid("quota", "must be greater than zero")
	}
	if newQuota > types.MaxQuota {
		return invalid("quota", "%d exceeds the maximum %d", newQuota, types.MaxQuota)
	}

	var (
		rec      *usage.Record
		previous uint64
		created  bool
	)
	err := e.locks.do(user, func() error {
		cur, err := e.ensureInitialized(ctx, user)
		if err != nil {
			return err
		}
		previous = cur.QuotaLimit
		cur.QuotaLimit = newQuota
		if created, err = e.commit(ctx, cur); err != nil {
			return err
		}
		rec = cur
		return nil
	})
	if err != nil {
		return err
	}

	if created {
		e.plugins.EmitUserInitialized(ctx, rec.Clone())
	}
	e.plugins.EmitQuotaOverridden(ctx, rec.Clone(), previous)

	e.logger.Info("user quota set",
		"user", user,
		"previous", previous,
		"quota", newQuota,
		"used", rec.UsedStorage,
	)
	return nil
}

// AdminUpdatePricePerGB persists a new upgrade price. Subsequent upgrades
// are charged at this price.
func (e *Engine) AdminUpdatePricePerGB(ctx context.Context, price types.Money) error {
	if _, err := e.requireOwner(ctx); err != nil {
		return err
	}
	price, err := e.validatePrice("price_per_gb", price)
	if err != nil {
		return err
	}

	e.catalogMu.Lock()
	defer e.catalogMu.Unlock()

	previous, err := e.PricePerGB(ctx)
	if err != nil {
		return err
	}
	if err := e.store.SetPricePerGB(ctx, price); err != nil {
		return err
	}

	e.plugins.EmitPriceUpdated(ctx, previous, price)
	e.logger.Info("price per GB updated",
		"previous", previous.String(),
		"price", price.String(),
	)
	return nil
}

// AdminWithdraw pays amount from the custodial balance to recipient.
// Sufficiency is enforced by the payment rail alone.
func (e *Engine) AdminWithdraw(ctx context.Context, amount types.Money, recipient types.Principal) (*payment.Receipt, error) {
	if _, err := e.requireOwner(ctx); err != nil {
		return nil, err
	}
	if recipient.IsZero() {
		return nil, invalid("recipient", "is required")
	}
	amount, err := e.inCurrency("amount", amount)
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, invalid("amount", "must be greater than zero")
	}

	receipt, err := e.rail.Transfer(ctx, amount, e.custodian, recipient)
	if err != nil {
		return nil, fmt.Errorf("quota: withdraw: %w", err)
	}

	e.plugins.EmitFundsWithdrawn(ctx, receipt)
	e.logger.Info("custodial funds withdrawn",
		"recipient", recipient,
		"amount", amount.String(),
		"transfer_id", receipt.ID.String(),
	)
	return receipt, nil
}

// AdminTransferOwnership hands administrative rights to newOwner. The
// change lasts for the lifetime of the engine; hosts that persist the owner
// should update their configuration as well.
func (e *Engine) AdminTransferOwnership(ctx context.Context, newOwner types.Principal) error {
	previous, err := e.requireOwner(ctx)
	if err != nil {
		return err
	}
	if newOwner.IsZero() {
		return invalid("owner", "is required")
	}

	e.mu.Lock()
	e.owner = newOwner
	e.mu.Unlock()

	e.plugins.EmitOwnershipTransferred(ctx, previous, newOwner)
	e.logger.Info("ownership transferred",
		"previous", previous,
		"owner", newOwner,
	)
	return nil
}
