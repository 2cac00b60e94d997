package quota

import (
	"context"

	"github.com/xraph/quota/bundle"
	"github.com/xraph/quota/types"
)

func validateGB(field string, gb uint64) error {
	if gb == 0 {
		return invalid(field, "must be greater than zero")
	}
	if gb > types.MaxPackageGB {
		return invalid(field, "%d exceeds the maximum of %d", gb, types.MaxPackageGB)
	}
	return nil
}

// inCurrency returns m with a lowercased currency code, or a validation
// error if it is not the engine's currency.
func (e *Engine) inCurrency(field string, m types.Money) (types.Money, error) {
	m = types.Minor(m.Amount, m.Currency)
	if m.Currency != e.Currency() {
		return types.Money{}, invalid(field, "currency %q, want %q", m.Currency, e.Currency())
	}
	return m, nil
}

// validatePrice checks price and returns it in canonical form.
func (e *Engine) validatePrice(field string, price types.Money) (types.Money, error) {
	price, err := e.inCurrency(field, price)
	if err != nil {
		return types.Money{}, err
	}
	if !price.IsPositive() {
		return types.Money{}, invalid(field, "must be greater than zero")
	}
	if limit := types.MaxPrice(price.Currency); price.GreaterThan(limit) {
		return types.Money{}, invalid(field, "%s exceeds the maximum of %s", price.String(), limit.String())
	}
	return price, nil
}

// AdminCreateQuotaPackage creates or replaces package bundleID. The stored
// package is always active.
func (e *Engine) AdminCreateQuotaPackage(ctx context.Context, bundleID, gb uint64, price types.Money) (*bundle.Bundle, error) {
	if _, err := e.requireOwner(ctx); err != nil {
		return nil, err
	}
	if err := validateGB("additional_gb", gb); err != nil {
		return nil, err
	}
	price, err := e.validatePrice("price", price)
	if err != nil {
		return nil, err
	}

	b, err := bundle.New(bundleID, gb, price)
	if err != nil {
		return nil, invalid("additional_gb", "byte size overflows")
	}
	if err := e.store.PutBundle(ctx, b); err != nil {
		return nil, err
	}

	e.plugins.EmitPackageCreated(ctx, b)
	e.logger.Info("quota package created",
		"package_id", b.ID,
		"additional_gb", b.AdditionalGB,
		"price", b.Price.String(),
	)
	return b, nil
}

// AdminSetPackageActive enables or disables purchases of a package.
func (e *Engine) AdminSetPackageActive(ctx context.Context, bundleID uint64, active bool) error {
	if _, err := e.requireOwner(ctx); err != nil {
		return err
	}
	if err := e.store.SetBundleActive(ctx, bundleID, active); err != nil {
		return err
	}

	if b, err := e.store.GetBundle(ctx, bundleID); err == nil {
		e.plugins.EmitPackageStatusChanged(ctx, b)
	} else {
		e.logger.Warn("quota package status event skipped",
			"package_id", bundleID,
			"error", err,
		)
	}

	e.logger.Info("quota package status changed",
		"package_id", bundleID,
		"active", active,
	)
	return nil
}

// GetQuotaPackage returns a package, or ErrPackageNotFound.
func (e *Engine) GetQuotaPackage(ctx context.Context, bundleID uint64) (*bundle.Bundle, error) {
	return e.store.GetBundle(ctx, bundleID)
}

// ListQuotaPackages lists packages ordered by ID.
func (e *Engine) ListQuotaPackages(ctx context.Context, opts bundle.ListOpts) ([]*bundle.Bundle, error) {
	return e.store.ListBundles(ctx, opts)
}
