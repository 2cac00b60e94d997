package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/quota/id"
	"github.com/xraph/quota/types"
)

// compile-time interface check
var _ Rail = (*StoreRail)(nil)

// StoreRail is a Rail over a balance Store: a conditional debit of the payer
// followed by a credit of the payee.
type StoreRail struct {
	store  Store
	logger *slog.Logger
}

// NewStoreRail creates a rail over s.
func NewStoreRail(s Store, logger *slog.Logger) *StoreRail {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreRail{store: s, logger: logger}
}

// Transfer debits from and credits to. If the credit fails the debit is
// reversed before returning.
func (r *StoreRail) Transfer(ctx context.Context, amount types.Money, from, to types.Principal) (*Receipt, error) {
	if err := validateTransfer(amount, from, to); err != nil {
		return nil, err
	}

	if err := r.store.Debit(ctx, from, amount); err != nil {
		return nil, err
	}

	if err := r.store.Credit(ctx, to, amount); err != nil {
		if rerr := r.store.Credit(ctx, from, amount); rerr != nil {
			r.logger.Error("payment: failed to restore payer balance",
				"from", from,
				"amount", amount.String(),
				"error", rerr,
			)
			return nil, errors.Join(fmt.Errorf("payment: credit %s: %w", to, err), rerr)
		}
		return nil, fmt.Errorf("payment: credit %s: %w", to, err)
	}

	receipt := &Receipt{
		ID:     id.NewTransferID(),
		From:   from,
		To:     to,
		Amount: amount,
		At:     time.Now().UTC(),
	}

	r.logger.Debug("payment transferred",
		"transfer_id", receipt.ID.String(),
		"from", from,
		"to", to,
		"amount", amount.String(),
	)
	return receipt, nil
}

// Deposit funds a principal's balance from outside the rail.
func (r *StoreRail) Deposit(ctx context.Context, p types.Principal, amount types.Money) error {
	if !amount.IsPositive() || p.IsZero() {
		return ErrInvalidTransfer
	}
	return r.store.Credit(ctx, p, amount)
}

// Balance returns the principal's balance in currency.
func (r *StoreRail) Balance(ctx context.Context, p types.Principal, currency string) (types.Money, error) {
	return r.store.GetBalance(ctx, p, currency)
}
