// Package payment defines the payment rail consumed by quota upgrades and a
// balance-backed implementation of it.
//
// A Rail moves money between two principals in a single step. The quota
// engine charges exactly once per upgrade or package purchase and, when the
// quota grant cannot be committed after a successful charge, issues a
// reverse transfer.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/quota/id"
	"github.com/xraph/quota/types"
)

var (
	// ErrInsufficientFunds is returned when the payer cannot cover a transfer.
	ErrInsufficientFunds = errors.New("payment: insufficient funds")

	// ErrInvalidTransfer is returned for non-positive amounts or empty
	// principals.
	ErrInvalidTransfer = errors.New("payment: invalid transfer")
)

// Receipt records a completed transfer.
type Receipt struct {
	ID     id.TransferID   `json:"id"`
	From   types.Principal `json:"from"`
	To     types.Principal `json:"to"`
	Amount types.Money     `json:"amount"`
	At     time.Time       `json:"at"`
}

// Rail moves funds between principals. Transfer either completes fully or
// leaves both balances unchanged.
type Rail interface {
	Transfer(ctx context.Context, amount types.Money, from, to types.Principal) (*Receipt, error)
}

// RailFunc adapts a function to the Rail interface.
type RailFunc func(ctx context.Context, amount types.Money, from, to types.Principal) (*Receipt, error)

// Transfer calls f.
func (f RailFunc) Transfer(ctx context.Context, amount types.Money, from, to types.Principal) (*Receipt, error) {
	return f(ctx, amount, from, to)
}

func validateTransfer(amount types.Money, from, to types.Principal) error {
	if !amount.IsPositive() {
		return errors.Join(ErrInvalidTransfer, errors.New("amount must be positive"))
	}
	if from.IsZero() || to.IsZero() {
		return errors.Join(ErrInvalidTransfer, errors.New("principal is required"))
	}
	return nil
}
