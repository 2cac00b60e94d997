package payment

import (
	"context"

	"github.com/xraph/quota/types"
)

// Store holds per-principal balances, one per currency.
type Store interface {
	// GetBalance returns the balance, or zero in the requested currency when
	// the principal has never been credited.
	GetBalance(ctx context.Context, p types.Principal, currency string) (types.Money, error)

	// Debit subtracts amount only if the balance covers it; otherwise it
	// returns ErrInsufficientFunds and changes nothing.
	Debit(ctx context.Context, p types.Principal, amount types.Money) error

	// Credit adds amount, creating the balance if needed.
	Credit(ctx context.Context, p types.Principal, amount types.Money) error
}
