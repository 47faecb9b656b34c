// Package token defines the currency capability the raffle settles in:
// balance, allowance and transfer semantics in the shape of a fungible
// token, with an atomic batch transfer for settlement payouts.
package token

import (
	"context"
	"errors"
	"fmt"

	"raffle-bot/internal/model"
)

// Currency-level errors.
var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrUnknownAccount        = errors.New("unknown account")
)

// Payment is one leg of a batch transfer.
type Payment struct {
	To     model.Address
	Amount uint64
}

// TransferFailedError reports the leg that caused a batch to fail.
// A batch that fails applies none of its legs.
type TransferFailedError struct {
	To     model.Address
	Amount uint64
	Err    error
}

func (e *TransferFailedError) Error() string {
	return fmt.Sprintf("transfer of %d to %s failed: %v", e.Amount, e.To, e.Err)
}

func (e *TransferFailedError) Unwrap() error { return e.Err }

// Currency is the capability surface the raffle consumes. Implementations
// must make BatchTransfer all-or-nothing: either every leg applies or the
// ledger is left untouched.
type Currency interface {
	// BalanceOf returns the balance of addr. Unknown accounts have balance 0.
	BalanceOf(ctx context.Context, addr model.Address) (uint64, error)

	// Allowance returns how much spender may pull from owner.
	Allowance(ctx context.Context, owner, spender model.Address) (uint64, error)

	// Approve sets spender's allowance over owner's funds.
	Approve(ctx context.Context, owner, spender model.Address, amount uint64) error

	// Transfer moves amount from one account to another.
	Transfer(ctx context.Context, from, to model.Address, amount uint64) error

	// TransferFrom moves amount from `from` to `to`, spending spender's
	// allowance over `from`.
	TransferFrom(ctx context.Context, spender, from, to model.Address, amount uint64) error

	// BatchTransfer moves several payments out of `from` atomically.
	BatchTransfer(ctx context.Context, from model.Address, payments []Payment) error
}
