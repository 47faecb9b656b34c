package raffle

import (
	"errors"
	"fmt"

	"raffle-bot/internal/model"
)

// Rejections surfaced by raffle operations. Every rejection aborts the
// whole operation; no partial state mutation survives a failure.
var (
	// Timing.
	ErrRaffleClosed      = errors.New("raffle is closed")
	ErrRaffleNotFinished = errors.New("raffle has not yet finished")
	ErrInvalidTimestamp  = errors.New("raffle end date must be in the future")

	// Authorization.
	ErrNotOwner      = errors.New("caller is not the owner")
	ErrOwnerExcluded = errors.New("owner cannot participate")

	// Value.
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidPurchase       = errors.New("invalid purchase")

	// State.
	ErrAlreadyClaimed = errors.New("free ticket already claimed")
	ErrAlreadySettled = errors.New("raffle already settled")
	ErrEmptyPot       = errors.New("nothing collected to distribute")
	ErrNoParticipants = errors.New("no participants to draw from")

	// Referral.
	ErrSelfReferral = errors.New("cannot refer yourself")
	ErrNotAPlayer   = errors.New("referral target is not a player")
)

// TransferError reports a failed settlement payout. The settlement it
// aborted leaves no partial state behind.
type TransferError struct {
	Recipient model.Address
	Amount    uint64
	Err       error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer of %d to %s failed: %v", e.Amount, e.Recipient, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }
