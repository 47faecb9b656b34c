package raffle

import (
	"context"
	"errors"
	"fmt"

	"raffle-bot/internal/model"
	"raffle-bot/internal/token"
)

// Distribution is the projected split of the pot at settlement.
type Distribution struct {
	Prize      uint64
	Donation   uint64
	Commission uint64
}

// PrizeDistribution projects the settlement split of the current pot.
// Prize is the fixed prize capped at the pot, or half the pot when no
// fixed prize is set. Donation takes the configured percentage of the
// remainder; commission absorbs what is left, including every integer
// division remainder. The three parts always sum to the pot exactly.
func (r *Raffle) PrizeDistribution() Distribution {
	prize := r.pot / 2
	if r.fixedPrize > 0 {
		prize = min(r.fixedPrize, r.pot)
	}
	donation := (r.pot - prize) * r.donationPercent / 100
	return Distribution{
		Prize:      prize,
		Donation:   donation,
		Commission: r.pot - prize - donation,
	}
}

// PrizePool returns the prize the winner would receive right now.
func (r *Raffle) PrizePool() uint64 {
	return r.PrizeDistribution().Prize
}

// DonationAmount returns the donation share of the current pot.
func (r *Raffle) DonationAmount() uint64 {
	return r.PrizeDistribution().Donation
}

// FinishRaffle settles the raffle: owner only, after the deadline, at
// most once, and only with a non-empty pot. The winner is written before
// any payout so a re-entrant or repeated call is rejected by the
// already-settled guard; a failed payout rolls that write back, leaving
// the raffle exactly as it was.
func (r *Raffle) FinishRaffle(ctx context.Context, caller, donationAddr model.Address) (model.Address, error) {
	if caller != r.owner {
		return model.ZeroAddress, ErrNotOwner
	}
	if !r.winner.IsZero() {
		return model.ZeroAddress, ErrAlreadySettled
	}
	if r.heads.Head().Time.Before(r.endDate) {
		return model.ZeroAddress, ErrRaffleNotFinished
	}
	if r.pot == 0 {
		return model.ZeroAddress, ErrEmptyPot
	}
	if donationAddr.IsZero() {
		return model.ZeroAddress, fmt.Errorf("%w: zero donation address", ErrInvalidPurchase)
	}

	winner, err := r.pickWinner()
	if err != nil {
		return model.ZeroAddress, err
	}
	r.winner = winner

	split := r.PrizeDistribution()
	payments := []token.Payment{
		{To: winner, Amount: split.Prize},
		{To: donationAddr, Amount: split.Donation},
		{To: r.owner, Amount: split.Commission},
	}
	if err := r.currency.BatchTransfer(ctx, r.escrow, payments); err != nil {
		// Nothing was paid out; undo the winner write so the whole
		// operation is a no-op.
		r.winner = model.ZeroAddress
		var failed *token.TransferFailedError
		if errors.As(err, &failed) {
			return model.ZeroAddress, &TransferError{Recipient: failed.To, Amount: failed.Amount, Err: failed.Err}
		}
		return model.ZeroAddress, fmt.Errorf("settlement payout: %w", err)
	}
	r.pot = 0

	r.events.Publish(EventWinnerPicked, map[string]any{
		"winner":     string(winner),
		"prize":      split.Prize,
		"donation":   split.Donation,
		"commission": split.Commission,
	})
	return winner, nil
}
