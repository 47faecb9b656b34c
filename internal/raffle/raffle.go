// Package raffle implements the raffle ledger state machine: bundle
// pricing, purchase and referral accounting, weighted winner selection
// and one-shot settlement.
//
// A Raffle is not safe for concurrent use. Callers must serialize all
// operations through a single mutual-exclusion boundary, preserving the
// no-interleaving contract of the transactional host this models.
package raffle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"raffle-bot/internal/chain"
	"raffle-bot/internal/entropy"
	"raffle-bot/internal/model"
	"raffle-bot/internal/token"
)

// PaymentMode selects how purchase consideration reaches the pot.
type PaymentMode int

const (
	// PayAttached models native-coin purchases: the payment accompanies
	// the call and is credited in full, excess included.
	PayAttached PaymentMode = iota

	// PayPull models token purchases: the exact tier price is pulled via
	// a pre-approved allowance.
	PayPull
)

// DefaultDonationPercent is the share of the post-prize remainder that
// goes to the donation address.
const DefaultDonationPercent = 75

// Config describes a raffle at construction time.
type Config struct {
	Owner        model.Address
	Escrow       model.Address // the raffle's own funds account
	TicketPrice  uint64        // base (small bundle) price, minor units
	DurationDays int
	FixedPrize   uint64 // 0 means half the pot at settlement
	// DonationPercent defaults to DefaultDonationPercent when 0.
	DonationPercent uint64
	Mode            PaymentMode
	Currency        token.Currency
	Heads           chain.Provider
	Entropy         entropy.Source
	Events          EventSink // optional
}

// Raffle is the ledger aggregate. All state lives here; there are no
// package-level statics.
type Raffle struct {
	owner           model.Address
	escrow          model.Address
	endDate         time.Time
	bundles         [3]Bundle
	mode            PaymentMode
	fixedPrize      uint64
	donationPercent uint64

	// players is insertion-ordered and duplicate-free; isPlayer is its
	// membership index. The winner scan depends on this order.
	players     []model.Address
	isPlayer    map[model.Address]bool
	tickets     map[model.Address]uint64
	ticketsSold uint64
	pot         uint64
	winner      model.Address

	currency token.Currency
	heads    chain.Provider
	entropy  entropy.Source
	events   EventSink
}

// New validates the configuration and creates an open raffle. The end
// date is the current head time plus the configured duration and is
// immutable afterwards.
func New(cfg Config) (*Raffle, error) {
	if cfg.Currency == nil || cfg.Heads == nil || cfg.Entropy == nil {
		return nil, fmt.Errorf("raffle: currency, heads and entropy are required")
	}
	if cfg.Owner.IsZero() || cfg.Escrow.IsZero() || cfg.Owner == cfg.Escrow {
		return nil, fmt.Errorf("raffle: owner and escrow must be distinct non-zero addresses")
	}
	if cfg.TicketPrice == 0 {
		return nil, fmt.Errorf("%w: ticket price must be positive", ErrInvalidPurchase)
	}
	if cfg.DurationDays < 1 {
		return nil, fmt.Errorf("%w: duration must be at least one day", ErrInvalidTimestamp)
	}
	donation := cfg.DonationPercent
	if donation == 0 {
		donation = DefaultDonationPercent
	}
	if donation > 100 {
		return nil, fmt.Errorf("raffle: donation percent %d exceeds 100", donation)
	}

	now := cfg.Heads.Head().Time
	endDate := now.Add(time.Duration(cfg.DurationDays) * 24 * time.Hour)
	if !endDate.After(now) {
		return nil, ErrInvalidTimestamp
	}

	events := cfg.Events
	if events == nil {
		events = NopSink{}
	}

	return &Raffle{
		owner:           cfg.Owner,
		escrow:          cfg.Escrow,
		endDate:         endDate,
		bundles:         makeBundles(cfg.TicketPrice),
		mode:            cfg.Mode,
		fixedPrize:      cfg.FixedPrize,
		donationPercent: donation,
		isPlayer:        make(map[model.Address]bool),
		tickets:         make(map[model.Address]uint64),
		currency:        cfg.Currency,
		heads:           cfg.Heads,
		entropy:         cfg.Entropy,
		events:          events,
	}, nil
}

// BuySmallBundle purchases the small tier. Returns the tickets granted.
func (r *Raffle) BuySmallBundle(ctx context.Context, caller model.Address, payment uint64) (uint64, error) {
	return r.BuyBundle(ctx, caller, TierSmall, payment)
}

// BuyMediumBundle purchases the medium tier. Returns the tickets granted.
func (r *Raffle) BuyMediumBundle(ctx context.Context, caller model.Address, payment uint64) (uint64, error) {
	return r.BuyBundle(ctx, caller, TierMedium, payment)
}

// BuyLargeBundle purchases the large tier. Returns the tickets granted.
func (r *Raffle) BuyLargeBundle(ctx context.Context, caller model.Address, payment uint64) (uint64, error) {
	return r.BuyBundle(ctx, caller, TierLarge, payment)
}

// BuyBundle purchases the given tier. In PayAttached mode the payment
// must meet the tier price and is credited in full; in PayPull mode the
// payment argument is ignored and the exact price is pulled from the
// caller's pre-approved allowance.
func (r *Raffle) BuyBundle(ctx context.Context, caller model.Address, tier Tier, payment uint64) (uint64, error) {
	granted, _, err := r.buyBundle(ctx, caller, tier, payment)
	return granted, err
}

// BuyBundleWithReferral composes a purchase with a referral grant. The
// referral preconditions are checked before any value moves, so a failed
// referral leaves no partial purchase behind.
func (r *Raffle) BuyBundleWithReferral(ctx context.Context, caller model.Address, tier Tier, payment uint64, referral model.Address) (uint64, error) {
	if err := r.checkReferral(caller, referral); err != nil {
		return 0, err
	}
	granted, _, err := r.buyBundle(ctx, caller, tier, payment)
	if err != nil {
		return 0, err
	}
	r.grantReferral(referral)
	return granted, nil
}

// Receive handles a raw payment with no tier selected: it is classified
// into the largest tier whose price it meets or exceeds. Excess above the
// tier price stays in the pot.
func (r *Raffle) Receive(ctx context.Context, caller model.Address, payment uint64) (uint64, error) {
	tier, ok := r.classifyPayment(payment)
	if !ok {
		return 0, fmt.Errorf("%w: payment %d below the smallest bundle price", ErrInsufficientFunds, payment)
	}
	// Raw payments carry their value with the call, so they always
	// resolve through attached semantics.
	granted, _, err := r.buyAttached(ctx, caller, tier, payment)
	return granted, err
}

// buyBundle validates, moves value, then records: checks-effects-
// interactions ordering with the authoritative write last.
func (r *Raffle) buyBundle(ctx context.Context, caller model.Address, tier Tier, payment uint64) (uint64, uint64, error) {
	if r.mode == PayPull {
		return r.buyPulled(ctx, caller, tier)
	}
	return r.buyAttached(ctx, caller, tier, payment)
}

func (r *Raffle) buyAttached(ctx context.Context, caller model.Address, tier Tier, payment uint64) (uint64, uint64, error) {
	b, err := r.checkPurchase(caller, tier)
	if err != nil {
		return 0, 0, err
	}
	if payment < b.Price {
		return 0, 0, fmt.Errorf("%w: need %d, got %d", ErrInsufficientFunds, b.Price, payment)
	}
	if err := r.currency.Transfer(ctx, caller, r.escrow, payment); err != nil {
		return 0, 0, mapCurrencyErr(err)
	}
	r.record(caller, b.Amount, payment)
	r.events.Publish(EventBundlePurchased, map[string]any{
		"player": string(caller), "tier": tier.String(), "tickets": b.Amount, "paid": payment,
	})
	return b.Amount, payment, nil
}

func (r *Raffle) buyPulled(ctx context.Context, caller model.Address, tier Tier) (uint64, uint64, error) {
	b, err := r.checkPurchase(caller, tier)
	if err != nil {
		return 0, 0, err
	}
	// The allowance is checked before attempting the pull.
	allowance, err := r.currency.Allowance(ctx, caller, r.escrow)
	if err != nil {
		return 0, 0, fmt.Errorf("allowance check: %w", err)
	}
	if allowance < b.Price {
		return 0, 0, fmt.Errorf("%w: need %d, approved %d", ErrInsufficientAllowance, b.Price, allowance)
	}
	balance, err := r.currency.BalanceOf(ctx, caller)
	if err != nil {
		return 0, 0, fmt.Errorf("balance check: %w", err)
	}
	if balance < b.Price {
		return 0, 0, fmt.Errorf("%w: need %d, have %d", ErrInsufficientFunds, b.Price, balance)
	}
	if err := r.currency.TransferFrom(ctx, r.escrow, caller, r.escrow, b.Price); err != nil {
		return 0, 0, mapCurrencyErr(err)
	}
	r.record(caller, b.Amount, b.Price)
	r.events.Publish(EventBundlePurchased, map[string]any{
		"player": string(caller), "tier": tier.String(), "tickets": b.Amount, "paid": b.Price,
	})
	return b.Amount, b.Price, nil
}

// checkPurchase validates every purchase precondition without mutating.
func (r *Raffle) checkPurchase(caller model.Address, tier Tier) (Bundle, error) {
	if tier < TierSmall || tier > TierLarge {
		return Bundle{}, fmt.Errorf("%w: unknown tier %d", ErrInvalidPurchase, tier)
	}
	b := r.bundles[tier]
	if b.Amount == 0 || b.Price == 0 {
		return Bundle{}, ErrInvalidPurchase
	}
	if caller.IsZero() {
		return Bundle{}, fmt.Errorf("%w: zero caller address", ErrInvalidPurchase)
	}
	if caller == r.owner {
		return Bundle{}, ErrOwnerExcluded
	}
	if !r.heads.Head().Time.Before(r.endDate) {
		return Bundle{}, ErrRaffleClosed
	}
	if !r.winner.IsZero() {
		return Bundle{}, ErrAlreadySettled
	}
	return b, nil
}

// record applies the bookkeeping of a successful purchase.
func (r *Raffle) record(caller model.Address, amount, paid uint64) {
	r.enroll(caller)
	r.tickets[caller] += amount
	r.ticketsSold += amount
	r.pot += paid
}

// enroll adds caller to the player set. Adding an existing member is a no-op.
func (r *Raffle) enroll(addr model.Address) {
	if r.isPlayer[addr] {
		return
	}
	r.isPlayer[addr] = true
	r.players = append(r.players, addr)
}

// GetFreeTicket grants exactly one ticket to a first-time, non-owner
// caller. A second call fails instead of double-granting.
func (r *Raffle) GetFreeTicket(caller model.Address) error {
	if caller.IsZero() {
		return fmt.Errorf("%w: zero caller address", ErrInvalidPurchase)
	}
	if caller == r.owner {
		return ErrOwnerExcluded
	}
	if !r.heads.Head().Time.Before(r.endDate) {
		return ErrRaffleClosed
	}
	if r.isPlayer[caller] || r.tickets[caller] > 0 {
		return ErrAlreadyClaimed
	}
	r.enroll(caller)
	r.tickets[caller] = 1
	r.ticketsSold++
	r.events.Publish(EventFreeTicketClaimed, map[string]any{"player": string(caller)})
	return nil
}

// ReferTicket grants one bonus ticket to referral. The target must
// already hold a ticket; the caller gains nothing from the grant.
func (r *Raffle) ReferTicket(caller, referral model.Address) error {
	if err := r.checkReferral(caller, referral); err != nil {
		return err
	}
	if !r.heads.Head().Time.Before(r.endDate) {
		return ErrRaffleClosed
	}
	r.grantReferral(referral)
	return nil
}

func (r *Raffle) checkReferral(caller, referral model.Address) error {
	if referral == caller {
		return ErrSelfReferral
	}
	if referral.IsZero() || !r.isPlayer[referral] || r.tickets[referral] == 0 {
		return ErrNotAPlayer
	}
	return nil
}

func (r *Raffle) grantReferral(referral model.Address) {
	r.tickets[referral]++
	r.ticketsSold++
	r.events.Publish(EventReferralGranted, map[string]any{
		"referred": string(referral), "tickets": r.tickets[referral],
	})
}

// Accessors.

// Owner returns the immutable owner address.
func (r *Raffle) Owner() model.Address { return r.owner }

// Escrow returns the raffle's own funds account.
func (r *Raffle) Escrow() model.Address { return r.escrow }

// EndDate returns the immutable purchase deadline.
func (r *Raffle) EndDate() time.Time { return r.endDate }

// Pot returns the consideration collected and not yet distributed.
func (r *Raffle) Pot() uint64 { return r.pot }

// Winner returns the winning address, or the zero sentinel before settlement.
func (r *Raffle) Winner() model.Address { return r.winner }

// Settled reports whether settlement has completed.
func (r *Raffle) Settled() bool { return !r.winner.IsZero() }

// Tickets returns the ticket count held by addr.
func (r *Raffle) Tickets(addr model.Address) uint64 { return r.tickets[addr] }

// TicketsSold returns the total tickets granted across all players.
func (r *Raffle) TicketsSold() uint64 { return r.ticketsSold }

// Players returns the players in insertion order.
func (r *Raffle) Players() []model.Address {
	out := make([]model.Address, len(r.players))
	copy(out, r.players)
	return out
}

// ListSoldTickets returns the total ticket count. Owner only.
func (r *Raffle) ListSoldTickets(caller model.Address) (uint64, error) {
	if caller != r.owner {
		return 0, ErrNotOwner
	}
	return r.ticketsSold, nil
}

func mapCurrencyErr(err error) error {
	switch {
	case errors.Is(err, token.ErrInsufficientFunds):
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	case errors.Is(err, token.ErrInsufficientAllowance):
		return fmt.Errorf("%w: %v", ErrInsufficientAllowance, err)
	default:
		return fmt.Errorf("payment: %w", err)
	}
}
