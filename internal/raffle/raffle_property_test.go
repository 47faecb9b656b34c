package raffle

import (
	"context"
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"

	"raffle-bot/internal/chain"
	"raffle-bot/internal/model"
	"raffle-bot/internal/token"
)

// TestAccountingConservationProperty runs random operation sequences and
// checks the bookkeeping invariants after every step: tickets sold equals
// the sum of per-player counts, the pot equals everything paid in, the
// escrow holds exactly the pot, and the player list stays duplicate-free.
func TestAccountingConservationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ledger := token.NewLedger()
		heads := chain.NewManual(chain.Head{
			Height: 1,
			Time:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		})
		ticketPrice := rapid.Uint64Range(1, 100000).Draw(t, "ticketPrice")

		r, err := New(Config{
			Owner:        owner,
			Escrow:       escrow,
			TicketPrice:  ticketPrice,
			DurationDays: 1,
			Mode:         PayAttached,
			Currency:     ledger,
			Heads:        heads,
			Entropy:      &scriptedSource{},
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		numPlayers := rapid.IntRange(1, 8).Draw(t, "numPlayers")
		players := make([]model.Address, numPlayers)
		for i := range players {
			players[i] = model.Address(fmt.Sprintf("0xplayer%d", i))
			ledger.Mint(players[i], 10*5*ticketPrice)
		}

		ctx := context.Background()
		var expectedPot uint64

		numOps := rapid.IntRange(1, 40).Draw(t, "numOps")
		for i := 0; i < numOps; i++ {
			caller := players[rapid.IntRange(0, numPlayers-1).Draw(t, "caller")]
			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0: // bundle purchase
				tier := Tier(rapid.IntRange(0, 2).Draw(t, "tier"))
				price := r.Bundles()[tier].Price
				if _, err := r.BuyBundle(ctx, caller, tier, price); err == nil {
					expectedPot += price
				}
			case 1: // raw payment
				payment := rapid.Uint64Range(0, 6*ticketPrice).Draw(t, "payment")
				if _, err := r.Receive(ctx, caller, payment); err == nil {
					expectedPot += payment
				}
			case 2: // free ticket, may be rejected
				_ = r.GetFreeTicket(caller)
			case 3: // referral, may be rejected
				target := players[rapid.IntRange(0, numPlayers-1).Draw(t, "target")]
				_ = r.ReferTicket(caller, target)
			}

			var sumTickets uint64
			seen := make(map[model.Address]bool)
			for _, p := range r.Players() {
				if seen[p] {
					t.Fatalf("duplicate player %s", p)
				}
				seen[p] = true
				sumTickets += r.Tickets(p)
			}
			if sumTickets != r.TicketsSold() {
				t.Fatalf("tickets sold %d != per-player sum %d", r.TicketsSold(), sumTickets)
			}
			if r.Pot() != expectedPot {
				t.Fatalf("pot %d != paid in %d", r.Pot(), expectedPot)
			}
			escrowBal, _ := ledger.BalanceOf(ctx, escrow)
			if escrowBal != r.Pot() {
				t.Fatalf("escrow balance %d != pot %d", escrowBal, r.Pot())
			}
		}
	})
}

// TestBundlePricingProperty checks the tier shape for any base price:
// ticket counts grow while the effective per-ticket price shrinks.
func TestBundlePricingProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ticketPrice := rapid.Uint64Range(1, 1<<40).Draw(t, "ticketPrice")
		bundles := makeBundles(ticketPrice)

		if bundles[TierSmall].Amount >= bundles[TierMedium].Amount ||
			bundles[TierMedium].Amount >= bundles[TierLarge].Amount {
			t.Fatalf("ticket counts must grow: %+v", bundles)
		}
		if bundles[TierSmall].Price >= bundles[TierMedium].Price ||
			bundles[TierMedium].Price >= bundles[TierLarge].Price {
			t.Fatalf("prices must grow: %+v", bundles)
		}

		// Cross-multiplied per-ticket comparison avoids float rounding:
		// price_m/amount_m < price_s/amount_s.
		if bundles[TierMedium].Price*bundles[TierSmall].Amount >=
			bundles[TierSmall].Price*bundles[TierMedium].Amount {
			t.Fatalf("medium tier must be cheaper per ticket: %+v", bundles)
		}
		if bundles[TierLarge].Price*bundles[TierMedium].Amount >=
			bundles[TierMedium].Price*bundles[TierLarge].Amount {
			t.Fatalf("large tier must be cheaper per ticket: %+v", bundles)
		}
	})
}

// TestClassifyPaymentProperty checks the fallback classification: a
// payment maps to the largest tier it can afford, and only payments below
// the small price are rejected.
func TestClassifyPaymentProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ticketPrice := rapid.Uint64Range(1, 1<<40).Draw(t, "ticketPrice")
		payment := rapid.Uint64Range(0, 7*ticketPrice).Draw(t, "payment")
		r := &Raffle{bundles: makeBundles(ticketPrice)}

		tier, ok := r.classifyPayment(payment)
		if payment < ticketPrice {
			if ok {
				t.Fatalf("payment %d below base price %d classified as %v", payment, ticketPrice, tier)
			}
			return
		}
		if !ok {
			t.Fatalf("payment %d not classified", payment)
		}
		if payment < r.bundles[tier].Price {
			t.Fatalf("payment %d cannot afford tier %v at %d", payment, tier, r.bundles[tier].Price)
		}
		if tier < TierLarge && payment >= r.bundles[tier+1].Price {
			t.Fatalf("payment %d affords tier %v but classified as %v", payment, tier+1, tier)
		}
	})
}

// TestWinnerScanTotalProperty checks that every possible draw value in
// [0, total) selects exactly one player, for arbitrary ticket layouts.
func TestWinnerScanTotalProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numPlayers := rapid.IntRange(1, 6).Draw(t, "numPlayers")
		source := &scriptedSource{}

		r := &Raffle{
			isPlayer: make(map[model.Address]bool),
			tickets:  make(map[model.Address]uint64),
			entropy:  source,
			escrow:   escrow,
			events:   NopSink{},
		}
		counts := make(map[model.Address]uint64)
		for i := 0; i < numPlayers; i++ {
			p := model.Address(fmt.Sprintf("0xp%d", i))
			n := rapid.Uint64Range(1, 20).Draw(t, "tickets")
			r.enroll(p)
			r.tickets[p] = n
			r.ticketsSold += n
			counts[p] = n
		}

		wins := make(map[model.Address]uint64)
		for draw := uint64(0); draw < r.ticketsSold; draw++ {
			source.values = []uint64{draw}
			source.i = 0
			winner, err := r.pickWinner()
			if err != nil {
				t.Fatalf("draw %d: %v", draw, err)
			}
			wins[winner]++
		}

		// Exhausting the draw space hits each player exactly its ticket count.
		for p, n := range counts {
			if wins[p] != n {
				t.Fatalf("player %s won %d of %d draws, holds %d tickets", p, wins[p], r.ticketsSold, n)
			}
		}
	})
}
