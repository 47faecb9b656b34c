package raffle

// Tier selects one of the three fixed ticket bundles.
type Tier int

// Bundle tiers, smallest to largest.
const (
	TierSmall Tier = iota
	TierMedium
	TierLarge
)

// String returns the tier's entry-kind style name.
func (t Tier) String() string {
	switch t {
	case TierSmall:
		return "small"
	case TierMedium:
		return "medium"
	case TierLarge:
		return "large"
	default:
		return "unknown"
	}
}

// Bundle is a fixed (ticket count, price) pair purchasable as a unit.
type Bundle struct {
	Amount uint64
	Price  uint64
}

// Bundle shapes. Price grows sub-linearly with ticket count: the medium
// and large tiers cost 3x and 5x the base price for far more than 3x and
// 5x the tickets.
const (
	smallAmount  = 45
	mediumAmount = 200
	largeAmount  = 660

	mediumPriceFactor = 3
	largePriceFactor  = 5
)

// makeBundles derives the three tiers from the base ticket price.
func makeBundles(ticketPrice uint64) [3]Bundle {
	return [3]Bundle{
		TierSmall:  {Amount: smallAmount, Price: ticketPrice},
		TierMedium: {Amount: mediumAmount, Price: mediumPriceFactor * ticketPrice},
		TierLarge:  {Amount: largeAmount, Price: largePriceFactor * ticketPrice},
	}
}

// Bundles returns the three tiers, smallest to largest.
func (r *Raffle) Bundles() []Bundle {
	return []Bundle{r.bundles[TierSmall], r.bundles[TierMedium], r.bundles[TierLarge]}
}

// classifyPayment picks the largest tier whose price the payment meets or
// exceeds. Overpayment is accepted as-is; the excess stays in the pot and
// is not refunded or converted into extra tickets.
func (r *Raffle) classifyPayment(payment uint64) (Tier, bool) {
	for _, t := range []Tier{TierLarge, TierMedium, TierSmall} {
		if payment >= r.bundles[t].Price {
			return t, true
		}
	}
	return 0, false
}
