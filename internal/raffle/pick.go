package raffle

import (
	"encoding/binary"
	"fmt"

	"raffle-bot/internal/model"
)

// pickWinner draws a pseudo-random value R in [0, total tickets) and
// scans players in insertion order, accumulating ticket counts; the
// winner is the first player whose cumulative sum strictly exceeds R.
// Each player therefore wins with probability tickets/total exactly.
func (r *Raffle) pickWinner() (model.Address, error) {
	total := r.ticketsSold
	if total == 0 {
		return model.ZeroAddress, ErrNoParticipants
	}

	rnd := r.entropy.Draw(r.drawSeed(), total)

	var cumulative uint64
	for _, p := range r.players {
		cumulative += r.tickets[p]
		if cumulative > rnd {
			return p, nil
		}
	}

	// Unreachable while ticketsSold equals the sum of per-player counts.
	panic(fmt.Sprintf("raffle: winner scan exhausted: drew %d of %d tickets over %d players",
		rnd, total, len(r.players)))
}

// drawSeed binds the draw to this raffle's state so distinct raffles
// settling at the same head draw independently.
func (r *Raffle) drawSeed() []byte {
	seed := make([]byte, 0, len(r.escrow)+16)
	seed = append(seed, r.escrow...)
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], r.ticketsSold)
	binary.BigEndian.PutUint64(buf[8:], uint64(len(r.players)))
	return append(seed, buf[:]...)
}
