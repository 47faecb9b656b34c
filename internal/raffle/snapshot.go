package raffle

import (
	"fmt"
	"time"

	"raffle-bot/internal/model"
)

// PlayerTickets pairs a player with its ticket count, in player
// insertion order.
type PlayerTickets struct {
	Address model.Address
	Tickets uint64
}

// Snapshot is the portable state of a raffle, used to persist open
// sessions and rebuild them after a restart.
type Snapshot struct {
	EndDate time.Time
	Players []PlayerTickets
	Pot     uint64
	Winner  model.Address
}

// Snapshot captures the current state.
func (r *Raffle) Snapshot() Snapshot {
	players := make([]PlayerTickets, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, PlayerTickets{Address: p, Tickets: r.tickets[p]})
	}
	return Snapshot{
		EndDate: r.endDate,
		Players: players,
		Pot:     r.pot,
		Winner:  r.winner,
	}
}

// Load creates a raffle from a snapshot, bypassing the end-date-in-the-
// future construction check: a restored raffle may already be past its
// deadline and only awaiting settlement. All other configuration checks
// still apply.
func Load(cfg Config, snap Snapshot) (*Raffle, error) {
	probe := cfg
	probe.DurationDays = 1
	r, err := New(probe)
	if err != nil {
		return nil, err
	}

	r.endDate = snap.EndDate
	r.pot = snap.Pot
	r.winner = snap.Winner
	for _, p := range snap.Players {
		if p.Address.IsZero() || r.isPlayer[p.Address] {
			return nil, fmt.Errorf("raffle: corrupt snapshot: bad player entry %q", p.Address)
		}
		r.enroll(p.Address)
		r.tickets[p.Address] = p.Tickets
		r.ticketsSold += p.Tickets
	}
	return r, nil
}
