// Package entropy abstracts the pseudo-random source used for winner
// selection so it can be swapped for a verifiable randomness function.
package entropy

import (
	"crypto/sha256"
	"encoding/binary"

	"raffle-bot/internal/chain"
)

// Source draws a pseudo-random value in [0, bound). bound must be > 0.
type Source interface {
	Draw(seed []byte, bound uint64) uint64
}

// BlockMixer mixes block metadata (beacon, height, timestamp) with the
// caller-supplied seed through SHA-256.
//
// The head fields are observable before settlement executes, so the draw
// is predictable to whoever controls settlement timing. That is a trust
// assumption inherited from the contract this models: settlement is
// expected to be triggered manually at an unannounced moment.
type BlockMixer struct {
	Heads chain.Provider
}

// NewBlockMixer creates a mixer over the given head provider.
func NewBlockMixer(heads chain.Provider) BlockMixer {
	return BlockMixer{Heads: heads}
}

// Draw hashes the current head together with seed and reduces the first
// eight digest bytes modulo bound. The modulo bias is below 2^-40 for any
// realistic ticket total.
func (m BlockMixer) Draw(seed []byte, bound uint64) uint64 {
	if bound == 0 {
		return 0
	}
	head := m.Heads.Head()

	h := sha256.New()
	h.Write(head.Beacon[:])

	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], head.Height)
	binary.BigEndian.PutUint64(buf[8:], uint64(head.Time.UnixNano()))
	h.Write(buf[:])
	h.Write(seed)

	digest := h.Sum(nil)
	return binary.BigEndian.Uint64(digest[:8]) % bound
}
