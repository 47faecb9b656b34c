// Package chain provides ambient block metadata: the deadline clock and
// the entropy material the raffle core consumes.
package chain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"time"
)

// Head is a snapshot of block-level metadata.
type Head struct {
	Height uint64
	Time   time.Time
	Beacon [32]byte
}

// Provider supplies the current head.
type Provider interface {
	Head() Head
}

// Simulator derives heads from the wall clock: height advances once per
// block interval and the beacon is hash-chained from a random genesis, so
// a given height always yields the same beacon.
type Simulator struct {
	genesis   time.Time
	blockTime time.Duration
	seed      [32]byte

	mu     sync.Mutex
	cache  map[uint64][32]byte
	cached uint64
}

// NewSimulator creates a simulator with the given block interval.
func NewSimulator(blockTime time.Duration) *Simulator {
	if blockTime <= 0 {
		blockTime = 12 * time.Second
	}
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		// crypto/rand failing means the host is broken; fall back to the clock.
		binary.BigEndian.PutUint64(seed[:], uint64(time.Now().UnixNano()))
	}
	return &Simulator{
		genesis:   time.Now(),
		blockTime: blockTime,
		seed:      seed,
		cache:     make(map[uint64][32]byte),
	}
}

// Head returns the head for the current wall-clock instant.
func (s *Simulator) Head() Head {
	now := time.Now()
	height := uint64(now.Sub(s.genesis) / s.blockTime)
	return Head{
		Height: height,
		Time:   now,
		Beacon: s.beaconAt(height),
	}
}

func (s *Simulator) beaconAt(height uint64) [32]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.cache[height]; ok {
		return b
	}
	var buf [40]byte
	copy(buf[:32], s.seed[:])
	binary.BigEndian.PutUint64(buf[32:], height)
	b := sha256.Sum256(buf[:])
	s.cache[height] = b
	if len(s.cache) > 1024 {
		// Old heights are never asked for again.
		s.cache = map[uint64][32]byte{height: b}
	}
	return b
}

// Manual is a provider whose head is set explicitly. It is used by tests
// and by dry-run replays of recorded raffles.
type Manual struct {
	mu   sync.Mutex
	head Head
}

// NewManual creates a manual provider positioned at the given head.
func NewManual(head Head) *Manual {
	return &Manual{head: head}
}

// Head returns the currently set head.
func (m *Manual) Head() Head {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.head
}

// Set replaces the current head.
func (m *Manual) Set(head Head) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.head = head
}

// Advance moves time forward by d and bumps the height, rotating the
// beacon by hashing the previous one.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.head.Height++
	m.head.Time = m.head.Time.Add(d)
	m.head.Beacon = sha256.Sum256(m.head.Beacon[:])
}
