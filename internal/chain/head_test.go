package chain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSimulator_Head(t *testing.T) {
	s := NewSimulator(time.Hour)

	h1 := s.Head()
	h2 := s.Head()

	// Within one block interval the height and beacon are stable.
	assert.Equal(t, h1.Height, h2.Height)
	assert.Equal(t, h1.Beacon, h2.Beacon)
	assert.False(t, h2.Time.Before(h1.Time))

	// The same height always yields the same beacon.
	assert.Equal(t, s.beaconAt(5), s.beaconAt(5))
	assert.NotEqual(t, s.beaconAt(5), s.beaconAt(6))
}

func TestSimulator_DefaultBlockTime(t *testing.T) {
	s := NewSimulator(0)
	assert.Equal(t, 12*time.Second, s.blockTime)
}

func TestManual_Advance(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	m := NewManual(Head{Height: 10, Time: start})

	before := m.Head()
	m.Advance(30 * time.Second)
	after := m.Head()

	assert.Equal(t, before.Height+1, after.Height)
	assert.Equal(t, start.Add(30*time.Second), after.Time)
	assert.NotEqual(t, before.Beacon, after.Beacon)

	m.Set(Head{Height: 99, Time: start})
	assert.Equal(t, uint64(99), m.Head().Height)
}
