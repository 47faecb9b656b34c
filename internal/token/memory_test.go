package token

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raffle-bot/internal/model"
)

var (
	alice = model.Address("0xalice")
	bob   = model.Address("0xbob")
	carol = model.Address("0xcarol")
)

func TestLedger_Transfer(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	l.Mint(alice, 1000)

	require.NoError(t, l.Transfer(ctx, alice, bob, 400))

	aliceBal, _ := l.BalanceOf(ctx, alice)
	bobBal, _ := l.BalanceOf(ctx, bob)
	assert.Equal(t, uint64(600), aliceBal)
	assert.Equal(t, uint64(400), bobBal)

	assert.ErrorIs(t, l.Transfer(ctx, alice, bob, 601), ErrInsufficientFunds)

	// Unknown accounts read as zero.
	unknownBal, err := l.BalanceOf(ctx, carol)
	require.NoError(t, err)
	assert.Zero(t, unknownBal)
}

func TestLedger_TransferFrom(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	l.Mint(alice, 1000)

	// No allowance set.
	assert.ErrorIs(t, l.TransferFrom(ctx, bob, alice, carol, 100), ErrInsufficientAllowance)

	require.NoError(t, l.Approve(ctx, alice, bob, 300))
	allowance, _ := l.Allowance(ctx, alice, bob)
	assert.Equal(t, uint64(300), allowance)

	require.NoError(t, l.TransferFrom(ctx, bob, alice, carol, 200))
	carolBal, _ := l.BalanceOf(ctx, carol)
	assert.Equal(t, uint64(200), carolBal)

	// The allowance was consumed, not reset.
	allowance, _ = l.Allowance(ctx, alice, bob)
	assert.Equal(t, uint64(100), allowance)

	assert.ErrorIs(t, l.TransferFrom(ctx, bob, alice, carol, 101), ErrInsufficientAllowance)
}

func TestLedger_BatchTransfer_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	l.Mint(alice, 500)

	err := l.BatchTransfer(ctx, alice, []Payment{
		{To: bob, Amount: 300},
		{To: carol, Amount: 300},
	})
	require.Error(t, err)

	var failed *TransferFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, carol, failed.To)
	assert.ErrorIs(t, failed, ErrInsufficientFunds)

	// Nothing moved.
	aliceBal, _ := l.BalanceOf(ctx, alice)
	bobBal, _ := l.BalanceOf(ctx, bob)
	assert.Equal(t, uint64(500), aliceBal)
	assert.Zero(t, bobBal)

	// A covered batch applies every leg.
	require.NoError(t, l.BatchTransfer(ctx, alice, []Payment{
		{To: bob, Amount: 300},
		{To: carol, Amount: 200},
	}))
	aliceBal, _ = l.BalanceOf(ctx, alice)
	bobBal, _ = l.BalanceOf(ctx, bob)
	carolBal, _ := l.BalanceOf(ctx, carol)
	assert.Zero(t, aliceBal)
	assert.Equal(t, uint64(300), bobBal)
	assert.Equal(t, uint64(200), carolBal)
}

func TestLedger_BatchTransfer_ZeroLegs(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	l.Mint(alice, 100)

	// Zero-amount legs are fine; they model empty distribution shares.
	require.NoError(t, l.BatchTransfer(ctx, alice, []Payment{
		{To: bob, Amount: 0},
		{To: carol, Amount: 100},
	}))
	carolBal, _ := l.BalanceOf(ctx, carol)
	assert.Equal(t, uint64(100), carolBal)
}
