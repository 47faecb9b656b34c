package token

import (
	"context"
	"sync"

	"raffle-bot/internal/model"
)

// Ledger is an in-memory Currency. It backs unit tests and serves as the
// native-coin stand-in when no database is configured.
type Ledger struct {
	mu         sync.Mutex
	balances   map[model.Address]uint64
	allowances map[model.Address]map[model.Address]uint64
}

// NewLedger creates an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances:   make(map[model.Address]uint64),
		allowances: make(map[model.Address]map[model.Address]uint64),
	}
}

// Mint credits freshly created funds to addr.
func (l *Ledger) Mint(addr model.Address, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[addr] += amount
}

// BalanceOf returns the balance of addr.
func (l *Ledger) BalanceOf(_ context.Context, addr model.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[addr], nil
}

// Allowance returns spender's allowance over owner's funds.
func (l *Ledger) Allowance(_ context.Context, owner, spender model.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowances[owner][spender], nil
}

// Approve sets spender's allowance over owner's funds.
func (l *Ledger) Approve(_ context.Context, owner, spender model.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.allowances[owner]
	if !ok {
		m = make(map[model.Address]uint64)
		l.allowances[owner] = m
	}
	m[spender] = amount
	return nil
}

// Transfer moves amount between accounts.
func (l *Ledger) Transfer(_ context.Context, from, to model.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(from, to, amount)
}

// TransferFrom moves amount from `from` to `to`, consuming spender's allowance.
func (l *Ledger) TransferFrom(_ context.Context, spender, from, to model.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.allowances[from][spender] < amount {
		return ErrInsufficientAllowance
	}
	if err := l.move(from, to, amount); err != nil {
		return err
	}
	l.allowances[from][spender] -= amount
	return nil
}

// BatchTransfer applies all payments or none of them.
func (l *Ledger) BatchTransfer(_ context.Context, from model.Address, payments []Payment) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total uint64
	for _, p := range payments {
		total += p.Amount
	}
	if l.balances[from] < total {
		// Identify the leg that would have overdrawn the account.
		remaining := l.balances[from]
		for _, p := range payments {
			if p.Amount > remaining {
				return &TransferFailedError{To: p.To, Amount: p.Amount, Err: ErrInsufficientFunds}
			}
			remaining -= p.Amount
		}
	}
	for _, p := range payments {
		if err := l.move(from, p.To, p.Amount); err != nil {
			return &TransferFailedError{To: p.To, Amount: p.Amount, Err: err}
		}
	}
	return nil
}

// move requires l.mu to be held.
func (l *Ledger) move(from, to model.Address, amount uint64) error {
	if l.balances[from] < amount {
		return ErrInsufficientFunds
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

var _ Currency = (*Ledger)(nil)
