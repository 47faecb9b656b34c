// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"raffle-bot/internal/model"
	"raffle-bot/internal/token"
)

// Common errors for repository operations.
var (
	ErrAccountNotFound = errors.New("account not found")
)

// AccountRepository persists currency accounts and allowances. It
// implements token.Currency: transfers run inside database transactions,
// so a batch either applies every leg or none.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepository instance.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

var _ token.Currency = (*AccountRepository)(nil)

// GetOrCreate retrieves an account, creating it with the given initial
// balance if it does not exist. Returns whether it was newly created.
func (r *AccountRepository) GetOrCreate(ctx context.Context, addr model.Address, initialBalance uint64) (*model.Account, bool, error) {
	const query = `
		INSERT INTO accounts (address, balance, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (address) DO NOTHING
		RETURNING address, balance, created_at, updated_at
	`

	var acct model.Account
	var balance int64
	err := r.pool.QueryRow(ctx, query, addr, int64(initialBalance)).Scan(
		&acct.Address, &balance, &acct.CreatedAt, &acct.UpdatedAt,
	)
	if err == nil {
		acct.Balance = uint64(balance)
		return &acct, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to create account: %w", err)
	}

	existing, err := r.Get(ctx, addr)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Get retrieves an account by address.
// Returns ErrAccountNotFound if the account does not exist.
func (r *AccountRepository) Get(ctx context.Context, addr model.Address) (*model.Account, error) {
	const query = `
		SELECT address, balance, created_at, updated_at
		FROM accounts
		WHERE address = $1
	`

	var acct model.Account
	var balance int64
	err := r.pool.QueryRow(ctx, query, addr).Scan(
		&acct.Address, &balance, &acct.CreatedAt, &acct.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	acct.Balance = uint64(balance)
	return &acct, nil
}

// Mint credits freshly created funds to addr, creating the account if
// needed. Used by the faucet and admin funding.
func (r *AccountRepository) Mint(ctx context.Context, addr model.Address, amount uint64) error {
	const query = `
		INSERT INTO accounts (address, balance, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (address) DO UPDATE
		SET balance = accounts.balance + EXCLUDED.balance, updated_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, addr, int64(amount)); err != nil {
		return fmt.Errorf("failed to mint: %w", err)
	}
	return nil
}

// BalanceOf returns the balance of addr. Unknown accounts have balance 0.
func (r *AccountRepository) BalanceOf(ctx context.Context, addr model.Address) (uint64, error) {
	acct, err := r.Get(ctx, addr)
	if errors.Is(err, ErrAccountNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// Allowance returns how much spender may pull from owner.
func (r *AccountRepository) Allowance(ctx context.Context, owner, spender model.Address) (uint64, error) {
	const query = `
		SELECT amount FROM allowances WHERE owner = $1 AND spender = $2
	`

	var amount int64
	err := r.pool.QueryRow(ctx, query, owner, spender).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get allowance: %w", err)
	}
	return uint64(amount), nil
}

// Approve sets spender's allowance over owner's funds.
func (r *AccountRepository) Approve(ctx context.Context, owner, spender model.Address, amount uint64) error {
	const query = `
		INSERT INTO allowances (owner, spender, amount, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (owner, spender) DO UPDATE
		SET amount = EXCLUDED.amount, updated_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, owner, spender, int64(amount)); err != nil {
		return fmt.Errorf("failed to approve: %w", err)
	}
	return nil
}

// Transfer moves amount between accounts inside one transaction.
func (r *AccountRepository) Transfer(ctx context.Context, from, to model.Address, amount uint64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transfer: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := move(ctx, tx, from, to, amount); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// TransferFrom moves amount from `from` to `to`, consuming spender's
// allowance, inside one transaction.
func (r *AccountRepository) TransferFrom(ctx context.Context, spender, from, to model.Address, amount uint64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transfer: %w", err)
	}
	defer tx.Rollback(ctx)

	const spend = `
		UPDATE allowances
		SET amount = amount - $3, updated_at = NOW()
		WHERE owner = $1 AND spender = $2 AND amount >= $3
	`
	tag, err := tx.Exec(ctx, spend, from, spender, int64(amount))
	if err != nil {
		return fmt.Errorf("failed to spend allowance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return token.ErrInsufficientAllowance
	}

	if err := move(ctx, tx, from, to, amount); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// BatchTransfer moves several payments out of `from` in one transaction;
// a failed leg rolls back every other leg.
func (r *AccountRepository) BatchTransfer(ctx context.Context, from model.Address, payments []token.Payment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin batch transfer: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, p := range payments {
		if err := move(ctx, tx, from, p.To, p.Amount); err != nil {
			return &token.TransferFailedError{To: p.To, Amount: p.Amount, Err: err}
		}
	}
	return tx.Commit(ctx)
}

// move debits and credits within tx. The debit is conditional on a
// sufficient balance, which is what makes concurrent transfers safe.
func move(ctx context.Context, tx pgx.Tx, from, to model.Address, amount uint64) error {
	const debit = `
		UPDATE accounts
		SET balance = balance - $2, updated_at = NOW()
		WHERE address = $1 AND balance >= $2
	`
	tag, err := tx.Exec(ctx, debit, from, int64(amount))
	if err != nil {
		return fmt.Errorf("failed to debit %s: %w", from, err)
	}
	if tag.RowsAffected() == 0 {
		return token.ErrInsufficientFunds
	}

	const credit = `
		INSERT INTO accounts (address, balance, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (address) DO UPDATE
		SET balance = accounts.balance + EXCLUDED.balance, updated_at = NOW()
	`
	if _, err := tx.Exec(ctx, credit, to, int64(amount)); err != nil {
		return fmt.Errorf("failed to credit %s: %w", to, err)
	}
	return nil
}
