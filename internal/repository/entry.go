package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"raffle-bot/internal/model"
)

// EntryRepository persists the ticket-grant audit trail.
type EntryRepository struct {
	pool *pgxpool.Pool
}

// NewEntryRepository creates a new EntryRepository instance.
func NewEntryRepository(pool *pgxpool.Pool) *EntryRepository {
	return &EntryRepository{pool: pool}
}

// Create records a ticket grant.
func (r *EntryRepository) Create(ctx context.Context, chatID int64, addr model.Address, kind string, tickets, amountPaid uint64) (*model.Entry, error) {
	const query = `
		INSERT INTO entries (chat_id, address, kind, tickets, amount_paid, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, chat_id, address, kind, tickets, amount_paid, created_at
	`

	var e model.Entry
	var tcount, paid int64
	err := r.pool.QueryRow(ctx, query, chatID, addr, kind, int64(tickets), int64(amountPaid)).Scan(
		&e.ID, &e.ChatID, &e.Address, &e.Kind, &tcount, &paid, &e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create entry: %w", err)
	}
	e.Tickets = uint64(tcount)
	e.AmountPaid = uint64(paid)
	return &e, nil
}

// ListByRaffle returns a raffle's entries in grant order.
func (r *EntryRepository) ListByRaffle(ctx context.Context, chatID int64) ([]*model.Entry, error) {
	const query = `
		SELECT id, chat_id, address, kind, tickets, amount_paid, created_at
		FROM entries
		WHERE chat_id = $1
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.Entry
	for rows.Next() {
		var e model.Entry
		var tcount, paid int64
		if err := rows.Scan(&e.ID, &e.ChatID, &e.Address, &e.Kind, &tcount, &paid, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.Tickets = uint64(tcount)
		e.AmountPaid = uint64(paid)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}
	return entries, nil
}

// PlayerTotal aggregates one player's tickets within a raffle.
type PlayerTotal struct {
	Address model.Address
	Tickets uint64
}

// TotalsByPlayer returns per-player ticket totals in first-grant order,
// which is the insertion order the winner scan depends on.
func (r *EntryRepository) TotalsByPlayer(ctx context.Context, chatID int64) ([]PlayerTotal, error) {
	const query = `
		SELECT address, SUM(tickets) AS total
		FROM entries
		WHERE chat_id = $1
		GROUP BY address
		ORDER BY MIN(id)
	`

	rows, err := r.pool.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate entries: %w", err)
	}
	defer rows.Close()

	var totals []PlayerTotal
	for rows.Next() {
		var t PlayerTotal
		var tickets int64
		if err := rows.Scan(&t.Address, &tickets); err != nil {
			return nil, fmt.Errorf("failed to scan player total: %w", err)
		}
		t.Tickets = uint64(tickets)
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating player totals: %w", err)
	}
	return totals, nil
}
