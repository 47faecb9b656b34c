package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"raffle-bot/internal/model"
)

// ErrRaffleNotFound is returned when no raffle row exists for a chat.
var ErrRaffleNotFound = errors.New("raffle not found")

// RaffleRepository persists raffle session rows.
type RaffleRepository struct {
	pool *pgxpool.Pool
}

// NewRaffleRepository creates a new RaffleRepository instance.
func NewRaffleRepository(pool *pgxpool.Pool) *RaffleRepository {
	return &RaffleRepository{pool: pool}
}

const raffleColumns = `chat_id, owner, ticket_price, end_date, fixed_prize,
		donation_percent, pot, winner, settled, created_at, updated_at`

// Create inserts a raffle row for a chat. A chat holds at most one
// raffle at a time; the previous settled row is replaced.
func (r *RaffleRepository) Create(ctx context.Context, rec *model.RaffleRecord) error {
	const query = `
		INSERT INTO raffles (chat_id, owner, ticket_price, end_date, fixed_prize,
			donation_percent, pot, winner, settled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (chat_id) DO UPDATE SET
			owner = EXCLUDED.owner,
			ticket_price = EXCLUDED.ticket_price,
			end_date = EXCLUDED.end_date,
			fixed_prize = EXCLUDED.fixed_prize,
			donation_percent = EXCLUDED.donation_percent,
			pot = EXCLUDED.pot,
			winner = EXCLUDED.winner,
			settled = EXCLUDED.settled,
			updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query,
		rec.ChatID, rec.Owner, int64(rec.TicketPrice), rec.EndDate, int64(rec.FixedPrize),
		int64(rec.DonationPercent), int64(rec.Pot), rec.Winner, rec.Settled,
	)
	if err != nil {
		return fmt.Errorf("failed to create raffle: %w", err)
	}
	return nil
}

// Get retrieves the raffle row for a chat.
func (r *RaffleRepository) Get(ctx context.Context, chatID int64) (*model.RaffleRecord, error) {
	query := `SELECT ` + raffleColumns + ` FROM raffles WHERE chat_id = $1`

	rec, err := scanRaffle(r.pool.QueryRow(ctx, query, chatID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRaffleNotFound
		}
		return nil, fmt.Errorf("failed to get raffle: %w", err)
	}
	return rec, nil
}

// ListOpen returns all unsettled raffle rows, for session restore.
func (r *RaffleRepository) ListOpen(ctx context.Context) ([]*model.RaffleRecord, error) {
	query := `SELECT ` + raffleColumns + ` FROM raffles WHERE NOT settled ORDER BY chat_id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list open raffles: %w", err)
	}
	defer rows.Close()

	var recs []*model.RaffleRecord
	for rows.Next() {
		rec, err := scanRaffle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan raffle: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating raffles: %w", err)
	}
	return recs, nil
}

// UpdatePot stores the pot after a successful purchase.
func (r *RaffleRepository) UpdatePot(ctx context.Context, chatID int64, pot uint64) error {
	const query = `UPDATE raffles SET pot = $2, updated_at = NOW() WHERE chat_id = $1`

	tag, err := r.pool.Exec(ctx, query, chatID, int64(pot))
	if err != nil {
		return fmt.Errorf("failed to update pot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRaffleNotFound
	}
	return nil
}

// MarkSettled records the winner and drains the persisted pot.
func (r *RaffleRepository) MarkSettled(ctx context.Context, chatID int64, winner model.Address) error {
	const query = `
		UPDATE raffles
		SET winner = $2, settled = TRUE, pot = 0, updated_at = NOW()
		WHERE chat_id = $1 AND NOT settled
	`

	tag, err := r.pool.Exec(ctx, query, chatID, winner)
	if err != nil {
		return fmt.Errorf("failed to mark settled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRaffleNotFound
	}
	return nil
}

func scanRaffle(row pgx.Row) (*model.RaffleRecord, error) {
	var rec model.RaffleRecord
	var price, fixed, donation, pot int64
	err := row.Scan(
		&rec.ChatID, &rec.Owner, &price, &rec.EndDate, &fixed,
		&donation, &pot, &rec.Winner, &rec.Settled, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.TicketPrice = uint64(price)
	rec.FixedPrize = uint64(fixed)
	rec.DonationPercent = uint64(donation)
	rec.Pot = uint64(pot)
	return &rec, nil
}
