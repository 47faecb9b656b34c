package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"raffle-bot/internal/model"
)

// SettlementRepository persists settlement audit records.
type SettlementRepository struct {
	pool *pgxpool.Pool
}

// NewSettlementRepository creates a new SettlementRepository instance.
func NewSettlementRepository(pool *pgxpool.Pool) *SettlementRepository {
	return &SettlementRepository{pool: pool}
}

// Create records a completed settlement.
func (r *SettlementRepository) Create(ctx context.Context, rec *model.SettlementRecord) (*model.SettlementRecord, error) {
	const query = `
		INSERT INTO settlements (chat_id, winner, donation_address, prize, donation, commission, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at
	`

	out := *rec
	err := r.pool.QueryRow(ctx, query,
		rec.ChatID, rec.Winner, rec.DonationAddress,
		int64(rec.Prize), int64(rec.Donation), int64(rec.Commission),
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create settlement: %w", err)
	}
	return &out, nil
}

// ListByChat returns a chat's settlements, newest first.
func (r *SettlementRepository) ListByChat(ctx context.Context, chatID int64) ([]*model.SettlementRecord, error) {
	const query = `
		SELECT id, chat_id, winner, donation_address, prize, donation, commission, created_at
		FROM settlements
		WHERE chat_id = $1
		ORDER BY id DESC
	`

	rows, err := r.pool.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	defer rows.Close()

	var recs []*model.SettlementRecord
	for rows.Next() {
		var rec model.SettlementRecord
		var prize, donation, commission int64
		err := rows.Scan(&rec.ID, &rec.ChatID, &rec.Winner, &rec.DonationAddress,
			&prize, &donation, &commission, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		rec.Prize = uint64(prize)
		rec.Donation = uint64(donation)
		rec.Commission = uint64(commission)
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settlements: %w", err)
	}
	return recs, nil
}
