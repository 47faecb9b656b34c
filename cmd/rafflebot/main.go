// Package main is the entry point for the raffle bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"raffle-bot/internal/bot"
	"raffle-bot/internal/chain"
	"raffle-bot/internal/config"
	"raffle-bot/internal/entropy"
	"raffle-bot/internal/pkg/db"
	"raffle-bot/internal/pkg/lock"
	"raffle-bot/internal/raffle"
	"raffle-bot/internal/repository"
	"raffle-bot/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	accountRepo := repository.NewAccountRepository(dbPool.Pool)
	raffleRepo := repository.NewRaffleRepository(dbPool.Pool)
	entryRepo := repository.NewEntryRepository(dbPool.Pool)
	settlementRepo := repository.NewSettlementRepository(dbPool.Pool)

	// Initialize the block environment supplying time and entropy
	heads := chain.NewSimulator(cfg.Chain.BlockTime)
	mixer := entropy.NewBlockMixer(heads)

	// Initialize the raffle service
	raffleService := service.NewRaffleService(service.Dependencies{
		Config:      cfg,
		Currency:    accountRepo,
		Heads:       heads,
		Entropy:     mixer,
		Events:      raffle.LogSink{Logger: log.Logger},
		Raffles:     raffleRepo,
		Entries:     entryRepo,
		Settlements: settlementRepo,
		Accounts:    accountRepo,
		Locks:       lock.NewSessionLock(),
	})

	// Restore open raffle sessions from the database
	restored, err := raffleService.Restore(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to restore raffle sessions")
	}
	if restored > 0 {
		log.Info().Int("count", restored).Msg("Open raffle sessions restored")
	}

	// Initialize bot
	telegramBot, err := bot.New(&bot.Dependencies{
		Config:        cfg,
		RaffleService: raffleService,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start bot in a goroutine
	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	telegramBot.Stop()
	log.Info().Msg("Bot stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: Create accounts table
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			address VARCHAR(64) PRIMARY KEY,
			balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: accounts table created")

	// Migration 2: Create allowances table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS allowances (
			owner VARCHAR(64) NOT NULL,
			spender VARCHAR(64) NOT NULL,
			amount BIGINT NOT NULL DEFAULT 0 CHECK (amount >= 0),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (owner, spender)
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: allowances table created")

	// Migration 3: Create raffles table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS raffles (
			chat_id BIGINT PRIMARY KEY,
			owner VARCHAR(64) NOT NULL,
			ticket_price BIGINT NOT NULL,
			end_date TIMESTAMPTZ NOT NULL,
			fixed_prize BIGINT NOT NULL DEFAULT 0,
			donation_percent BIGINT NOT NULL DEFAULT 75,
			pot BIGINT NOT NULL DEFAULT 0 CHECK (pot >= 0),
			winner VARCHAR(64) NOT NULL DEFAULT '',
			settled BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: raffles table created")

	// Migration 4: Create entries table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS entries (
			id BIGSERIAL PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			address VARCHAR(64) NOT NULL,
			kind VARCHAR(32) NOT NULL,
			tickets BIGINT NOT NULL CHECK (tickets > 0),
			amount_paid BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_entries_chat ON entries(chat_id, id);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 4: entries table created")

	// Migration 5: Create settlements table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS settlements (
			id BIGSERIAL PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			winner VARCHAR(64) NOT NULL,
			donation_address VARCHAR(64) NOT NULL,
			prize BIGINT NOT NULL,
			donation BIGINT NOT NULL,
			commission BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_settlements_chat ON settlements(chat_id, id DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 5: settlements table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
