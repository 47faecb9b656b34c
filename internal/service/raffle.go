// Package service provides business logic implementations.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"raffle-bot/internal/chain"
	"raffle-bot/internal/config"
	"raffle-bot/internal/entropy"
	"raffle-bot/internal/model"
	"raffle-bot/internal/pkg/lock"
	"raffle-bot/internal/raffle"
	"raffle-bot/internal/repository"
	"raffle-bot/internal/token"
)

// Raffle session errors.
var (
	ErrNoActiveRaffle = errors.New("no raffle in this chat")
	ErrRaffleExists   = errors.New("an open raffle already exists in this chat")
)

// RaffleStore persists raffle session rows.
type RaffleStore interface {
	Create(ctx context.Context, rec *model.RaffleRecord) error
	ListOpen(ctx context.Context) ([]*model.RaffleRecord, error)
	UpdatePot(ctx context.Context, chatID int64, pot uint64) error
	MarkSettled(ctx context.Context, chatID int64, winner model.Address) error
}

// EntryStore persists the ticket-grant audit trail.
type EntryStore interface {
	Create(ctx context.Context, chatID int64, addr model.Address, kind string, tickets, amountPaid uint64) (*model.Entry, error)
	TotalsByPlayer(ctx context.Context, chatID int64) ([]repository.PlayerTotal, error)
}

// SettlementStore persists settlement audit records.
type SettlementStore interface {
	Create(ctx context.Context, rec *model.SettlementRecord) (*model.SettlementRecord, error)
}

// AccountStore provisions and funds currency accounts.
type AccountStore interface {
	GetOrCreate(ctx context.Context, addr model.Address, initialBalance uint64) (*model.Account, bool, error)
	Mint(ctx context.Context, addr model.Address, amount uint64) error
}

// RaffleService runs one raffle session per chat. Every mutating call on
// a session goes through that session's lock, so raffle operations never
// interleave; the core aggregate relies on this.
type RaffleService struct {
	cfg         *config.Config
	currency    token.Currency
	heads       chain.Provider
	entropy     entropy.Source
	events      raffle.EventSink
	raffles     RaffleStore
	entries     EntryStore
	settlements SettlementStore
	accounts    AccountStore
	locks       *lock.SessionLock

	mu       sync.RWMutex
	sessions map[int64]*raffle.Raffle
}

// Dependencies holds everything a RaffleService needs.
type Dependencies struct {
	Config      *config.Config
	Currency    token.Currency
	Heads       chain.Provider
	Entropy     entropy.Source
	Events      raffle.EventSink // optional
	Raffles     RaffleStore
	Entries     EntryStore
	Settlements SettlementStore
	Accounts    AccountStore
	Locks       *lock.SessionLock
}

// NewRaffleService creates a new RaffleService instance.
func NewRaffleService(deps Dependencies) *RaffleService {
	events := deps.Events
	if events == nil {
		events = raffle.NopSink{}
	}
	locks := deps.Locks
	if locks == nil {
		locks = lock.NewSessionLock()
	}
	return &RaffleService{
		cfg:         deps.Config,
		currency:    deps.Currency,
		heads:       deps.Heads,
		entropy:     deps.Entropy,
		events:      events,
		raffles:     deps.Raffles,
		entries:     deps.Entries,
		settlements: deps.Settlements,
		accounts:    deps.Accounts,
		locks:       locks,
		sessions:    make(map[int64]*raffle.Raffle),
	}
}

// EnsureAccount derives the caller's ledger address and provisions its
// account with the faucet grant on first sight.
func (s *RaffleService) EnsureAccount(ctx context.Context, telegramID int64) (model.Address, *model.Account, error) {
	addr := model.DeriveAddress(telegramID)
	acct, created, err := s.accounts.GetOrCreate(ctx, addr, s.cfg.Faucet.InitialBalance)
	if err != nil {
		return model.ZeroAddress, nil, fmt.Errorf("failed to ensure account: %w", err)
	}
	if created {
		log.Info().Str("address", string(addr)).Uint64("balance", acct.Balance).Msg("Account provisioned")
	}
	return addr, acct, nil
}

// Balance returns the caller's currency balance.
func (s *RaffleService) Balance(ctx context.Context, telegramID int64) (uint64, error) {
	return s.currency.BalanceOf(ctx, model.DeriveAddress(telegramID))
}

// Fund mints amount to the given user's account. Admin only; the handler
// enforces that.
func (s *RaffleService) Fund(ctx context.Context, telegramID int64, amount uint64) (model.Address, error) {
	addr := model.DeriveAddress(telegramID)
	if err := s.accounts.Mint(ctx, addr, amount); err != nil {
		return model.ZeroAddress, err
	}
	return addr, nil
}

// StartRaffle opens a raffle in the chat, owned by the calling admin's
// derived address. Fails if the chat already has an open raffle.
func (s *RaffleService) StartRaffle(ctx context.Context, chatID, ownerID int64) (*raffle.Raffle, error) {
	return s.startRaffle(ctx, chatID, ownerID, s.cfg.Raffle.DurationDays)
}

func (s *RaffleService) startRaffle(ctx context.Context, chatID, ownerID int64, durationDays int) (*raffle.Raffle, error) {
	var created *raffle.Raffle
	err := s.locks.WithLock(chatID, func() error {
		if existing := s.session(chatID); existing != nil && !existing.Settled() {
			return ErrRaffleExists
		}

		owner := model.DeriveAddress(ownerID)
		r, err := raffle.New(raffle.Config{
			Owner:           owner,
			Escrow:          model.DeriveEscrowAddress(chatID),
			TicketPrice:     s.cfg.Raffle.TicketPrice,
			DurationDays:    durationDays,
			FixedPrize:      s.cfg.Raffle.FixedPrize,
			DonationPercent: s.cfg.Raffle.DonationPercent,
			Mode:            raffle.PayAttached,
			Currency:        s.currency,
			Heads:           s.heads,
			Entropy:         s.entropy,
			Events:          s.events,
		})
		if err != nil {
			return err
		}

		rec := &model.RaffleRecord{
			ChatID:          chatID,
			Owner:           owner,
			TicketPrice:     s.cfg.Raffle.TicketPrice,
			EndDate:         r.EndDate(),
			FixedPrize:      s.cfg.Raffle.FixedPrize,
			DonationPercent: s.cfg.Raffle.DonationPercent,
		}
		if err := s.raffles.Create(ctx, rec); err != nil {
			return err
		}

		s.putSession(chatID, r)
		created = r
		log.Info().
			Int64("chat_id", chatID).
			Str("owner", string(owner)).
			Time("end_date", r.EndDate()).
			Msg("Raffle started")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Buy purchases a bundle for the caller, paying exactly the tier price
// from the caller's account. Returns the tickets granted and the price.
func (s *RaffleService) Buy(ctx context.Context, chatID, userID int64, tier raffle.Tier) (uint64, uint64, error) {
	return s.buy(ctx, chatID, userID, tier, 0)
}

// BuyWithReferral composes a purchase with a referral grant to the
// referred user's address.
func (s *RaffleService) BuyWithReferral(ctx context.Context, chatID, userID int64, tier raffle.Tier, referredID int64) (uint64, uint64, error) {
	return s.buy(ctx, chatID, userID, tier, referredID)
}

func (s *RaffleService) buy(ctx context.Context, chatID, userID int64, tier raffle.Tier, referredID int64) (uint64, uint64, error) {
	addr, _, err := s.EnsureAccount(ctx, userID)
	if err != nil {
		return 0, 0, err
	}

	var granted, price uint64
	err = s.locks.WithLock(chatID, func() error {
		r := s.session(chatID)
		if r == nil {
			return ErrNoActiveRaffle
		}

		bundle := r.Bundles()[tier]
		price = bundle.Price

		var buyErr error
		if referredID != 0 {
			granted, buyErr = r.BuyBundleWithReferral(ctx, addr, tier, price, model.DeriveAddress(referredID))
		} else {
			granted, buyErr = r.BuyBundle(ctx, addr, tier, price)
		}
		if buyErr != nil {
			return buyErr
		}

		s.recordEntry(ctx, chatID, addr, entryKind(tier), granted, price)
		if referredID != 0 {
			s.recordEntry(ctx, chatID, model.DeriveAddress(referredID), model.EntryKindReferral, 1, 0)
		}
		s.persistPot(ctx, chatID, r.Pot())
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return granted, price, nil
}

// FreeTicket grants the caller's one-time free ticket.
func (s *RaffleService) FreeTicket(ctx context.Context, chatID, userID int64) error {
	addr, _, err := s.EnsureAccount(ctx, userID)
	if err != nil {
		return err
	}

	return s.locks.WithLock(chatID, func() error {
		r := s.session(chatID)
		if r == nil {
			return ErrNoActiveRaffle
		}
		if err := r.GetFreeTicket(addr); err != nil {
			return err
		}
		s.recordEntry(ctx, chatID, addr, model.EntryKindFree, 1, 0)
		return nil
	})
}

// Refer grants one bonus ticket to the referred user, who must already
// hold a ticket.
func (s *RaffleService) Refer(ctx context.Context, chatID, callerID, referredID int64) error {
	caller := model.DeriveAddress(callerID)
	referred := model.DeriveAddress(referredID)

	return s.locks.WithLock(chatID, func() error {
		r := s.session(chatID)
		if r == nil {
			return ErrNoActiveRaffle
		}
		if err := r.ReferTicket(caller, referred); err != nil {
			return err
		}
		s.recordEntry(ctx, chatID, referred, model.EntryKindReferral, 1, 0)
		return nil
	})
}

// Finish settles the chat's raffle and records the settlement. Only the
// raffle owner's derived address can settle.
func (s *RaffleService) Finish(ctx context.Context, chatID, callerID int64, donation model.Address) (*model.SettlementRecord, error) {
	caller := model.DeriveAddress(callerID)

	var rec *model.SettlementRecord
	err := s.locks.WithLock(chatID, func() error {
		r := s.session(chatID)
		if r == nil {
			return ErrNoActiveRaffle
		}

		split := r.PrizeDistribution()
		winner, err := r.FinishRaffle(ctx, caller, donation)
		if err != nil {
			return err
		}

		if err := s.raffles.MarkSettled(ctx, chatID, winner); err != nil {
			log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to persist settlement flag")
		}
		saved, err := s.settlements.Create(ctx, &model.SettlementRecord{
			ChatID:          chatID,
			Winner:          winner,
			DonationAddress: donation,
			Prize:           split.Prize,
			Donation:        split.Donation,
			Commission:      split.Commission,
		})
		if err != nil {
			log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to record settlement")
			saved = &model.SettlementRecord{
				ChatID: chatID, Winner: winner, DonationAddress: donation,
				Prize: split.Prize, Donation: split.Donation, Commission: split.Commission,
			}
		}
		rec = saved
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Status is a read-only view of a chat's raffle.
type Status struct {
	Bundles      []raffle.Bundle
	EndDate      time.Time
	Pot          uint64
	TicketsSold  uint64
	PlayerCount  int
	Winner       model.Address
	Settled      bool
	Distribution raffle.Distribution
}

// Status returns the current view of the chat's raffle.
func (s *RaffleService) Status(chatID int64) (*Status, error) {
	var st *Status
	err := s.locks.WithLock(chatID, func() error {
		r := s.session(chatID)
		if r == nil {
			return ErrNoActiveRaffle
		}
		st = &Status{
			Bundles:      r.Bundles(),
			EndDate:      r.EndDate(),
			Pot:          r.Pot(),
			TicketsSold:  r.TicketsSold(),
			PlayerCount:  len(r.Players()),
			Winner:       r.Winner(),
			Settled:      r.Settled(),
			Distribution: r.PrizeDistribution(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Tickets returns the ticket count the user holds in the chat's raffle.
func (s *RaffleService) Tickets(chatID, userID int64) (uint64, error) {
	var count uint64
	err := s.locks.WithLock(chatID, func() error {
		r := s.session(chatID)
		if r == nil {
			return ErrNoActiveRaffle
		}
		count = r.Tickets(model.DeriveAddress(userID))
		return nil
	})
	return count, err
}

// SoldTickets returns the total sold ticket count. Raffle owner only.
func (s *RaffleService) SoldTickets(chatID, callerID int64) (uint64, error) {
	var total uint64
	err := s.locks.WithLock(chatID, func() error {
		r := s.session(chatID)
		if r == nil {
			return ErrNoActiveRaffle
		}
		var err error
		total, err = r.ListSoldTickets(model.DeriveAddress(callerID))
		return err
	})
	return total, err
}

// Restore rebuilds open raffle sessions from persisted rows and their
// entry trails. Called once at startup.
func (s *RaffleService) Restore(ctx context.Context) (int, error) {
	recs, err := s.raffles.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load open raffles: %w", err)
	}

	restored := 0
	for _, rec := range recs {
		totals, err := s.entries.TotalsByPlayer(ctx, rec.ChatID)
		if err != nil {
			return restored, fmt.Errorf("failed to load entries for chat %d: %w", rec.ChatID, err)
		}

		players := make([]raffle.PlayerTickets, 0, len(totals))
		for _, t := range totals {
			players = append(players, raffle.PlayerTickets{Address: t.Address, Tickets: t.Tickets})
		}

		r, err := raffle.Load(raffle.Config{
			Owner:           rec.Owner,
			Escrow:          model.DeriveEscrowAddress(rec.ChatID),
			TicketPrice:     rec.TicketPrice,
			FixedPrize:      rec.FixedPrize,
			DonationPercent: rec.DonationPercent,
			Mode:            raffle.PayAttached,
			Currency:        s.currency,
			Heads:           s.heads,
			Entropy:         s.entropy,
			Events:          s.events,
		}, raffle.Snapshot{
			EndDate: rec.EndDate,
			Players: players,
			Pot:     rec.Pot,
		})
		if err != nil {
			return restored, fmt.Errorf("failed to restore raffle for chat %d: %w", rec.ChatID, err)
		}

		s.putSession(rec.ChatID, r)
		restored++
		log.Info().
			Int64("chat_id", rec.ChatID).
			Uint64("pot", rec.Pot).
			Int("players", len(players)).
			Msg("Raffle session restored")
	}
	return restored, nil
}

func (s *RaffleService) session(chatID int64) *raffle.Raffle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[chatID]
}

func (s *RaffleService) putSession(chatID int64, r *raffle.Raffle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[chatID] = r
}

// recordEntry writes an audit row. The ledger already holds the
// authoritative state, so a failed audit write is logged, not fatal.
func (s *RaffleService) recordEntry(ctx context.Context, chatID int64, addr model.Address, kind string, tickets, paid uint64) {
	if _, err := s.entries.Create(ctx, chatID, addr, kind, tickets, paid); err != nil {
		log.Error().Err(err).
			Int64("chat_id", chatID).
			Str("address", string(addr)).
			Str("kind", kind).
			Msg("Failed to record entry")
	}
}

func (s *RaffleService) persistPot(ctx context.Context, chatID int64, pot uint64) {
	if err := s.raffles.UpdatePot(ctx, chatID, pot); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to persist pot")
	}
}

func entryKind(tier raffle.Tier) string {
	switch tier {
	case raffle.TierSmall:
		return model.EntryKindSmall
	case raffle.TierMedium:
		return model.EntryKindMedium
	case raffle.TierLarge:
		return model.EntryKindLarge
	default:
		return model.EntryKindFallback
	}
}
