package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raffle-bot/internal/chain"
	"raffle-bot/internal/config"
	"raffle-bot/internal/model"
	"raffle-bot/internal/raffle"
	"raffle-bot/internal/repository"
	"raffle-bot/internal/token"
)

const (
	chatID     = int64(-100500)
	adminID    = int64(1)
	aliceID    = int64(2)
	bobID      = int64(3)
	carolID    = int64(4)
	donationID = int64(99)
)

// fixedSource always draws the same value.
type fixedSource uint64

func (s fixedSource) Draw(_ []byte, bound uint64) uint64 { return uint64(s) % bound }

// In-memory store fakes.

type fakeRaffleStore struct {
	mu   sync.Mutex
	recs map[int64]*model.RaffleRecord
}

func newFakeRaffleStore() *fakeRaffleStore {
	return &fakeRaffleStore{recs: make(map[int64]*model.RaffleRecord)}
}

func (s *fakeRaffleStore) Create(_ context.Context, rec *model.RaffleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.recs[rec.ChatID] = &cp
	return nil
}

func (s *fakeRaffleStore) ListOpen(_ context.Context) ([]*model.RaffleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.RaffleRecord
	for _, rec := range s.recs {
		if !rec.Settled {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out, nil
}

func (s *fakeRaffleStore) UpdatePot(_ context.Context, chatID int64, pot uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[chatID]
	if !ok {
		return repository.ErrRaffleNotFound
	}
	rec.Pot = pot
	return nil
}

func (s *fakeRaffleStore) MarkSettled(_ context.Context, chatID int64, winner model.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[chatID]
	if !ok || rec.Settled {
		return repository.ErrRaffleNotFound
	}
	rec.Winner = winner
	rec.Settled = true
	rec.Pot = 0
	return nil
}

type fakeEntryStore struct {
	mu      sync.Mutex
	entries []*model.Entry
	nextID  int64
}

func (s *fakeEntryStore) Create(_ context.Context, chatID int64, addr model.Address, kind string, tickets, amountPaid uint64) (*model.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e := &model.Entry{
		ID: s.nextID, ChatID: chatID, Address: addr, Kind: kind,
		Tickets: tickets, AmountPaid: amountPaid, CreatedAt: time.Now(),
	}
	s.entries = append(s.entries, e)
	return e, nil
}

func (s *fakeEntryStore) TotalsByPlayer(_ context.Context, chatID int64) ([]repository.PlayerTotal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := make(map[model.Address]int)
	var totals []repository.PlayerTotal
	for _, e := range s.entries {
		if e.ChatID != chatID {
			continue
		}
		i, ok := idx[e.Address]
		if !ok {
			i = len(totals)
			idx[e.Address] = i
			totals = append(totals, repository.PlayerTotal{Address: e.Address})
		}
		totals[i].Tickets += e.Tickets
	}
	return totals, nil
}

type fakeSettlementStore struct {
	mu   sync.Mutex
	recs []*model.SettlementRecord
}

func (s *fakeSettlementStore) Create(_ context.Context, rec *model.SettlementRecord) (*model.SettlementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	cp.ID = int64(len(s.recs) + 1)
	cp.CreatedAt = time.Now()
	s.recs = append(s.recs, &cp)
	return &cp, nil
}

// fakeAccountStore provisions accounts on the in-memory ledger.
type fakeAccountStore struct {
	mu     sync.Mutex
	ledger *token.Ledger
	seen   map[model.Address]bool
}

func newFakeAccountStore(ledger *token.Ledger) *fakeAccountStore {
	return &fakeAccountStore{ledger: ledger, seen: make(map[model.Address]bool)}
}

func (s *fakeAccountStore) GetOrCreate(ctx context.Context, addr model.Address, initialBalance uint64) (*model.Account, bool, error) {
	s.mu.Lock()
	created := !s.seen[addr]
	s.seen[addr] = true
	s.mu.Unlock()

	if created {
		s.ledger.Mint(addr, initialBalance)
	}
	balance, err := s.ledger.BalanceOf(ctx, addr)
	if err != nil {
		return nil, false, err
	}
	return &model.Account{Address: addr, Balance: balance}, created, nil
}

func (s *fakeAccountStore) Mint(_ context.Context, addr model.Address, amount uint64) error {
	s.ledger.Mint(addr, amount)
	return nil
}

type testFixture struct {
	svc         *RaffleService
	ledger      *token.Ledger
	heads       *chain.Manual
	raffles     *fakeRaffleStore
	entries     *fakeEntryStore
	settlements *fakeSettlementStore
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()
	ledger := token.NewLedger()
	heads := chain.NewManual(chain.Head{
		Height: 1,
		Time:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})
	f := &testFixture{
		ledger:      ledger,
		heads:       heads,
		raffles:     newFakeRaffleStore(),
		entries:     &fakeEntryStore{},
		settlements: &fakeSettlementStore{},
	}
	f.svc = NewRaffleService(Dependencies{
		Config: &config.Config{
			Raffle: config.RaffleConfig{
				TicketPrice:     5000,
				DurationDays:    2,
				DonationPercent: 75,
			},
			Faucet: config.FaucetConfig{InitialBalance: 100000},
		},
		Currency:    ledger,
		Heads:       heads,
		Entropy:     fixedSource(0),
		Raffles:     f.raffles,
		Entries:     f.entries,
		Settlements: f.settlements,
		Accounts:    newFakeAccountStore(ledger),
	})
	return f
}

func (f *testFixture) pastDeadline(t *testing.T) {
	t.Helper()
	st, err := f.svc.Status(chatID)
	require.NoError(t, err)
	for f.heads.Head().Time.Before(st.EndDate) {
		f.heads.Advance(24 * time.Hour)
	}
}

func TestStartRaffle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	r, err := f.svc.StartRaffle(ctx, chatID, adminID)
	require.NoError(t, err)
	assert.Equal(t, model.DeriveAddress(adminID), r.Owner())
	assert.Equal(t, model.DeriveEscrowAddress(chatID), r.Escrow())

	// One open raffle per chat.
	_, err = f.svc.StartRaffle(ctx, chatID, adminID)
	assert.ErrorIs(t, err, ErrRaffleExists)

	// The raffle row was persisted.
	open, err := f.raffles.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, chatID, open[0].ChatID)
}

func TestBuy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, _, err := f.svc.Buy(ctx, chatID, aliceID, raffle.TierSmall)
	assert.ErrorIs(t, err, ErrNoActiveRaffle)

	_, err = f.svc.StartRaffle(ctx, chatID, adminID)
	require.NoError(t, err)

	granted, price, err := f.svc.Buy(ctx, chatID, aliceID, raffle.TierSmall)
	require.NoError(t, err)
	assert.Equal(t, uint64(45), granted)
	assert.Equal(t, uint64(5000), price)

	// Faucet balance minus the purchase.
	balance, err := f.svc.Balance(ctx, aliceID)
	require.NoError(t, err)
	assert.Equal(t, uint64(95000), balance)

	// The audit trail and the persisted pot follow the purchase.
	totals, err := f.entries.TotalsByPlayer(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, model.DeriveAddress(aliceID), totals[0].Address)
	assert.Equal(t, uint64(45), totals[0].Tickets)

	open, _ := f.raffles.ListOpen(ctx)
	assert.Equal(t, uint64(5000), open[0].Pot)

	count, err := f.svc.Tickets(chatID, aliceID)
	require.NoError(t, err)
	assert.Equal(t, uint64(45), count)
}

func TestBuyWithReferral(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.StartRaffle(ctx, chatID, adminID)
	require.NoError(t, err)

	// The referred member must already hold a ticket.
	_, _, err = f.svc.BuyWithReferral(ctx, chatID, aliceID, raffle.TierSmall, bobID)
	assert.ErrorIs(t, err, raffle.ErrNotAPlayer)

	require.NoError(t, f.svc.FreeTicket(ctx, chatID, bobID))
	_, _, err = f.svc.BuyWithReferral(ctx, chatID, aliceID, raffle.TierSmall, bobID)
	require.NoError(t, err)

	count, err := f.svc.Tickets(chatID, bobID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	// Both the purchase and the referral grant were recorded.
	totals, err := f.entries.TotalsByPlayer(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, uint64(2), totals[0].Tickets)  // bob entered first
	assert.Equal(t, uint64(45), totals[1].Tickets) // alice
}

func TestFreeTicketAndRefer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.StartRaffle(ctx, chatID, adminID)
	require.NoError(t, err)

	require.NoError(t, f.svc.FreeTicket(ctx, chatID, aliceID))
	assert.ErrorIs(t, f.svc.FreeTicket(ctx, chatID, aliceID), raffle.ErrAlreadyClaimed)

	require.NoError(t, f.svc.Refer(ctx, chatID, bobID, aliceID))
	count, err := f.svc.Tickets(chatID, aliceID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	assert.ErrorIs(t, f.svc.Refer(ctx, chatID, aliceID, aliceID), raffle.ErrSelfReferral)
}

func TestSoldTickets_OwnerOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.StartRaffle(ctx, chatID, adminID)
	require.NoError(t, err)
	require.NoError(t, f.svc.FreeTicket(ctx, chatID, aliceID))

	_, err = f.svc.SoldTickets(chatID, aliceID)
	assert.ErrorIs(t, err, raffle.ErrNotOwner)

	total, err := f.svc.SoldTickets(chatID, adminID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), total)
}

func TestFinish(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	donation := model.DeriveAddress(donationID)

	_, err := f.svc.StartRaffle(ctx, chatID, adminID)
	require.NoError(t, err)
	_, _, err = f.svc.Buy(ctx, chatID, aliceID, raffle.TierMedium)
	require.NoError(t, err)

	// Not the owner.
	_, err = f.svc.Finish(ctx, chatID, aliceID, donation)
	assert.ErrorIs(t, err, raffle.ErrNotOwner)

	// Still open.
	_, err = f.svc.Finish(ctx, chatID, adminID, donation)
	assert.ErrorIs(t, err, raffle.ErrRaffleNotFinished)

	f.pastDeadline(t)
	rec, err := f.svc.Finish(ctx, chatID, adminID, donation)
	require.NoError(t, err)
	assert.Equal(t, model.DeriveAddress(aliceID), rec.Winner)
	assert.Equal(t, uint64(15000), rec.Prize+rec.Donation+rec.Commission)

	// Persisted state followed the settlement.
	open, _ := f.raffles.ListOpen(ctx)
	assert.Empty(t, open)
	require.Len(t, f.settlements.recs, 1)

	_, err = f.svc.Finish(ctx, chatID, adminID, donation)
	assert.ErrorIs(t, err, raffle.ErrAlreadySettled)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	donation := model.DeriveAddress(donationID)

	_, err := f.svc.StartRaffle(ctx, chatID, adminID)
	require.NoError(t, err)
	_, _, err = f.svc.Buy(ctx, chatID, aliceID, raffle.TierSmall)
	require.NoError(t, err)
	require.NoError(t, f.svc.FreeTicket(ctx, chatID, bobID))

	// A new service over the same stores models a process restart.
	restarted := NewRaffleService(Dependencies{
		Config: &config.Config{
			Raffle: config.RaffleConfig{TicketPrice: 5000, DurationDays: 2, DonationPercent: 75},
			Faucet: config.FaucetConfig{InitialBalance: 100000},
		},
		Currency:    f.ledger,
		Heads:       f.heads,
		Entropy:     fixedSource(0),
		Raffles:     f.raffles,
		Entries:     f.entries,
		Settlements: f.settlements,
		Accounts:    newFakeAccountStore(f.ledger),
	})

	restored, err := restarted.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	st, err := restarted.Status(chatID)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), st.Pot)
	assert.Equal(t, uint64(46), st.TicketsSold)
	assert.Equal(t, 2, st.PlayerCount)

	// The restored session settles like the original would have.
	f.pastDeadline(t)
	rec, err := restarted.Finish(ctx, chatID, adminID, donation)
	require.NoError(t, err)
	assert.Equal(t, model.DeriveAddress(aliceID), rec.Winner)
}

func TestConcurrentBuys_Conservation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.StartRaffle(ctx, chatID, adminID)
	require.NoError(t, err)

	userIDs := []int64{10, 11, 12, 13, 14, 15}
	var wg sync.WaitGroup
	for _, id := range userIDs {
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func(userID int64) {
				defer wg.Done()
				_, _, err := f.svc.Buy(ctx, chatID, userID, raffle.TierSmall)
				assert.NoError(t, err)
			}(id)
		}
	}
	wg.Wait()

	st, err := f.svc.Status(chatID)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(userIDs)*3*45), st.TicketsSold)
	assert.Equal(t, uint64(len(userIDs)*3*5000), st.Pot)
	assert.Equal(t, len(userIDs), st.PlayerCount)

	escrowBal, _ := f.ledger.BalanceOf(ctx, model.DeriveEscrowAddress(chatID))
	assert.Equal(t, st.Pot, escrowBal)
}
