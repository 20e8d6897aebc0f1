package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidepot/sidepot/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func settled(user uuid.UUID, option string, stake int64, payout string) *models.Participation {
	amount, err := decimal.NewFromString(payout)
	if err != nil {
		panic(err)
	}
	now := time.Now()
	return &models.Participation{
		ID:          uuid.New(),
		MarketID:    uuid.New(),
		UserID:      user,
		Option:      option,
		Stake:       stake,
		FinalPayout: &amount,
		PlacedAt:    now,
		SettledAt:   &now,
	}
}

func TestBuildEntriesSingleWinnerSingleLoser(t *testing.T) {
	marketID := uuid.New()
	winner := uuid.New()
	loser := uuid.New()

	parts := []*models.Participation{
		settled(winner, "yes", 40, "100"),
		settled(loser, "no", 60, "0"),
	}

	entries := BuildEntries(marketID, parts, "yes", time.Now())
	require.Len(t, entries, 1)
	assert.Equal(t, marketID, entries[0].MarketID)
	assert.Equal(t, loser, entries[0].PayerID)
	assert.Equal(t, winner, entries[0].PayeeID)
	assert.True(t, entries[0].Amount.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, models.BalanceStatusPending, entries[0].Status)
}

func TestBuildEntriesProportionalAcrossLosers(t *testing.T) {
	marketID := uuid.New()
	winner := uuid.New()
	bigLoser := uuid.New()
	smallLoser := uuid.New()

	// Winner staked 40 and won the whole 100 pool, profit 60. The losers
	// staked 45 and 15, so they owe 45 and 15.
	parts := []*models.Participation{
		settled(winner, "yes", 40, "100"),
		settled(bigLoser, "no", 45, "0"),
		settled(smallLoser, "no", 15, "0"),
	}

	entries := BuildEntries(marketID, parts, "yes", time.Now())
	require.Len(t, entries, 2)

	byPayer := make(map[uuid.UUID]decimal.Decimal)
	var sum decimal.Decimal
	for _, e := range entries {
		assert.Equal(t, winner, e.PayeeID)
		byPayer[e.PayerID] = e.Amount
		sum = sum.Add(e.Amount)
	}
	assert.True(t, byPayer[bigLoser].Equal(decimal.NewFromInt(45)))
	assert.True(t, byPayer[smallLoser].Equal(decimal.NewFromInt(15)))
	assert.True(t, sum.Equal(decimal.NewFromInt(60)), "debts must cover the full profit")
}

func TestBuildEntriesRoundsToCents(t *testing.T) {
	marketID := uuid.New()
	winner := uuid.New()
	l1 := uuid.New()
	l2 := uuid.New()
	l3 := uuid.New()

	// Profit 10 split across three equal losers rounds each share to 3.33.
	parts := []*models.Participation{
		settled(winner, "yes", 9, "19"),
		settled(l1, "no", 3, "0"),
		settled(l2, "no", 3, "0"),
		settled(l3, "no", 3, "0"),
	}

	entries := BuildEntries(marketID, parts, "yes", time.Now())
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.True(t, e.Amount.Exponent() >= -2, "amounts carry at most two decimal places, got %s", e.Amount)
	}
}

func TestBuildEntriesNoPairs(t *testing.T) {
	marketID := uuid.New()

	onlyWinners := []*models.Participation{
		settled(uuid.New(), "yes", 40, "40"),
	}
	assert.Empty(t, BuildEntries(marketID, onlyWinners, "yes", time.Now()))

	onlyLosers := []*models.Participation{
		settled(uuid.New(), "no", 40, "0"),
	}
	assert.Empty(t, BuildEntries(marketID, onlyLosers, "yes", time.Now()))

	// A winner with zero profit produces no debt.
	zeroProfit := []*models.Participation{
		settled(uuid.New(), "yes", 40, "40"),
		settled(uuid.New(), "no", 10, "0"),
	}
	assert.Empty(t, BuildEntries(marketID, zeroProfit, "yes", time.Now()))
}

func TestNetting(t *testing.T) {
	alice := uuid.New()
	bob := uuid.New()
	carol := uuid.New()

	entry := func(payer, payee uuid.UUID, amount string, status models.BalanceStatus) *models.OutstandingBalance {
		a, err := decimal.NewFromString(amount)
		if err != nil {
			panic(err)
		}
		return &models.OutstandingBalance{
			ID:      uuid.New(),
			PayerID: payer,
			PayeeID: payee,
			Amount:  a,
			Status:  status,
		}
	}

	entries := []*models.OutstandingBalance{
		entry(bob, alice, "50", models.BalanceStatusPending),
		entry(alice, bob, "20", models.BalanceStatusPending),
		entry(bob, alice, "10", models.BalanceStatusResolved),
		entry(carol, alice, "99", models.BalanceStatusPending),
	}

	net := Net(alice, bob, entries)
	assert.Equal(t, alice, net.UserID)
	assert.Equal(t, bob, net.CounterpartyID)
	// 50 owed to alice minus 20 owed by alice; the resolved 10 and the
	// carol entry do not count.
	assert.True(t, net.Amount.Equal(decimal.NewFromInt(30)), "got %s", net.Amount)
	assert.Equal(t, 2, net.EntryCount)

	flipped := Net(bob, alice, entries)
	assert.True(t, flipped.Amount.Equal(decimal.NewFromInt(-30)))
}

func TestNetCountsPaidUntilResolved(t *testing.T) {
	alice := uuid.New()
	bob := uuid.New()

	entry := func(status models.BalanceStatus, amount int64) *models.OutstandingBalance {
		return &models.OutstandingBalance{
			ID:      uuid.New(),
			PayerID: bob,
			PayeeID: alice,
			Amount:  decimal.NewFromInt(amount),
			Status:  status,
		}
	}

	// A paid entry is still outstanding: the payee has not confirmed
	// receipt. Only resolution removes it from the net.
	entries := []*models.OutstandingBalance{
		entry(models.BalanceStatusPending, 40),
		entry(models.BalanceStatusPaid, 25),
		entry(models.BalanceStatusResolved, 100),
	}

	net := Net(alice, bob, entries)
	assert.True(t, net.Amount.Equal(decimal.NewFromInt(65)), "got %s", net.Amount)
	assert.Equal(t, 2, net.EntryCount)
}

// memBalanceStore is an in-memory BalanceStore for resolution tests.
type memBalanceStore struct {
	mu      sync.Mutex
	entries []*models.OutstandingBalance
}

func (s *memBalanceStore) GetBetween(ctx context.Context, payerID, payeeID uuid.UUID) ([]*models.OutstandingBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.OutstandingBalance
	for _, b := range s.entries {
		if b.PayerID == payerID && b.PayeeID == payeeID {
			c := *b
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *memBalanceStore) GetByUser(ctx context.Context, userID uuid.UUID) ([]*models.OutstandingBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.OutstandingBalance
	for _, b := range s.entries {
		if b.PayerID == userID || b.PayeeID == userID {
			c := *b
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *memBalanceStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.BalanceStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.entries {
		if b.ID == id && b.Status == from {
			b.Status = to
			return true, nil
		}
	}
	return false, nil
}

func TestMarkPaidAndReceived(t *testing.T) {
	payer := uuid.New()
	payee := uuid.New()
	amount := decimal.NewFromInt(25)

	store := &memBalanceStore{
		entries: []*models.OutstandingBalance{
			{ID: uuid.New(), PayerID: payer, PayeeID: payee, Amount: amount, Status: models.BalanceStatusPending},
			{ID: uuid.New(), PayerID: payer, PayeeID: payee, Amount: amount, Status: models.BalanceStatusPending},
			{ID: uuid.New(), PayerID: payee, PayeeID: payer, Amount: amount, Status: models.BalanceStatusPending},
		},
	}
	svc := NewService(store, testLogger())
	ctx := context.Background()

	n, err := svc.MarkPaid(ctx, payer, payee)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Re-running changes nothing.
	n, err = svc.MarkPaid(ctx, payer, payee)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// The reverse-direction entry is untouched.
	reverse, err := store.GetBetween(ctx, payee, payer)
	require.NoError(t, err)
	require.Len(t, reverse, 1)
	assert.Equal(t, models.BalanceStatusPending, reverse[0].Status)

	// Receipt resolves paid entries; a second call is a no-op.
	n, err = svc.MarkReceived(ctx, payer, payee)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = svc.MarkReceived(ctx, payer, payee)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMarkReceivedSkipsPaymentStep(t *testing.T) {
	payer := uuid.New()
	payee := uuid.New()

	store := &memBalanceStore{
		entries: []*models.OutstandingBalance{
			{ID: uuid.New(), PayerID: payer, PayeeID: payee, Amount: decimal.NewFromInt(10), Status: models.BalanceStatusPending},
		},
	}
	svc := NewService(store, testLogger())

	// Receiving without a prior MarkPaid resolves the pending entry
	// directly.
	n, err := svc.MarkReceived(context.Background(), payer, payee)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.BalanceStatusResolved, store.entries[0].Status)
}

func TestNetBetweenAndPositions(t *testing.T) {
	alice := uuid.New()
	bob := uuid.New()
	carol := uuid.New()

	store := &memBalanceStore{
		entries: []*models.OutstandingBalance{
			{ID: uuid.New(), PayerID: bob, PayeeID: alice, Amount: decimal.NewFromInt(50), Status: models.BalanceStatusPending},
			{ID: uuid.New(), PayerID: alice, PayeeID: bob, Amount: decimal.NewFromInt(20), Status: models.BalanceStatusPaid},
			{ID: uuid.New(), PayerID: alice, PayeeID: carol, Amount: decimal.NewFromInt(5), Status: models.BalanceStatusPending},
		},
	}
	svc := NewService(store, testLogger())
	ctx := context.Background()

	net, err := svc.NetBetween(ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, net.Amount.Equal(decimal.NewFromInt(30)), "got %s", net.Amount)

	positions, err := svc.NetPositions(ctx, alice)
	require.NoError(t, err)
	require.Len(t, positions, 2)

	byCounterparty := make(map[uuid.UUID]models.NetBalance)
	for _, p := range positions {
		byCounterparty[p.CounterpartyID] = p
	}
	assert.True(t, byCounterparty[bob].Amount.Equal(decimal.NewFromInt(30)))
	assert.True(t, byCounterparty[carol].Amount.Equal(decimal.NewFromInt(-5)))
}
