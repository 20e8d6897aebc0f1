package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sidepot/sidepot/internal/engine"
	"github.com/sidepot/sidepot/internal/models"
)

// memBackend is one in-memory store behind every handler dependency: the
// engine transactions plus the market, participation, wallet, history, and
// balance repositories.
type memBackend struct {
	mu             sync.Mutex
	markets        map[uuid.UUID]*models.Market
	participations []*models.Participation
	wallets        map[uuid.UUID]int64
	ledger         []*models.OutstandingBalance
	history        []*models.OddsHistoryEntry
}

func newMemBackend() *memBackend {
	return &memBackend{
		markets: make(map[uuid.UUID]*models.Market),
		wallets: make(map[uuid.UUID]int64),
	}
}

func (b *memBackend) WithTx(ctx context.Context, fn func(ctx context.Context, tx engine.Tx) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := b.snapshotLocked()
	if err := fn(ctx, (*memBackendTx)(b)); err != nil {
		b.restoreLocked(snap)
		return err
	}
	return nil
}

type backendSnapshot struct {
	markets        map[uuid.UUID]*models.Market
	participations []*models.Participation
	wallets        map[uuid.UUID]int64
	ledger         []*models.OutstandingBalance
}

func (b *memBackend) snapshotLocked() backendSnapshot {
	snap := backendSnapshot{
		markets: make(map[uuid.UUID]*models.Market, len(b.markets)),
		wallets: make(map[uuid.UUID]int64, len(b.wallets)),
	}
	for id, m := range b.markets {
		snap.markets[id] = cloneMarket(m)
	}
	for _, p := range b.participations {
		snap.participations = append(snap.participations, cloneParticipation(p))
	}
	for id, v := range b.wallets {
		snap.wallets[id] = v
	}
	for _, e := range b.ledger {
		c := *e
		snap.ledger = append(snap.ledger, &c)
	}
	return snap
}

func (b *memBackend) restoreLocked(snap backendSnapshot) {
	b.markets = snap.markets
	b.participations = snap.participations
	b.wallets = snap.wallets
	b.ledger = snap.ledger
}

// memBackendTx exposes the backend as an engine.Tx while the lock is held.
type memBackendTx memBackend

func (t *memBackendTx) MarketForUpdate(ctx context.Context, marketID uuid.UUID) (*models.Market, error) {
	m, ok := t.markets[marketID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneMarket(m), nil
}

func (t *memBackendTx) ApplyStake(ctx context.Context, marketID uuid.UUID, option string, stake int64) error {
	m, ok := t.markets[marketID]
	if !ok {
		return models.ErrNotFound
	}
	if m.OptionPools == nil {
		m.OptionPools = make(map[string]int64)
	}
	m.OptionPools[option] += stake
	m.TotalPool += stake
	return nil
}

func (t *memBackendTx) TransitionMarket(ctx context.Context, marketID uuid.UUID, from, to models.MarketStatus, winnerOption *string) (bool, error) {
	m, ok := t.markets[marketID]
	if !ok {
		return false, models.ErrNotFound
	}
	if m.Status != from {
		return false, nil
	}
	m.Status = to
	m.WinnerOption = winnerOption
	return true, nil
}

func (t *memBackendTx) InsertParticipation(ctx context.Context, p *models.Participation) error {
	t.participations = append(t.participations, cloneParticipation(p))
	return nil
}

func (t *memBackendTx) ParticipationsForMarket(ctx context.Context, marketID uuid.UUID) ([]*models.Participation, error) {
	var out []*models.Participation
	for _, p := range t.participations {
		if p.MarketID == marketID {
			out = append(out, cloneParticipation(p))
		}
	}
	return out, nil
}

func (t *memBackendTx) SetParticipationResult(ctx context.Context, participationID uuid.UUID, payout decimal.Decimal, isWinner *bool, settledAt time.Time) error {
	for _, p := range t.participations {
		if p.ID != participationID {
			continue
		}
		if p.FinalPayout != nil {
			return nil
		}
		p.FinalPayout = &payout
		p.IsWinner = isWinner
		at := settledAt
		p.SettledAt = &at
		return nil
	}
	return models.ErrNotFound
}

func (t *memBackendTx) DebitBalance(ctx context.Context, userID uuid.UUID, amount int64) error {
	balance := t.wallets[userID]
	if balance < amount {
		return models.NewInsufficientFundsError(balance, amount)
	}
	t.wallets[userID] = balance - amount
	return nil
}

func (t *memBackendTx) CreditBalance(ctx context.Context, userID uuid.UUID, amount int64) error {
	t.wallets[userID] += amount
	return nil
}

func (t *memBackendTx) InsertOutstandingBalance(ctx context.Context, ob *models.OutstandingBalance) error {
	c := *ob
	t.ledger = append(t.ledger, &c)
	return nil
}

func (t *memBackendTx) OutstandingBalancesForMarket(ctx context.Context, marketID uuid.UUID) ([]*models.OutstandingBalance, error) {
	var out []*models.OutstandingBalance
	for _, e := range t.ledger {
		if e.MarketID == marketID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

// Market repository surface.

func (b *memBackend) Create(ctx context.Context, market *models.Market) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.markets[market.ID]; exists {
		return models.ErrDuplicateKey
	}
	b.markets[market.ID] = cloneMarket(market)
	return nil
}

func (b *memBackend) GetByID(ctx context.Context, id uuid.UUID) (*models.Market, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.markets[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneMarket(m), nil
}

func (b *memBackend) ListOpen(ctx context.Context, communityID uuid.UUID, limit int) ([]*models.Market, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*models.Market
	for _, m := range b.markets {
		if m.CommunityID == communityID && m.Status == models.MarketStatusOpen {
			out = append(out, cloneMarket(m))
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (b *memBackend) ListOpenPastDeadline(ctx context.Context, asOf time.Time) ([]*models.Market, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*models.Market
	for _, m := range b.markets {
		if m.Status == models.MarketStatusOpen && m.Deadline.Before(asOf) {
			out = append(out, cloneMarket(m))
		}
	}
	return out, nil
}

func (b *memBackend) CountOpen(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	count := 0
	for _, m := range b.markets {
		if m.Status == models.MarketStatusOpen {
			count++
		}
	}
	return count, nil
}

func (b *memBackend) Delete(ctx context.Context, id uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.markets[id]; !ok {
		return models.ErrNotFound
	}
	delete(b.markets, id)
	return nil
}

// participationRepo adapts the backend to the participation repository.
type participationRepo struct{ backend *memBackend }

func (r participationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Participation, error) {
	r.backend.mu.Lock()
	defer r.backend.mu.Unlock()
	for _, p := range r.backend.participations {
		if p.ID == id {
			return cloneParticipation(p), nil
		}
	}
	return nil, models.ErrNotFound
}

func (r participationRepo) GetByMarket(ctx context.Context, marketID uuid.UUID) ([]*models.Participation, error) {
	r.backend.mu.Lock()
	defer r.backend.mu.Unlock()
	var out []*models.Participation
	for _, p := range r.backend.participations {
		if p.MarketID == marketID {
			out = append(out, cloneParticipation(p))
		}
	}
	return out, nil
}

func (r participationRepo) GetByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Participation, error) {
	r.backend.mu.Lock()
	defer r.backend.mu.Unlock()
	var out []*models.Participation
	for _, p := range r.backend.participations {
		if p.UserID == userID && len(out) < limit {
			out = append(out, cloneParticipation(p))
		}
	}
	return out, nil
}

func (r participationRepo) CountByMarket(ctx context.Context, marketID uuid.UUID) (int, error) {
	parts, _ := r.GetByMarket(ctx, marketID)
	return len(parts), nil
}

// walletRepo adapts the backend to the wallet repository.
type walletRepo struct{ backend *memBackend }

func (r walletRepo) EnsureAccount(ctx context.Context, userID uuid.UUID, startingBalance int64) error {
	r.backend.mu.Lock()
	defer r.backend.mu.Unlock()
	if _, ok := r.backend.wallets[userID]; !ok {
		r.backend.wallets[userID] = startingBalance
	}
	return nil
}

func (r walletRepo) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	r.backend.mu.Lock()
	defer r.backend.mu.Unlock()
	balance, ok := r.backend.wallets[userID]
	if !ok {
		return 0, models.ErrNotFound
	}
	return balance, nil
}

func (r walletRepo) Credit(ctx context.Context, userID uuid.UUID, amount int64) error {
	r.backend.mu.Lock()
	defer r.backend.mu.Unlock()
	r.backend.wallets[userID] += amount
	return nil
}

func (r walletRepo) Debit(ctx context.Context, userID uuid.UUID, amount int64) error {
	r.backend.mu.Lock()
	defer r.backend.mu.Unlock()
	balance := r.backend.wallets[userID]
	if balance < amount {
		return models.NewInsufficientFundsError(balance, amount)
	}
	r.backend.wallets[userID] = balance - amount
	return nil
}

// balanceRepo adapts the backend to the outstanding balance repository.
type balanceRepo struct{ backend *memBackend }

func (r balanceRepo) GetByMarket(ctx context.Context, marketID uuid.UUID) ([]*models.OutstandingBalance, error) {
	r.backend.mu.Lock()
	defer r.backend.mu.Unlock()
	var out []*models.OutstandingBalance
	for _, e := range r.backend.ledger {
		if e.MarketID == marketID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r balanceRepo) GetBetween(ctx context.Context, payerID, payeeID uuid.UUID) ([]*models.OutstandingBalance, error) {
	r.backend.mu.Lock()
	defer r.backend.mu.Unlock()
	var out []*models.OutstandingBalance
	for _, e := range r.backend.ledger {
		if e.PayerID == payerID && e.PayeeID == payeeID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r balanceRepo) GetByUser(ctx context.Context, userID uuid.UUID) ([]*models.OutstandingBalance, error) {
	r.backend.mu.Lock()
	defer r.backend.mu.Unlock()
	var out []*models.OutstandingBalance
	for _, e := range r.backend.ledger {
		if e.PayerID == userID || e.PayeeID == userID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r balanceRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.BalanceStatus) (bool, error) {
	r.backend.mu.Lock()
	defer r.backend.mu.Unlock()
	for _, e := range r.backend.ledger {
		if e.ID == id && e.Status == from {
			e.Status = to
			return true, nil
		}
	}
	return false, nil
}

// historyRepo adapts the backend to the odds history repository.
type historyRepo struct{ backend *memBackend }

func (r historyRepo) Insert(ctx context.Context, entry *models.OddsHistoryEntry) error {
	r.backend.mu.Lock()
	defer r.backend.mu.Unlock()
	c := *entry
	r.backend.history = append(r.backend.history, &c)
	return nil
}

func (r historyRepo) Latest(ctx context.Context, marketID uuid.UUID) (*models.OddsHistoryEntry, error) {
	r.backend.mu.Lock()
	defer r.backend.mu.Unlock()
	for i := len(r.backend.history) - 1; i >= 0; i-- {
		if r.backend.history[i].MarketID == marketID {
			c := *r.backend.history[i]
			return &c, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r historyRepo) GetByMarket(ctx context.Context, marketID uuid.UUID, start, end time.Time) ([]*models.OddsHistoryEntry, error) {
	r.backend.mu.Lock()
	defer r.backend.mu.Unlock()
	var out []*models.OddsHistoryEntry
	for _, e := range r.backend.history {
		if e.MarketID == marketID && !e.RecordedAt.Before(start) && !e.RecordedAt.After(end) {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r historyRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int, error) {
	r.backend.mu.Lock()
	defer r.backend.mu.Unlock()
	deleted := 0
	kept := r.backend.history[:0]
	for _, e := range r.backend.history {
		if deleted < batchSize && e.RecordedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.backend.history = kept
	return deleted, nil
}

func cloneMarket(m *models.Market) *models.Market {
	c := *m
	c.Options = append([]string(nil), m.Options...)
	if m.OptionPools != nil {
		c.OptionPools = make(map[string]int64, len(m.OptionPools))
		for k, v := range m.OptionPools {
			c.OptionPools[k] = v
		}
	}
	if m.StoredOdds != nil {
		c.StoredOdds = make(map[string]string, len(m.StoredOdds))
		for k, v := range m.StoredOdds {
			c.StoredOdds[k] = v
		}
	}
	if m.WinnerOption != nil {
		w := *m.WinnerOption
		c.WinnerOption = &w
	}
	return &c
}

func cloneParticipation(p *models.Participation) *models.Participation {
	c := *p
	if p.LockedOdds != nil {
		c.LockedOdds = make(map[string]float64, len(p.LockedOdds))
		for k, v := range p.LockedOdds {
			c.LockedOdds[k] = v
		}
	}
	if p.FinalPayout != nil {
		fp := *p.FinalPayout
		c.FinalPayout = &fp
	}
	if p.IsWinner != nil {
		w := *p.IsWinner
		c.IsWinner = &w
	}
	if p.SettledAt != nil {
		at := *p.SettledAt
		c.SettledAt = &at
	}
	return &c
}
