package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sidepot/sidepot/internal/models"
)

// memStore is an in-memory Store for engine tests. A single mutex
// serializes transactions; rollback restores a pre-transaction snapshot.
// Conflicts are injected with injectConflicts to exercise the retry paths.
type memStore struct {
	mu             sync.Mutex
	markets        map[uuid.UUID]*models.Market
	participations map[uuid.UUID][]*models.Participation
	balances       map[uuid.UUID]int64
	ledger         map[uuid.UUID][]*models.OutstandingBalance

	pendingConflicts int
}

func newMemStore() *memStore {
	return &memStore{
		markets:        make(map[uuid.UUID]*models.Market),
		participations: make(map[uuid.UUID][]*models.Participation),
		balances:       make(map[uuid.UUID]int64),
		ledger:         make(map[uuid.UUID][]*models.OutstandingBalance),
	}
}

// injectConflicts makes the next n transactions fail with ErrTxConflict.
func (s *memStore) injectConflicts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingConflicts = n
}

func (s *memStore) addMarket(m *models.Market) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.ID] = copyMarket(m)
}

func (s *memStore) addParticipation(p *models.Participation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participations[p.MarketID] = append(s.participations[p.MarketID], copyParticipations([]*models.Participation{p})[0])
}

func (s *memStore) addBalance(userID uuid.UUID, balance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] = balance
}

func (s *memStore) balanceOf(userID uuid.UUID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID]
}

func (s *memStore) marketByID(id uuid.UUID) *models.Market {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMarket(s.markets[id])
}

func (s *memStore) participationsByMarket(id uuid.UUID) []*models.Participation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyParticipations(s.participations[id])
}

func (s *memStore) ledgerByMarket(id uuid.UUID) []*models.OutstandingBalance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.OutstandingBalance, len(s.ledger[id]))
	for i, b := range s.ledger[id] {
		c := *b
		out[i] = &c
	}
	return out
}

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingConflicts > 0 {
		s.pendingConflicts--
		return ErrTxConflict
	}

	snapshot := s.snapshotLocked()
	if err := fn(ctx, &memTx{store: s}); err != nil {
		s.restoreLocked(snapshot)
		return err
	}
	return nil
}

type memSnapshot struct {
	markets        map[uuid.UUID]*models.Market
	participations map[uuid.UUID][]*models.Participation
	balances       map[uuid.UUID]int64
	ledger         map[uuid.UUID][]*models.OutstandingBalance
}

func (s *memStore) snapshotLocked() memSnapshot {
	snap := memSnapshot{
		markets:        make(map[uuid.UUID]*models.Market, len(s.markets)),
		participations: make(map[uuid.UUID][]*models.Participation, len(s.participations)),
		balances:       make(map[uuid.UUID]int64, len(s.balances)),
		ledger:         make(map[uuid.UUID][]*models.OutstandingBalance, len(s.ledger)),
	}
	for id, m := range s.markets {
		snap.markets[id] = copyMarket(m)
	}
	for id, parts := range s.participations {
		snap.participations[id] = copyParticipations(parts)
	}
	for id, b := range s.balances {
		snap.balances[id] = b
	}
	for id, entries := range s.ledger {
		copied := make([]*models.OutstandingBalance, len(entries))
		for i, e := range entries {
			c := *e
			copied[i] = &c
		}
		snap.ledger[id] = copied
	}
	return snap
}

func (s *memStore) restoreLocked(snap memSnapshot) {
	s.markets = snap.markets
	s.participations = snap.participations
	s.balances = snap.balances
	s.ledger = snap.ledger
}

// memTx operates directly on the store under its lock.
type memTx struct {
	store *memStore
}

func (t *memTx) MarketForUpdate(ctx context.Context, marketID uuid.UUID) (*models.Market, error) {
	m, ok := t.store.markets[marketID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyMarket(m), nil
}

func (t *memTx) ApplyStake(ctx context.Context, marketID uuid.UUID, option string, stake int64) error {
	m, ok := t.store.markets[marketID]
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

func (t *memTx) TransitionMarket(ctx context.Context, marketID uuid.UUID, from, to models.MarketStatus, winnerOption *string) (bool, error) {
	m, ok := t.store.markets[marketID]
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

func (t *memTx) InsertParticipation(ctx context.Context, p *models.Participation) error {
	copied := *p
	if p.LockedOdds != nil {
		copied.LockedOdds = make(map[string]float64, len(p.LockedOdds))
		for k, v := range p.LockedOdds {
			copied.LockedOdds[k] = v
		}
	}
	t.store.participations[p.MarketID] = append(t.store.participations[p.MarketID], &copied)
	return nil
}

func (t *memTx) ParticipationsForMarket(ctx context.Context, marketID uuid.UUID) ([]*models.Participation, error) {
	return copyParticipations(t.store.participations[marketID]), nil
}

func (t *memTx) SetParticipationResult(ctx context.Context, participationID uuid.UUID, payout decimal.Decimal, isWinner *bool, settledAt time.Time) error {
	for _, parts := range t.store.participations {
		for _, p := range parts {
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
	}
	return models.ErrNotFound
}

func (t *memTx) DebitBalance(ctx context.Context, userID uuid.UUID, amount int64) error {
	balance := t.store.balances[userID]
	if balance < amount {
		return models.NewInsufficientFundsError(balance, amount)
	}
	t.store.balances[userID] = balance - amount
	return nil
}

func (t *memTx) CreditBalance(ctx context.Context, userID uuid.UUID, amount int64) error {
	t.store.balances[userID] += amount
	return nil
}

func (t *memTx) InsertOutstandingBalance(ctx context.Context, b *models.OutstandingBalance) error {
	copied := *b
	t.store.ledger[b.MarketID] = append(t.store.ledger[b.MarketID], &copied)
	return nil
}

func (t *memTx) OutstandingBalancesForMarket(ctx context.Context, marketID uuid.UUID) ([]*models.OutstandingBalance, error) {
	entries := t.store.ledger[marketID]
	out := make([]*models.OutstandingBalance, len(entries))
	for i, e := range entries {
		c := *e
		out[i] = &c
	}
	return out, nil
}

func copyMarket(m *models.Market) *models.Market {
	if m == nil {
		return nil
	}
	copied := *m
	copied.Options = append([]string(nil), m.Options...)
	if m.OptionPools != nil {
		copied.OptionPools = make(map[string]int64, len(m.OptionPools))
		for k, v := range m.OptionPools {
			copied.OptionPools[k] = v
		}
	}
	if m.StoredOdds != nil {
		copied.StoredOdds = make(map[string]string, len(m.StoredOdds))
		for k, v := range m.StoredOdds {
			copied.StoredOdds[k] = v
		}
	}
	if m.WinnerOption != nil {
		w := *m.WinnerOption
		copied.WinnerOption = &w
	}
	return &copied
}

func copyParticipations(parts []*models.Participation) []*models.Participation {
	out := make([]*models.Participation, len(parts))
	for i, p := range parts {
		copied := *p
		if p.LockedOdds != nil {
			copied.LockedOdds = make(map[string]float64, len(p.LockedOdds))
			for k, v := range p.LockedOdds {
				copied.LockedOdds[k] = v
			}
		}
		if p.FinalPayout != nil {
			fp := *p.FinalPayout
			copied.FinalPayout = &fp
		}
		if p.IsWinner != nil {
			w := *p.IsWinner
			copied.IsWinner = &w
		}
		if p.SettledAt != nil {
			at := *p.SettledAt
			copied.SettledAt = &at
		}
		out[i] = &copied
	}
	return out
}

// capturingSink records emitted events for assertions.
type capturingSink struct {
	mu     sync.Mutex
	events []capturedEvent
}

type capturedEvent struct {
	eventType string
	payload   map[string]interface{}
}

func (s *capturingSink) Emit(eventType string, payload map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, capturedEvent{eventType: eventType, payload: payload})
}

func (s *capturingSink) captured() []capturedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]capturedEvent(nil), s.events...)
}

// capturingObserver records observed market snapshots.
type capturingObserver struct {
	mu      sync.Mutex
	markets []*models.Market
}

func (o *capturingObserver) ObserveMarket(ctx context.Context, m *models.Market) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.markets = append(o.markets, m)
}

func (o *capturingObserver) observed() []*models.Market {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*models.Market(nil), o.markets...)
}
