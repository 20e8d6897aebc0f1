// Package tracker records odds history snapshots for display. Tracking is
// best effort and has no correctness dependency on the wagering or
// settlement paths.
package tracker

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sidepot/sidepot/internal/metrics"
	"github.com/sidepot/sidepot/internal/models"
	"github.com/sidepot/sidepot/internal/odds"
)

// HistoryStore is the persistence surface for odds history entries.
type HistoryStore interface {
	Latest(ctx context.Context, marketID uuid.UUID) (*models.OddsHistoryEntry, error)
	Insert(ctx context.Context, entry *models.OddsHistoryEntry) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int, error)
}

// Config holds the tracker's change-significance and retention tunables
type Config struct {
	PoolDeltaThreshold int64         `mapstructure:"pool_delta_threshold"`
	ProbDeltaThreshold float64       `mapstructure:"prob_delta_threshold"`
	Retention          time.Duration `mapstructure:"retention"`
	PruneBatchSize     int           `mapstructure:"prune_batch_size"`
}

// DefaultConfig returns the production defaults: snapshot on a pool move
// of more than 10 points or a probability move of more than 0.01, 30-day
// retention.
func DefaultConfig() Config {
	return Config{
		PoolDeltaThreshold: 10,
		ProbDeltaThreshold: 0.01,
		Retention:          30 * 24 * time.Hour,
		PruneBatchSize:     500,
	}
}

// Tracker snapshots market odds when they move significantly
type Tracker struct {
	store  HistoryStore
	cfg    Config
	logger *logrus.Logger
	now    func() time.Time
}

// NewTracker creates a new odds history tracker
func NewTracker(store HistoryStore, cfg Config, logger *logrus.Logger) *Tracker {
	return &Tracker{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// ObserveMarket compares the market's current odds and pool against the
// last stored snapshot and writes a new entry only when the change is
// significant. Failures are logged and swallowed.
func (t *Tracker) ObserveMarket(ctx context.Context, m *models.Market) {
	current, err := odds.Compute(m)
	if err != nil {
		t.logger.WithError(err).WithField("market_id", m.ID).Warn("Odds computation failed, skipping snapshot")
		return
	}

	last, err := t.store.Latest(ctx, m.ID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		t.logger.WithError(err).WithField("market_id", m.ID).Warn("Failed to load last odds snapshot")
		return
	}

	if last != nil && !t.significant(last, m, current) {
		return
	}

	entry := &models.OddsHistoryEntry{
		ID:          uuid.New(),
		MarketID:    m.ID,
		Odds:        current,
		TotalPool:   m.TotalPool,
		OptionPools: clonePools(m.OptionPools),
		RecordedAt:  t.now(),
	}
	if err := t.store.Insert(ctx, entry); err != nil {
		t.logger.WithError(err).WithField("market_id", m.ID).Warn("Failed to write odds snapshot")
		return
	}
	metrics.OddsSnapshotsTotal.Inc()
}

// significant reports whether the pool or any option's probability moved
// past the configured thresholds since the last snapshot.
func (t *Tracker) significant(last *models.OddsHistoryEntry, m *models.Market, current map[string]float64) bool {
	poolDelta := m.TotalPool - last.TotalPool
	if poolDelta < 0 {
		poolDelta = -poolDelta
	}
	if poolDelta > t.cfg.PoolDeltaThreshold {
		return true
	}
	for option, p := range current {
		if math.Abs(p-last.Odds[option]) > t.cfg.ProbDeltaThreshold {
			return true
		}
	}
	return false
}

// Prune deletes entries older than the retention window in batches until
// none remain. Returns the total number of deleted entries.
func (t *Tracker) Prune(ctx context.Context) (int, error) {
	cutoff := t.now().Add(-t.cfg.Retention)
	total := 0
	for {
		deleted, err := t.store.DeleteOlderThan(ctx, cutoff, t.cfg.PruneBatchSize)
		if err != nil {
			return total, err
		}
		total += deleted
		if deleted < t.cfg.PruneBatchSize {
			break
		}
	}
	if total > 0 {
		metrics.OddsSnapshotsPrunedTotal.Add(float64(total))
		t.logger.WithField("pruned", total).Info("Odds history pruned")
	}
	return total, nil
}

func clonePools(pools map[string]int64) map[string]int64 {
	cloned := make(map[string]int64, len(pools))
	for option, pool := range pools {
		cloned[option] = pool
	}
	return cloned
}
