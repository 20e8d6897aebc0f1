package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sidepot/sidepot/internal/metrics"
	"github.com/sidepot/sidepot/internal/models"
	"github.com/sidepot/sidepot/internal/odds"
)

// WageringConfig holds tunables for bet placement
type WageringConfig struct {
	MaxStake     int64         `mapstructure:"max_stake" validate:"required,gt=0"`
	MaxAttempts  int           `mapstructure:"max_attempts" validate:"required,gte=1,lte=10"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" validate:"required"`
}

// DefaultWageringConfig returns the production defaults
func DefaultWageringConfig() WageringConfig {
	return WageringConfig{
		MaxStake:     100000,
		MaxAttempts:  4,
		RetryBackoff: 25 * time.Millisecond,
	}
}

// PlaceBetRequest describes one stake to be placed
type PlaceBetRequest struct {
	MarketID uuid.UUID `json:"market_id" validate:"required"`
	UserID   uuid.UUID `json:"user_id" validate:"required"`
	Option   string    `json:"option" validate:"required"`
	Stake    int64     `json:"stake" validate:"required,gt=0"`
}

// WageringEngine places stakes against open markets
type WageringEngine struct {
	store     Store
	sink      NotificationSink
	observers []OddsObserver
	cfg       WageringConfig
	validate  *validator.Validate
	logger    *logrus.Logger
	now       func() time.Time
}

// NewWageringEngine creates a new wagering engine
func NewWageringEngine(store Store, cfg WageringConfig, logger *logrus.Logger) *WageringEngine {
	return &WageringEngine{
		store:    store,
		cfg:      cfg,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// SetNotificationSink attaches a best-effort event sink.
func (e *WageringEngine) SetNotificationSink(sink NotificationSink) {
	e.sink = sink
}

// AddOddsObserver attaches an observer notified after committed pool
// mutations.
func (e *WageringEngine) AddOddsObserver(observer OddsObserver) {
	e.observers = append(e.observers, observer)
}

// PlaceBet validates the request, then runs one atomic transaction that
// locks the market row, captures the pre-bet odds snapshot, debits the
// user's balance, records the participation, and grows the pool. Under a
// conflicting concurrent commit the whole transaction is re-run from a
// fresh snapshot, up to the configured attempt bound.
//
// The returned participation carries the locked odds the bettor is
// guaranteed, reflecting the pool state excluding their own stake.
func (e *WageringEngine) PlaceBet(ctx context.Context, req PlaceBetRequest) (*models.Participation, error) {
	start := time.Now()
	defer func() {
		metrics.BetPlacementLatency.Observe(time.Since(start).Seconds())
	}()

	if err := e.validate.Struct(req); err != nil {
		metrics.BetsRejectedTotal.Inc()
		return nil, models.NewValidationError("request", err.Error())
	}
	if req.Stake > e.cfg.MaxStake {
		metrics.BetsRejectedTotal.Inc()
		return nil, models.NewValidationError("stake", fmt.Sprintf("stake exceeds maximum of %d", e.cfg.MaxStake))
	}

	var (
		participation *models.Participation
		updatedMarket *models.Market
		lastErr       error
	)

	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		participation, updatedMarket, lastErr = e.placeBetOnce(ctx, req)
		if lastErr == nil {
			break
		}
		if !errors.Is(lastErr, ErrTxConflict) {
			metrics.BetsRejectedTotal.Inc()
			return nil, lastErr
		}

		metrics.ConflictRetriesTotal.Inc()
		e.logger.WithFields(logrus.Fields{
			"market_id": req.MarketID,
			"user_id":   req.UserID,
			"attempt":   attempt,
		}).Warn("Bet placement conflicted, retrying")

		if attempt < e.cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff(e.cfg.RetryBackoff, attempt)):
			}
		}
	}

	if lastErr != nil {
		metrics.BetsRejectedTotal.Inc()
		return nil, models.NewConcurrencyConflictError(e.cfg.MaxAttempts, lastErr)
	}

	metrics.BetsPlacedTotal.Inc()
	e.logger.WithFields(logrus.Fields{
		"market_id": req.MarketID,
		"user_id":   req.UserID,
		"option":    req.Option,
		"stake":     req.Stake,
	}).Info("Bet placed")

	e.afterCommit(ctx, participation, updatedMarket)

	return participation, nil
}

// placeBetOnce runs a single attempt of the placement transaction.
func (e *WageringEngine) placeBetOnce(ctx context.Context, req PlaceBetRequest) (*models.Participation, *models.Market, error) {
	var (
		participation *models.Participation
		updatedMarket *models.Market
	)

	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		market, err := tx.MarketForUpdate(ctx, req.MarketID)
		if err != nil {
			return err
		}

		if !market.IsOpen() {
			return models.NewMarketClosedError(market.ID.String(), market.Status)
		}
		// Deadlines can elapse mid-flight under load; the check belongs
		// inside the transaction, not only at request entry.
		now := e.now()
		if !now.Before(market.Deadline) {
			return models.NewValidationError("deadline", "market deadline has passed")
		}
		if !market.HasOption(req.Option) {
			return models.NewValidationError("option", fmt.Sprintf("unknown option %q", req.Option))
		}

		locked, err := odds.Compute(market)
		if err != nil {
			return err
		}

		if err := tx.DebitBalance(ctx, req.UserID, req.Stake); err != nil {
			return err
		}

		participation = &models.Participation{
			ID:         uuid.New(),
			MarketID:   market.ID,
			UserID:     req.UserID,
			Option:     req.Option,
			Stake:      req.Stake,
			LockedOdds: locked,
			PlacedAt:   now,
		}
		if err := tx.InsertParticipation(ctx, participation); err != nil {
			return err
		}

		if err := tx.ApplyStake(ctx, market.ID, req.Option, req.Stake); err != nil {
			return err
		}

		updated := *market
		updated.OptionPools = make(map[string]int64, len(market.Options))
		for option, pool := range market.OptionPools {
			updated.OptionPools[option] = pool
		}
		updated.OptionPools[req.Option] += req.Stake
		updated.TotalPool += req.Stake
		updatedMarket = &updated

		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return participation, updatedMarket, nil
}

// afterCommit fires best-effort side effects. None of them affect the
// committed wager.
func (e *WageringEngine) afterCommit(ctx context.Context, p *models.Participation, m *models.Market) {
	for _, observer := range e.observers {
		observer.ObserveMarket(ctx, m)
	}
	if e.sink != nil {
		e.sink.Emit(EventBetPlaced, map[string]interface{}{
			"market_id":  p.MarketID.String(),
			"user_id":    p.UserID.String(),
			"option":     p.Option,
			"stake":      p.Stake,
			"total_pool": m.TotalPool,
		})
	}
}

// backoff returns an exponentially growing delay with jitter.
func backoff(base time.Duration, attempt int) time.Duration {
	d := base << uint(attempt-1)
	jitter := time.Duration(rand.Int63n(int64(base)))
	return d + jitter
}
