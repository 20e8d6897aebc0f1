package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/sidepot/sidepot/internal/community"
	"github.com/sidepot/sidepot/internal/engine"
	"github.com/sidepot/sidepot/internal/metrics"
	"github.com/sidepot/sidepot/internal/models"
	"github.com/sidepot/sidepot/internal/odds"
	"github.com/sidepot/sidepot/internal/repository"
)

// EventMarketDeadline is emitted once per market when its deadline passes
// while the market is still open.
const EventMarketDeadline = "market_deadline_passed"

const (
	maxOptions = 10

	// How long a swept market stays de-duplicated before the sweeper may
	// notify about it again.
	sweepMemory = 24 * time.Hour
)

// CreateMarketRequest carries the fields for opening a new market.
type CreateMarketRequest struct {
	CommunityID uuid.UUID         `validate:"required"`
	CreatorID   uuid.UUID         `validate:"required"`
	Title       string            `validate:"required,min=3,max=200"`
	Options     []string          `validate:"required,min=2,max=10,unique,dive,required,max=80"`
	StoredOdds  map[string]string `validate:"omitempty"`
	Deadline    time.Time         `validate:"required"`
}

// MarketView pairs a market with its live odds for presentation.
type MarketView struct {
	Market      *models.Market
	Implied     map[string]float64
	DisplayOdds map[string]string
}

// MarketService owns the market lifecycle outside of wagering and
// settlement: creation, lookup, creator-only cancel and delete, and the
// deadline sweep.
type MarketService struct {
	markets        repository.MarketRepository
	participations repository.ParticipationRepository
	settlement     *engine.SettlementEngine
	sink           engine.NotificationSink
	directory      community.Directory
	swept          *cache.Cache
	validate       *validator.Validate
	logger         *logrus.Logger
	now            func() time.Time
}

// NewMarketService creates a new market lifecycle service
func NewMarketService(
	markets repository.MarketRepository,
	participations repository.ParticipationRepository,
	settlement *engine.SettlementEngine,
	sink engine.NotificationSink,
	directory community.Directory,
	logger *logrus.Logger,
) *MarketService {
	return &MarketService{
		markets:        markets,
		participations: participations,
		settlement:     settlement,
		sink:           sink,
		directory:      directory,
		swept:          cache.New(sweepMemory, time.Hour),
		validate:       validator.New(),
		logger:         logger,
		now:            time.Now,
	}
}

// Create validates and opens a new market. Pools start empty; StoredOdds,
// when given, must cover a subset of the options in American notation and
// serve as the display odds until the first stake lands.
func (s *MarketService) Create(ctx context.Context, req CreateMarketRequest) (*models.Market, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, models.NewValidationError("request", err.Error())
	}
	if !req.Deadline.After(s.now()) {
		return nil, models.NewValidationError("deadline", "deadline must be in the future")
	}
	for option, stored := range req.StoredOdds {
		found := false
		for _, o := range req.Options {
			if o == option {
				found = true
				break
			}
		}
		if !found {
			return nil, models.NewValidationError("stored_odds", "odds given for unknown option "+option)
		}
		if _, err := odds.ParseAmerican(stored); err != nil {
			return nil, models.NewValidationError("stored_odds", fmt.Sprintf("option %s: %v", option, err))
		}
	}

	pools := make(map[string]int64, len(req.Options))
	for _, option := range req.Options {
		pools[option] = 0
	}

	createdAt := s.now()
	market := &models.Market{
		ID:          uuid.New(),
		CommunityID: req.CommunityID,
		CreatorID:   req.CreatorID,
		Title:       req.Title,
		Options:     req.Options,
		OptionPools: pools,
		TotalPool:   0,
		StoredOdds:  req.StoredOdds,
		Status:      models.MarketStatusOpen,
		Deadline:    req.Deadline,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}

	if err := s.markets.Create(ctx, market); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"market_id":    market.ID,
		"community_id": market.CommunityID,
		"options":      len(market.Options),
		"deadline":     market.Deadline,
	}).Info("Market created")

	return market, nil
}

// Get returns a single market with its current odds.
func (s *MarketService) Get(ctx context.Context, marketID uuid.UUID) (*MarketView, error) {
	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return nil, err
	}
	return s.view(market), nil
}

// ListOpen returns the community's open markets, newest first, with their
// current odds.
func (s *MarketService) ListOpen(ctx context.Context, communityID uuid.UUID, limit int) ([]*MarketView, error) {
	markets, err := s.markets.ListOpen(ctx, communityID, limit)
	if err != nil {
		return nil, err
	}
	views := make([]*MarketView, 0, len(markets))
	for _, m := range markets {
		views = append(views, s.view(m))
	}
	return views, nil
}

// Cancel aborts an open market. Only the creator may cancel, and only
// while nobody has staked.
func (s *MarketService) Cancel(ctx context.Context, marketID, requesterID uuid.UUID) error {
	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return err
	}
	if market.CreatorID != requesterID {
		return models.NewValidationError("requester", "only the market creator can cancel it")
	}
	if err := s.settlement.Cancel(ctx, marketID); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"market_id": marketID,
		"creator":   requesterID,
	}).Info("Market cancelled")

	return nil
}

// Delete removes a market outright. Only the creator may delete, and only
// while the market has no participations; settled history is never
// deletable.
func (s *MarketService) Delete(ctx context.Context, marketID, requesterID uuid.UUID) error {
	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return err
	}
	if market.CreatorID != requesterID {
		return models.NewValidationError("requester", "only the market creator can delete it")
	}
	count, err := s.participations.CountByMarket(ctx, marketID)
	if err != nil {
		return err
	}
	if count > 0 {
		return models.NewValidationError("participations", "cannot delete a market with participants")
	}
	if err := s.markets.Delete(ctx, marketID); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"market_id": marketID,
		"creator":   requesterID,
	}).Info("Market deleted")

	return nil
}

// SweepPastDeadlines notifies creators of open markets whose deadline has
// passed. It never settles anything; the creator decides the outcome. Each
// market is flagged at most once per sweepMemory window.
func (s *MarketService) SweepPastDeadlines(ctx context.Context) (int, error) {
	markets, err := s.markets.ListOpenPastDeadline(ctx, s.now())
	if err != nil {
		return 0, err
	}

	flagged := 0
	for _, m := range markets {
		key := m.ID.String()
		if _, seen := s.swept.Get(key); seen {
			continue
		}
		s.swept.Set(key, struct{}{}, cache.DefaultExpiration)

		if s.sink != nil {
			payload := map[string]interface{}{
				"market_id":  m.ID.String(),
				"creator_id": m.CreatorID.String(),
				"title":      m.Title,
				"deadline":   m.Deadline.UTC().Format(time.RFC3339),
				"total_pool": m.TotalPool,
			}
			if s.directory != nil {
				if name, err := s.directory.DisplayName(ctx, m.CommunityID, m.CreatorID); err == nil {
					payload["creator_name"] = name
				}
			}
			s.sink.Emit(EventMarketDeadline, payload)
		}
		flagged++
	}

	if open, err := s.markets.CountOpen(ctx); err == nil {
		metrics.OpenMarkets.Set(float64(open))
	}

	return flagged, nil
}

func (s *MarketService) view(m *models.Market) *MarketView {
	implied, err := odds.Compute(m)
	if err != nil {
		// A stored market failing pool validation is data corruption;
		// surface the market anyway so operators can inspect it.
		s.logger.WithError(err).WithField("market_id", m.ID).Error("Failed to compute market odds")
		return &MarketView{Market: m}
	}
	display := make(map[string]string, len(implied))
	for option, p := range implied {
		display[option] = odds.FormatImplied(p)
	}
	return &MarketView{Market: m, Implied: implied, DisplayOdds: display}
}
