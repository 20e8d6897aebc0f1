// Package odds provides pure conversions between American-odds notation
// and implied probability, and the pool smoothing function that derives
// live odds from staked amounts.
package odds

import (
	"math"

	"github.com/sidepot/sidepot/internal/models"
)

const (
	// MinBuffer is the floor of the smoothing buffer in points.
	MinBuffer = 25.0
	// BufferRate is the fraction of the total pool added as buffer.
	BufferRate = 0.05

	// MaxAmerican and MinAmerican bound formatted odds at the extremes.
	MaxAmerican = 1000
	MinAmerican = -1000
)

// AmericanToImplied converts signed American odds to an implied
// probability in (0,1). Odds of +150 mean 100/(150+100) = 0.4; odds of
// -150 mean 150/(150+100) = 0.6. Zero odds are treated as even money.
func AmericanToImplied(american int) float64 {
	if american == 0 {
		return 0.5
	}
	if american > 0 {
		return 100.0 / (float64(american) + 100.0)
	}
	abs := math.Abs(float64(american))
	return abs / (abs + 100.0)
}

// ImpliedToAmerican converts an implied probability to signed integer
// American odds, clamped to [-1000, +1000]. Probabilities at or beyond
// the ends of the open interval clamp to the extremes.
func ImpliedToAmerican(probability float64) int {
	if probability <= 0 {
		return MaxAmerican
	}
	if probability >= 1 {
		return MinAmerican
	}

	var american float64
	if probability > 0.5 {
		american = -(probability / (1 - probability)) * 100.0
	} else {
		american = ((1 - probability) / probability) * 100.0
	}

	rounded := int(math.Round(american))
	if rounded > MaxAmerican {
		return MaxAmerican
	}
	if rounded < MinAmerican {
		return MinAmerican
	}
	return rounded
}

// Compute derives the implied probability for every option of a market
// from its current pool state.
//
// With an empty pool it falls back to the market's stored odds, or an
// even split when no stored odds parse. Otherwise each option's pool is
// smoothed with a buffer of max(25, 5% of the total pool) so a single
// early stake never implies certainty.
//
// The market must have at least one option; pools are validated against
// the option list and unknown keys are rejected.
func Compute(m *models.Market) (map[string]float64, error) {
	if len(m.Options) == 0 {
		return nil, models.NewValidationError("options", "market has no options")
	}
	if err := m.ValidatePools(); err != nil {
		return nil, err
	}

	result := make(map[string]float64, len(m.Options))

	if m.TotalPool == 0 {
		if stored := storedImplied(m); stored != nil {
			return stored, nil
		}
		even := 1.0 / float64(len(m.Options))
		for _, option := range m.Options {
			result[option] = even
		}
		return result, nil
	}

	buffer := math.Max(MinBuffer, BufferRate*float64(m.TotalPool))
	smoothedTotal := float64(m.TotalPool) + buffer
	perOption := buffer / float64(len(m.Options))

	for _, option := range m.Options {
		smoothed := float64(m.PoolFor(option)) + perOption
		result[option] = smoothed / smoothedTotal
	}
	return result, nil
}

// storedImplied converts the market's stored American odds to implied
// probabilities. Returns nil unless every option has a parseable entry.
func storedImplied(m *models.Market) map[string]float64 {
	if len(m.StoredOdds) == 0 {
		return nil
	}
	result := make(map[string]float64, len(m.Options))
	for _, option := range m.Options {
		raw, ok := m.StoredOdds[option]
		if !ok {
			return nil
		}
		american, err := ParseAmerican(raw)
		if err != nil {
			return nil
		}
		result[option] = AmericanToImplied(american)
	}
	return result
}
