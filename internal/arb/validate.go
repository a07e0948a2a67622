package arb

import (
	"fmt"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// Validation thresholds. Profit below warnLowProfitPct is barely worth the
// execution risk; profit above warnHighProfitPct almost always means a data
// error rather than a genuine edge.
const (
	warnLowProfitPct  = 0.1
	warnHighProfitPct = 10.0
	penaltyPerWarning = 20
	thinProfitPct     = 0.5
	thinProfitPenalty = 20
)

// Validate checks a single result for hard data-integrity errors and soft
// warnings, and derives a 0-100 confidence score. Hard errors force
// Valid=false; prices are never silently clamped into range.
func Validate(result domain.ArbitrageResult) domain.Validation {
	v := domain.Validation{Valid: true, Confidence: 100}

	for _, leg := range []domain.Leg{result.FirstLeg, result.SecondLeg} {
		if !priceInRange(leg.Price) {
			v.Valid = false
			v.Errors = append(v.Errors, fmt.Sprintf("%s %s price %.6f outside [0,1]", leg.Venue, leg.Side, leg.Price))
		}
	}
	if result.TotalCost >= 1 {
		v.Valid = false
		v.Errors = append(v.Errors, fmt.Sprintf("total cost %.6f >= 1", result.TotalCost))
	}

	if result.ProfitPercent < warnLowProfitPct {
		v.Warnings = append(v.Warnings, fmt.Sprintf("profit %.4f%% below %.1f%% floor", result.ProfitPercent, warnLowProfitPct))
		v.Confidence -= penaltyPerWarning
	}
	if result.ProfitPercent > warnHighProfitPct {
		v.Warnings = append(v.Warnings, fmt.Sprintf("profit %.2f%% above %.0f%% ceiling, likely stale or bad data", result.ProfitPercent, warnHighProfitPct))
		v.Confidence -= penaltyPerWarning
	}
	if result.ProfitPercent < thinProfitPct {
		v.Confidence -= thinProfitPenalty
	}

	if v.Confidence < 0 {
		v.Confidence = 0
	}
	return v
}
