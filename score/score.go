// Package score turns criterion results into a PRECISE-HBR risk assessment.
package score

import (
	"math"
	"slices"

	"github.com/jrsteele09/hbr-risk/criteria"
)

type Tier string

const (
	TierNonHigh  Tier = "non-high"
	TierHigh     Tier = "high"
	TierVeryHigh Tier = "very-high"
)

// RiskAssessment is the outcome of one evaluation.
type RiskAssessment struct {
	Score               int                        `json:"score"`
	RawScore            float64                    `json:"rawScore"`
	Tier                Tier                       `json:"tier"`
	BleedingRiskPercent float64                    `json:"bleedingRiskPercent"`
	Results             []criteria.CriterionResult `json:"results"`
}

// TierFor maps a score to its tier. Both thresholds are the first score of their tier.
func TierFor(score int, t criteria.Thresholds) Tier {
	switch {
	case score >= t.VeryHigh:
		return TierVeryHigh
	case score >= t.High:
		return TierHigh
	}
	return TierNonHigh
}

// Aggregate sums the points of met results and rounds half away from zero.
func Aggregate(results []criteria.CriterionResult, t criteria.Thresholds) RiskAssessment {
	var raw float64
	for _, r := range results {
		if r.Met {
			raw += r.Points
		}
	}
	score := int(math.Round(raw))
	return RiskAssessment{
		Score:               score,
		RawScore:            raw,
		Tier:                TierFor(score, t),
		BleedingRiskPercent: BleedingRiskPercent(score),
		Results:             slices.Clone(results),
	}
}

// BleedingRiskPercent is the estimated one-year BARC 3 or 5 bleeding risk for a score,
// interpolated along the published PRECISE-HBR curve and capped at 15%.
func BleedingRiskPercent(score int) float64 {
	s := float64(max(score, 0))
	var pct float64
	switch {
	case s <= 22:
		pct = 0.5 + s/22*3.0
	case s <= 26:
		pct = 3.5 + (s-22)/4*2.0
	case s <= 30:
		pct = 5.5 + (s-26)/4*2.5
	case s <= 35:
		pct = 8.0 + (s-30)/5*4.0
	default:
		pct = math.Min(12.0+(s-35)/10*3.0, 15.0)
	}
	return math.Round(pct*10) / 10
}
