package score_test

import (
	"testing"

	"github.com/jrsteele09/hbr-risk/criteria"
	"github.com/jrsteele09/hbr-risk/score"
	"github.com/stretchr/testify/require"
)

func TestTierForBoundaries(t *testing.T) {
	tests := []struct {
		score int
		want  score.Tier
	}{
		{0, score.TierNonHigh},
		{22, score.TierNonHigh},
		{23, score.TierHigh},
		{26, score.TierHigh},
		{27, score.TierVeryHigh},
		{60, score.TierVeryHigh},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, score.TierFor(tt.score, criteria.DefaultThresholds), "score %d", tt.score)
	}
}

func TestAggregate(t *testing.T) {
	results := []criteria.CriterionResult{
		{ID: "base-score", Met: true, Points: 2},
		{ID: "age", Met: true, Points: 11.25},
		{ID: "hemoglobin", Met: true, Points: 11.25},
		{ID: "prior-bleeding", Met: false, Points: 0, Reason: criteria.ReasonNoMatch},
		{ID: "wbc", Met: true, Points: 0.4},
	}

	got := score.Aggregate(results, criteria.DefaultThresholds)
	require.InDelta(t, 24.9, got.RawScore, 1e-9)
	require.Equal(t, 25, got.Score)
	require.Equal(t, score.TierHigh, got.Tier)
	require.Equal(t, 5.0, got.BleedingRiskPercent)
	require.Len(t, got.Results, len(results))

	t.Run("results are copied", func(t *testing.T) {
		results[0].Points = 100
		require.Equal(t, 2.0, got.Results[0].Points)
	})

	t.Run("unmet results never count", func(t *testing.T) {
		got := score.Aggregate([]criteria.CriterionResult{{ID: "x", Met: false, Points: 30}}, criteria.DefaultThresholds)
		require.Zero(t, got.Score)
		require.Equal(t, score.TierNonHigh, got.Tier)
	})

	t.Run("severe anemia and CKD reach very high", func(t *testing.T) {
		got := score.Aggregate([]criteria.CriterionResult{
			{ID: "severe-anemia", Met: true, Points: 15},
			{ID: "severe-ckd", Met: true, Points: 12},
		}, criteria.DefaultThresholds)
		require.Equal(t, 27, got.Score)
		require.Equal(t, score.TierVeryHigh, got.Tier)
	})

	t.Run("rounding half away from zero", func(t *testing.T) {
		got := score.Aggregate([]criteria.CriterionResult{{ID: "x", Met: true, Points: 22.5}}, criteria.DefaultThresholds)
		require.Equal(t, 23, got.Score)
		require.Equal(t, score.TierHigh, got.Tier)
	})
}

func TestBleedingRiskPercent(t *testing.T) {
	tests := map[int]float64{
		-3: 0.5,
		0:  0.5,
		11: 2.0,
		22: 3.5,
		24: 4.5,
		26: 5.5,
		30: 8.0,
		35: 12.0,
		45: 15.0,
		90: 15.0,
	}
	for s, want := range tests {
		require.InDelta(t, want, score.BleedingRiskPercent(s), 1e-9, "score %d", s)
	}
}
