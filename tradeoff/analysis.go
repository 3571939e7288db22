package tradeoff

import (
	"context"
	"math"
	"slices"

	"github.com/jrsteele09/hbr-risk/clinical"
	"github.com/jrsteele09/hbr-risk/criteria"
	apperrors "github.com/jrsteele09/hbr-risk/internal/errors"
	"github.com/rs/zerolog/log"
)

// Factor is a present predictor and the hazard ratio it contributes to one event.
type Factor struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	HazardRatio float64 `json:"hazardRatio"`
}

// EventRisk is the combined hazard ratio of an event and the one-year probability it implies.
type EventRisk struct {
	HazardRatio        float64  `json:"hazardRatio"`
	BaselinePercent    float64  `json:"baselinePercent"`
	ProbabilityPercent float64  `json:"probabilityPercent"`
	Factors            []Factor `json:"factors"`
}

// Analysis compares the bleeding and thrombotic risk of one patient.
type Analysis struct {
	Version    string                     `json:"version,omitempty"`
	Bleeding   EventRisk                  `json:"bleeding"`
	Thrombotic EventRisk                  `json:"thrombotic"`
	Present    []string                   `json:"present"`
	Results    []criteria.CriterionResult `json:"results,omitempty"`
}

// Calculator detects predictors in patient facts and combines their hazard ratios.
type Calculator struct {
	model     *Model
	evaluator *criteria.Evaluator
}

func NewCalculator(model *Model, evaluator *criteria.Evaluator) *Calculator {
	return &Calculator{model: model, evaluator: evaluator}
}

// Analyze evaluates every predictor against facts. Predictors that could not be evaluated
// count as absent and are reported with their reason in Results.
func (c *Calculator) Analyze(ctx context.Context, facts *clinical.PatientFacts) (Analysis, error) {
	results, err := c.evaluator.Evaluate(ctx, c.model.Ruleset(), facts)
	if err != nil {
		return Analysis{}, err
	}
	var present []string
	for _, r := range results {
		if r.Met {
			present = append(present, r.ID)
		}
	}
	analysis := c.combine(present)
	analysis.Results = results
	log.Info().
		Strs("present", present).
		Float64("bleedingPercent", analysis.Bleeding.ProbabilityPercent).
		Float64("thromboticPercent", analysis.Thrombotic.ProbabilityPercent).
		Msg("tradeoff analysis complete")
	return analysis, nil
}

// WhatIf combines the hazard ratios of the named predictors without looking at a patient.
// Factors set to false are ignored. Unknown predictor ids are rejected.
func (c *Calculator) WhatIf(factors map[string]bool) (Analysis, error) {
	var present []string
	for id, on := range factors {
		if _, ok := c.model.predictor(id); !ok {
			return Analysis{}, apperrors.Wrapf(apperrors.ErrUnknownFactor, "%q", id)
		}
		if on {
			present = append(present, id)
		}
	}
	return c.combine(present), nil
}

// Predictors lists the model's predictors in document order.
func (c *Calculator) Predictors() []Predictor {
	return slices.Clone(c.model.Predictors)
}

// combine multiplies the hazard ratios of the present predictors per event, as in a
// proportional hazards model, starting from 1 for the reference group.
func (c *Calculator) combine(present []string) Analysis {
	analysis := Analysis{Version: c.model.Version, Present: []string{}}
	risks := map[Event]*EventRisk{EventBleeding: &analysis.Bleeding, EventThrombotic: &analysis.Thrombotic}
	for _, event := range Events {
		risks[event].HazardRatio = 1
		risks[event].BaselinePercent = c.model.Baseline[event]
		risks[event].Factors = []Factor{}
	}

	for _, p := range c.model.Predictors {
		if !slices.Contains(present, p.ID) {
			continue
		}
		analysis.Present = append(analysis.Present, p.ID)
		for _, event := range Events {
			hr, ok := p.HazardRatios[event]
			if !ok {
				continue
			}
			risk := risks[event]
			risk.HazardRatio *= hr
			risk.Factors = append(risk.Factors, Factor{ID: p.ID, Description: p.Description, HazardRatio: hr})
		}
	}

	for _, event := range Events {
		risk := risks[event]
		risk.ProbabilityPercent = ProbabilityPercent(risk.BaselinePercent, risk.HazardRatio)
	}
	return analysis
}

// ProbabilityPercent converts a combined hazard ratio to a one-year event probability.
// The baseline rate p0 gives the baseline cumulative hazard -ln(1-p0), which the hazard
// ratio scales; the result is rounded to two decimals and capped at 100.
func ProbabilityPercent(baselinePercent, hazardRatio float64) float64 {
	p0 := baselinePercent / 100
	switch {
	case p0 >= 1:
		return 100
	case p0 <= 0 || hazardRatio <= 0:
		return 0
	}
	hazard := -math.Log(1-p0) * hazardRatio
	p := (1 - math.Exp(-hazard)) * 100
	return math.Round(min(p, 100)*100) / 100
}
