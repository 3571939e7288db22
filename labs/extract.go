package labs

import (
	"cmp"
	"slices"

	"github.com/jrsteele09/hbr-risk/clinical"
	apperrors "github.com/jrsteele09/hbr-risk/internal/errors"
	"github.com/rs/zerolog/log"
)

// Extract returns the most recent fact of kind with its value in the canonical unit.
// Ties on the effective date go to the fact earliest in the bundle. Facts whose unit
// cannot be converted are skipped in favour of the next most recent.
func Extract(kind clinical.LabKind, facts []clinical.ObservationFact) (clinical.ObservationFact, error) {
	candidates := make([]clinical.ObservationFact, 0, len(facts))
	for _, f := range facts {
		if f.Kind == kind {
			candidates = append(candidates, f)
		}
	}
	slices.SortStableFunc(candidates, func(a, b clinical.ObservationFact) int {
		if c := b.Effective.Compare(a.Effective); c != 0 {
			return c
		}
		return cmp.Compare(a.Order, b.Order)
	})

	for _, f := range candidates {
		value, err := Normalize(kind, f.Value, f.Unit)
		if err != nil {
			log.Warn().Err(err).Str("observation", f.ID).Msg("skipping observation")
			continue
		}
		f.Value = value
		f.Unit = CanonicalUnit(kind)
		return f, nil
	}
	return clinical.ObservationFact{}, apperrors.Wrapf(apperrors.ErrNoDataForCriterion, "%s", kind)
}

// Value resolves any kind for a patient: age from demographics, eGFR measured or derived,
// everything else from observations.
func Value(facts *clinical.PatientFacts, kind clinical.LabKind, estimator GFREstimator) (clinical.ObservationFact, error) {
	switch kind {
	case clinical.KindAge:
		age, ok := facts.Demographics.AgeAt(facts.AsOf)
		if !ok {
			return clinical.ObservationFact{}, apperrors.Wrapf(apperrors.ErrNoDataForCriterion, "age: %v", apperrors.ErrInsufficientDemographics)
		}
		return clinical.ObservationFact{Kind: clinical.KindAge, Value: float64(age), Unit: UnitYears, Effective: facts.AsOf, Derived: true}, nil
	case clinical.KindEGFR:
		return DeriveEGFR(facts, estimator)
	}
	return Extract(kind, facts.ObservationsOf(kind))
}
