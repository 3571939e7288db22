package labs

import (
	"math"

	"github.com/jrsteele09/hbr-risk/clinical"
	apperrors "github.com/jrsteele09/hbr-risk/internal/errors"
)

// Plausible eGFR bounds in mL/min/1.73m2.
const (
	MinEGFR = 1
	MaxEGFR = 200
)

// GFREstimator estimates glomerular filtration from serum creatinine in mg/dL.
type GFREstimator interface {
	Name() string
	Estimate(creatinine float64, age int, sex string) (float64, error)
}

// CKDEPI2021 is the race-free 2021 CKD-EPI creatinine equation.
type CKDEPI2021 struct{}

func (CKDEPI2021) Name() string { return "CKD-EPI 2021" }

// Estimate returns the eGFR rounded to a whole number and clamped to [MinEGFR, MaxEGFR].
func (CKDEPI2021) Estimate(creatinine float64, age int, sex string) (float64, error) {
	if creatinine <= 0 || math.IsNaN(creatinine) {
		return 0, apperrors.Wrapf(apperrors.ErrNoDataForCriterion, "creatinine %v", creatinine)
	}
	if age <= 0 {
		return 0, apperrors.Wrapf(apperrors.ErrInsufficientDemographics, "age %d", age)
	}

	var kappa, alpha, femaleFactor float64
	switch sex {
	case "female":
		kappa, alpha, femaleFactor = 0.7, -0.241, 1.012
	case "male":
		kappa, alpha, femaleFactor = 0.9, -0.302, 1
	default:
		return 0, apperrors.Wrapf(apperrors.ErrInsufficientDemographics, "sex %q", sex)
	}

	ratio := creatinine / kappa
	egfr := 142 * math.Pow(math.Min(ratio, 1), alpha) * math.Pow(math.Max(ratio, 1), -1.2) * math.Pow(0.9938, float64(age)) * femaleFactor
	return math.Min(math.Max(math.Round(egfr), MinEGFR), MaxEGFR), nil
}

// DeriveEGFR prefers a measured eGFR and otherwise estimates one from the latest creatinine.
// A nil estimator uses CKDEPI2021.
func DeriveEGFR(facts *clinical.PatientFacts, estimator GFREstimator) (clinical.ObservationFact, error) {
	if measured, err := Extract(clinical.KindEGFR, facts.ObservationsOf(clinical.KindEGFR)); err == nil {
		return measured, nil
	}

	creatinine, err := Extract(clinical.KindCreatinine, facts.ObservationsOf(clinical.KindCreatinine))
	if err != nil {
		return clinical.ObservationFact{}, apperrors.Wrapf(err, "egfr")
	}
	age, ok := facts.Demographics.AgeAt(facts.AsOf)
	if !ok {
		return clinical.ObservationFact{}, apperrors.Wrapf(apperrors.ErrNoDataForCriterion, "egfr: %v", apperrors.ErrInsufficientDemographics)
	}
	if estimator == nil {
		estimator = CKDEPI2021{}
	}
	egfr, err := estimator.Estimate(creatinine.Value, age, facts.Demographics.Gender)
	if err != nil {
		return clinical.ObservationFact{}, apperrors.Wrapf(apperrors.ErrNoDataForCriterion, "egfr (%s): %v", estimator.Name(), err)
	}
	return clinical.ObservationFact{
		ID:        creatinine.ID,
		Kind:      clinical.KindEGFR,
		Value:     egfr,
		Unit:      UnitEGFR,
		Effective: creatinine.Effective,
		Order:     creatinine.Order,
		Codes:     creatinine.Codes,
		Derived:   true,
	}, nil
}
