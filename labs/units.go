// Package labs selects, normalises and derives the laboratory values the criteria read.
package labs

import (
	"strings"

	"github.com/jrsteele09/hbr-risk/clinical"
	apperrors "github.com/jrsteele09/hbr-risk/internal/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/unicode/norm"
)

// Canonical units per kind.
const (
	UnitGramsPerDeciliter = "g/dL"
	UnitMgPerDeciliter    = "mg/dL"
	UnitPerNanoliter      = "10*9/L"
	UnitEGFR              = "mL/min/1.73m2"
	UnitYears             = "a"
)

type unitTable struct {
	canonical string
	factors   map[string]float64 // keyed by folded unit
}

var unitTables = map[clinical.LabKind]unitTable{
	clinical.KindHemoglobin: {
		canonical: UnitGramsPerDeciliter,
		factors: map[string]float64{
			"g/dl":   1,
			"g/l":    0.1,
			"mmol/l": 1.61135,
			"mg/dl":  0.001,
		},
	},
	clinical.KindCreatinine: {
		canonical: UnitMgPerDeciliter,
		factors: map[string]float64{
			"mg/dl":  1,
			"umol/l": 0.0113,
		},
	},
	clinical.KindWBC:       countTable,
	clinical.KindPlatelets: countTable,
	clinical.KindEGFR: {
		canonical: UnitEGFR,
		factors: map[string]float64{
			"ml/min/1.73m2":    1,
			"ml/min/1.73m^2":   1,
			"ml/min/{1.73_m2}": 1,
			"ml/min/1.73sqm":   1,
			"ml/min/1.73sq.m":  1,
			"ml/min":           1,
		},
	},
	clinical.KindAge: {
		canonical: UnitYears,
		factors: map[string]float64{
			"a":     1,
			"yr":    1,
			"years": 1,
		},
	},
}

var countTable = unitTable{
	canonical: UnitPerNanoliter,
	factors: map[string]float64{
		"10*9/l":   1,
		"10^9/l":   1,
		"x10^9/l":  1,
		"10e9/l":   1,
		"giga/l":   1,
		"10*3/ul":  1,
		"10^3/ul":  1,
		"x10^3/ul": 1,
		"k/ul":     1,
		"thou/ul":  1,
		"/ul":      0.001,
		"cells/ul": 0.001,
		"/mm3":     0.001,
	},
}

// CanonicalUnit returns the unit values of kind are normalised to.
func CanonicalUnit(kind clinical.LabKind) string {
	return unitTables[kind].canonical
}

// Normalize converts value to the canonical unit for kind. An empty unit is assumed canonical.
func Normalize(kind clinical.LabKind, value float64, unit string) (float64, error) {
	table, ok := unitTables[kind]
	if !ok {
		return 0, apperrors.Wrapf(apperrors.ErrUnsupportedUnit, "no unit table for %q", kind)
	}
	folded := foldUnit(unit)
	if folded == "" {
		log.Warn().Str("kind", string(kind)).Msgf("observation has no unit, assuming %s", table.canonical)
		return value, nil
	}
	factor, ok := table.factors[folded]
	if !ok {
		return 0, apperrors.Wrapf(apperrors.ErrUnsupportedUnit, "%s in %q", kind, unit)
	}
	return value * factor, nil
}

// foldUnit maps spelling variants onto one key: compatibility forms, micro signs, case and spaces.
func foldUnit(unit string) string {
	u := norm.NFKC.String(unit)
	u = strings.ReplaceAll(u, "μ", "u")
	u = strings.ReplaceAll(u, "×", "x")
	u = strings.ToLower(strings.Join(strings.Fields(u), ""))
	return u
}
