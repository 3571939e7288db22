// Package clinical turns FHIR resources into the coded and numeric facts criteria are evaluated against.
package clinical

import (
	"slices"
	"strings"
	"time"
)

// Code is a coding reduced to the parts matching uses.
type Code struct {
	System string `mapstructure:"system" json:"system"`
	Code   string `mapstructure:"code" json:"code"`
}

// Source names a class of facts.
type Source string

const (
	SourceConditions   Source = "conditions"
	SourceMedications  Source = "medications"
	SourceProcedures   Source = "procedures"
	SourceObservations Source = "observations"
	SourceDemographics Source = "demographics"
)

// ResourceType is the FHIR resource a source is read from.
func (s Source) ResourceType() string {
	switch s {
	case SourceConditions:
		return "Condition"
	case SourceMedications:
		return "MedicationRequest"
	case SourceProcedures:
		return "Procedure"
	case SourceObservations:
		return "Observation"
	case SourceDemographics:
		return "Patient"
	}
	return ""
}

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	return s.ResourceType() != ""
}

// CodedFact is a condition, medication or procedure.
type CodedFact struct {
	ID     string
	Source Source
	Codes  []Code
	Text   string    // Concept text and coding displays joined with spaces
	Status string    // Clinical status for conditions, request status for medications
	Date   time.Time // Onset, authored or performed date; zero when unknown
}

// LabKind is the quantity a numeric observation measures.
type LabKind string

const (
	KindHemoglobin LabKind = "hemoglobin"
	KindCreatinine LabKind = "creatinine"
	KindEGFR       LabKind = "egfr"
	KindPlatelets  LabKind = "platelets"
	KindWBC        LabKind = "wbc"
	// KindAge is read from demographics, never from observations.
	KindAge LabKind = "age"
)

var labKinds = []LabKind{KindHemoglobin, KindCreatinine, KindEGFR, KindPlatelets, KindWBC, KindAge}

// Valid reports whether k is a known kind.
func (k LabKind) Valid() bool {
	return slices.Contains(labKinds, k)
}

// ObservationFact is a dated numeric value with its unit as recorded.
type ObservationFact struct {
	ID        string
	Kind      LabKind
	Value     float64
	Unit      string
	Effective time.Time
	Order     int // Position in the source bundle, used to break date ties
	Codes     []Code
	Derived   bool // Computed rather than measured
}

// Demographics is what the engine needs from the Patient resource.
type Demographics struct {
	Name      string
	Gender    string // FHIR administrative gender: male, female, other, unknown
	BirthDate time.Time
}

// AgeAt returns whole years at t. ok is false without a birth date.
func (d Demographics) AgeAt(t time.Time) (age int, ok bool) {
	if d.BirthDate.IsZero() {
		return 0, false
	}
	age = t.Year() - d.BirthDate.Year()
	if t.Month() < d.BirthDate.Month() || (t.Month() == d.BirthDate.Month() && t.Day() < d.BirthDate.Day()) {
		age--
	}
	return max(age, 0), true
}

// PatientFacts is everything known about one patient at one point in time.
type PatientFacts struct {
	PatientID    string
	Demographics Demographics
	Conditions   []CodedFact
	Medications  []CodedFact
	Procedures   []CodedFact
	Observations []ObservationFact
	AsOf         time.Time
	// Unavailable marks sources the session was not allowed to read.
	Unavailable map[Source]bool
}

// Coded returns the coded facts for a source.
func (p *PatientFacts) Coded(source Source) []CodedFact {
	switch source {
	case SourceConditions:
		return p.Conditions
	case SourceMedications:
		return p.Medications
	case SourceProcedures:
		return p.Procedures
	}
	return nil
}

// Available reports whether the source could be read.
func (p *PatientFacts) Available(source Source) bool {
	return !p.Unavailable[source]
}

// Restrict empties the source and marks it unavailable.
func (p *PatientFacts) Restrict(source Source) {
	if p.Unavailable == nil {
		p.Unavailable = make(map[Source]bool)
	}
	p.Unavailable[source] = true
	switch source {
	case SourceConditions:
		p.Conditions = nil
	case SourceMedications:
		p.Medications = nil
	case SourceProcedures:
		p.Procedures = nil
	case SourceObservations:
		p.Observations = nil
	case SourceDemographics:
		p.Demographics = Demographics{}
	}
}

// ObservationsOf returns the observation facts of one kind in bundle order.
func (p *PatientFacts) ObservationsOf(kind LabKind) []ObservationFact {
	var out []ObservationFact
	for _, o := range p.Observations {
		if o.Kind == kind {
			out = append(out, o)
		}
	}
	return out
}

func joinText(parts []string) string {
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}
