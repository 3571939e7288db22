package clinical

import (
	"slices"
	"time"

	"github.com/jrsteele09/hbr-risk/fhir"
	"github.com/rs/zerolog/log"
)

const (
	statusEnteredInError = "entered-in-error"
	statusRefuted        = "refuted"
	statusNotDone        = "not-done"
	statusCancelled      = "cancelled"
)

// BundleOption adjusts how FromBundle reads a bundle.
type BundleOption func(*bundleOptions)

type bundleOptions struct {
	patientID string
}

// ForPatient binds the facts to patientID regardless of the bundle's own Patient resource.
// Records whose subject names any other patient are dropped.
func ForPatient(patientID string) BundleOption {
	return func(o *bundleOptions) {
		o.patientID = patientID
	}
}

// FromBundle converts decoded resources into facts as of asOf.
// Entered-in-error records, refuted conditions and resources about another patient are dropped.
func FromBundle(res fhir.Resources, catalog *LabCatalog, asOf time.Time, opts ...BundleOption) *PatientFacts {
	var options bundleOptions
	for _, opt := range opts {
		opt(&options)
	}
	if catalog == nil {
		catalog = DefaultLabCatalog()
	}
	facts := &PatientFacts{AsOf: asOf, PatientID: options.patientID}

	if p := res.Patient; p != nil && (facts.PatientID == "" || p.ID == facts.PatientID) {
		facts.PatientID = p.ID
		facts.Demographics = Demographics{Name: p.DisplayName(), Gender: p.Gender}
		if p.BirthDate != "" {
			if bd, err := fhir.ParseDateTime(p.BirthDate); err == nil {
				facts.Demographics.BirthDate = bd
			} else {
				log.Warn().Err(err).Str("patient", p.ID).Msg("ignoring unparseable birth date")
			}
		}
	}

	var foreign int
	about := func(subject *fhir.Reference) bool {
		if facts.about(subject) {
			return true
		}
		foreign++
		return false
	}

	for _, c := range res.Conditions {
		if !about(c.Subject) || hasStatus(c.VerificationStatus, statusEnteredInError, statusRefuted) {
			continue
		}
		facts.Conditions = append(facts.Conditions, codedFact(c.ID, SourceConditions, c.Code, statusCode(c.ClinicalStatus), firstDate(c.OnsetDateTime, c.RecordedDate)))
	}

	for _, m := range res.Medications {
		if !about(m.Subject) || m.Status == statusEnteredInError {
			continue
		}
		facts.Medications = append(facts.Medications, codedFact(m.ID, SourceMedications, res.MedicationConcept(m), m.Status, firstDate(m.AuthoredOn)))
	}

	for _, p := range res.Procedures {
		if !about(p.Subject) || p.Status == statusEnteredInError || p.Status == statusNotDone {
			continue
		}
		performed := p.PerformedDateTime
		if performed == "" && p.PerformedPeriod != nil {
			performed = p.PerformedPeriod.Start
		}
		facts.Procedures = append(facts.Procedures, codedFact(p.ID, SourceProcedures, p.Code, p.Status, firstDate(performed)))
	}

	for i, o := range res.Observations {
		if !about(o.Subject) || o.Status == statusEnteredInError || o.Status == statusCancelled {
			continue
		}
		if o.ValueQuantity == nil || o.ValueQuantity.Value == nil {
			continue
		}
		kind, ok := catalog.Classify(o.Code)
		if !ok {
			continue
		}
		facts.Observations = append(facts.Observations, ObservationFact{
			ID:        o.ID,
			Kind:      kind,
			Value:     *o.ValueQuantity.Value,
			Unit:      o.ValueQuantity.UnitString(),
			Effective: firstDate(o.EffectiveDate()),
			Order:     i,
			Codes:     codes(o.Code),
		})
	}

	if foreign > 0 {
		log.Warn().Str("patient", facts.PatientID).Int("dropped", foreign).Msg("dropped resources about another patient")
	}
	return facts
}

// about reports whether a subject reference names the patient, treating unknowns as a match.
func (p *PatientFacts) about(subject *fhir.Reference) bool {
	if p.PatientID == "" || subject == nil || subject.Reference == "" {
		return true
	}
	return subject.ID() == p.PatientID
}

func codedFact(id string, source Source, concept *fhir.CodeableConcept, status string, date time.Time) CodedFact {
	var text string
	if concept != nil {
		text = joinText(concept.Texts())
	}
	return CodedFact{ID: id, Source: source, Codes: codes(concept), Text: text, Status: status, Date: date}
}

func codes(concept *fhir.CodeableConcept) []Code {
	if concept == nil {
		return nil
	}
	out := make([]Code, 0, len(concept.Coding))
	for _, c := range concept.Coding {
		if c.Code != "" {
			out = append(out, Code{System: c.System, Code: c.Code})
		}
	}
	return out
}

func statusCode(status *fhir.CodeableConcept) string {
	if status == nil {
		return ""
	}
	for _, c := range status.Coding {
		if c.Code != "" {
			return c.Code
		}
	}
	return status.Text
}

func hasStatus(status *fhir.CodeableConcept, values ...string) bool {
	return slices.Contains(values, statusCode(status))
}

func firstDate(values ...string) time.Time {
	for _, v := range values {
		if v == "" {
			continue
		}
		if t, err := fhir.ParseDateTime(v); err == nil {
			return t
		}
	}
	return time.Time{}
}
