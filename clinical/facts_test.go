package clinical_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/hbr-risk/clinical"
	"github.com/jrsteele09/hbr-risk/fhir"
	"github.com/jrsteele09/hbr-risk/internal/utils"
	"github.com/stretchr/testify/require"
)

var asOf = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func concept(system, code, display string) *fhir.CodeableConcept {
	return &fhir.CodeableConcept{Coding: []fhir.Coding{{System: system, Code: code, Display: display}}}
}

func subject(id string) *fhir.Reference {
	return &fhir.Reference{Reference: "Patient/" + id}
}

func observation(id, loinc, text string, value float64, unit, effective string) fhir.Observation {
	code := &fhir.CodeableConcept{Text: text}
	if loinc != "" {
		code.Coding = []fhir.Coding{{System: clinical.LOINCSystem, Code: loinc}}
	}
	return fhir.Observation{
		ID:                id,
		Status:            "final",
		Code:              code,
		Subject:           subject("p1"),
		EffectiveDateTime: effective,
		ValueQuantity:     &fhir.Quantity{Value: utils.Ptr(value), Unit: unit},
	}
}

func TestFromBundle(t *testing.T) {
	res := fhir.Resources{
		Patient: &fhir.Patient{ID: "p1", Gender: "male", BirthDate: "1950-07-20", Name: []fhir.HumanName{{Text: "Arne Berg"}}},
		Conditions: []fhir.Condition{
			{ID: "c-active", ClinicalStatus: concept("", "active", ""), Code: concept("http://snomed.info/sct", "64779008", "Blood coagulation disorder"), Subject: subject("p1")},
			{ID: "c-refuted", VerificationStatus: concept("", "refuted", ""), Code: concept("http://snomed.info/sct", "19943007", ""), Subject: subject("p1")},
			{ID: "c-other-patient", Code: concept("http://snomed.info/sct", "19943007", ""), Subject: subject("p2")},
		},
		Medications: []fhir.MedicationRequest{
			{ID: "m1", Status: "active", MedicationCodeableConcept: concept("rxnorm", "11289", "warfarin"), Subject: subject("p1")},
			{ID: "m2", Status: "entered-in-error", MedicationCodeableConcept: concept("rxnorm", "11289", "warfarin"), Subject: subject("p1")},
		},
		Procedures: []fhir.Procedure{
			{ID: "pr1", Status: "completed", Code: concept("http://snomed.info/sct", "80146002", "Appendectomy"), PerformedPeriod: &fhir.Period{Start: "2020-02-01"}},
			{ID: "pr2", Status: "not-done", Code: concept("http://snomed.info/sct", "80146002", "Appendectomy")},
		},
		Observations: []fhir.Observation{
			observation("o-hb", "718-7", "", 11.2, "g/dL", "2024-05-01"),
			observation("o-unknown", "1234-5", "Sodium", 140, "mmol/L", "2024-05-01"),
			observation("o-egfr-text", "", "Glomerular filtration rate, creatinine-based", 48, "mL/min/1.73m2", "2024-05-02"),
			{ID: "o-no-value", Status: "final", Code: concept(clinical.LOINCSystem, "777-3", "")},
		},
	}

	facts := clinical.FromBundle(res, clinical.DefaultLabCatalog(), asOf)

	require.Equal(t, "p1", facts.PatientID)
	require.Equal(t, "Arne Berg", facts.Demographics.Name)
	age, ok := facts.Demographics.AgeAt(asOf)
	require.True(t, ok)
	require.Equal(t, 73, age)

	t.Run("refuted and foreign conditions are dropped", func(t *testing.T) {
		require.Len(t, facts.Conditions, 1)
		require.Equal(t, "c-active", facts.Conditions[0].ID)
		require.Equal(t, "active", facts.Conditions[0].Status)
		require.Equal(t, "Blood coagulation disorder", facts.Conditions[0].Text)
	})

	t.Run("entered in error and not done records are dropped", func(t *testing.T) {
		require.Len(t, facts.Medications, 1)
		require.Len(t, facts.Procedures, 1)
		require.Equal(t, time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC), facts.Procedures[0].Date)
	})

	t.Run("observations are classified by code then text", func(t *testing.T) {
		require.Len(t, facts.Observations, 2)
		require.Equal(t, clinical.KindHemoglobin, facts.Observations[0].Kind)
		require.Equal(t, 0, facts.Observations[0].Order)
		require.Equal(t, clinical.KindEGFR, facts.Observations[1].Kind)
		require.Equal(t, 2, facts.Observations[1].Order)
		require.Len(t, facts.ObservationsOf(clinical.KindEGFR), 1)
	})
}

func TestFromBundleForPatient(t *testing.T) {
	bleed := concept("http://snomed.info/sct", "131148009", "Bleeding")

	t.Run("bound patient filters subjects without a Patient entry", func(t *testing.T) {
		otherHb := observation("o-hb-other", "718-7", "", 7.0, "g/dL", "2024-05-02")
		otherHb.Subject = subject("OTHER")
		res := fhir.Resources{
			Conditions: []fhir.Condition{
				{ID: "c-own", Code: bleed, Subject: subject("p1")},
				{ID: "c-other", Code: bleed, Subject: subject("OTHER")},
				{ID: "c-unreferenced", Code: bleed},
			},
			Observations: []fhir.Observation{
				observation("o-hb", "718-7", "", 9.1, "g/dL", "2024-05-01"),
				otherHb,
			},
		}

		facts := clinical.FromBundle(res, nil, asOf, clinical.ForPatient("p1"))
		require.Equal(t, "p1", facts.PatientID)
		require.Len(t, facts.Conditions, 2)
		require.Equal(t, "c-own", facts.Conditions[0].ID)
		require.Equal(t, "c-unreferenced", facts.Conditions[1].ID)
		require.Len(t, facts.Observations, 1)
		require.Equal(t, "o-hb", facts.Observations[0].ID)
	})

	t.Run("a different Patient entry contributes no demographics", func(t *testing.T) {
		res := fhir.Resources{
			Patient:    &fhir.Patient{ID: "p2", BirthDate: "1940-01-01"},
			Conditions: []fhir.Condition{{ID: "c-p2", Code: bleed, Subject: subject("p2")}},
		}

		facts := clinical.FromBundle(res, nil, asOf, clinical.ForPatient("p1"))
		require.Equal(t, "p1", facts.PatientID)
		require.True(t, facts.Demographics.BirthDate.IsZero())
		require.Empty(t, facts.Conditions)
	})
}

func TestAgeAt(t *testing.T) {
	d := clinical.Demographics{BirthDate: time.Date(1960, 6, 2, 0, 0, 0, 0, time.UTC)}

	age, ok := d.AgeAt(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	require.Equal(t, 63, age)

	age, _ = d.AgeAt(time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC))
	require.Equal(t, 64, age)

	_, ok = clinical.Demographics{}.AgeAt(asOf)
	require.False(t, ok)
}

func TestRestrict(t *testing.T) {
	facts := &clinical.PatientFacts{
		Medications:  []clinical.CodedFact{{ID: "m1"}},
		Observations: []clinical.ObservationFact{{ID: "o1"}},
	}
	require.True(t, facts.Available(clinical.SourceMedications))

	facts.Restrict(clinical.SourceMedications)

	require.False(t, facts.Available(clinical.SourceMedications))
	require.Empty(t, facts.Coded(clinical.SourceMedications))
	require.True(t, facts.Available(clinical.SourceObservations))
	require.Len(t, facts.Observations, 1)
}

func TestLabCatalogClassify(t *testing.T) {
	catalog := clinical.DefaultLabCatalog()

	tests := []struct {
		name   string
		code   *fhir.CodeableConcept
		want   clinical.LabKind
		wantOK bool
	}{
		{"loinc code", concept(clinical.LOINCSystem, "2160-0", ""), clinical.KindCreatinine, true},
		{"code without system", concept("", "777-3", ""), clinical.KindPlatelets, true},
		{"code in another system is ignored", concept("http://example.org/local", "718-7", ""), "", false},
		{"text fallback", &fhir.CodeableConcept{Text: "White Blood Cell Count"}, clinical.KindWBC, true},
		{"egfr text wins over creatinine", &fhir.CodeableConcept{Text: "eGFR (creatinine)"}, clinical.KindEGFR, true},
		{"unknown", &fhir.CodeableConcept{Text: "Potassium"}, "", false},
		{"nil", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := catalog.Classify(tt.code)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.want, kind)
		})
	}
}
