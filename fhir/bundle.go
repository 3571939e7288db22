package fhir

import (
	"encoding/json"
	"fmt"
	"io"

	apperrors "github.com/jrsteele09/hbr-risk/internal/errors"
)

const maxBundleSize = 32 << 20

type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// Resources is a bundle split by resource type. Slice order is bundle order.
type Resources struct {
	Patient      *Patient
	Conditions   []Condition
	Medications  []MedicationRequest
	Procedures   []Procedure
	Observations []Observation
	// MedicationCatalog maps Medication ids to their codes for medicationReference lookups.
	MedicationCatalog map[string]*CodeableConcept
	Skipped           int
}

// DecodeBundle reads a searchset or collection bundle.
func DecodeBundle(r io.Reader) (*Bundle, error) {
	var b Bundle
	if err := json.NewDecoder(io.LimitReader(r, maxBundleSize)).Decode(&b); err != nil {
		return nil, fmt.Errorf("[DecodeBundle] %w: %w", apperrors.ErrInvalidBundle, err)
	}
	if b.ResourceType != "Bundle" {
		return nil, fmt.Errorf("[DecodeBundle] %w: expected resourceType Bundle, got %q", apperrors.ErrInvalidBundle, b.ResourceType)
	}
	return &b, nil
}

// Resources decodes every entry. Resource types the engine does not read are counted in Skipped.
func (b *Bundle) Resources() (Resources, error) {
	res := Resources{MedicationCatalog: make(map[string]*CodeableConcept)}

	for i, entry := range b.Entry {
		if len(entry.Resource) == 0 {
			res.Skipped++
			continue
		}
		var head struct {
			ResourceType string `json:"resourceType"`
		}
		if err := json.Unmarshal(entry.Resource, &head); err != nil {
			return Resources{}, fmt.Errorf("[Bundle Resources] %w: entry %d: %w", apperrors.ErrInvalidBundle, i, err)
		}

		var err error
		switch head.ResourceType {
		case "Patient":
			var p Patient
			if err = json.Unmarshal(entry.Resource, &p); err == nil && res.Patient == nil {
				res.Patient = &p
			}
		case "Condition":
			var c Condition
			if err = json.Unmarshal(entry.Resource, &c); err == nil {
				res.Conditions = append(res.Conditions, c)
			}
		case "MedicationRequest":
			var m MedicationRequest
			if err = json.Unmarshal(entry.Resource, &m); err == nil {
				res.Medications = append(res.Medications, m)
			}
		case "Medication":
			var m Medication
			if err = json.Unmarshal(entry.Resource, &m); err == nil && m.ID != "" {
				res.MedicationCatalog[m.ID] = m.Code
			}
		case "Procedure":
			var p Procedure
			if err = json.Unmarshal(entry.Resource, &p); err == nil {
				res.Procedures = append(res.Procedures, p)
			}
		case "Observation":
			var o Observation
			if err = json.Unmarshal(entry.Resource, &o); err == nil {
				res.Observations = append(res.Observations, o)
			}
		default:
			res.Skipped++
		}
		if err != nil {
			return Resources{}, fmt.Errorf("[Bundle Resources] %w: entry %d (%s): %w", apperrors.ErrInvalidBundle, i, head.ResourceType, err)
		}
	}
	return res, nil
}

// MedicationConcept returns the inline medication code or resolves the reference against the bundle.
func (r Resources) MedicationConcept(m MedicationRequest) *CodeableConcept {
	if m.MedicationCodeableConcept != nil {
		return m.MedicationCodeableConcept
	}
	if m.MedicationReference == nil {
		return nil
	}
	if c, ok := r.MedicationCatalog[m.MedicationReference.ID()]; ok && c != nil {
		return c
	}
	if m.MedicationReference.Display != "" {
		return &CodeableConcept{Text: m.MedicationReference.Display}
	}
	return nil
}
