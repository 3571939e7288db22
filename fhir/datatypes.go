// Package fhir decodes the subset of FHIR R4 resources the bleeding-risk engine reads.
package fhir

import (
	"fmt"
	"strings"
	"time"
)

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// Texts returns the concept text followed by every coding display.
func (c *CodeableConcept) Texts() []string {
	if c == nil {
		return nil
	}
	var texts []string
	if c.Text != "" {
		texts = append(texts, c.Text)
	}
	for _, coding := range c.Coding {
		if coding.Display != "" {
			texts = append(texts, coding.Display)
		}
	}
	return texts
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Display   string `json:"display,omitempty"`
}

// ID returns the logical id of a relative reference such as "Patient/123".
func (r *Reference) ID() string {
	if r == nil {
		return ""
	}
	ref := strings.TrimSuffix(r.Reference, "/")
	if i := strings.Index(ref, "/_history/"); i >= 0 {
		ref = ref[:i]
	}
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

type Period struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

type Quantity struct {
	Value      *float64 `json:"value,omitempty"`
	Comparator string   `json:"comparator,omitempty"`
	Unit       string   `json:"unit,omitempty"`
	System     string   `json:"system,omitempty"`
	Code       string   `json:"code,omitempty"`
}

// UnitString prefers the human unit and falls back to the UCUM code.
func (q *Quantity) UnitString() string {
	if q == nil {
		return ""
	}
	if q.Unit != "" {
		return q.Unit
	}
	return q.Code
}

type HumanName struct {
	Text   string   `json:"text,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
}

// ParseDateTime accepts the partial precisions FHIR date and dateTime allow.
// Values without a zone are taken as UTC.
func ParseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised FHIR date %q", s)
}
