package clinical

import (
	"strings"

	"github.com/jrsteele09/hbr-risk/fhir"
)

// LabDefinition identifies observations of one kind.
type LabDefinition struct {
	Kind     LabKind  `mapstructure:"kind"`
	Codes    []string `mapstructure:"codes"`    // LOINC codes
	Keywords []string `mapstructure:"keywords"` // Lower-case substrings of the observation text
}

// LabCatalog classifies observations. Codes win over text, and text matching follows catalog order.
type LabCatalog struct {
	defs   []LabDefinition
	byCode map[string]LabKind
}

// LOINCSystem is the code system observation codes are matched in. Codings without a system are accepted too.
const LOINCSystem = "http://loinc.org"

func NewLabCatalog(defs []LabDefinition) *LabCatalog {
	c := &LabCatalog{byCode: make(map[string]LabKind)}
	for _, d := range defs {
		kw := make([]string, 0, len(d.Keywords))
		for _, k := range d.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				kw = append(kw, k)
			}
		}
		d.Keywords = kw
		c.defs = append(c.defs, d)
		for _, code := range d.Codes {
			if _, taken := c.byCode[code]; !taken {
				c.byCode[code] = d.Kind
			}
		}
	}
	return c
}

// DefaultLabCatalog covers the laboratory values PRECISE-HBR reads.
// eGFR comes before creatinine so "creatinine-based eGFR" text is not read as a creatinine level.
func DefaultLabCatalog() *LabCatalog {
	return NewLabCatalog([]LabDefinition{
		{Kind: KindEGFR, Codes: []string{"33914-3", "48642-3", "48643-1", "62238-1", "88293-6", "88294-4", "98979-8"}, Keywords: []string{"egfr", "glomerular filtration"}},
		{Kind: KindHemoglobin, Codes: []string{"718-7", "20509-6", "30313-1", "30350-3", "30352-9"}, Keywords: []string{"hemoglobin", "haemoglobin", "hgb"}},
		{Kind: KindCreatinine, Codes: []string{"2160-0", "38483-4", "14682-9"}, Keywords: []string{"creatinine"}},
		{Kind: KindPlatelets, Codes: []string{"777-3", "26515-7", "49497-1"}, Keywords: []string{"platelet"}},
		{Kind: KindWBC, Codes: []string{"6690-2", "26464-8", "804-5"}, Keywords: []string{"leukocytes", "white blood cell", "wbc"}},
	})
}

// Classify returns the kind of an observation code, or false when the catalog does not know it.
func (c *LabCatalog) Classify(code *fhir.CodeableConcept) (LabKind, bool) {
	if code == nil {
		return "", false
	}
	for _, coding := range code.Coding {
		if coding.System != "" && coding.System != LOINCSystem {
			continue
		}
		if kind, ok := c.byCode[coding.Code]; ok {
			return kind, true
		}
	}
	text := strings.ToLower(strings.Join(code.Texts(), " "))
	if text == "" {
		return "", false
	}
	for _, d := range c.defs {
		for _, kw := range d.Keywords {
			if strings.Contains(text, kw) {
				return d.Kind, true
			}
		}
	}
	return "", false
}
