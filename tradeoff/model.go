// Package tradeoff weighs a patient's one-year bleeding risk against their thrombotic risk
// using hazard ratios from the ARC-HBR tradeoff model.
package tradeoff

import (
	"fmt"
	"io"
	"slices"

	"github.com/jrsteele09/hbr-risk/criteria"
	apperrors "github.com/jrsteele09/hbr-risk/internal/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Event is an outcome the model estimates.
type Event string

const (
	EventBleeding   Event = "bleeding"
	EventThrombotic Event = "thrombotic"
)

// Events lists every outcome in report order.
var Events = []Event{EventBleeding, EventThrombotic}

// DefaultBaselinePercent is the one-year event rate of the reference group.
const DefaultBaselinePercent = 2.5

// Predictor is one risk factor. Its criterion decides whether the factor is present.
type Predictor struct {
	ID           string
	Description  string
	HazardRatios map[Event]float64
	Criterion    criteria.Criterion
}

// Model holds the predictors and the baseline rate of each event.
type Model struct {
	Version    string
	Baseline   map[Event]float64
	Predictors []Predictor

	ruleset *criteria.Ruleset
}

type modelDoc struct {
	Version  string             `mapstructure:"version"`
	Baseline map[string]float64 `mapstructure:"baseline_rates"`
	Criteria []predictorDoc     `mapstructure:"criteria"`
}

type predictorDoc struct {
	ID           string             `mapstructure:"id"`
	Description  string             `mapstructure:"description"`
	HazardRatios map[string]float64 `mapstructure:"hazard_ratios"`
}

// LoadModel reads a tradeoff document. Predictors are criteria with hazard ratios attached.
func LoadModel(path string) (*Model, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("[LoadModel] %w", err)
	}
	m, err := decodeModel(v)
	if err != nil {
		return nil, fmt.Errorf("[LoadModel] %s: %w", path, err)
	}
	log.Info().Str("file", path).Str("version", m.Version).Int("predictors", len(m.Predictors)).Msg("tradeoff model loaded")
	return m, nil
}

// ParseModel reads a tradeoff document of the given format from r.
func ParseModel(r io.Reader, format string) (*Model, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("[ParseModel] %w", err)
	}
	m, err := decodeModel(v)
	if err != nil {
		return nil, fmt.Errorf("[ParseModel] %w", err)
	}
	return m, nil
}

func decodeModel(v *viper.Viper) (*Model, error) {
	rs, err := criteria.DecodeRuleset(v)
	if err != nil {
		return nil, err
	}
	if rs.BaseScore != 0 {
		return nil, invalid("base_score has no meaning in a tradeoff model")
	}
	var doc modelDoc
	if err := v.Unmarshal(&doc); err != nil {
		return nil, invalid("decode: %v", err)
	}

	m := &Model{
		Version:  doc.Version,
		Baseline: map[Event]float64{EventBleeding: DefaultBaselinePercent, EventThrombotic: DefaultBaselinePercent},
		ruleset:  rs,
	}
	for name, rate := range doc.Baseline {
		event := Event(name)
		if !slices.Contains(Events, event) {
			return nil, invalid("baseline rate for unknown event %q", name)
		}
		if rate <= 0 || rate >= 100 {
			return nil, invalid("baseline rate %v for %s must be between 0 and 100 percent", rate, name)
		}
		m.Baseline[event] = rate
	}

	for i, pd := range doc.Criteria {
		p := Predictor{ID: pd.ID, Description: pd.Description, HazardRatios: map[Event]float64{}, Criterion: rs.Criteria[i]}
		if p.Description == "" {
			p.Description = rs.Criteria[i].Name
		}
		if len(pd.HazardRatios) == 0 {
			return nil, invalid("%s: no hazard ratios", pd.ID)
		}
		for name, hr := range pd.HazardRatios {
			event := Event(name)
			if !slices.Contains(Events, event) {
				return nil, invalid("%s: hazard ratio for unknown event %q", pd.ID, name)
			}
			if hr <= 0 {
				return nil, invalid("%s: hazard ratio %v must be positive", pd.ID, hr)
			}
			p.HazardRatios[event] = hr
		}
		m.Predictors = append(m.Predictors, p)
	}
	return m, nil
}

// Ruleset is the predictors as criteria, for evaluation against patient facts.
func (m *Model) Ruleset() *criteria.Ruleset {
	return m.ruleset
}

func (m *Model) predictor(id string) (Predictor, bool) {
	for _, p := range m.Predictors {
		if p.ID == id {
			return p, true
		}
	}
	return Predictor{}, false
}

func invalid(format string, args ...any) error {
	return apperrors.Wrapf(apperrors.ErrInvalidConfiguration, format, args...)
}
