package criteria

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jrsteele09/hbr-risk/clinical"
	apperrors "github.com/jrsteele09/hbr-risk/internal/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// rulesetDoc mirrors the criterion document on disk.
type rulesetDoc struct {
	Version    string                   `mapstructure:"version"`
	BaseScore  float64                  `mapstructure:"base_score"`
	Thresholds Thresholds               `mapstructure:"thresholds"`
	Laboratory []clinical.LabDefinition `mapstructure:"laboratory"`
	Criteria   []criterionDoc           `mapstructure:"criteria"`
}

type criterionDoc struct {
	ID         string         `mapstructure:"id"`
	Name       string         `mapstructure:"name"`
	Category   string         `mapstructure:"category"`
	Points     float64        `mapstructure:"points"`
	Source     string         `mapstructure:"source"`
	Match      *matchDoc      `mapstructure:"match"`
	Exclude    *matchDoc      `mapstructure:"exclude"`
	Requires   []matchDoc     `mapstructure:"requires"`
	Statuses   []string       `mapstructure:"statuses"`
	WithinDays int            `mapstructure:"within_days"`
	Value      *valueDoc      `mapstructure:"value"`
	Any        []criterionDoc `mapstructure:"any"`
}

type matchDoc struct {
	Codes           []clinical.Code `mapstructure:"codes"`
	PrefixSystem    string          `mapstructure:"prefix_system"`
	Prefixes        []string        `mapstructure:"prefixes"`
	TerminologySets []string        `mapstructure:"terminology_sets"`
	Keywords        []string        `mapstructure:"keywords"`
	WholeWord       bool            `mapstructure:"whole_word"`
}

type valueDoc struct {
	Kind      string    `mapstructure:"kind"`
	Op        string    `mapstructure:"op"`
	Threshold float64   `mapstructure:"threshold"`
	Below     *float64  `mapstructure:"below"`
	Scale     *scaleDoc `mapstructure:"scale"`
}

type scaleDoc struct {
	Pivot     float64 `mapstructure:"pivot"`
	Factor    float64 `mapstructure:"factor"`
	Min       float64 `mapstructure:"min"`
	Max       float64 `mapstructure:"max"`
	Direction string  `mapstructure:"direction"`
}

// LoadRuleset reads a criterion document. The format follows the file extension (yaml, json, toml).
func LoadRuleset(path string) (*Ruleset, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("[LoadRuleset] %w", err)
	}
	rs, err := DecodeRuleset(v)
	if err != nil {
		return nil, fmt.Errorf("[LoadRuleset] %s: %w", path, err)
	}
	log.Info().Str("file", path).Str("version", rs.Version).Int("criteria", len(rs.Criteria)).Msg("ruleset loaded")
	return rs, nil
}

// ParseRuleset reads a criterion document of the given format from r.
func ParseRuleset(r io.Reader, format string) (*Ruleset, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("[ParseRuleset] %w", err)
	}
	rs, err := DecodeRuleset(v)
	if err != nil {
		return nil, fmt.Errorf("[ParseRuleset] %w", err)
	}
	return rs, nil
}

// DecodeRuleset builds a ruleset from a config that has already been read.
// Keys the criterion document does not define are ignored, so other documents can extend it.
func DecodeRuleset(v *viper.Viper) (*Ruleset, error) {
	var doc rulesetDoc
	if err := v.Unmarshal(&doc); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidConfiguration, "decode: %v", err)
	}

	rs := &Ruleset{
		Version:    doc.Version,
		BaseScore:  doc.BaseScore,
		Thresholds: doc.Thresholds,
		Labs:       doc.Laboratory,
	}
	if rs.Thresholds == (Thresholds{}) {
		rs.Thresholds = DefaultThresholds
	}
	if rs.Thresholds.High <= 0 || rs.Thresholds.VeryHigh <= rs.Thresholds.High {
		return nil, invalid("thresholds %+v: need 0 < high < very_high", rs.Thresholds)
	}
	if rs.BaseScore < 0 {
		return nil, invalid("base_score %v is negative", rs.BaseScore)
	}
	for _, lab := range rs.Labs {
		if !lab.Kind.Valid() || lab.Kind == clinical.KindAge {
			return nil, invalid("laboratory kind %q", lab.Kind)
		}
	}

	seen := map[string]bool{BaseScoreID: true}
	for _, cd := range doc.Criteria {
		c, err := buildCriterion(cd, seen)
		if err != nil {
			return nil, err
		}
		rs.Criteria = append(rs.Criteria, c)
	}
	if len(rs.Criteria) == 0 {
		return nil, invalid("no criteria")
	}
	return rs, nil
}

func buildCriterion(cd criterionDoc, seen map[string]bool) (Criterion, error) {
	if cd.ID == "" {
		return Criterion{}, invalid("criterion without id")
	}
	if seen[cd.ID] {
		return Criterion{}, invalid("duplicate criterion id %q", cd.ID)
	}
	seen[cd.ID] = true
	if cd.Points < 0 {
		return Criterion{}, invalid("%s: negative points", cd.ID)
	}

	c := Criterion{
		ID:       cd.ID,
		Name:     cd.Name,
		Category: Category(cd.Category),
		Points:   cd.Points,
		Source:   clinical.Source(cd.Source),
		Statuses: cd.Statuses,
		Within:   time.Duration(cd.WithinDays) * 24 * time.Hour,
	}
	if c.Name == "" {
		c.Name = cd.ID
	}
	switch c.Category {
	case "", CategoryMajor, CategoryMinor, CategoryFlag, CategoryContinuous:
	default:
		return Criterion{}, invalid("%s: unknown category %q", cd.ID, cd.Category)
	}

	drivers := 0
	for _, set := range []bool{len(cd.Any) > 0, cd.Value != nil, cd.Match != nil} {
		if set {
			drivers++
		}
	}
	if drivers != 1 {
		return Criterion{}, invalid("%s: exactly one of any, value or match is required", cd.ID)
	}

	switch {
	case len(cd.Any) > 0:
		for _, sd := range cd.Any {
			sub, err := buildCriterion(sd, seen)
			if err != nil {
				return Criterion{}, err
			}
			c.Any = append(c.Any, sub)
		}
	case cd.Value != nil:
		rule, err := buildValueRule(cd.ID, *cd.Value)
		if err != nil {
			return Criterion{}, err
		}
		c.Value = rule
	default:
		if !c.Source.Valid() || c.Source == clinical.SourceDemographics || c.Source == clinical.SourceObservations {
			return Criterion{}, invalid("%s: source %q cannot be code matched", cd.ID, cd.Source)
		}
		c.Match = buildMatchSpec(*cd.Match)
		if c.Match.Empty() {
			return Criterion{}, invalid("%s: empty match", cd.ID)
		}
		if cd.Exclude != nil {
			c.Exclude = buildMatchSpec(*cd.Exclude)
		}
		for _, rd := range cd.Requires {
			spec := buildMatchSpec(rd)
			if spec.Empty() {
				return Criterion{}, invalid("%s: empty requires entry", cd.ID)
			}
			c.Requires = append(c.Requires, spec)
		}
	}
	return c, nil
}

func buildValueRule(id string, vd valueDoc) (*ValueRule, error) {
	rule := &ValueRule{Kind: clinical.LabKind(vd.Kind), Op: Op(strings.ToLower(vd.Op)), Threshold: vd.Threshold, Below: vd.Below}
	if !rule.Kind.Valid() {
		return nil, invalid("%s: unknown value kind %q", id, vd.Kind)
	}
	if vd.Scale == nil {
		if !rule.Op.valid() {
			return nil, invalid("%s: op %q must be one of lt, le, gt, ge", id, vd.Op)
		}
		if rule.Below != nil && *rule.Below <= rule.Threshold {
			return nil, invalid("%s: below %v must exceed threshold %v", id, *rule.Below, rule.Threshold)
		}
		return rule, nil
	}
	if vd.Below != nil {
		return nil, invalid("%s: below cannot be combined with scale", id)
	}
	s := Scale{Pivot: vd.Scale.Pivot, Factor: vd.Scale.Factor, Min: vd.Scale.Min, Max: vd.Scale.Max, Direction: Direction(vd.Scale.Direction)}
	if s.Direction != Below && s.Direction != Above {
		return nil, invalid("%s: scale direction %q", id, vd.Scale.Direction)
	}
	if s.Factor <= 0 || s.Min > s.Max {
		return nil, invalid("%s: scale needs factor > 0 and min <= max", id)
	}
	rule.Scale = &s
	return rule, nil
}

func buildMatchSpec(md matchDoc) MatchSpec {
	var spec MatchSpec
	if len(md.Codes) > 0 {
		spec.Matchers = append(spec.Matchers, ExactCode{Codes: md.Codes})
	}
	if len(md.Prefixes) > 0 {
		spec.Matchers = append(spec.Matchers, CodePrefix{System: md.PrefixSystem, Prefixes: md.Prefixes})
	}
	for _, set := range md.TerminologySets {
		spec.Matchers = append(spec.Matchers, TerminologySet{Set: set})
	}
	if len(md.Keywords) > 0 {
		spec.Matchers = append(spec.Matchers, NewKeyword(md.Keywords, md.WholeWord))
	}
	return spec
}

func invalid(format string, args ...any) error {
	return apperrors.Wrapf(apperrors.ErrInvalidConfiguration, format, args...)
}
