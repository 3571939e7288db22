package criteria

import (
	"math"
	"time"

	"github.com/jrsteele09/hbr-risk/clinical"
)

// Category groups criteria for reporting.
type Category string

const (
	CategoryMajor      Category = "major"
	CategoryMinor      Category = "minor"
	CategoryFlag       Category = "binary-flag"
	CategoryContinuous Category = "continuous"
	CategoryBase       Category = "base"
)

// Op compares a value to a threshold.
type Op string

const (
	OpLT Op = "lt"
	OpLE Op = "le"
	OpGT Op = "gt"
	OpGE Op = "ge"
)

func (o Op) compare(value, threshold float64) bool {
	switch o {
	case OpLT:
		return value < threshold
	case OpLE:
		return value <= threshold
	case OpGT:
		return value > threshold
	case OpGE:
		return value >= threshold
	}
	return false
}

func (o Op) valid() bool {
	switch o {
	case OpLT, OpLE, OpGT, OpGE:
		return true
	}
	return false
}

// Direction is the side of the pivot that accrues points.
type Direction string

const (
	Below Direction = "below"
	Above Direction = "above"
)

// Scale awards points in proportion to the distance from Pivot after clamping to [Min, Max].
type Scale struct {
	Pivot     float64
	Factor    float64
	Min       float64
	Max       float64
	Direction Direction
}

// Points returns the awarded points and whether the value lies on the scoring side of the pivot.
func (s Scale) Points(value float64) (float64, bool) {
	v := math.Min(math.Max(value, s.Min), s.Max)
	var distance float64
	switch s.Direction {
	case Below:
		distance = s.Pivot - v
	case Above:
		distance = v - s.Pivot
	}
	if distance <= 0 {
		return 0, false
	}
	return distance * s.Factor, true
}

// ValueRule tests a numeric fact. Either Scale is set or Op and Threshold are.
// Below, when set, also requires the value to be under it, which makes a band.
type ValueRule struct {
	Kind      clinical.LabKind
	Op        Op
	Threshold float64
	Below     *float64
	Scale     *Scale
}

func (r *ValueRule) holds(value float64) bool {
	if r.Below != nil && value >= *r.Below {
		return false
	}
	return r.Op.compare(value, r.Threshold)
}

// Criterion is one rule. Exactly one of Any, Value or Match drives it.
type Criterion struct {
	ID       string
	Name     string
	Category Category
	Points   float64

	// Coded criteria
	Source   clinical.Source
	Match    MatchSpec
	Exclude  MatchSpec   // facts matching this are ignored
	Requires []MatchSpec // each must be satisfied by some fact of Source
	Statuses []string    // allowed fact statuses; empty allows all
	Within   time.Duration

	Value *ValueRule

	// Any is met when any sub-criterion is met and awards Points once.
	Any []Criterion
}

func (c *Criterion) compound() bool { return len(c.Any) > 0 }
func (c *Criterion) numeric() bool  { return c.Value != nil }

// Thresholds are the lowest scores of the high and very-high tiers.
type Thresholds struct {
	High     int `mapstructure:"high" json:"high"`
	VeryHigh int `mapstructure:"very_high" json:"veryHigh"`
}

// DefaultThresholds is the PRECISE-HBR tier split.
var DefaultThresholds = Thresholds{High: 23, VeryHigh: 27}

// Ruleset is a validated, read-only criterion document.
type Ruleset struct {
	Version    string
	BaseScore  float64
	Thresholds Thresholds
	Labs       []clinical.LabDefinition
	Criteria   []Criterion
}

// LabCatalog returns the catalog the ruleset declares, or the default one.
func (r *Ruleset) LabCatalog() *clinical.LabCatalog {
	if len(r.Labs) == 0 {
		return clinical.DefaultLabCatalog()
	}
	return clinical.NewLabCatalog(r.Labs)
}

// ReasonCode explains a result.
type ReasonCode string

const (
	ReasonMatched                 ReasonCode = "matched"
	ReasonNoMatch                 ReasonCode = "no-match"
	ReasonNoData                  ReasonCode = "no-data"
	ReasonTerminologyUnresolvable ReasonCode = "terminology-unresolvable"
	ReasonScopeNotGranted         ReasonCode = "scope-not-granted"
)

// CriterionResult is the outcome of one criterion. Points is zero unless Met.
type CriterionResult struct {
	ID         string            `json:"id"`
	Name       string            `json:"name,omitempty"`
	Category   Category          `json:"category,omitempty"`
	Met        bool              `json:"met"`
	Points     float64           `json:"points"`
	Reason     ReasonCode        `json:"reason"`
	Evidence   []string          `json:"evidence,omitempty"`
	Value      *float64          `json:"value,omitempty"`
	Unit       string            `json:"unit,omitempty"`
	SubResults []CriterionResult `json:"subResults,omitempty"`
}
