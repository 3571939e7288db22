package criteria

import (
	"context"
	"slices"
	"strings"

	"github.com/jrsteele09/hbr-risk/clinical"
	apperrors "github.com/jrsteele09/hbr-risk/internal/errors"
	"github.com/jrsteele09/hbr-risk/internal/utils"
	"github.com/jrsteele09/hbr-risk/labs"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// BaseScoreID identifies the synthetic result carrying the ruleset's base score.
const BaseScoreID = "base-score"

// Evaluator runs a ruleset against patient facts. Criteria are evaluated concurrently
// and share nothing but the read-only facts.
type Evaluator struct {
	matcher   *RuleMatcher
	estimator labs.GFREstimator
	limit     int
}

type EvaluatorOption func(*Evaluator)

// WithEstimator swaps the eGFR equation.
func WithEstimator(e labs.GFREstimator) EvaluatorOption {
	return func(ev *Evaluator) {
		ev.estimator = e
	}
}

// WithConcurrency caps the number of criteria evaluated at once.
func WithConcurrency(n int) EvaluatorOption {
	return func(ev *Evaluator) {
		ev.limit = n
	}
}

func NewEvaluator(matcher *RuleMatcher, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{matcher: matcher, estimator: labs.CKDEPI2021{}, limit: 8}
	for _, opt := range opts {
		opt(e)
	}
	if e.matcher == nil {
		e.matcher = NewRuleMatcher(nil)
	}
	return e
}

// Evaluate returns one result per criterion, in ruleset order, preceded by the base score when
// the ruleset has one. Missing data never fails the run; only cancellation does.
func (e *Evaluator) Evaluate(ctx context.Context, rs *Ruleset, facts *clinical.PatientFacts) ([]CriterionResult, error) {
	results := make([]CriterionResult, len(rs.Criteria))

	g, ctx := errgroup.WithContext(ctx)
	if e.limit > 0 {
		g.SetLimit(e.limit)
	}
	for i := range rs.Criteria {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = e.evaluate(ctx, &rs.Criteria[i], facts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if rs.BaseScore != 0 {
		base := CriterionResult{ID: BaseScoreID, Name: "Base score", Category: CategoryBase, Met: true, Points: rs.BaseScore, Reason: ReasonMatched}
		results = append([]CriterionResult{base}, results...)
	}
	return results, nil
}

func (e *Evaluator) evaluate(ctx context.Context, c *Criterion, facts *clinical.PatientFacts) CriterionResult {
	var res CriterionResult
	switch {
	case c.compound():
		res = e.evaluateAny(ctx, c, facts)
	case c.numeric():
		res = e.evaluateValue(c, facts)
	default:
		res = e.evaluateCoded(ctx, c, facts)
	}
	res.ID, res.Name, res.Category = c.ID, c.Name, c.Category
	if !res.Met {
		res.Points = 0
	}
	log.Debug().Str("criterion", c.ID).Bool("met", res.Met).Float64("points", res.Points).Str("reason", string(res.Reason)).Msg("criterion evaluated")
	return res
}

// evaluateAny is met when any sub-criterion is. Sub-criteria carry no points of their own.
func (e *Evaluator) evaluateAny(ctx context.Context, c *Criterion, facts *clinical.PatientFacts) CriterionResult {
	res := CriterionResult{Reason: ReasonNoMatch}
	for i := range c.Any {
		sub := e.evaluate(ctx, &c.Any[i], facts)
		sub.Points = 0
		res.SubResults = append(res.SubResults, sub)
		if sub.Met && !res.Met {
			res.Met = true
			res.Evidence = sub.Evidence
			res.Value = sub.Value
			res.Unit = sub.Unit
		}
	}
	if res.Met {
		res.Points = c.Points
		res.Reason = ReasonMatched
		return res
	}
	// Not met: report no-match if any sub-criterion could be evaluated, otherwise why none could.
	for _, sub := range res.SubResults {
		if sub.Reason == ReasonNoMatch {
			return res
		}
	}
	if len(res.SubResults) > 0 {
		res.Reason = res.SubResults[0].Reason
	}
	return res
}

func (e *Evaluator) evaluateValue(c *Criterion, facts *clinical.PatientFacts) CriterionResult {
	rule := c.Value
	source := clinical.SourceObservations
	if rule.Kind == clinical.KindAge {
		source = clinical.SourceDemographics
	}
	if !facts.Available(source) {
		return CriterionResult{Reason: ReasonScopeNotGranted}
	}

	fact, err := labs.Value(facts, rule.Kind, e.estimator)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrNoDataForCriterion) {
			log.Warn().Err(err).Str("criterion", c.ID).Msg("value lookup failed")
		}
		return CriterionResult{Reason: ReasonNoData}
	}

	res := CriterionResult{Reason: ReasonNoMatch, Value: utils.Ptr(fact.Value), Unit: fact.Unit}
	if fact.ID != "" {
		res.Evidence = []string{fact.ID}
	}
	if rule.Scale != nil {
		res.Points, res.Met = rule.Scale.Points(fact.Value)
	} else if rule.holds(fact.Value) {
		res.Met, res.Points = true, c.Points
	}
	if res.Met {
		res.Reason = ReasonMatched
	}
	return res
}

func (e *Evaluator) evaluateCoded(ctx context.Context, c *Criterion, facts *clinical.PatientFacts) CriterionResult {
	if !facts.Available(c.Source) {
		return CriterionResult{Reason: ReasonScopeNotGranted}
	}
	if len(facts.Coded(c.Source)) == 0 {
		return CriterionResult{Reason: ReasonNoData}
	}
	candidates := e.candidates(ctx, c, facts)

	var unresolved bool
	firstMatch := func(spec MatchSpec) (string, bool) {
		for _, f := range candidates {
			ok, err := e.matcher.Matches(ctx, f.Codes, f.Text, spec)
			if err != nil {
				unresolved = true
			}
			if ok {
				return f.ID, true
			}
		}
		return "", false
	}

	res := CriterionResult{Reason: ReasonNoMatch}
	id, ok := firstMatch(c.Match)
	if ok {
		res.Evidence = append(res.Evidence, id)
		res.Met = true
		for _, spec := range c.Requires {
			id, ok := firstMatch(spec)
			if !ok {
				res.Met = false
				res.Evidence = nil
				break
			}
			res.Evidence = append(res.Evidence, id)
		}
	}

	switch {
	case res.Met:
		res.Points = c.Points
		res.Reason = ReasonMatched
	case unresolved:
		log.Warn().Str("criterion", c.ID).Msg("terminology set unresolvable, criterion treated as not met")
		res.Reason = ReasonTerminologyUnresolvable
	}
	return res
}

// candidates filters the source facts by status, look-back window and exclusions.
func (e *Evaluator) candidates(ctx context.Context, c *Criterion, facts *clinical.PatientFacts) []clinical.CodedFact {
	var out []clinical.CodedFact
	for _, f := range facts.Coded(c.Source) {
		if len(c.Statuses) > 0 && !slices.ContainsFunc(c.Statuses, func(s string) bool { return strings.EqualFold(s, f.Status) }) {
			continue
		}
		if c.Within > 0 && (f.Date.IsZero() || f.Date.Before(facts.AsOf.Add(-c.Within))) {
			continue
		}
		if !c.Exclude.Empty() {
			excluded, err := e.matcher.Matches(ctx, f.Codes, f.Text, c.Exclude)
			if excluded {
				continue
			}
			if err != nil {
				log.Warn().Err(err).Str("criterion", c.ID).Str("fact", f.ID).Msg("exclusion terminology set unresolvable, exclusion not applied")
			}
		}
		out = append(out, f)
	}
	return out
}
