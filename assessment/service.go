// Package assessment evaluates a patient bundle on behalf of an authenticated session.
package assessment

import (
	"context"
	"time"

	"github.com/jrsteele09/hbr-risk/clinical"
	"github.com/jrsteele09/hbr-risk/criteria"
	"github.com/jrsteele09/hbr-risk/fhir"
	apperrors "github.com/jrsteele09/hbr-risk/internal/errors"
	"github.com/jrsteele09/hbr-risk/score"
	"github.com/jrsteele09/hbr-risk/sessions"
	"github.com/jrsteele09/hbr-risk/tradeoff"
	"github.com/rs/zerolog/log"
)

var gatedSources = []clinical.Source{
	clinical.SourceDemographics,
	clinical.SourceConditions,
	clinical.SourceMedications,
	clinical.SourceProcedures,
	clinical.SourceObservations,
}

type Service struct {
	ruleset   *criteria.Ruleset
	evaluator *criteria.Evaluator
	catalog   *clinical.LabCatalog
	tradeoff  *tradeoff.Calculator
	nowFunc   func() time.Time
}

type ServiceOption func(*Service)

func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowFunc = nowFunc
	}
}

// WithTradeoff enables the bleeding and thrombotic tradeoff. Predictors share the service's evaluator.
func WithTradeoff(model *tradeoff.Model) ServiceOption {
	return func(s *Service) {
		s.tradeoff = tradeoff.NewCalculator(model, s.evaluator)
	}
}

func NewService(ruleset *criteria.Ruleset, evaluator *criteria.Evaluator, opts ...ServiceOption) *Service {
	s := &Service{
		ruleset:   ruleset,
		evaluator: evaluator,
		catalog:   ruleset.LabCatalog(),
		nowFunc:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Assess scores the bundle with only the resource types the session may read.
// A session bound to a patient rejects bundles about anyone else.
func (s *Service) Assess(ctx context.Context, session *sessions.FhirSession, bundle *fhir.Bundle) (score.RiskAssessment, error) {
	facts, err := s.sessionFacts(session, bundle)
	if err != nil {
		return score.RiskAssessment{}, err
	}
	return s.AssessFacts(ctx, facts)
}

// Tradeoff weighs bleeding against thrombotic risk under the same session rules as Assess.
func (s *Service) Tradeoff(ctx context.Context, session *sessions.FhirSession, bundle *fhir.Bundle) (tradeoff.Analysis, error) {
	if s.tradeoff == nil {
		return tradeoff.Analysis{}, apperrors.Wrapf(apperrors.ErrNotFound, "tradeoff model not configured")
	}
	facts, err := s.sessionFacts(session, bundle)
	if err != nil {
		return tradeoff.Analysis{}, err
	}
	return s.tradeoff.Analyze(ctx, facts)
}

// TradeoffCalculator is nil when no tradeoff model is configured.
func (s *Service) TradeoffCalculator() *tradeoff.Calculator {
	return s.tradeoff
}

// sessionFacts converts the bundle for the session's patient and hides what its scopes do not grant.
func (s *Service) sessionFacts(session *sessions.FhirSession, bundle *fhir.Bundle) (*clinical.PatientFacts, error) {
	now := s.nowFunc()
	if session == nil {
		return nil, apperrors.ErrSessionNotFound
	}
	if session.Expired(now) {
		return nil, apperrors.ErrSessionExpired
	}

	res, err := bundle.Resources()
	if err != nil {
		return nil, err
	}

	var opts []clinical.BundleOption
	if session.HasPatientContext() {
		if res.Patient != nil && res.Patient.ID != "" && res.Patient.ID != session.PatientID {
			return nil, apperrors.ErrPatientContextMismatch
		}
		opts = append(opts, clinical.ForPatient(session.PatientID))
	}
	facts := clinical.FromBundle(res, s.catalog, now, opts...)

	for _, source := range gatedSources {
		if !session.CanRead(source.ResourceType()) {
			facts.Restrict(source)
		}
	}
	if len(facts.Unavailable) > 0 {
		log.Info().Str("session", session.ID).Int("restrictedSources", len(facts.Unavailable)).Msg("assessing with partial scope")
	}
	return facts, nil
}

// AssessFacts scores facts that were gathered elsewhere, without any scope checks.
func (s *Service) AssessFacts(ctx context.Context, facts *clinical.PatientFacts) (score.RiskAssessment, error) {
	results, err := s.evaluator.Evaluate(ctx, s.ruleset, facts)
	if err != nil {
		return score.RiskAssessment{}, err
	}
	assessment := score.Aggregate(results, s.ruleset.Thresholds)
	log.Info().Int("score", assessment.Score).Str("tier", string(assessment.Tier)).Msg("assessment complete")
	return assessment, nil
}

// AssessBundle scores a bundle outside any session, as of now.
func (s *Service) AssessBundle(ctx context.Context, bundle *fhir.Bundle) (score.RiskAssessment, error) {
	res, err := bundle.Resources()
	if err != nil {
		return score.RiskAssessment{}, err
	}
	return s.AssessFacts(ctx, clinical.FromBundle(res, s.catalog, s.nowFunc()))
}

// TradeoffBundle runs the tradeoff analysis on a bundle outside any session, as of now.
func (s *Service) TradeoffBundle(ctx context.Context, bundle *fhir.Bundle) (tradeoff.Analysis, error) {
	if s.tradeoff == nil {
		return tradeoff.Analysis{}, apperrors.Wrapf(apperrors.ErrNotFound, "tradeoff model not configured")
	}
	res, err := bundle.Resources()
	if err != nil {
		return tradeoff.Analysis{}, err
	}
	return s.tradeoff.Analyze(ctx, clinical.FromBundle(res, s.catalog, s.nowFunc()))
}
