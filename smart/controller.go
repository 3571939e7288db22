package smart

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	apperrors "github.com/jrsteele09/hbr-risk/internal/errors"
	"github.com/jrsteele09/hbr-risk/internal/utils"
	"github.com/jrsteele09/hbr-risk/oauthmodel"
	"github.com/jrsteele09/hbr-risk/pkce"
	"github.com/jrsteele09/hbr-risk/sessions"
	"github.com/jrsteele09/hbr-risk/smart/attemptrepo"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ClientSettings is this app's registration with the hosts it launches from.
type ClientSettings struct {
	ClientID     string
	ClientSecret string // Empty for public clients
	RedirectURI  string
	Scope        string // Configured scope; adjusted per launch by LaunchScope
}

// Deps holds the collaborators of the Controller. Identity is optional.
type Deps struct {
	Resolver  Resolver
	Attempts  attemptrepo.Repo
	Exchanger TokenExchanger
	Identity  IdentityVerifier
}

// LaunchRequest is what the host (or the user, for standalone launches) sent to the launch endpoint.
type LaunchRequest struct {
	Issuer      string
	LaunchToken string
}

// LaunchResult is where to send the browser next.
type LaunchResult struct {
	RedirectURL string
	State       string
	Scope       string
	Endpoints   Endpoints
}

// Controller drives a launch from INIT to AUTHENTICATED or FAILED.
type Controller struct {
	deps         Deps
	client       ClientSettings
	nowTime      func() time.Time
	onTransition TransitionFunc
}

type ControllerOption func(*Controller)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ControllerOption {
	return func(c *Controller) {
		c.nowTime = nowFunc
	}
}

// WithTransitionHook registers an observer for state machine transitions.
func WithTransitionHook(fn TransitionFunc) ControllerOption {
	return func(c *Controller) {
		c.onTransition = fn
	}
}

func NewController(deps Deps, client ClientSettings, options ...ControllerOption) (*Controller, error) {
	if deps.Resolver == nil {
		return nil, errors.New("[NewController] Resolver is required")
	}
	if deps.Attempts == nil {
		return nil, errors.New("[NewController] Attempts repo is required")
	}
	if deps.Exchanger == nil {
		return nil, errors.New("[NewController] Exchanger is required")
	}
	if client.ClientID == "" {
		return nil, errors.New("[NewController] ClientID is required")
	}
	if client.RedirectURI == "" {
		return nil, errors.New("[NewController] RedirectURI is required")
	}

	c := &Controller{
		deps:    deps,
		client:  client,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Launch resolves the issuer's endpoints, records a new attempt and returns the authorization redirect.
func (c *Controller) Launch(ctx context.Context, req LaunchRequest) (*LaunchResult, error) {
	issuer := NormalizeIssuer(req.Issuer)
	if issuer == "" {
		return nil, c.fail("-", StateInit, newFlowError(StateInit, apperrors.ErrMissingIssuer, apperrors.ReasonInvalidRequest, nil))
	}

	c.transition("-", StateInit, StateDiscovering)
	endpoints, err := c.deps.Resolver.Resolve(ctx, issuer)
	if err != nil {
		return nil, c.fail("-", StateDiscovering, discoveryFailure(err))
	}

	pair, err := pkce.Generate()
	if err != nil {
		return nil, c.fail("-", StateDiscovering, newFlowError(StateDiscovering, apperrors.ErrInternal, apperrors.ReasonTransientNetwork, errors.Wrap(err, "[Launch] generating pkce pair")))
	}

	hostLaunch := req.LaunchToken != ""
	scope := LaunchScope(c.client.Scope, hostLaunch)
	state, err := c.deps.Attempts.Create(&attemptrepo.Attempt{
		CodeVerifier:          pair.Verifier,
		Issuer:                issuer,
		LaunchToken:           req.LaunchToken,
		Scope:                 scope,
		AuthorizationEndpoint: endpoints.AuthorizationEndpoint,
		TokenEndpoint:         endpoints.TokenEndpoint,
		JWKSURI:               endpoints.JWKSURI,
	})
	if err != nil {
		return nil, c.fail("-", StateDiscovering, newFlowError(StateDiscovering, apperrors.ErrInternal, apperrors.ReasonTransientNetwork, errors.Wrap(err, "[Launch] storing attempt")))
	}
	attemptID := fingerprint(state)

	params := oauthmodel.AuthorizationParameters{
		ClientID:            c.client.ClientID,
		ResponseType:        oauthmodel.CodeResponseType,
		RedirectURI:         c.client.RedirectURI,
		Scope:               scope,
		State:               state,
		Audience:            issuer,
		CodeChallenge:       pair.Challenge,
		CodeChallengeMethod: oauthmodel.CodeMethodTypeS256,
		Launch:              req.LaunchToken,
	}
	redirect, err := params.AuthorizeURL(endpoints.AuthorizationEndpoint)
	if err != nil {
		_ = c.deps.Attempts.Delete(state)
		return nil, c.fail(attemptID, StateDiscovering, redirectFailure(err))
	}

	if hostLaunch && !endpoints.Supports("launch-ehr") {
		log.Warn().Str("issuer", issuer).Msg("host does not advertise launch-ehr, continuing")
	}

	c.transition(attemptID, StateDiscovering, StateAwaitingCallback)
	return &LaunchResult{
		RedirectURL: redirect,
		State:       state,
		Scope:       scope,
		Endpoints:   endpoints,
	}, nil
}

// Callback completes an attempt. The attempt is consumed before anything else so a state value
// works at most once, whatever the outcome.
func (c *Controller) Callback(ctx context.Context, params oauthmodel.CallbackParams) (*sessions.FhirSession, error) {
	attemptID := fingerprint(params.State)

	attempt, err := c.deps.Attempts.Consume(params.State)
	if err != nil {
		return nil, c.fail(attemptID, StateAwaitingCallback, newFlowError(StateAwaitingCallback, apperrors.ErrExpiredOrUnknownState, apperrors.ReasonStateRejected, err))
	}

	if params.Denied() {
		ferr := newFlowError(StateAwaitingCallback, apperrors.ErrAuthorizationDenied, authorizationErrorReason(params.Error), nil)
		ferr.Detail = params.Error
		if params.ErrorDescription != "" {
			ferr.Detail += ": " + params.ErrorDescription
		}
		return nil, c.fail(attemptID, StateAwaitingCallback, ferr)
	}
	if params.Code == "" {
		ferr := newFlowError(StateAwaitingCallback, apperrors.ErrAuthorizationDenied, apperrors.ReasonInvalidRequest, nil)
		ferr.Detail = "callback carried no authorization code"
		return nil, c.fail(attemptID, StateAwaitingCallback, ferr)
	}

	c.transition(attemptID, StateAwaitingCallback, StateExchanging)
	resp, err := c.deps.Exchanger.Exchange(ctx, oauthmodel.TokenRequest{
		TokenEndpoint: attempt.TokenEndpoint,
		ClientID:      c.client.ClientID,
		ClientSecret:  c.client.ClientSecret,
		Code:          params.Code,
		CodeVerifier:  attempt.CodeVerifier,
		RedirectURI:   c.client.RedirectURI,
	})
	if err != nil {
		return nil, c.fail(attemptID, StateExchanging, tokenFailure(err))
	}

	identity, err := c.identify(ctx, attempt, utils.Value(resp.IdToken))
	if err != nil {
		return nil, c.fail(attemptID, StateExchanging, newFlowError(StateExchanging, apperrors.ErrIdentityVerification, apperrors.ReasonConfigurationMismatch, err))
	}

	now := c.nowTime()
	session := &sessions.FhirSession{
		ServerURL:   attempt.Issuer,
		ClientID:    c.client.ClientID,
		AccessToken: utils.Value(resp.AccessToken),
		TokenType:   resp.TokenType,
		Scopes:      GrantedScopes(resp.Scope, attempt.Scope),
		EncounterID: resp.Encounter,
		FhirUser:    identity.FhirUser,
		CreatedAt:   now,
	}
	if RequestsPatientContext(attempt.Scope) {
		session.PatientID = resp.Patient
	}
	if resp.ExpiresIn > 0 {
		session.ExpiresAt = now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	c.transition(attemptID, StateExchanging, StateAuthenticated)
	return session, nil
}

func (c *Controller) identify(ctx context.Context, attempt *attemptrepo.Attempt, rawIDToken string) (Identity, error) {
	if c.deps.Identity == nil || rawIDToken == "" {
		return Identity{}, nil
	}
	endpoints := Endpoints{
		Issuer:                attempt.Issuer,
		AuthorizationEndpoint: attempt.AuthorizationEndpoint,
		TokenEndpoint:         attempt.TokenEndpoint,
		JWKSURI:               attempt.JWKSURI,
	}
	return c.deps.Identity.Identify(ctx, endpoints, c.client.ClientID, rawIDToken)
}

func (c *Controller) transition(attemptID string, from, to FlowState) {
	log.Debug().Str("attempt", attemptID).Str("from", string(from)).Str("to", string(to)).Msg("launch transition")
	if c.onTransition != nil {
		c.onTransition(attemptID, from, to)
	}
}

func (c *Controller) fail(attemptID string, from FlowState, ferr *FlowError) error {
	log.Warn().
		Str("attempt", attemptID).
		Str("state", string(from)).
		Str("reason", string(ferr.Reason)).
		Err(ferr).
		Msg("launch failed")
	c.transition(attemptID, from, StateFailed)
	return ferr
}

func discoveryFailure(err error) *FlowError {
	if apperrors.Is(err, apperrors.ErrMissingIssuer) {
		return newFlowError(StateDiscovering, apperrors.ErrMissingIssuer, apperrors.ReasonInvalidRequest, err)
	}
	var derr *DiscoveryError
	if apperrors.As(err, &derr) && derr.Transient {
		return newFlowError(StateDiscovering, apperrors.ErrDiscovery, apperrors.ReasonTransientNetwork, err)
	}
	return newFlowError(StateDiscovering, apperrors.ErrDiscovery, apperrors.ReasonUnsupportedHost, err)
}

func redirectFailure(err error) *FlowError {
	switch {
	case apperrors.Is(err, oauthmodel.ErrInvalidEndpoint):
		return newFlowError(StateDiscovering, apperrors.ErrDiscovery, apperrors.ReasonUnsupportedHost, err)
	case apperrors.Is(err, oauthmodel.ErrInvalidRedirectUri):
		return newFlowError(StateDiscovering, apperrors.ErrInvalidRedirectURI, apperrors.ReasonConfigurationMismatch, err)
	}
	return newFlowError(StateDiscovering, apperrors.ErrInvalidConfiguration, apperrors.ReasonConfigurationMismatch, err)
}

func tokenFailure(err error) *FlowError {
	var terr *TokenError
	if !apperrors.As(err, &terr) {
		return newFlowError(StateExchanging, apperrors.ErrTokenExchange, apperrors.ReasonConfigurationMismatch, err)
	}
	ferr := newFlowError(StateExchanging, apperrors.ErrTokenExchange, apperrors.ReasonConfigurationMismatch, err)
	ferr.Detail = terr.Code
	switch {
	case terr.Transient:
		ferr.Reason = apperrors.ReasonTransientNetwork
	case terr.StatusCode == http.StatusNotFound || terr.StatusCode == http.StatusMethodNotAllowed:
		ferr.Reason = apperrors.ReasonUnsupportedHost
	}
	return ferr
}

func authorizationErrorReason(code string) apperrors.Reason {
	switch code {
	case oauthmodel.ErrorInvalidScope, oauthmodel.ErrorUnauthorizedClient, oauthmodel.ErrorInvalidRequest:
		return apperrors.ReasonConfigurationMismatch
	case oauthmodel.ErrorUnsupportedResponseType:
		return apperrors.ReasonUnsupportedHost
	case oauthmodel.ErrorServerError, oauthmodel.ErrorTemporarilyUnavailable:
		return apperrors.ReasonTransientNetwork
	}
	return apperrors.ReasonAccessDenied
}

// fingerprint identifies an attempt in logs without revealing its state value.
func fingerprint(state string) string {
	if state == "" {
		return "-"
	}
	sum := sha256.Sum256([]byte(state))
	return hex.EncodeToString(sum[:4])
}
