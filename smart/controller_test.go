package smart_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/hbr-risk/internal/errors"
	"github.com/jrsteele09/hbr-risk/oauthmodel"
	"github.com/jrsteele09/hbr-risk/pkce"
	"github.com/jrsteele09/hbr-risk/smart"
	"github.com/jrsteele09/hbr-risk/smart/attemptrepo"
	"github.com/stretchr/testify/require"
)

const testScope = "launch launch/patient openid fhirUser patient/Observation.read patient/Condition.read"

var testNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

type transitionRecorder struct {
	mu     sync.Mutex
	states []smart.FlowState
}

func (r *transitionRecorder) record(_ string, from, to smart.FlowState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		r.states = append(r.states, from)
	}
	r.states = append(r.states, to)
}

func (r *transitionRecorder) path() []smart.FlowState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]smart.FlowState(nil), r.states...)
}

type countingExchanger struct {
	calls int
	next  smart.TokenExchanger
}

func (e *countingExchanger) Exchange(ctx context.Context, req oauthmodel.TokenRequest) (*oauthmodel.TokenResponse, error) {
	e.calls++
	return e.next.Exchange(ctx, req)
}

type controllerFixture struct {
	host       *fakeHost
	attempts   *attemptrepo.InMemoryRepo
	exchanger  *countingExchanger
	recorder   *transitionRecorder
	controller *smart.Controller
}

func setupControllerFixture(t *testing.T, secret string) *controllerFixture {
	t.Helper()

	host := newFakeHost(t)
	client := host.server.Client()
	exchanger, err := smart.NewTokenExchanger("oauth2", client)
	require.NoError(t, err)

	f := &controllerFixture{
		host:      host,
		attempts:  attemptrepo.NewInMemoryRepo(10 * time.Minute),
		exchanger: &countingExchanger{next: exchanger},
		recorder:  &transitionRecorder{},
	}
	f.controller, err = smart.NewController(
		smart.Deps{
			Resolver:  smart.NewDiscoveryResolver(client, 1),
			Attempts:  f.attempts,
			Exchanger: f.exchanger,
			Identity:  smart.NewOIDCIdentityVerifier(client),
		},
		smart.ClientSettings{
			ClientID:     testClientID,
			ClientSecret: secret,
			RedirectURI:  testRedirectURI,
			Scope:        testScope,
		},
		smart.WithNowTime(func() time.Time { return testNow }),
		smart.WithTransitionHook(f.recorder.record),
	)
	require.NoError(t, err)
	return f
}

func requireFlowError(t *testing.T, err error, kind error, reason apperrors.Reason) *smart.FlowError {
	t.Helper()
	require.ErrorIs(t, err, kind)
	var ferr *smart.FlowError
	require.True(t, errors.As(err, &ferr))
	require.Equal(t, reason, ferr.Reason)
	return ferr
}

func TestNewController(t *testing.T) {
	_, err := smart.NewController(smart.Deps{}, smart.ClientSettings{})
	require.Error(t, err)

	_, err = smart.NewController(smart.Deps{
		Resolver:  smart.NewDiscoveryResolver(nil, 0),
		Attempts:  attemptrepo.NewInMemoryRepo(time.Minute),
		Exchanger: smart.NewFormExchanger(http.DefaultClient),
	}, smart.ClientSettings{ClientID: testClientID})
	require.Error(t, err, "redirect uri is required")
}

func TestLaunch(t *testing.T) {
	ctx := context.Background()

	t.Run("host launch redirect", func(t *testing.T) {
		f := setupControllerFixture(t, "")

		result, err := f.controller.Launch(ctx, smart.LaunchRequest{Issuer: f.host.issuer(), LaunchToken: testLaunchToken})
		require.NoError(t, err)

		u, err := url.Parse(result.RedirectURL)
		require.NoError(t, err)
		require.Equal(t, f.host.authorizeEndpoint(), u.Scheme+"://"+u.Host+u.Path)

		q := u.Query()
		require.Equal(t, "code", q.Get("response_type"))
		require.Equal(t, testClientID, q.Get("client_id"))
		require.Equal(t, testRedirectURI, q.Get("redirect_uri"))
		require.Equal(t, testScope, q.Get("scope"))
		require.Equal(t, result.State, q.Get("state"))
		require.Equal(t, f.host.issuer(), q.Get("aud"))
		require.Equal(t, testLaunchToken, q.Get("launch"))
		require.Equal(t, "S256", q.Get("code_challenge_method"))
		require.Len(t, q.Get("code_challenge"), 43)

		require.Equal(t, []smart.FlowState{smart.StateInit, smart.StateDiscovering, smart.StateAwaitingCallback}, f.recorder.path())
		require.Equal(t, 1, f.attempts.Len())
	})

	t.Run("challenge matches the stored verifier", func(t *testing.T) {
		f := setupControllerFixture(t, "")

		result, err := f.controller.Launch(ctx, smart.LaunchRequest{Issuer: f.host.issuer(), LaunchToken: testLaunchToken})
		require.NoError(t, err)
		u, err := url.Parse(result.RedirectURL)
		require.NoError(t, err)

		attempt, err := f.attempts.Consume(result.State)
		require.NoError(t, err)
		require.Equal(t, pkce.Challenge(attempt.CodeVerifier), u.Query().Get("code_challenge"))
		require.Equal(t, testLaunchToken, attempt.LaunchToken)
		require.Equal(t, f.host.tokenEndpoint(), attempt.TokenEndpoint)
	})

	t.Run("standalone launch drops launch scope", func(t *testing.T) {
		f := setupControllerFixture(t, "")

		result, err := f.controller.Launch(ctx, smart.LaunchRequest{Issuer: f.host.issuer()})
		require.NoError(t, err)

		u, err := url.Parse(result.RedirectURL)
		require.NoError(t, err)
		require.Equal(t, "launch/patient openid fhirUser patient/Observation.read patient/Condition.read", u.Query().Get("scope"))
		_, hasLaunch := u.Query()["launch"]
		require.False(t, hasLaunch)
	})

	t.Run("missing issuer", func(t *testing.T) {
		f := setupControllerFixture(t, "")

		_, err := f.controller.Launch(ctx, smart.LaunchRequest{LaunchToken: testLaunchToken})
		ferr := requireFlowError(t, err, apperrors.ErrMissingIssuer, apperrors.ReasonInvalidRequest)
		require.Equal(t, smart.StateInit, ferr.FailedIn)
		require.Equal(t, []smart.FlowState{smart.StateInit, smart.StateFailed}, f.recorder.path())
	})

	t.Run("discovery failure never reaches awaiting callback", func(t *testing.T) {
		f := setupControllerFixture(t, "")
		f.host.set(func() {
			f.host.wellKnown = func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{"authorization_endpoint": f.host.authorizeEndpoint()})
			}
		})

		_, err := f.controller.Launch(ctx, smart.LaunchRequest{Issuer: f.host.issuer(), LaunchToken: testLaunchToken})
		ferr := requireFlowError(t, err, apperrors.ErrDiscovery, apperrors.ReasonUnsupportedHost)
		require.Equal(t, smart.StateDiscovering, ferr.FailedIn)
		require.Equal(t, []smart.FlowState{smart.StateInit, smart.StateDiscovering, smart.StateFailed}, f.recorder.path())
		require.Equal(t, 0, f.attempts.Len())
	})

	t.Run("unreachable host is transient", func(t *testing.T) {
		f := setupControllerFixture(t, "")
		issuer := f.host.issuer()
		f.host.server.Close()

		_, err := f.controller.Launch(ctx, smart.LaunchRequest{Issuer: issuer})
		requireFlowError(t, err, apperrors.ErrDiscovery, apperrors.ReasonTransientNetwork)
	})
}

func TestCallback(t *testing.T) {
	ctx := context.Background()

	launch := func(t *testing.T, f *controllerFixture, launchToken string) string {
		t.Helper()
		result, err := f.controller.Launch(ctx, smart.LaunchRequest{Issuer: f.host.issuer(), LaunchToken: launchToken})
		require.NoError(t, err)
		return result.State
	}

	t.Run("successful exchange binds patient", func(t *testing.T) {
		f := setupControllerFixture(t, "")
		state := launch(t, f, testLaunchToken)

		session, err := f.controller.Callback(ctx, oauthmodel.CallbackParams{Code: "auth-code-1", State: state})
		require.NoError(t, err)
		require.Equal(t, testAccessToken, session.AccessToken)
		require.Equal(t, testPatientID, session.PatientID)
		require.Equal(t, f.host.issuer(), session.ServerURL)
		require.Equal(t, testFhirUser, session.FhirUser)
		require.Equal(t, testNow.Add(time.Hour), session.ExpiresAt)
		require.True(t, session.CanRead("Observation"))
		require.False(t, session.CanRead("MedicationRequest"))

		require.Equal(t, []smart.FlowState{
			smart.StateInit, smart.StateDiscovering, smart.StateAwaitingCallback,
			smart.StateExchanging, smart.StateAuthenticated,
		}, f.recorder.path())

		form := f.host.tokenForm()
		attemptVerifier := form.Get("code_verifier")
		require.Len(t, attemptVerifier, 43)
		require.Equal(t, testRedirectURI, form.Get("redirect_uri"))
	})

	t.Run("replayed state never reaches token endpoint", func(t *testing.T) {
		f := setupControllerFixture(t, "")
		state := launch(t, f, testLaunchToken)

		_, err := f.controller.Callback(ctx, oauthmodel.CallbackParams{Code: "auth-code-1", State: state})
		require.NoError(t, err)
		require.Equal(t, 1, f.exchanger.calls)

		_, err = f.controller.Callback(ctx, oauthmodel.CallbackParams{Code: "auth-code-1", State: state})
		requireFlowError(t, err, apperrors.ErrExpiredOrUnknownState, apperrors.ReasonStateRejected)
		require.Equal(t, 1, f.exchanger.calls)
	})

	t.Run("unknown state", func(t *testing.T) {
		f := setupControllerFixture(t, "")

		_, err := f.controller.Callback(ctx, oauthmodel.CallbackParams{Code: "auth-code-1", State: "forged"})
		ferr := requireFlowError(t, err, apperrors.ErrExpiredOrUnknownState, apperrors.ReasonStateRejected)
		require.Equal(t, smart.StateAwaitingCallback, ferr.FailedIn)
		require.Equal(t, 0, f.exchanger.calls)
	})

	t.Run("access denied removes the attempt", func(t *testing.T) {
		f := setupControllerFixture(t, "")
		state := launch(t, f, testLaunchToken)

		_, err := f.controller.Callback(ctx, oauthmodel.CallbackParams{State: state, Error: "access_denied", ErrorDescription: "user said no"})
		ferr := requireFlowError(t, err, apperrors.ErrAuthorizationDenied, apperrors.ReasonAccessDenied)
		require.Equal(t, "access_denied: user said no", ferr.Detail)
		require.Equal(t, 0, f.attempts.Len())
		require.Equal(t, 0, f.exchanger.calls)
		require.Equal(t, smart.StateFailed, f.recorder.path()[len(f.recorder.path())-1])
	})

	t.Run("invalid scope is a configuration mismatch", func(t *testing.T) {
		f := setupControllerFixture(t, "")
		state := launch(t, f, testLaunchToken)

		_, err := f.controller.Callback(ctx, oauthmodel.CallbackParams{State: state, Error: "invalid_scope"})
		requireFlowError(t, err, apperrors.ErrAuthorizationDenied, apperrors.ReasonConfigurationMismatch)
	})

	t.Run("missing code", func(t *testing.T) {
		f := setupControllerFixture(t, "")
		state := launch(t, f, testLaunchToken)

		_, err := f.controller.Callback(ctx, oauthmodel.CallbackParams{State: state})
		requireFlowError(t, err, apperrors.ErrAuthorizationDenied, apperrors.ReasonInvalidRequest)
	})

	t.Run("rejected code", func(t *testing.T) {
		f := setupControllerFixture(t, "")
		f.host.set(func() { f.host.token = tokenFailure(http.StatusBadRequest, "invalid_grant") })
		state := launch(t, f, testLaunchToken)

		_, err := f.controller.Callback(ctx, oauthmodel.CallbackParams{Code: "bad", State: state})
		ferr := requireFlowError(t, err, apperrors.ErrTokenExchange, apperrors.ReasonConfigurationMismatch)
		require.Equal(t, smart.StateExchanging, ferr.FailedIn)
		require.Equal(t, "invalid_grant", ferr.Detail)
		require.Equal(t, int32(1), f.host.tokenCalls.Load())
	})

	t.Run("token endpoint outage is transient", func(t *testing.T) {
		f := setupControllerFixture(t, "")
		f.host.set(func() { f.host.token = tokenFailure(http.StatusBadGateway, "server_error") })
		state := launch(t, f, testLaunchToken)

		_, err := f.controller.Callback(ctx, oauthmodel.CallbackParams{Code: "c", State: state})
		requireFlowError(t, err, apperrors.ErrTokenExchange, apperrors.ReasonTransientNetwork)
		require.Equal(t, int32(1), f.host.tokenCalls.Load())
	})

	t.Run("id token from another audience fails verification", func(t *testing.T) {
		f := setupControllerFixture(t, "")
		f.host.set(func() {
			f.host.token = f.host.tokenSuccess(map[string]any{"id_token": f.host.idToken(nil, "another-app")})
		})
		state := launch(t, f, testLaunchToken)

		_, err := f.controller.Callback(ctx, oauthmodel.CallbackParams{Code: "c", State: state})
		requireFlowError(t, err, apperrors.ErrIdentityVerification, apperrors.ReasonConfigurationMismatch)
	})

	t.Run("no patient binding without patient context scope", func(t *testing.T) {
		f := setupControllerFixture(t, "")
		var err error
		f.controller, err = smart.NewController(
			smart.Deps{
				Resolver:  smart.NewDiscoveryResolver(f.host.server.Client(), 1),
				Attempts:  f.attempts,
				Exchanger: f.exchanger,
			},
			smart.ClientSettings{ClientID: testClientID, RedirectURI: testRedirectURI, Scope: "openid user/*.read"},
		)
		require.NoError(t, err)

		result, err := f.controller.Launch(ctx, smart.LaunchRequest{Issuer: f.host.issuer()})
		require.NoError(t, err)

		session, err := f.controller.Callback(ctx, oauthmodel.CallbackParams{Code: "c", State: result.State})
		require.NoError(t, err)
		require.Empty(t, session.PatientID)
		require.False(t, session.HasPatientContext())
	})
}
