package oauthmodel

import (
	"net/url"
	"strings"
)

// AuthorizationParameters holds the query parameters sent to the host's authorization endpoint.
type AuthorizationParameters struct {
	// ClientID identifies this application to the host.
	// Required: Yes
	ClientID string

	// ResponseType is always "code".
	ResponseType ResponseType

	// RedirectURI is where the host sends the browser back with code and state.
	// Required: Yes. Must exactly match the registered URI and carry no fragment.
	RedirectURI string

	// Scope is the space separated scope list.
	// Example: "launch openid fhirUser patient/Observation.read"
	// Standalone launches never include the bare "launch" scope.
	Scope string

	// State is the opaque CSRF token issued by the attempt store.
	// Required: Yes
	State string

	// Audience is the FHIR base URL (the launch issuer) the token is requested for.
	// Required: Yes (SMART "aud")
	Audience string

	// CodeChallenge is BASE64URL(SHA256(code_verifier)).
	// Length: 43 characters when using S256
	CodeChallenge string

	// CodeChallengeMethod is always S256.
	CodeChallengeMethod CodeMethodType

	// Launch is the opaque host launch token. Empty for standalone launches.
	Launch string
}

// Validate checks the parameters are complete before a redirect is built.
func (p *AuthorizationParameters) Validate() error {
	if strings.TrimSpace(p.ClientID) == "" {
		return ErrMissingClientID
	}
	if p.ResponseType != CodeResponseType {
		return ErrInvalidResponseType
	}
	if !redirectURIValid(p.RedirectURI) {
		return ErrInvalidRedirectUri
	}
	if p.State == "" {
		return ErrMissingState
	}
	if p.Audience == "" {
		return ErrMissingAudience
	}
	if len(p.CodeChallenge) != 43 {
		return ErrInvalidCodeChallenge
	}
	if p.CodeChallengeMethod != CodeMethodTypeS256 {
		return ErrInvalidCodeChallengeMethod
	}
	return nil
}

// AuthorizeURL builds the redirect to the host's authorization endpoint.
// Query parameters already present on the endpoint are preserved.
func (p *AuthorizationParameters) AuthorizeURL(endpoint string) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", ErrInvalidEndpoint
	}

	q := u.Query()
	q.Set("response_type", string(p.ResponseType))
	q.Set("client_id", p.ClientID)
	q.Set("redirect_uri", p.RedirectURI)
	q.Set("scope", p.Scope)
	q.Set("state", p.State)
	q.Set("aud", p.Audience)
	q.Set("code_challenge", p.CodeChallenge)
	q.Set("code_challenge_method", string(p.CodeChallengeMethod))
	if p.Launch != "" {
		q.Set("launch", p.Launch)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func redirectURIValid(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != "" && u.Fragment == "" && !strings.Contains(uri, "#")
}
