package oauthmodel

import "net/url"

// TokenRequest holds parameters for the authorization code exchange at the host's token endpoint.
type TokenRequest struct {
	// TokenEndpoint is the URL discovered for the issuer that started the attempt.
	TokenEndpoint string

	// ClientID identifies the OAuth2 client making the request.
	// Required: Yes
	ClientID string

	// ClientSecret is the secret credential for confidential clients.
	// Required: No for public clients
	// Security: Never log or expose this value
	ClientSecret string

	// Code is the authorization code received on the callback.
	// Usage: Exchanged once for tokens, then becomes invalid
	Code string

	// CodeVerifier is the PKCE code verifier that matches the code_challenge sent on the redirect.
	// Example: "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	CodeVerifier string

	// RedirectURI must be identical to the one sent on the authorization redirect.
	RedirectURI string
}

// Confidential reports whether the client authenticates with a secret.
func (r TokenRequest) Confidential() bool {
	return r.ClientSecret != ""
}

// Form returns the x-www-form-urlencoded body. Confidential clients send credentials with HTTP Basic instead of client_id.
func (r TokenRequest) Form() url.Values {
	form := url.Values{}
	form.Set("grant_type", string(AuthorizationCodeGrant))
	form.Set("code", r.Code)
	form.Set("redirect_uri", r.RedirectURI)
	form.Set("code_verifier", r.CodeVerifier)
	if !r.Confidential() {
		form.Set("client_id", r.ClientID)
	}
	return form
}
