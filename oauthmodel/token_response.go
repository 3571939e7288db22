package oauthmodel

// TokenResponse represents the token endpoint response including the SMART launch context fields.
type TokenResponse struct {
	// AccessToken is the bearer token for the FHIR server.
	AccessToken *string `json:"access_token,omitempty"`

	// IdToken is present when openid was requested.
	IdToken *string `json:"id_token,omitempty"`

	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the access token lifetime in seconds. Zero when not reported.
	ExpiresIn int `json:"expires_in,omitempty"`

	RefreshToken *string `json:"refresh_token,omitempty"`

	// Scope is the granted scope, which may be narrower than requested.
	Scope string `json:"scope,omitempty"`

	// Patient is the patient in context (SMART launch context).
	Patient string `json:"patient,omitempty"`

	// Encounter is the encounter in context, if any.
	Encounter string `json:"encounter,omitempty"`

	NeedPatientBanner bool   `json:"need_patient_banner,omitempty"`
	SmartStyleURL     string `json:"smart_style_url,omitempty"`
}

// ErrorResponse is the RFC 6749 §5.2 error body.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}
