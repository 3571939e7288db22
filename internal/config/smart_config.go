package config

import (
	"errors"
	"strings"
	"time"
)

const (
	TokenClientOAuth2 = "oauth2"
	TokenClientForm   = "form"

	DefaultScopes = "launch launch/patient openid fhirUser patient/Patient.read patient/Observation.read patient/Condition.read patient/MedicationRequest.read patient/Procedure.read"

	minHTTPTimeout = 10 * time.Second
	maxHTTPTimeout = 30 * time.Second
)

type Smart struct {
	ClientID         string        `env:"SMART_CLIENT_ID"`
	ClientSecret     string        `env:"SMART_CLIENT_SECRET"`
	RedirectURI      string        `env:"SMART_REDIRECT_URI"`
	Scopes           string        `env:"SMART_SCOPES" envDefault:"launch launch/patient openid fhirUser patient/Patient.read patient/Observation.read patient/Condition.read patient/MedicationRequest.read patient/Procedure.read"`
	TokenClient      string        `env:"SMART_TOKEN_CLIENT" envDefault:"oauth2"`
	DiscoveryTimeout time.Duration `env:"DISCOVERY_TIMEOUT" envDefault:"15s"`
	TokenTimeout     time.Duration `env:"TOKEN_TIMEOUT" envDefault:"15s"`
	DiscoveryRetries int           `env:"DISCOVERY_RETRIES" envDefault:"1"`
}

var _ SmartConfig = Smart{}

func (s Smart) validate() error {
	if strings.TrimSpace(s.ClientID) == "" || strings.TrimSpace(s.RedirectURI) == "" {
		return errors.New("SMART_CLIENT_ID and SMART_REDIRECT_URI must be set")
	}
	switch s.GetTokenClient() {
	case TokenClientOAuth2, TokenClientForm:
	default:
		return errors.New("SMART_TOKEN_CLIENT must be oauth2 or form")
	}
	return nil
}

func (s Smart) GetClientID() string {
	return strings.TrimSpace(s.ClientID)
}

func (s Smart) GetClientSecret() string {
	return s.ClientSecret
}

// GetRedirectURI drops any fragment; authorization servers reject redirect URIs carrying one.
func (s Smart) GetRedirectURI() string {
	uri, _, _ := strings.Cut(s.RedirectURI, "#")
	return strings.TrimSpace(uri)
}

func (s Smart) GetScopes() string {
	if strings.TrimSpace(s.Scopes) == "" {
		return DefaultScopes
	}
	return strings.Join(strings.Fields(s.Scopes), " ")
}

func (s Smart) GetTokenClient() string {
	if s.TokenClient == "" {
		return TokenClientOAuth2
	}
	return strings.ToLower(s.TokenClient)
}

func (s Smart) GetDiscoveryTimeout() time.Duration {
	return clampDuration(s.DiscoveryTimeout, minHTTPTimeout, maxHTTPTimeout)
}

func (s Smart) GetTokenTimeout() time.Duration {
	return clampDuration(s.TokenTimeout, minHTTPTimeout, maxHTTPTimeout)
}

// GetDiscoveryRetries is capped at one automatic retry.
func (s Smart) GetDiscoveryRetries() int {
	return min(max(s.DiscoveryRetries, 0), 1)
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
