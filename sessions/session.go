// Package sessions holds authenticated FHIR sessions created by a completed launch.
package sessions

import (
	"slices"
	"strings"
	"time"
)

// FhirSession is the result of a successful authorization: what the app may read and from where.
type FhirSession struct {
	ID          string    // Browser session identifier (UUID), sent as a cookie
	ServerURL   string    // FHIR base URL (the launch issuer)
	ClientID    string    // Client the token was issued to
	AccessToken string    // Bearer token for the FHIR server, never logged
	TokenType   string    // Usually "Bearer"
	Scopes      []string  // Granted scopes as reported by the token endpoint
	PatientID   string    // Bound patient, set only when patient context was requested
	EncounterID string    // Encounter in context, if the host supplied one
	FhirUser    string    // Practitioner or patient reference from the id_token
	ExpiresAt   time.Time // Zero when the host did not report expires_in
	CreatedAt   time.Time
}

// Expired reports whether the access token can no longer be used.
func (s FhirSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// HasPatientContext reports whether the session is bound to a single patient.
func (s FhirSession) HasPatientContext() bool {
	return s.PatientID != ""
}

// CanRead reports whether any granted scope allows reading the resource type.
// Both SMART v1 (patient/Observation.read) and v2 (patient/Observation.rs) forms are accepted.
func (s FhirSession) CanRead(resourceType string) bool {
	return slices.ContainsFunc(s.Scopes, func(scope string) bool {
		return scopeAllowsRead(scope, resourceType)
	})
}

func scopeAllowsRead(scope, resourceType string) bool {
	scope, _, _ = strings.Cut(scope, "?")
	ctx, rest, ok := strings.Cut(scope, "/")
	if !ok {
		return false
	}
	switch ctx {
	case "patient", "user", "system":
	default:
		return false
	}

	resource, perm, ok := strings.Cut(rest, ".")
	if !ok {
		return false
	}
	if resource != "*" && resource != resourceType {
		return false
	}

	switch perm {
	case "read", "*":
		return true
	case "write":
		return false
	}
	// SMART v2 permissions are an ordered subset of "cruds".
	return strings.Contains(perm, "r") && strings.Trim(perm, "cruds") == ""
}
