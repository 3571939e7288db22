package errors

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced by the launch flow and the criteria engine
var (
	// Authorization flow errors
	ErrMissingIssuer          = errors.New("missing issuer")
	ErrDiscovery              = errors.New("authorization endpoints could not be discovered")
	ErrExpiredOrUnknownState  = errors.New("expired or unknown state")
	ErrAuthorizationDenied    = errors.New("authorization denied")
	ErrTokenExchange          = errors.New("token exchange failed")
	ErrIdentityVerification   = errors.New("id token verification failed")
	ErrInvalidRedirectURI     = errors.New("invalid redirect URI")
	ErrInvalidCodeChallenge   = errors.New("invalid code challenge")
	ErrPatientContextMismatch = errors.New("patient does not match the authorized patient context")

	// Evaluation errors
	ErrNoDataForCriterion         = errors.New("no data for criterion")
	ErrTerminologySetUnresolvable = errors.New("terminology set unresolvable")
	ErrUnsupportedUnit            = errors.New("unsupported unit")
	ErrInsufficientDemographics   = errors.New("insufficient demographics")
	ErrInvalidBundle              = errors.New("invalid bundle")
	ErrUnknownFactor              = errors.New("unknown tradeoff factor")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")

	// General errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrNotFound             = errors.New("not found")
	ErrInternal             = errors.New("internal error")
)

// Reason classifies a failure so a user can be told what to do next.
type Reason string

const (
	ReasonUnsupportedHost       Reason = "unsupported-host"
	ReasonConfigurationMismatch Reason = "configuration-mismatch"
	ReasonTransientNetwork      Reason = "transient-network"
	ReasonStateRejected         Reason = "state-rejected"
	ReasonAccessDenied          Reason = "access-denied"
	ReasonInvalidRequest        Reason = "invalid-request"
)

var remediation = map[Reason]string{
	ReasonUnsupportedHost:       "The host does not support this launch flow. Ask the EHR administrator whether SMART App Launch is enabled for this server.",
	ReasonConfigurationMismatch: "The app registration does not match the host. Check the client id, redirect URI and requested scopes.",
	ReasonTransientNetwork:      "The host could not be reached. Try launching the app again.",
	ReasonStateRejected:         "The sign-in attempt expired or was already used. Start the launch again from the EHR.",
	ReasonAccessDenied:          "Access was not granted. Launch again and approve the requested permissions.",
	ReasonInvalidRequest:        "The launch request was incomplete. Launch the app from the EHR or provide an iss parameter.",
}

// Remediation returns a human readable hint for the reason.
func (r Reason) Remediation() string {
	if hint, ok := remediation[r]; ok {
		return hint
	}
	return "An unexpected error occurred."
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is a pass-through to the standard library so callers only import one errors package.
func New(text string) error {
	return errors.New(text)
}
