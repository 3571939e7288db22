package smart

import (
	"slices"
	"strings"
)

const (
	scopeLaunch        = "launch"
	scopeLaunchPatient = "launch/patient"
)

// LaunchScope adjusts the configured scope for the launch kind. A host launch always carries the bare
// "launch" scope; a standalone launch never does, since there is no host context to bind to.
func LaunchScope(configured string, hostLaunch bool) string {
	scopes := strings.Fields(configured)
	if hostLaunch {
		if !slices.Contains(scopes, scopeLaunch) {
			scopes = append([]string{scopeLaunch}, scopes...)
		}
		return strings.Join(scopes, " ")
	}
	scopes = slices.DeleteFunc(scopes, func(s string) bool { return s == scopeLaunch })
	return strings.Join(scopes, " ")
}

// RequestsPatientContext reports whether the scope asks the host for a patient in context.
func RequestsPatientContext(scope string) bool {
	return slices.ContainsFunc(strings.Fields(scope), func(s string) bool {
		return s == scopeLaunch || s == scopeLaunchPatient
	})
}

// GrantedScopes prefers the scope the token endpoint reported and falls back to what was requested.
func GrantedScopes(granted, requested string) []string {
	if s := strings.Fields(granted); len(s) > 0 {
		return s
	}
	return strings.Fields(requested)
}
