// Package attemptrepo stores in-flight authorization attempts between the launch redirect and the callback.
package attemptrepo

import (
	"time"
)

// Attempt is the state needed to complete one authorization round trip.
type Attempt struct {
	State                 string
	CodeVerifier          string
	Issuer                string
	LaunchToken           string
	Scope                 string
	AuthorizationEndpoint string
	TokenEndpoint         string
	JWKSURI               string
	CreatedAt             time.Time
	ExpiresAt             time.Time
}

// Expired reports whether the attempt can no longer be completed.
func (a *Attempt) Expired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

type Repo interface {
	// Create stores the attempt under a newly generated state value and returns it.
	Create(attempt *Attempt) (string, error)
	// Consume returns the attempt and removes it in one step. A state can be consumed at most once.
	Consume(state string) (*Attempt, error)
	Delete(state string) error
	DeleteExpired(now time.Time) int
}
