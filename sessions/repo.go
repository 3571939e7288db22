package sessions

import "time"

type Repo interface {
	Upsert(sessionID string, session FhirSession) error
	Get(sessionID string) (FhirSession, error)
	Delete(sessionID string) error
	DeleteExpired(now time.Time) int
}
