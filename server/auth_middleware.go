package server

import (
	"context"
	"net/http"

	apperrors "github.com/jrsteele09/hbr-risk/internal/errors"
	"github.com/jrsteele09/hbr-risk/sessions"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeySession stores the authenticated FhirSession
	ContextKeySession ContextKey = "fhir_session"
)

// RequireSession rejects requests without a live FhirSession and puts the session on the context.
func (s *Server) RequireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := sessionIDFromRequest(r)
		if sessionID == "" {
			writeError(w, http.StatusUnauthorized, "session_required", "Launch the app to start a session.")
			return
		}

		session, err := s.fhirSessions.Get(sessionID)
		if err != nil {
			if !apperrors.Is(err, apperrors.ErrSessionNotFound) {
				log.Err(err).Msg("RequireSession: session lookup failed")
			}
			s.ClearSessionCookie(w, r)
			writeError(w, http.StatusUnauthorized, "session_required", "Launch the app to start a session.")
			return
		}

		if session.Expired(s.nowTime()) {
			if err := s.fhirSessions.Delete(sessionID); err != nil {
				log.Err(err).Msg("RequireSession: failed to delete expired session")
			}
			s.ClearSessionCookie(w, r)
			writeError(w, http.StatusUnauthorized, "session_expired", "The session expired. Launch the app again.")
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeySession, session)
		next(w, r.WithContext(ctx))
	}
}

func sessionFromContext(ctx context.Context) (sessions.FhirSession, bool) {
	session, ok := ctx.Value(ContextKeySession).(sessions.FhirSession)
	return session, ok
}
