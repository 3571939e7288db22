package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/hbr-risk/oauthmodel"
	"github.com/jrsteele09/hbr-risk/smart"
	"github.com/rs/zerolog/log"
)

// SessionResponse describes the current FhirSession. The access token is never returned.
type SessionResponse struct {
	ServerURL   string    `json:"serverUrl"`
	PatientID   string    `json:"patient,omitempty"`
	EncounterID string    `json:"encounter,omitempty"`
	FhirUser    string    `json:"fhirUser,omitempty"`
	Scopes      []string  `json:"scopes"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// LaunchHandler starts a host (iss + launch) or standalone (iss only) launch and redirects to the
// host's authorization endpoint.
func (s *Server) LaunchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		result, err := s.controller.Launch(r.Context(), smart.LaunchRequest{
			Issuer:      query.Get("iss"),
			LaunchToken: query.Get("launch"),
		})
		if err != nil {
			writeFlowError(w, err)
			return
		}
		http.Redirect(w, r, result.RedirectURL, http.StatusFound)
	}
}

// CallbackHandler completes the launch, stores the FhirSession and hands the browser a session cookie.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		session, err := s.controller.Callback(r.Context(), oauthmodel.CallbackParams{
			Code:             query.Get("code"),
			State:            query.Get("state"),
			Error:            query.Get("error"),
			ErrorDescription: query.Get("error_description"),
		})
		if err != nil {
			writeFlowError(w, err)
			return
		}

		// A new id on every login; whatever session the browser held before is dropped.
		if previous := sessionIDFromRequest(r); previous != "" {
			if err := s.fhirSessions.Delete(previous); err != nil {
				log.Err(err).Msg("Callback: failed to delete previous session")
			}
		}

		now := s.nowTime()
		session.ExpiresAt = s.sessionExpiry(session.ExpiresAt, now)
		sessionID := uuid.NewString()
		if err := s.fhirSessions.Upsert(sessionID, *session); err != nil {
			log.Err(err).Msg("Callback: failed to store session")
			writeError(w, http.StatusInternalServerError, "internal_error", "The session could not be stored. Launch the app again.")
			return
		}

		s.SetSessionCookie(w, sessionID, r, int(session.ExpiresAt.Sub(now).Seconds()))
		redirectSuccess(w, r, s.config.GetPostLoginURL())
	}
}

func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := sessionFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "session_required", "Launch the app to start a session.")
			return
		}
		writeJSON(w, http.StatusOK, SessionResponse{
			ServerURL:   session.ServerURL,
			PatientID:   session.PatientID,
			EncounterID: session.EncounterID,
			FhirUser:    session.FhirUser,
			Scopes:      session.Scopes,
			ExpiresAt:   session.ExpiresAt,
		})
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessionID := sessionIDFromRequest(r); sessionID != "" {
			if err := s.fhirSessions.Delete(sessionID); err != nil {
				log.Err(err).Msg("Logout: failed to delete session")
			}
		}
		s.ClearSessionCookie(w, r)
		w.WriteHeader(http.StatusNoContent)
	}
}
