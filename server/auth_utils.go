package server

import (
	"net/http"
	"time"
)

const (
	// sessionCookieName carries the FhirSession id; the access token itself never leaves the server.
	sessionCookieName = "hbr_session"
)

func (s *Server) SetSessionCookie(w http.ResponseWriter, sessionID string, r *http.Request, maxAge int) {
	isSecure := getScheme(r) == "https"

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func (s *Server) ClearSessionCookie(w http.ResponseWriter, r *http.Request) {
	s.SetSessionCookie(w, "", r, -1)
}

// sessionIDFromRequest returns the session cookie value, or "" when there is none.
func sessionIDFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// sessionExpiry caps the token lifetime reported by the host at the configured maximum session age.
func (s *Server) sessionExpiry(tokenExpiry, now time.Time) time.Time {
	limit := now.Add(s.config.GetMaxSessionAge())
	if tokenExpiry.IsZero() || tokenExpiry.After(limit) {
		return limit
	}
	return tokenExpiry
}

// redirectSuccess sends the browser on after a completed step; 303 turns any method into a GET.
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	http.Redirect(w, r, path, http.StatusSeeOther)
}
