package server

import (
	"net/http"

	"github.com/jrsteele09/hbr-risk/fhir"
	apperrors "github.com/jrsteele09/hbr-risk/internal/errors"
	"github.com/rs/zerolog/log"
)

const maxBundleBytes = 16 << 20

// AssessmentHandler scores the posted FHIR Bundle with the resource types the session may read.
func (s *Server) AssessmentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := sessionFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "session_required", "Launch the app to start a session.")
			return
		}

		bundle, ok := readBundle(w, r)
		if !ok {
			return
		}

		result, err := s.assessments.Assess(r.Context(), &session, bundle)
		if err != nil {
			writeAssessmentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// readBundle decodes the request body, answering the request itself when that fails.
func readBundle(w http.ResponseWriter, r *http.Request) (*fhir.Bundle, bool) {
	bundle, err := fhir.DecodeBundle(http.MaxBytesReader(w, r.Body, maxBundleBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if apperrors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "bundle_too_large", "The bundle exceeds the size limit.")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "invalid_bundle", err.Error())
		return nil, false
	}
	return bundle, true
}

func writeAssessmentError(w http.ResponseWriter, err error) {
	switch {
	case apperrors.Is(err, apperrors.ErrInvalidBundle):
		writeError(w, http.StatusBadRequest, "invalid_bundle", err.Error())
	case apperrors.Is(err, apperrors.ErrPatientContextMismatch):
		writeError(w, http.StatusForbidden, "patient_mismatch", "The bundle is not about the patient this session was launched for.")
	case apperrors.Is(err, apperrors.ErrSessionExpired), apperrors.Is(err, apperrors.ErrSessionNotFound):
		writeError(w, http.StatusUnauthorized, "session_expired", "The session expired. Launch the app again.")
	case apperrors.Is(err, apperrors.ErrUnknownFactor):
		writeError(w, http.StatusBadRequest, "unknown_factor", err.Error())
	default:
		log.Err(err).Msg("assessment failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "The assessment could not be completed.")
	}
}
