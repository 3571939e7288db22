package server

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/jrsteele09/hbr-risk/internal/errors"
	"github.com/jrsteele09/hbr-risk/smart"
	"github.com/rs/zerolog/log"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Remediation string `json:"remediation,omitempty"`
	FailedIn    string `json:"failed_in,omitempty"`
}

var reasonStatus = map[apperrors.Reason]int{
	apperrors.ReasonInvalidRequest:        http.StatusBadRequest,
	apperrors.ReasonStateRejected:         http.StatusBadRequest,
	apperrors.ReasonAccessDenied:          http.StatusForbidden,
	apperrors.ReasonUnsupportedHost:       http.StatusBadGateway,
	apperrors.ReasonConfigurationMismatch: http.StatusBadGateway,
	apperrors.ReasonTransientNetwork:      http.StatusServiceUnavailable,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("writeJSON: failed to encode response")
	}
}

// writeError writes an OAuth2 style error response
func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, ErrorResponse{Error: code, Description: description})
}

// writeFlowError reports a failed launch with the reason and what the user can do about it.
// Anything that is not a FlowError is treated as an internal failure.
func writeFlowError(w http.ResponseWriter, err error) {
	var ferr *smart.FlowError
	if !apperrors.As(err, &ferr) {
		log.Err(err).Msg("launch flow failed unexpectedly")
		writeError(w, http.StatusInternalServerError, "internal_error", apperrors.Reason("").Remediation())
		return
	}

	status, ok := reasonStatus[ferr.Reason]
	if !ok {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, ErrorResponse{
		Error:       ferr.Kind.Error(),
		Description: ferr.Detail,
		Reason:      string(ferr.Reason),
		Remediation: ferr.Reason.Remediation(),
		FailedIn:    string(ferr.FailedIn),
	})
}
