package server

import (
	"encoding/json"
	"net/http"
)

const maxWhatIfBytes = 64 << 10

// WhatIfRequest toggles predictors by id.
type WhatIfRequest struct {
	Factors map[string]bool `json:"factors"`
}

// PredictorResponse describes one predictor a client can toggle.
type PredictorResponse struct {
	ID           string             `json:"id"`
	Description  string             `json:"description"`
	HazardRatios map[string]float64 `json:"hazardRatios"`
}

// TradeoffHandler weighs bleeding against thrombotic risk for the posted FHIR Bundle.
func (s *Server) TradeoffHandler() http.HandlerFunc {
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

		analysis, err := s.assessments.Tradeoff(r.Context(), &session, bundle)
		if err != nil {
			writeAssessmentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, analysis)
	}
}

func (s *Server) TradeoffPredictorsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		predictors := s.assessments.TradeoffCalculator().Predictors()
		out := make([]PredictorResponse, 0, len(predictors))
		for _, p := range predictors {
			hrs := make(map[string]float64, len(p.HazardRatios))
			for event, hr := range p.HazardRatios {
				hrs[string(event)] = hr
			}
			out = append(out, PredictorResponse{ID: p.ID, Description: p.Description, HazardRatios: hrs})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// TradeoffWhatIfHandler combines the hazard ratios of the predictors switched on in the request.
func (s *Server) TradeoffWhatIfHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req WhatIfRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWhatIfBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "The body must be a JSON object with a factors map.")
			return
		}

		analysis, err := s.assessments.TradeoffCalculator().WhatIf(req.Factors)
		if err != nil {
			writeAssessmentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, analysis)
	}
}
