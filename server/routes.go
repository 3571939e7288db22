package server

import (
	"net/http"
)

func (s *Server) initRoutes() {
	// SMART launch flow
	s.RegisterRouteHandler("GET "+RouteLaunch, ChainMiddleware(s.LaunchHandler(), s.BrowserMiddleware(s.RateLimitMiddleware)...))
	s.RegisterRouteHandler("GET "+RouteCallback, ChainMiddleware(s.CallbackHandler(), s.BrowserMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.BrowserMiddleware()...))

	// API routes (require an authenticated FHIR session)
	s.RegisterRouteHandler("GET "+RouteAPISession, ChainMiddleware(s.SessionHandler(), s.APIMiddleware(s.RequireSession)...))
	s.RegisterRouteHandler("POST "+RouteAPIAssessments, ChainMiddleware(s.AssessmentHandler(), s.APIMiddleware(s.RequireSession)...))
	if s.assessments.TradeoffCalculator() != nil {
		s.RegisterRouteHandler("POST "+RouteAPITradeoff, ChainMiddleware(s.TradeoffHandler(), s.APIMiddleware(s.RequireSession)...))
		s.RegisterRouteHandler("GET "+RouteAPITradeoffPredictors, ChainMiddleware(s.TradeoffPredictorsHandler(), s.APIMiddleware(s.RequireSession)...))
		s.RegisterRouteHandler("POST "+RouteAPITradeoffWhatIf, ChainMiddleware(s.TradeoffWhatIfHandler(), s.APIMiddleware(s.RequireSession)...))
	}
	s.RegisterRouteHandler("OPTIONS /api/", ChainMiddleware(preflightHandler, s.APIMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.RecoverMiddleware))
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// CORS headers are written by the middleware; the preflight itself has no body.
func preflightHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
