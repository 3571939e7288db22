package server

// Route path constants
const (
	// SMART launch flow
	RouteLaunch   = "/launch"
	RouteCallback = "/callback"
	RouteLogout   = "/logout"

	// API Routes
	RouteAPISession            = "/api/session"
	RouteAPIAssessments        = "/api/assessments"
	RouteAPITradeoff           = "/api/tradeoff"
	RouteAPITradeoffPredictors = "/api/tradeoff/predictors"
	RouteAPITradeoffWhatIf     = "/api/tradeoff/what-if"

	RouteHealth = "/health"
)
