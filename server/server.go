package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/hbr-risk/assessment"
	"github.com/jrsteele09/hbr-risk/internal/config"
	"github.com/jrsteele09/hbr-risk/sessions"
	"github.com/jrsteele09/hbr-risk/smart"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Deps are the collaborators the HTTP surface drives.
type Deps struct {
	Controller  *smart.Controller
	Assessments *assessment.Service
	Sessions    sessions.Repo
}

type Server struct {
	env           string // Environment (e.g., "DEV", "PROD")
	mux           *http.ServeMux
	routes        []string
	config        config.Config
	controller    *smart.Controller
	assessments   *assessment.Service
	fhirSessions  sessions.Repo
	launchLimiter *rate.Limiter
	nowTime       func() time.Time
}

type ServerOption func(*Server)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServerOption {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

func New(config config.Config, deps Deps, options ...ServerOption) (*Server, error) {
	if deps.Controller == nil {
		return nil, fmt.Errorf("[Server New] launch controller is required")
	}
	if deps.Assessments == nil {
		return nil, fmt.Errorf("[Server New] assessment service is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("[Server New] session repo is required")
	}

	s := &Server{
		env:          config.GetEnv(),
		mux:          http.NewServeMux(),
		config:       config,
		controller:   deps.Controller,
		assessments:  deps.Assessments,
		fhirSessions: deps.Sessions,
		nowTime:      time.Now,
	}
	if config.GetEnableRateLimiting() {
		s.launchLimiter = rate.NewLimiter(rate.Limit(config.GetLaunchRateLimit()), config.GetLaunchRateBurst())
	}
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		method, path, found := strings.Cut(route, " ")
		if !found {
			method, path = "", route
		}
		log.Debug().Msg(coloredRoute(method, path))
	}
}

func coloredRoute(method, path string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	return fmt.Sprintf("[%-19s] %s", color+paddedMethod+ResetColor, path)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
