package config

import "time"

const maxAttemptTTL = 10 * time.Minute

type SecurityConfig interface {
	GetAuthAttemptTTL() time.Duration
	GetSweepInterval() time.Duration
	GetMaxSessionAge() time.Duration
	GetEnableRateLimiting() bool
	GetLaunchRateLimit() float64
	GetLaunchRateBurst() int
	GetPostLoginURL() string
}

type Security struct {
	AuthAttemptTTL  time.Duration `env:"AUTH_ATTEMPT_TTL" envDefault:"10m"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	MaxSessionAge   time.Duration `env:"SESSION_MAX_AGE" envDefault:"1h"`
	LaunchRateLimit float64       `env:"LAUNCH_RATE_LIMIT" envDefault:"5"`
	LaunchRateBurst int           `env:"LAUNCH_RATE_BURST" envDefault:"10"`
	PostLoginURL    string        `env:"POST_LOGIN_URL" envDefault:"/api/session"`
}

var _ SecurityConfig = Security{}

// GetAuthAttemptTTL never exceeds ten minutes.
func (s Security) GetAuthAttemptTTL() time.Duration {
	if s.AuthAttemptTTL <= 0 || s.AuthAttemptTTL > maxAttemptTTL {
		return maxAttemptTTL
	}
	return s.AuthAttemptTTL
}

func (s Security) GetSweepInterval() time.Duration {
	if s.SweepInterval <= 0 {
		return time.Minute
	}
	return s.SweepInterval
}

func (s Security) GetMaxSessionAge() time.Duration {
	if s.MaxSessionAge <= 0 {
		return time.Hour
	}
	return s.MaxSessionAge
}

func (s Security) GetEnableRateLimiting() bool {
	return s.LaunchRateLimit > 0
}

func (s Security) GetLaunchRateLimit() float64 {
	return s.LaunchRateLimit
}

func (s Security) GetLaunchRateBurst() int {
	return max(s.LaunchRateBurst, 1)
}

func (s Security) GetPostLoginURL() string {
	if s.PostLoginURL == "" {
		return "/api/session"
	}
	return s.PostLoginURL
}
