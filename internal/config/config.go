package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config interface {
	EnvConfig
	CorsConfig
	SmartConfig
	SecurityConfig
	CriteriaConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type SmartConfig interface {
	GetClientID() string
	GetClientSecret() string
	GetRedirectURI() string
	GetScopes() string
	GetTokenClient() string
	GetDiscoveryTimeout() time.Duration
	GetTokenTimeout() time.Duration
	GetDiscoveryRetries() int
}

type CriteriaConfig interface {
	GetRulesFile() string
	GetTerminologyDir() string
	GetTradeoffFile() string
}

type mainConfig struct {
	EnvVars
	Cors
	Smart
	Security
	Criteria
}

// New reads the process environment. Missing required variables are reported together.
func New() (Config, error) {
	c := mainConfig{}
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("[config New] %w", err)
	}
	if err := c.Smart.validate(); err != nil {
		return nil, fmt.Errorf("[config New] %w", err)
	}
	return c, nil
}
