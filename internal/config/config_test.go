package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/hbr-risk/internal/config"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SMART_CLIENT_ID", " hbr-app ")
	t.Setenv("SMART_REDIRECT_URI", "https://app.example.org/callback#ignored")
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		setRequired(t)

		c, err := config.New()
		require.NoError(t, err)
		require.Equal(t, ":8080", c.GetPort())
		require.Equal(t, "hbr-app", c.GetClientID())
		require.Equal(t, "https://app.example.org/callback", c.GetRedirectURI())
		require.Equal(t, config.DefaultScopes, c.GetScopes())
		require.Equal(t, config.TokenClientOAuth2, c.GetTokenClient())
		require.Equal(t, 15*time.Second, c.GetDiscoveryTimeout())
		require.Equal(t, 1, c.GetDiscoveryRetries())
		require.Equal(t, 10*time.Minute, c.GetAuthAttemptTTL())
		require.True(t, c.GetEnableRateLimiting())
		require.Equal(t, "configs/precise_hbr.yaml", c.GetRulesFile())
		require.Equal(t, "configs/tradeoff.yaml", c.GetTradeoffFile())
	})

	t.Run("missing client id", func(t *testing.T) {
		t.Setenv("SMART_CLIENT_ID", "")
		t.Setenv("SMART_REDIRECT_URI", "https://app.example.org/callback")

		_, err := config.New()
		require.Error(t, err)
	})

	t.Run("unknown token client", func(t *testing.T) {
		setRequired(t)
		t.Setenv("SMART_TOKEN_CLIENT", "carrier-pigeon")

		_, err := config.New()
		require.Error(t, err)
	})

	t.Run("bounds are enforced", func(t *testing.T) {
		setRequired(t)
		t.Setenv("DISCOVERY_TIMEOUT", "2m")
		t.Setenv("TOKEN_TIMEOUT", "1s")
		t.Setenv("DISCOVERY_RETRIES", "5")
		t.Setenv("AUTH_ATTEMPT_TTL", "1h")
		t.Setenv("PORT", ":9000")

		c, err := config.New()
		require.NoError(t, err)
		require.Equal(t, 30*time.Second, c.GetDiscoveryTimeout())
		require.Equal(t, 10*time.Second, c.GetTokenTimeout())
		require.Equal(t, 1, c.GetDiscoveryRetries())
		require.Equal(t, 10*time.Minute, c.GetAuthAttemptTTL())
		require.Equal(t, ":9000", c.GetPort())
	})

	t.Run("cors origins", func(t *testing.T) {
		setRequired(t)
		t.Setenv("CORS_ORIGINS", "https://ehr.example.org, https://portal.example.org")

		c, err := config.New()
		require.NoError(t, err)
		require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("https://portal.example.org"))
		require.False(t, c.GetAllowedOrigins().IsAllowedOrigin("https://evil.example.org"))
	})
}
