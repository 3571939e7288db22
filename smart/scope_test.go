package smart_test

import (
	"testing"

	"github.com/jrsteele09/hbr-risk/smart"
	"github.com/stretchr/testify/require"
)

func TestLaunchScope(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		hostLaunch bool
		want       string
	}{
		{"host launch keeps launch", "launch openid patient/*.read", true, "launch openid patient/*.read"},
		{"host launch adds missing launch", "openid patient/*.read", true, "launch openid patient/*.read"},
		{"standalone removes launch", "launch openid patient/*.read", false, "openid patient/*.read"},
		{"standalone keeps launch/patient", "launch launch/patient openid", false, "launch/patient openid"},
		{"extra whitespace collapsed", "  openid   launch ", false, "openid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, smart.LaunchScope(tt.configured, tt.hostLaunch))
		})
	}
}

func TestRequestsPatientContext(t *testing.T) {
	require.True(t, smart.RequestsPatientContext("openid launch"))
	require.True(t, smart.RequestsPatientContext("launch/patient patient/*.read"))
	require.False(t, smart.RequestsPatientContext("openid user/*.read launchpad"))
}

func TestGrantedScopes(t *testing.T) {
	require.Equal(t, []string{"patient/Observation.read"}, smart.GrantedScopes("patient/Observation.read", "launch patient/*.read"))
	require.Equal(t, []string{"launch", "patient/*.read"}, smart.GrantedScopes(" ", "launch patient/*.read"))
}
