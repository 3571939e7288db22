package smart_test

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testClientID     = "hbr-app"
	testClientSecret = "hbr-secret"
	testRedirectURI  = "https://app.example.org/callback"
	testLaunchToken  = "launch-token-123"
	testPatientID    = "patient-42"
	testAccessToken  = "access-token-abc"
	testKeyID        = "test-key-1"
	testFhirUser     = "Practitioner/77"
)

// fakeHost impersonates a SMART enabled FHIR server with an authorization server attached.
type fakeHost struct {
	server *httptest.Server
	key    *rsa.PrivateKey

	mu             sync.Mutex
	wellKnown      http.HandlerFunc
	metadata       http.HandlerFunc
	token          http.HandlerFunc
	lastTokenForm  url.Values
	lastBasicUser  string
	lastBasicPass  string
	wellKnownCalls atomic.Int32
	metadataCalls  atomic.Int32
	tokenCalls     atomic.Int32
}

func newFakeHost(t *testing.T) *fakeHost {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	h := &fakeHost{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /fhir/.well-known/smart-configuration", func(w http.ResponseWriter, r *http.Request) {
		h.wellKnownCalls.Add(1)
		h.handler(func() http.HandlerFunc { return h.wellKnown })(w, r)
	})
	mux.HandleFunc("GET /fhir/metadata", func(w http.ResponseWriter, r *http.Request) {
		h.metadataCalls.Add(1)
		h.handler(func() http.HandlerFunc { return h.metadata })(w, r)
	})
	mux.HandleFunc("POST /auth/token", func(w http.ResponseWriter, r *http.Request) {
		h.tokenCalls.Add(1)
		_ = r.ParseForm()
		user, pass, _ := r.BasicAuth()
		h.mu.Lock()
		h.lastTokenForm = r.PostForm
		h.lastBasicUser, h.lastBasicPass = user, pass
		h.mu.Unlock()
		h.handler(func() http.HandlerFunc { return h.token })(w, r)
	})
	mux.HandleFunc("GET /auth/jwks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, h.jwks())
	})
	h.server = httptest.NewServer(mux)
	t.Cleanup(h.server.Close)

	h.wellKnown = h.smartConfiguration(true)
	h.metadata = notFound
	h.token = h.tokenSuccess(map[string]any{"patient": testPatientID})
	return h
}

func (h *fakeHost) handler(get func() http.HandlerFunc) http.HandlerFunc {
	h.mu.Lock()
	fn := get()
	h.mu.Unlock()
	return fn
}

func (h *fakeHost) set(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn()
}

func (h *fakeHost) issuer() string            { return h.server.URL + "/fhir" }
func (h *fakeHost) authorizeEndpoint() string { return h.server.URL + "/auth/authorize" }
func (h *fakeHost) tokenEndpoint() string     { return h.server.URL + "/auth/token" }
func (h *fakeHost) jwksURI() string           { return h.server.URL + "/auth/jwks" }

func (h *fakeHost) tokenForm() url.Values {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastTokenForm
}

func (h *fakeHost) basicAuth() (string, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastBasicUser, h.lastBasicPass
}

func (h *fakeHost) smartConfiguration(withJWKS bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc := map[string]any{
			"authorization_endpoint": h.authorizeEndpoint(),
			"token_endpoint":         h.tokenEndpoint(),
			"capabilities":           []string{"launch-ehr", "launch-standalone", "client-public"},
		}
		if withJWKS {
			doc["jwks_uri"] = h.jwksURI()
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

func (h *fakeHost) capabilityStatement() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"resourceType": "CapabilityStatement",
			"rest": []any{map[string]any{
				"mode": "server",
				"security": map[string]any{
					"extension": []any{map[string]any{
						"url": "http://fhir-registry.smarthealthit.org/StructureDefinition/oauth-uris",
						"extension": []any{
							map[string]any{"url": "authorize", "valueUri": h.authorizeEndpoint()},
							map[string]any{"url": "token", "valueUri": h.tokenEndpoint()},
						},
					}},
				},
			}},
		})
	}
}

func (h *fakeHost) tokenSuccess(extra map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"access_token": testAccessToken,
			"token_type":   "Bearer",
			"expires_in":   3600,
			"scope":        "launch openid fhirUser patient/Observation.read patient/Condition.read",
			"id_token":     h.idToken(nil, testClientID),
		}
		for k, v := range extra {
			body[k] = v
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func tokenFailure(status int, code string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status, map[string]any{"error": code, "error_description": "rejected by test"})
	}
}

// idToken signs with signer, or the host key when signer is nil.
func (h *fakeHost) idToken(signer *rsa.PrivateKey, audience string) string {
	if signer == nil {
		signer = h.key
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":      h.server.URL + "/auth",
		"sub":      "user-1",
		"aud":      audience,
		"fhirUser": testFhirUser,
		"iat":      time.Now().Unix(),
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(signer)
	if err != nil {
		panic(err)
	}
	return signed
}

func (h *fakeHost) jwks() map[string]any {
	pub := h.key.PublicKey
	return map[string]any{"keys": []any{map[string]any{
		"kty": "RSA",
		"kid": testKeyID,
		"use": "sig",
		"alg": "RS256",
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}}
}

func notFound(w http.ResponseWriter, r *http.Request) {
	http.NotFound(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
