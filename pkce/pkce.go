// Package pkce generates Proof Key for Code Exchange verifier/challenge pairs (RFC 7636, S256 only).
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	// MethodS256 is the only challenge method this client sends.
	MethodS256 = "S256"

	verifierBytes = 32
)

// Pair is a verifier and the challenge derived from it.
type Pair struct {
	Verifier  string
	Challenge string
	Method    string
}

// Generate returns a fresh pair. The verifier is 32 bytes from the system CSPRNG, base64url without padding.
func Generate() (Pair, error) {
	b := make([]byte, verifierBytes)
	if _, err := rand.Read(b); err != nil {
		return Pair{}, fmt.Errorf("[pkce Generate] reading random bytes: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(b)
	return Pair{
		Verifier:  verifier,
		Challenge: Challenge(verifier),
		Method:    MethodS256,
	}, nil
}

// Challenge is base64url(SHA256(verifier)) without padding.
func Challenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}
