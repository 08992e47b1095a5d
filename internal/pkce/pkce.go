// Package pkce implements the Proof Key for Code Exchange pair used
// to bind an authorization request to its token exchange (RFC 7636).
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// verifierBytes is the entropy of a generated verifier.
const verifierBytes = 32

// GenerateVerifier returns a random code verifier, URL-safe encoded
// without padding. The caller must hold it across the suspension
// point between the authorization request and the callback.
func GenerateVerifier() (string, error) {
	buf := make([]byte, verifierBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("pkce: read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// DeriveChallenge returns the S256 code challenge for a verifier.
func DeriveChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
