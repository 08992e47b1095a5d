package pkce

import (
	"strings"
	"testing"
)

func TestGenerateVerifier_Entropy(t *testing.T) {
	first, err := GenerateVerifier()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	second, err := GenerateVerifier()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct verifiers, got %q twice", first)
	}
	// 32 bytes -> 43 chars of unpadded base64url.
	if len(first) != 43 {
		t.Fatalf("expected 43-char verifier, got %d", len(first))
	}
	if strings.ContainsAny(first, "+/=") {
		t.Fatalf("expected url-safe unpadded encoding, got %q", first)
	}
}

func TestDeriveChallenge_Deterministic(t *testing.T) {
	verifier, err := GenerateVerifier()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	first := DeriveChallenge(verifier)
	second := DeriveChallenge(verifier)
	if first != second {
		t.Fatalf("expected stable challenge, got %q and %q", first, second)
	}
	if first == verifier {
		t.Fatal("expected challenge to differ from verifier")
	}
	if strings.ContainsAny(first, "+/=") {
		t.Fatalf("expected url-safe unpadded encoding, got %q", first)
	}
}

func TestDeriveChallenge_KnownVector(t *testing.T) {
	// Appendix B of RFC 7636.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	if got := DeriveChallenge(verifier); got != want {
		t.Fatalf("expected challenge %q, got %q", want, got)
	}
}
