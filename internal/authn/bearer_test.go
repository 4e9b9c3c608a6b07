package authn

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

func signSharedSecret(t *testing.T, secret []byte, claims map[string]any) string {
	t.Helper()
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: secret}, nil)
	if err != nil {
		t.Fatalf("creating signer: %v", err)
	}

	registered := jwt.Claims{
		IssuedAt: jwt.NewNumericDate(time.Now()),
		Expiry:   jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.Signed(signer).Claims(registered).Claims(claims).Serialize()
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return token
}

func TestBearerVerifier_SharedSecretRoundTrip(t *testing.T) {
	secret := []byte("a-very-secret-key-value-32bytes")
	v, err := NewBearerVerifier(BearerConfig{Algorithm: jose.HS256, SharedSecret: secret})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	token := signSharedSecret(t, secret, map[string]any{"sub": "user-1", "tenant_id": "tenant-a"})
	claims, err := v.Verify("Bearer " + token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims["sub"] != "user-1" {
		t.Errorf("expected sub claim to round-trip, got %v", claims["sub"])
	}
}

func TestBearerVerifier_RejectsWrongSecret(t *testing.T) {
	v, err := NewBearerVerifier(BearerConfig{Algorithm: jose.HS256, SharedSecret: []byte("correct-secret-value-32-bytes!!")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	token := signSharedSecret(t, []byte("wrong-secret-value-needs-32-byt"), map[string]any{"sub": "user-1"})
	if _, err := v.Verify("Bearer " + token); err == nil {
		t.Error("expected verification with mismatched secret to fail")
	}
}

func TestBearerVerifier_RejectsMissingBearerPrefix(t *testing.T) {
	v, err := NewBearerVerifier(BearerConfig{Algorithm: jose.HS256, SharedSecret: []byte("correct-secret-value-32-bytes!!")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := v.Verify("token-without-prefix"); err == nil {
		t.Error("expected missing bearer prefix to be rejected")
	}
}

func TestBearerVerifier_JWKS(t *testing.T) {
	privateKey, jwk := generateTestRSAJWK(t, "kid-1")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(jwksPayload(t, jwk))
	}))
	defer server.Close()

	v, err := NewBearerVerifier(BearerConfig{
		Algorithm:    jose.RS256,
		JWKSURL:      server.URL,
		Issuer:       "https://issuer.example.com",
		Audience:     "agentctl",
		JWKSCacheTTL: time.Minute,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	token := signRSA(t, privateKey, "kid-1", map[string]any{"sub": "admin-1"})
	claims, err := v.Verify("Bearer " + token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims["sub"] != "admin-1" {
		t.Errorf("expected sub claim to round-trip, got %v", claims["sub"])
	}
}

func TestBearerVerifier_JWKSRejectsUnknownKeyID(t *testing.T) {
	privateKey, jwk := generateTestRSAJWK(t, "kid-1")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(jwksPayload(t, jwk))
	}))
	defer server.Close()

	v, err := NewBearerVerifier(BearerConfig{
		Algorithm:    jose.RS256,
		JWKSURL:      server.URL,
		Issuer:       "https://issuer.example.com",
		Audience:     "agentctl",
		JWKSCacheTTL: time.Minute,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	token := signRSA(t, privateKey, "unknown-kid", map[string]any{"sub": "admin-1"})
	if _, err := v.Verify("Bearer " + token); err == nil {
		t.Error("expected unknown key id to be rejected")
	}
}

func TestNewBearerVerifier_RequiresCompleteJWKSConfig(t *testing.T) {
	if _, err := NewBearerVerifier(BearerConfig{JWKSURL: "https://example.com/jwks"}); err == nil {
		t.Error("expected partial JWKS config (missing issuer/audience) to error")
	}
}
