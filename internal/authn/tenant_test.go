package authn

import (
	"testing"

	"github.com/go-jose/go-jose/v4"
)

func TestTenantAuthenticator_StaticAPIKey(t *testing.T) {
	auth := NewTenantAuthenticator(map[string]string{"tenant-a": "secret-key"}, nil, true, false)

	ctx, err := auth.Authenticate("tenant-a", "tenant-a", "user-1", "secret-key", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx.TenantID != "tenant-a" || ctx.CustomerUserID != "user-1" {
		t.Errorf("unexpected context: %+v", ctx)
	}
}

func TestTenantAuthenticator_WrongAPIKeyFallsThroughToJWT(t *testing.T) {
	secret := []byte("a-very-secret-key-value-32bytes")
	bearer, err := NewBearerVerifier(BearerConfig{Algorithm: jose.HS256, SharedSecret: secret})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	auth := NewTenantAuthenticator(map[string]string{"tenant-a": "secret-key"}, bearer, true, false)

	token := signSharedSecret(t, secret, map[string]any{"sub": "user-1", "tenant_id": "tenant-a"})
	ctx, err := auth.Authenticate("tenant-a", "tenant-a", "user-1", "wrong-key", "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx.CustomerUserID != "user-1" {
		t.Errorf("expected JWT subject to populate context, got %+v", ctx)
	}
}

func TestTenantAuthenticator_PathTenantMismatchIsForbidden(t *testing.T) {
	auth := NewTenantAuthenticator(map[string]string{"tenant-a": "secret-key"}, nil, true, false)
	if _, err := auth.Authenticate("tenant-b", "tenant-a", "user-1", "secret-key", ""); err == nil {
		t.Error("expected path/header tenant mismatch to be rejected")
	}
}

func TestTenantAuthenticator_MissingHeadersRejected(t *testing.T) {
	auth := NewTenantAuthenticator(nil, nil, true, false)
	if _, err := auth.Authenticate("tenant-a", "", "user-1", "", ""); err == nil {
		t.Error("expected missing X-Tenant-Id to be rejected")
	}
}

func TestTenantAuthenticator_UnconfiguredDevModePassesThrough(t *testing.T) {
	auth := NewTenantAuthenticator(nil, nil, false, false)
	ctx, err := auth.Authenticate("tenant-a", "tenant-a", "user-1", "", "")
	if err != nil {
		t.Fatalf("unexpected error in dev mode: %v", err)
	}
	if ctx.TenantID != "tenant-a" {
		t.Errorf("unexpected context: %+v", ctx)
	}
}

func TestTenantAuthenticator_UnconfiguredProdModeRejected(t *testing.T) {
	auth := NewTenantAuthenticator(nil, nil, false, true)
	if _, err := auth.Authenticate("tenant-a", "tenant-a", "user-1", "", ""); err == nil {
		t.Error("expected unconfigured auth in production to be rejected")
	}
}

func TestTenantAuthenticator_JWTSubjectMismatchIsForbidden(t *testing.T) {
	secret := []byte("a-very-secret-key-value-32bytes")
	bearer, err := NewBearerVerifier(BearerConfig{Algorithm: jose.HS256, SharedSecret: secret})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	auth := NewTenantAuthenticator(nil, bearer, true, false)

	token := signSharedSecret(t, secret, map[string]any{"sub": "other-user", "tenant_id": "tenant-a"})
	if _, err := auth.Authenticate("tenant-a", "tenant-a", "user-1", "", "Bearer "+token); err == nil {
		t.Error("expected X-Customer-User-Id mismatch against token subject to be rejected")
	}
}
