package authn

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// BearerConfig configures JWT verification. Exactly one of the JWKS
// fields or SharedSecret is expected to be set; if both are, JWKS takes
// precedence.
type BearerConfig struct {
	Algorithm    jose.SignatureAlgorithm
	SharedSecret []byte
	JWKSURL      string
	Issuer       string
	Audience     string
	JWKSCacheTTL time.Duration
}

// JWKSEnabled reports whether JWKS-based verification is configured.
func (c BearerConfig) JWKSEnabled() bool {
	return strings.TrimSpace(c.JWKSURL) != "" || strings.TrimSpace(c.Issuer) != "" || strings.TrimSpace(c.Audience) != ""
}

// BearerVerifier verifies bearer JWTs using either a shared HMAC secret
// or a JWKS-published asymmetric key, selected by configuration. Both
// paths use go-jose for parsing and signature verification.
type BearerVerifier struct {
	cfg  BearerConfig
	jwks *JWKSCache
}

// NewBearerVerifier creates a verifier. If cfg is JWKS-enabled, a JWKS
// cache with the configured TTL is created internally.
func NewBearerVerifier(cfg BearerConfig) (*BearerVerifier, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = jose.HS256
	}
	v := &BearerVerifier{cfg: cfg}
	if cfg.JWKSEnabled() {
		if strings.TrimSpace(cfg.JWKSURL) == "" || strings.TrimSpace(cfg.Issuer) == "" || strings.TrimSpace(cfg.Audience) == "" {
			return nil, fmt.Errorf("JWKS_URL, JWT issuer, and JWT audience must all be configured for JWKS auth")
		}
		v.jwks = NewJWKSCache(cfg.JWKSCacheTTL)
	}
	return v, nil
}

// Verify parses and verifies authorization as a bearer JWT, returning its
// claims on success.
func (v *BearerVerifier) Verify(authorization string) (map[string]any, error) {
	token, err := extractBearerToken(authorization)
	if err != nil {
		return nil, err
	}

	if v.jwks != nil {
		return v.verifyWithJWKS(token)
	}
	if len(v.cfg.SharedSecret) > 0 {
		return v.verifyWithSharedSecret(token)
	}
	return nil, fmt.Errorf("%w: JWT auth is not configured", ErrUnauthorized)
}

func (v *BearerVerifier) verifyWithSharedSecret(token string) (map[string]any, error) {
	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{v.cfg.Algorithm})
	if err != nil {
		return nil, fmt.Errorf("%w: parsing token: %v", ErrUnauthorized, err)
	}

	var registered jwt.Claims
	var custom map[string]any
	if err := parsed.Claims(v.cfg.SharedSecret, &registered, &custom); err != nil {
		return nil, fmt.Errorf("%w: verifying token: %v", ErrUnauthorized, err)
	}
	if err := registered.Validate(jwt.Expected{Time: time.Now()}); err != nil {
		return nil, fmt.Errorf("%w: validating claims: %v", ErrUnauthorized, err)
	}
	return custom, nil
}

func (v *BearerVerifier) verifyWithJWKS(token string) (map[string]any, error) {
	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{v.cfg.Algorithm})
	if err != nil {
		return nil, fmt.Errorf("%w: parsing token: %v", ErrUnauthorized, err)
	}

	headers := parsed.Headers
	if len(headers) == 0 || strings.TrimSpace(headers[0].KeyID) == "" {
		return nil, fmt.Errorf("%w: token header is missing a key id", ErrUnauthorized)
	}
	kid := headers[0].KeyID

	key, err := v.jwks.Get(v.cfg.JWKSURL, kid)
	if err != nil {
		return nil, err
	}

	var registered jwt.Claims
	var custom map[string]any
	if err := parsed.Claims(key, &registered, &custom); err != nil {
		return nil, fmt.Errorf("%w: verifying token: %v", ErrUnauthorized, err)
	}
	if err := registered.Validate(jwt.Expected{
		Issuer:      v.cfg.Issuer,
		AnyAudience: jwt.Audience{v.cfg.Audience},
		Time:        time.Now(),
	}); err != nil {
		return nil, fmt.Errorf("%w: validating claims: %v", ErrUnauthorized, err)
	}
	return custom, nil
}
