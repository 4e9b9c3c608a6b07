package authn

import "fmt"

// TenantAuthenticator verifies customer-facing tenant credentials: a
// static per-tenant API key checked first, then a bearer JWT whose
// tenant claim and subject must agree with the caller-supplied headers.
type TenantAuthenticator struct {
	apiKeys             map[string]string
	bearer              *BearerVerifier
	allowAPIKeyFallback bool
	appEnvIsProd        bool
}

// NewTenantAuthenticator creates an authenticator. apiKeys maps tenant id
// to its configured static key; bearer may be nil if JWT auth is not
// configured. allowAPIKeyFallback mirrors ALLOW_API_KEY_FALLBACK and
// appEnvIsProd mirrors APP_ENV being "prod"/"production".
func NewTenantAuthenticator(apiKeys map[string]string, bearer *BearerVerifier, allowAPIKeyFallback, appEnvIsProd bool) *TenantAuthenticator {
	return &TenantAuthenticator{
		apiKeys:             apiKeys,
		bearer:              bearer,
		allowAPIKeyFallback: allowAPIKeyFallback,
		appEnvIsProd:        appEnvIsProd,
	}
}

// Authenticate verifies the tenant-scoped request headers and returns the
// resulting caller identity.
func (a *TenantAuthenticator) Authenticate(pathTenantID, xTenantID, xCustomerUserID, xAPIKey, authorization string) (TenantContext, error) {
	if xTenantID == "" || xCustomerUserID == "" {
		return TenantContext{}, fmt.Errorf("%w: X-Tenant-Id and X-Customer-User-Id are required", ErrUnauthorized)
	}
	if pathTenantID != xTenantID {
		return TenantContext{}, fmt.Errorf("%w: path tenant_id does not match header tenant", ErrForbidden)
	}

	authConfigured := len(a.apiKeys) > 0 || a.bearer != nil
	if !authConfigured {
		if a.appEnvIsProd {
			return TenantContext{}, fmt.Errorf("tenant authentication is not configured")
		}
		return TenantContext{TenantID: xTenantID, CustomerUserID: xCustomerUserID}, nil
	}

	if a.validAPIKey(xTenantID, xAPIKey) {
		if !a.allowAPIKeyFallback && a.appEnvIsProd {
			return TenantContext{}, fmt.Errorf("%w: API key fallback is disabled in production", ErrUnauthorized)
		}
		return TenantContext{TenantID: xTenantID, CustomerUserID: xCustomerUserID}, nil
	}

	if subject, ok := a.validJWTSubject(xTenantID, authorization); ok {
		if subject != xCustomerUserID {
			return TenantContext{}, fmt.Errorf("%w: X-Customer-User-Id must match token subject", ErrForbidden)
		}
		return TenantContext{TenantID: xTenantID, CustomerUserID: subject}, nil
	}

	return TenantContext{}, fmt.Errorf("%w: unauthorized tenant credentials", ErrUnauthorized)
}

func (a *TenantAuthenticator) validAPIKey(tenantID, apiKey string) bool {
	expected, ok := a.apiKeys[tenantID]
	if !ok || expected == "" || apiKey == "" {
		return false
	}
	return constantTimeEqual(apiKey, expected)
}

func (a *TenantAuthenticator) validJWTSubject(tenantID, authorization string) (string, bool) {
	if a.bearer == nil {
		return "", false
	}
	claims, err := a.bearer.Verify(authorization)
	if err != nil {
		return "", false
	}

	claimTenant := stringClaim(claims, "tenant_id")
	if claimTenant == "" {
		claimTenant = stringClaim(claims, "tid")
	}
	if claimTenant != tenantID {
		return "", false
	}

	subject := stringClaim(claims, "oid")
	if subject == "" {
		subject = stringClaim(claims, "sub")
	}
	if subject == "" {
		subject = stringClaim(claims, "upn")
	}
	if subject == "" {
		return "", false
	}
	return subject, true
}

func stringClaim(claims map[string]any, key string) string {
	v, ok := claims[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
