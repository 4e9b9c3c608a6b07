package authn

import "fmt"

// AdminAuthenticator verifies platform-operator bearer JWTs and
// authorizes them against required roles, scopes, and tenant scope.
type AdminAuthenticator struct {
	bearer *BearerVerifier
}

// NewAdminAuthenticator creates an authenticator backed by bearer.
func NewAdminAuthenticator(bearer *BearerVerifier) *AdminAuthenticator {
	return &AdminAuthenticator{bearer: bearer}
}

// Authenticate verifies authorization and extracts the admin principal.
func (a *AdminAuthenticator) Authenticate(authorization string) (AdminPrincipal, error) {
	if a.bearer == nil {
		return AdminPrincipal{}, fmt.Errorf("admin authentication is not configured")
	}

	claims, err := a.bearer.Verify(authorization)
	if err != nil {
		return AdminPrincipal{}, err
	}

	subject := stringClaim(claims, "sub")
	if subject == "" {
		subject = stringClaim(claims, "oid")
	}
	if subject == "" {
		subject = stringClaim(claims, "upn")
	}
	if subject == "" {
		subject = "unknown"
	}

	roles := unionStringSets(stringSetClaim(claims, "roles"), stringSetClaim(claims, "role"))
	scopes := extractScopes(claims)
	tenantIDs := extractTenantIDs(claims)

	return AdminPrincipal{
		Subject:   subject,
		Roles:     roles,
		Scopes:    scopes,
		TenantIDs: tenantIDs,
	}, nil
}

// Authorize checks principal against the required role/scope union and,
// if tenantID is non-empty, the principal's tenant entitlement.
func Authorize(principal AdminPrincipal, requiredRoles, requiredScopes []string, tenantID string) error {
	if len(requiredRoles) > 0 || len(requiredScopes) > 0 {
		roleOK := len(requiredRoles) > 0 && intersects(principal.Roles, toSet(requiredRoles))
		scopeOK := len(requiredScopes) > 0 && intersects(principal.Scopes, toSet(requiredScopes))
		if !roleOK && !scopeOK {
			return fmt.Errorf("%w: admin principal lacks required role or scope", ErrForbidden)
		}
	}

	if tenantID != "" && !principal.CanAccessTenant(tenantID) {
		return fmt.Errorf("%w: admin principal is not authorized for this tenant", ErrForbidden)
	}

	return nil
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func stringSetClaim(claims map[string]any, key string) map[string]struct{} {
	v, ok := claims[key]
	if !ok {
		return nil
	}
	switch value := v.(type) {
	case string:
		return splitStringSet(value)
	case []any:
		set := make(map[string]struct{}, len(value))
		for _, item := range value {
			if s, ok := item.(string); ok && s != "" {
				set[s] = struct{}{}
			}
		}
		return set
	default:
		return nil
	}
}

func extractScopes(claims map[string]any) map[string]struct{} {
	return unionStringSets(stringSetClaim(claims, "scp"), stringSetClaim(claims, "scope"))
}

func extractTenantIDs(claims map[string]any) map[string]struct{} {
	tenantIDs := stringSetClaim(claims, "tenant_ids")
	if tenantIDs == nil {
		tenantIDs = make(map[string]struct{})
	}
	direct := stringClaim(claims, "tenant_id")
	if direct == "" {
		direct = stringClaim(claims, "tid")
	}
	if direct != "" {
		tenantIDs[direct] = struct{}{}
	}
	return tenantIDs
}
