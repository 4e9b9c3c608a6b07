package admission

import (
	"errors"

	"github.com/fleetgate/agentctl/internal/authn"
)

// translateAuthError maps a TenantAuthenticator error to the admission
// taxonomy: ErrForbidden/ErrUnauthorized map directly, and the
// unconfigured-in-production case (an unwrapped error) is MISCONFIGURED.
func translateAuthError(err error) error {
	switch {
	case errors.Is(err, authn.ErrForbidden):
		return newError(KindForbidden, err.Error())
	case errors.Is(err, authn.ErrUnauthorized):
		return newError(KindUnauthenticated, err.Error())
	default:
		return newError(KindMisconfigured, err.Error())
	}
}
