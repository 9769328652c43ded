// Package authz decides whether a principal may reach a role-gated operation.
package authz

import "courtbook/internal/models"

type Decision int

const (
	Allow Decision = iota
	RedirectLogin
	RedirectVerify
	RedirectUnauthorized
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "login_required"
	case RedirectVerify:
		return "verification_required"
	case RedirectUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// Gate is evaluated in a fixed order: missing principal, unverified, admin,
// open operation, role membership.
func Gate(principal *models.User, required ...models.Role) Decision {
	if principal == nil {
		return RedirectLogin
	}
	if !principal.IsVerified {
		return RedirectVerify
	}

	switch principal.Role {
	case models.RoleAdmin:
		return Allow
	case models.RoleOwner, models.RoleUser:
	default:
		return RedirectUnauthorized
	}

	if len(required) == 0 {
		return Allow
	}
	for _, r := range required {
		if r == principal.Role {
			return Allow
		}
	}
	return RedirectUnauthorized
}
