package auth

import "github.com/hireloop/hireloop/internal/models"

// Principal identifies the caller of a service operation. It is passed
// explicitly into every authorized call; there is no ambient lookup.
type Principal struct {
	UserID    string
	CompanyID string
	Role      string
}

// IsAdmin reports whether the principal holds the administrator role.
func (p Principal) IsAdmin() bool {
	return p.Role == models.RoleAdmin
}

// PrincipalFromClaims builds a Principal from validated JWT claims.
func PrincipalFromClaims(claims *Claims) Principal {
	if claims == nil {
		return Principal{}
	}
	return Principal{
		UserID:    claims.UserID,
		CompanyID: claims.CompanyID,
		Role:      claims.Role,
	}
}
