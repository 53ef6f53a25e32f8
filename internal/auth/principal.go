package auth

import "strings"

// Principal identifies the authenticated caller. It is passed explicitly into every
// operation that acts on behalf of a user.
type Principal struct {
	UserID string
	Email  string
	Roles  []string
}

// PrincipalFromClaims builds a Principal from verified access token claims.
func PrincipalFromClaims(claims *Claims) Principal {
	if claims == nil {
		return Principal{}
	}
	return Principal{
		UserID: claims.UserID,
		Email:  claims.Subject,
		Roles:  append([]string(nil), claims.Roles...),
	}
}

// Authenticated reports whether the principal carries an identity.
func (p Principal) Authenticated() bool {
	return p.UserID != ""
}

// HasAnyRole reports whether the principal holds at least one of roles.
func (p Principal) HasAnyRole(roles ...string) bool {
	for _, want := range roles {
		for _, have := range p.Roles {
			if strings.EqualFold(want, have) {
				return true
			}
		}
	}
	return false
}
