package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityClaims is the token shape issued by the session service. The
// caller identity lives in the identity claim; older tokens only carry sub.
type IdentityClaims struct {
	Identity string `json:"identity,omitempty"`
	jwt.RegisteredClaims
}

// Caller returns the trimmed caller identity, or "" when the token names none.
func (c *IdentityClaims) Caller() string {
	if c == nil {
		return ""
	}
	if id := strings.TrimSpace(c.Identity); id != "" {
		return id
	}
	return strings.TrimSpace(c.Subject)
}
