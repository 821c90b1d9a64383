// Package tenancy resolves the acting user's organization and role from the
// bearer token so the rest of the client can branch on them.
package tenancy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Roles known to the client. Anything else is treated as unrestricted.
const (
	RoleStaff      = "staff"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

var (
	ErrNoToken = errors.New("tenancy: no bearer token available")
	ErrNoOrgID = errors.New("tenancy: token has no organization id")
)

// Session is the read-only identity of the acting user. It is decoded from the
// token without signature verification and must never be used for trust
// decisions; the server re-checks everything.
type Session struct {
	Token    string
	OrgID    string
	Username string
	Role     string
}

// IsStaff reports whether the user is a restricted staff member.
func (s Session) IsStaff() bool {
	return strings.EqualFold(s.Role, RoleStaff)
}

// AuthorizationHeader returns the value for the Authorization header.
func (s Session) AuthorizationHeader() string {
	if s.Token == "" {
		return ""
	}
	return "Bearer " + s.Token
}

// ParseSession decodes the JWT payload segment of token.
func ParseSession(token string) (Session, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return Session{}, ErrNoToken
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Session{}, fmt.Errorf("tenancy: decode token: %w", err)
	}

	s := Session{
		Token:    token,
		OrgID:    firstClaim(claims, "organization_id", "org_id", "tenant_id"),
		Username: firstClaim(claims, "username", "sub"),
		Role:     strings.ToLower(firstClaim(claims, "role")),
	}
	if s.OrgID == "" {
		return s, ErrNoOrgID
	}
	return s, nil
}

func firstClaim(claims jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		switch v := claims[k].(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		case float64:
			// numeric org ids are common in older tokens
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}
