package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims is the access-token payload issued by the identity provider.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the caller has the ADMIN role.
func (c *JWTClaims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// Owns reports whether the caller is the given user or an admin.
func (c *JWTClaims) Owns(userID string) bool {
	if c == nil {
		return false
	}
	return c.IsAdmin() || (c.UserID != "" && c.UserID == userID)
}
