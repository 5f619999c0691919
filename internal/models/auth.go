package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Operator roles accepted by the dashboard
const (
	RoleViewer = "viewer"
	RoleAdmin  = "admin"
)

// ValidRole reports whether role is an operator role
func ValidRole(role string) bool {
	return role == RoleViewer || role == RoleAdmin
}

// TokenClaims are the claims of a dashboard operator token
type TokenClaims struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}
