package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the roles known to the grade workflow.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTeacher UserRole = "TEACHER"
)

// AccessScope is the resolved visibility for a teacher: either everything or
// an explicit id set. Resolution happens upstream; the engine only consumes it.
type AccessScope struct {
	All bool     `json:"all"`
	IDs []string `json:"ids,omitempty"`
}

// Allows reports whether the scope covers the given id.
func (s AccessScope) Allows(id string) bool {
	if s.All {
		return true
	}
	for _, allowed := range s.IDs {
		if allowed == id {
			return true
		}
	}
	return false
}

// JWTClaims carries the already-authenticated actor identity per request.
type JWTClaims struct {
	UserID string      `json:"user_id"`
	Role   UserRole    `json:"role"`
	Scope  AccessScope `json:"scope"`
	jwt.RegisteredClaims
}

// Actor is the identity attached to every mutating operation.
type Actor struct {
	ID   string
	Role UserRole
}
