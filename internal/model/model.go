package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent takes labs.
	UserRoleStudent UserRole = "student"
	// UserRoleAuthor writes and publishes labs.
	UserRoleAuthor UserRole = "author"
	// UserRoleAdmin manages users and labs.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	SecureCookies    bool
	AttemptTTL       time.Duration // how long an idle attempt stays parked in the cache
	AutosaveInterval time.Duration // notes autosave period for content labs
	IdleTimeout      time.Duration // pause a lab's timer after this long without requests
	CORSOrigins      []string
}
