package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Role defines a user's account role. It drives the authorization
// level a live socket is elevated to on login.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User represents an account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// Session is one refresh-token session. ClientID records the socket
// identifier supplied at login so a later refresh can re-elevate the
// same live connection.
type Session struct {
	Token     string
	UserID    int64
	ClientID  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string, role Role) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// SessionStore handles refresh-token session persistence.
type SessionStore interface {
	// CreateSession persists a new session.
	CreateSession(ctx context.Context, s *Session) error

	// GetSession retrieves a session by refresh token.
	// Returns ErrNotFound when the token is unknown.
	GetSession(ctx context.Context, token string) (*Session, error)

	// DeleteSession removes a session by refresh token. Deleting an
	// unknown token is a no-op.
	DeleteSession(ctx context.Context, token string) error

	// DeleteExpiredSessions removes sessions past their expiry.
	DeleteExpiredSessions(ctx context.Context) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	SessionStore

	// Close closes the underlying connection.
	Close() error
}
