package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"pushgate/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	// It deliberately does not distinguish unknown users from wrong
	// passwords, to avoid account enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with existing username.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrInvalidSession is returned when a refresh token is unknown or expired.
	ErrInvalidSession = errors.New("invalid session")
)

// DefaultSessionTTL is how long a refresh-token session stays valid.
const DefaultSessionTTL = 14 * 24 * time.Hour

// TokenPair is one issued credential set: a short-lived JWT access
// token and a stored refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Service provides account and session operations.
type Service struct {
	users      store.UserStore
	sessions   store.SessionStore
	jwtConfig  *JWTConfig
	sessionTTL time.Duration
}

// NewService creates a new authentication service.
func NewService(users store.UserStore, sessions store.SessionStore, jwtConfig *JWTConfig, sessionTTL time.Duration) *Service {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &Service{
		users:      users,
		sessions:   sessions,
		jwtConfig:  jwtConfig,
		sessionTTL: sessionTTL,
	}
}

// Register creates a new user with hashed password.
func (s *Service) Register(ctx context.Context, username, password string) (*store.User, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 32 {
		return nil, ErrInvalidUsername
	}
	if len(password) < 6 {
		return nil, ErrInvalidPassword
	}

	existing, err := s.users.GetUserByUsername(ctx, username)
	if err == nil && existing != nil {
		return nil, ErrUserExists
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, username, hashedPassword, store.RoleUser)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login validates credentials and opens a new session bound to the
// caller's socket identifier.
func (s *Service) Login(ctx context.Context, username, password, clientID string) (TokenPair, *store.User, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return TokenPair{}, nil, ErrInvalidCredentials
	}

	if errPwd := ComparePassword(user.PasswordHash, password); errPwd != nil {
		return TokenPair{}, nil, ErrInvalidCredentials
	}

	pair, err := s.CreateSession(ctx, user, clientID)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

// CreateSession issues a token pair and persists the refresh session.
func (s *Service) CreateSession(ctx context.Context, user *store.User, clientID string) (TokenPair, error) {
	accessToken, err := GenerateToken(s.jwtConfig, user)
	if err != nil {
		return TokenPair{}, fmt.Errorf("generate token: %w", err)
	}

	now := time.Now()
	sess := &store.Session{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		ClientID:  clientID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		return TokenPair{}, fmt.Errorf("create session: %w", err)
	}

	return TokenPair{AccessToken: accessToken, RefreshToken: sess.Token}, nil
}

// Refresh rotates a session: the old refresh token is consumed and a
// fresh token pair is issued for the (possibly new) socket identifier.
func (s *Service) Refresh(ctx context.Context, refreshToken, clientID string) (TokenPair, *store.User, error) {
	sess, err := s.sessions.GetSession(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return TokenPair{}, nil, ErrInvalidSession
		}
		return TokenPair{}, nil, fmt.Errorf("get session: %w", err)
	}
	if time.Now().After(sess.ExpiresAt) {
		_ = s.sessions.DeleteSession(ctx, refreshToken)
		return TokenPair{}, nil, ErrInvalidSession
	}

	user, err := s.users.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return TokenPair{}, nil, ErrInvalidSession
	}

	if err := s.sessions.DeleteSession(ctx, refreshToken); err != nil {
		return TokenPair{}, nil, fmt.Errorf("rotate session: %w", err)
	}

	pair, err := s.CreateSession(ctx, user, clientID)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

// Logout deletes the session. Unknown tokens are a no-op so logout is
// idempotent.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.sessions.DeleteSession(ctx, refreshToken)
}

// DeleteSession removes a session by refresh token, swallowing misses.
func (s *Service) DeleteSession(ctx context.Context, refreshToken string) {
	_ = s.sessions.DeleteSession(ctx, refreshToken)
}

// ValidateToken validates an access token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}
