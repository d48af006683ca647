package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"pushgate/internal/auth"
	"pushgate/internal/core"
	"pushgate/internal/store"
)

// AuthHandlers provides the account endpoints. Every request body may
// carry the caller's socket identifier so a successful login, refresh,
// or logout is mirrored onto the live connection's authorization level.
type AuthHandlers struct {
	authService *auth.Service
	hub         *core.Hub
	log         *zerolog.Logger
}

// NewAuthHandlers creates a new auth handlers instance.
func NewAuthHandlers(authService *auth.Service, hub *core.Hub, logger *zerolog.Logger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		hub:         hub,
		log:         logger,
	}
}

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Username   string `json:"username" binding:"required,min=3,max=32"`
	Password   string `json:"password" binding:"required,min=6"`
	Identifier string `json:"identifier"`
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Username   string `json:"username" binding:"required"`
	Password   string `json:"password" binding:"required"`
	Identifier string `json:"identifier"`
}

// RefreshRequest represents the refresh request body.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
	Identifier   string `json:"identifier"`
}

// LogoutRequest represents the logout request body.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
	Identifier   string `json:"identifier"`
}

// AuthResponse represents the authentication response body.
type AuthResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// VerifyResponse describes the authenticated account.
type VerifyResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

func levelFor(role store.Role) core.Level {
	if role == store.RoleAdmin {
		return core.LevelAdmin
	}
	return core.LevelUser
}

// Register handles user registration.
// POST /api/register
func (h *AuthHandlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid register request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	user, err := h.authService.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists):
			c.JSON(http.StatusConflict, ErrorResponse{Error: "user already exists"})
		case errors.Is(err, auth.ErrInvalidUsername), errors.Is(err, auth.ErrInvalidPassword):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		default:
			h.log.Error().Err(err).Str("username", req.Username).Msg("failed to register user")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	pair, err := h.authService.CreateSession(c.Request.Context(), user, req.Identifier)
	if err != nil {
		h.log.Error().Err(err).Str("username", req.Username).Msg("failed to create session")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	// The account exists either way; a missing socket is not worth
	// failing the signup over.
	if req.Identifier != "" {
		if err := h.hub.Elevate(req.Identifier, user.ID, levelFor(user.Role)); err != nil {
			h.log.Warn().Err(err).Str("client_id", req.Identifier).Msg("register: socket elevation skipped")
		}
	}

	h.log.Info().Str("username", req.Username).Msg("user registered successfully")
	c.JSON(http.StatusCreated, AuthResponse{Token: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// Login handles user login. Opening the session and elevating the
// caller's socket is one logical operation: when the socket cannot be
// found, the just-created session is rolled back (best effort) and the
// whole call fails.
// POST /api/login
func (h *AuthHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid login request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	pair, user, err := h.authService.Login(c.Request.Context(), req.Username, req.Password, req.Identifier)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
			return
		}
		h.log.Error().Err(err).Str("username", req.Username).Msg("failed to login user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if req.Identifier != "" {
		if err := h.hub.Elevate(req.Identifier, user.ID, levelFor(user.Role)); err != nil {
			h.authService.DeleteSession(c.Request.Context(), pair.RefreshToken)
			h.log.Warn().Err(err).Str("client_id", req.Identifier).Msg("login: client not found, session rolled back")
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "client not found"})
			return
		}
	}

	h.log.Info().Str("username", req.Username).Msg("user logged in successfully")
	c.JSON(http.StatusOK, AuthResponse{Token: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// Refresh rotates a session and re-elevates the caller's socket.
// POST /api/refresh
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid refresh request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	pair, user, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken, req.Identifier)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidSession) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid session"})
			return
		}
		h.log.Error().Err(err).Msg("failed to refresh session")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if req.Identifier != "" {
		if err := h.hub.Elevate(req.Identifier, user.ID, levelFor(user.Role)); err != nil {
			h.authService.DeleteSession(c.Request.Context(), pair.RefreshToken)
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "client not found"})
			return
		}
	}

	c.JSON(http.StatusOK, AuthResponse{Token: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// Logout deletes the session and resets the caller's socket to guest.
// POST /api/logout
func (h *AuthHandlers) Logout(c *gin.Context) {
	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid logout request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.authService.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		h.log.Error().Err(err).Msg("failed to delete session")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if req.Identifier != "" {
		if err := h.hub.DeElevate(req.Identifier); err != nil {
			// The socket may already be gone; logout still succeeded.
			h.log.Debug().Err(err).Str("client_id", req.Identifier).Msg("logout: no live client to de-elevate")
		}
	}

	c.Status(http.StatusNoContent)
}

// Verify returns the account behind the presented access token.
// GET /api/verify
func (h *AuthHandlers) Verify(c *gin.Context) {
	userID, _ := c.Get(ContextKeyUserID)
	username, _ := c.Get(ContextKeyUsername)
	role, _ := c.Get(ContextKeyRole)

	uid, ok := userID.(int64)
	if !ok {
		h.log.Error().Msg("invalid user_id type in context")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, VerifyResponse{
		ID:       uid,
		Username: username.(string),
		Role:     role.(string),
	})
}
