package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"pushgate/internal/auth"
	"pushgate/internal/config"
	"pushgate/internal/core"
)

// NewServer builds the HTTP server: account API, WebSocket upgrade,
// health and metrics endpoints.
func NewServer(hub *core.Hub, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), LoggerMiddleware(logger))

	authHandlers := NewAuthHandlers(authService, hub, logger)
	invalidateHandlers := NewInvalidateHandlers(hub, logger)

	api := engine.Group("/api")
	api.POST("/register", authHandlers.Register)
	api.POST("/login", authHandlers.Login)
	api.POST("/refresh", authHandlers.Refresh)
	api.POST("/logout", authHandlers.Logout)
	api.GET("/verify", AuthMiddleware(authService, logger), authHandlers.Verify)
	api.POST("/invalidate", AuthMiddleware(authService, logger), invalidateHandlers.Invalidate)

	engine.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/ws", gin.WrapH(NewWSHandler(hub, UUIDVerifier{}, cfg.IdentitySource, logger)))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
