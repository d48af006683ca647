package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"pushgate/internal/core"
)

// InvalidateHandlers exposes the broadcaster to HTTP-side domain
// events: whatever mutates data calls this to tell subscribed sockets
// their caches are stale.
type InvalidateHandlers struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewInvalidateHandlers creates a new invalidate handlers instance.
func NewInvalidateHandlers(hub *core.Hub, logger *zerolog.Logger) *InvalidateHandlers {
	return &InvalidateHandlers{hub: hub, log: logger}
}

// InvalidateRequest represents the invalidate request body.
type InvalidateRequest struct {
	Endpoints []string `json:"endpoints" binding:"required,min=1"`
}

// InvalidateResponse reports how many clients were notified.
type InvalidateResponse struct {
	Notified int `json:"notified"`
}

// Invalidate fans out invalidate frames to subscribed clients.
// POST /api/invalidate
func (h *InvalidateHandlers) Invalidate(c *gin.Context) {
	var req InvalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid invalidate request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	notified := h.hub.Invalidate(req.Endpoints)
	h.log.Info().Strs("endpoints", req.Endpoints).Int("notified", notified).Msg("invalidation broadcast")
	c.JSON(http.StatusOK, InvalidateResponse{Notified: notified})
}
