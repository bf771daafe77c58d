package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ClientConfig serves the public client configuration document.
func (h *Handler) ClientConfig(c *gin.Context) {
	respondSuccess(c, h.Config.ClientConfig())
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
