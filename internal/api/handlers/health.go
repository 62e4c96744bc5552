package handlers

import (
	"net/http"

	"github.com/Conceptual-Machines/melodia-api/internal/session"
	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	generatorURL string
	registry     *session.Registry
}

func NewHealthHandler(generatorURL string, registry *session.Registry) *HealthHandler {
	return &HealthHandler{generatorURL: generatorURL, registry: registry}
}

// HealthCheck returns the health status of the API
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"generator": gin.H{
			"url": h.generatorURL,
		},
		"sessions": h.registry.Len(),
	})
}
