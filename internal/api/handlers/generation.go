package handlers

import (
	"errors"
	"net/http"

	"github.com/Conceptual-Machines/melodia-api/internal/api/middleware"
	"github.com/Conceptual-Machines/melodia-api/internal/config"
	"github.com/Conceptual-Machines/melodia-api/internal/generation"
	"github.com/Conceptual-Machines/melodia-api/internal/session"
	"github.com/gin-gonic/gin"
)

var errNoSession = errors.New("no session attached to request")

type GenerationHandler struct {
	cfg *config.Config
}

func NewGenerationHandler(cfg *config.Config) *GenerationHandler {
	return &GenerationHandler{cfg: cfg}
}

type GenerateRequest struct {
	StartChar string `json:"start_char" form:"start_char"`
	Length    *int   `json:"length" form:"length"` // defaults to config.DefaultLength
}

type GenerateResponse struct {
	RequestID string           `json:"request_id"`
	Session   session.Snapshot `json:"session"`
}

// length returns the requested length or the default
func (r GenerateRequest) length() int {
	if r.Length == nil {
		return config.DefaultLength
	}
	return *r.Length
}

// Generate asks the backend for new tunes and replaces the session's tunes
func (h *GenerationHandler) Generate(c *gin.Context) {
	controller, ok := middleware.CurrentSession(c)
	if !ok {
		respondError(c, errNoSession, "")
		return
	}

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, &generation.ValidationError{Field: "body", Message: err.Error()}, "")
		return
	}

	if err := controller.Generate(c.Request.Context(), req.StartChar, req.length()); err != nil {
		respondError(c, err, controller.Endpoint())
		return
	}

	c.JSON(http.StatusOK, GenerateResponse{
		RequestID: c.GetString("request_id"),
		Session:   controller.Snapshot(),
	})
}
