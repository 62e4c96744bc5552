package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Conceptual-Machines/melodia-api/internal/api/middleware"
	"github.com/Conceptual-Machines/melodia-api/internal/export"
	"github.com/Conceptual-Machines/melodia-api/internal/generation"
	"github.com/Conceptual-Machines/melodia-api/internal/logger"
	"github.com/Conceptual-Machines/melodia-api/internal/session"
	"github.com/gin-gonic/gin"
)

type TunesHandler struct{}

func NewTunesHandler() *TunesHandler {
	return &TunesHandler{}
}

type TuneResponse struct {
	RequestID string           `json:"request_id"`
	Tune      session.TuneView `json:"tune"`
	Active    *int             `json:"active"`
}

// ParseIndex reads the :index path parameter
func ParseIndex(c *gin.Context) (int, error) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return 0, &generation.ValidationError{Field: "index", Message: fmt.Sprintf("invalid tune index %q", c.Param("index"))}
	}
	return index, nil
}

// List returns the whole session state
func (h *TunesHandler) List(c *gin.Context) {
	controller, ok := middleware.CurrentSession(c)
	if !ok {
		respondError(c, errNoSession, "")
		return
	}
	c.JSON(http.StatusOK, controller.Snapshot())
}

func (h *TunesHandler) Play(c *gin.Context) {
	h.apply(c, session.ActionPlay)
}

func (h *TunesHandler) Pause(c *gin.Context) {
	h.apply(c, session.ActionPause)
}

func (h *TunesHandler) Stop(c *gin.Context) {
	h.apply(c, session.ActionStop)
}

func (h *TunesHandler) apply(c *gin.Context, action session.Action) {
	controller, ok := middleware.CurrentSession(c)
	if !ok {
		respondError(c, errNoSession, "")
		return
	}
	index, err := ParseIndex(c)
	if err != nil {
		respondError(c, err, "")
		return
	}

	if err := ApplyAction(c, controller, index, action); err != nil {
		respondError(c, err, "")
		return
	}

	tune, err := controller.TuneView(index)
	if err != nil {
		respondError(c, err, "")
		return
	}
	active, playing := controller.Active()
	resp := TuneResponse{RequestID: c.GetString("request_id"), Tune: tune}
	if playing {
		resp.Active = &active
	}
	c.JSON(http.StatusOK, resp)
}

// ApplyAction runs a user playback action on the controller
func ApplyAction(c *gin.Context, controller *session.Controller, index int, action session.Action) error {
	ctx := c.Request.Context()
	switch action {
	case session.ActionPlay:
		return controller.Play(ctx, index)
	case session.ActionPause:
		return controller.Pause(ctx, index)
	case session.ActionStop:
		return controller.Stop(ctx, index)
	default:
		return &session.TransitionError{Action: action}
	}
}

// Download serves the tune as a MIDI file, or its notation as a .abc file
func (h *TunesHandler) Download(c *gin.Context) {
	controller, ok := middleware.CurrentSession(c)
	if !ok {
		respondError(c, errNoSession, "")
		return
	}
	index, err := ParseIndex(c)
	if err != nil {
		respondError(c, err, "")
		return
	}

	d, err := controller.Download(c.Request.Context(), index)
	if err != nil {
		respondError(c, err, "")
		return
	}

	data, err := d.Open(controller.Blobs())
	if errors.Is(err, export.ErrRemoteURI) {
		c.Redirect(http.StatusFound, d.Href)
		return
	}
	if err != nil {
		respondError(c, err, "")
		return
	}

	fields := logger.WithContext(c)
	fields["tune_index"] = index
	fields["kind"] = d.Kind
	fields["bytes"] = len(data)
	logger.Info("Download served", fields)

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, d.Filename))
	c.Data(http.StatusOK, d.ContentType, data)
}
