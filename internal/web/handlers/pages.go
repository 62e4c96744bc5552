package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	apihandlers "github.com/Conceptual-Machines/melodia-api/internal/api/handlers"
	"github.com/Conceptual-Machines/melodia-api/internal/api/middleware"
	"github.com/Conceptual-Machines/melodia-api/internal/config"
	"github.com/Conceptual-Machines/melodia-api/internal/generation"
	"github.com/Conceptual-Machines/melodia-api/internal/logger"
	"github.com/Conceptual-Machines/melodia-api/internal/session"
	"github.com/Conceptual-Machines/melodia-api/internal/web/templates"
	"github.com/a-h/templ"
	"github.com/gin-gonic/gin"
)

const defaultStartChar = "C"

var actions = map[string]session.Action{
	"play":  session.ActionPlay,
	"pause": session.ActionPause,
	"stop":  session.ActionStop,
}

type WebHandler struct {
	cfg *config.Config
}

func NewWebHandler(cfg *config.Config) *WebHandler {
	return &WebHandler{cfg: cfg}
}

// Home renders the page with the caller's current session
func (h *WebHandler) Home(c *gin.Context) {
	controller, ok := middleware.CurrentSession(c)
	if !ok {
		c.String(http.StatusInternalServerError, "no session")
		return
	}

	form := templates.Form{
		StartChar: defaultStartChar,
		Length:    config.DefaultLength,
		MinLength: config.MinLength,
		MaxLength: config.MaxLength,
	}
	render(c, http.StatusOK, templates.Page(form, controller.Snapshot()))
}

// Generate handles the generation form and returns the output area
func (h *WebHandler) Generate(c *gin.Context) {
	controller, ok := middleware.CurrentSession(c)
	if !ok {
		c.String(http.StatusInternalServerError, "no session")
		return
	}

	startChar := strings.TrimSpace(c.PostForm("start_char"))
	length, err := strconv.Atoi(c.DefaultPostForm("length", strconv.Itoa(config.DefaultLength)))
	if err != nil {
		err = &generation.ValidationError{Field: "length", Message: "Length must be a number"}
	} else {
		err = controller.Generate(c.Request.Context(), startChar, length)
	}

	var validation *generation.ValidationError
	switch {
	case errors.As(err, &validation):
		// rejected before anything was reset
		render(c, http.StatusOK, templ.Join(alert(validation.Message), templates.Output(controller.Snapshot())))
		return
	case errors.Is(err, session.ErrSuperseded):
		logger.Debug("Generation superseded, rendering newer state", logger.WithContext(c))
	case err != nil:
		fields := logger.WithContext(c)
		fields["endpoint"] = controller.Endpoint()
		logger.Warn("Generation failed: "+err.Error(), fields)
	}

	render(c, http.StatusOK, templates.Output(controller.Snapshot()))
}

// TuneAction applies play, pause or stop and re-renders every card, since
// playing one tune can stop another.
func (h *WebHandler) TuneAction(c *gin.Context) {
	controller, ok := middleware.CurrentSession(c)
	if !ok {
		c.String(http.StatusInternalServerError, "no session")
		return
	}
	action, ok := actions[c.Param("action")]
	if !ok {
		c.String(http.StatusNotFound, "unknown action")
		return
	}
	index, err := apihandlers.ParseIndex(c)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	message := ""
	if err := apihandlers.ApplyAction(c, controller, index, action); err != nil {
		message = alertMessage(err)
		fields := logger.WithContext(c)
		fields["tune_index"] = index
		fields["action"] = action.String()
		logger.Debug("Playback action rejected: "+err.Error(), fields)
	}

	render(c, http.StatusOK, templates.TuneList(controller.Snapshot().Tunes, index, message))
}

// TuneCard re-renders one card; playing cards poll it
func (h *WebHandler) TuneCard(c *gin.Context) {
	controller, ok := middleware.CurrentSession(c)
	if !ok {
		c.String(http.StatusInternalServerError, "no session")
		return
	}
	index, err := apihandlers.ParseIndex(c)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	tune, err := controller.TuneView(index)
	if err != nil {
		// the tune list was replaced; drop the stale card
		c.Status(http.StatusOK)
		return
	}
	render(c, http.StatusOK, templates.Card(tune, ""))
}

func alertMessage(err error) string {
	var playback *session.PlaybackError
	if errors.As(err, &playback) {
		return err.Error() + " Try generating the music again."
	}
	return err.Error()
}

func alert(message string) templ.Component {
	return templ.Raw(`<div class="alert" role="alert">` + templ.EscapeString(message) + `</div>`)
}

func render(c *gin.Context, status int, component templ.Component) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(status)
	if err := component.Render(c.Request.Context(), c.Writer); err != nil {
		logger.Error("Failed to render template", err, logger.WithContext(c))
	}
}
