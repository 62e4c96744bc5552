package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Conceptual-Machines/melodia-api/internal/export"
	"github.com/Conceptual-Machines/melodia-api/internal/generation"
	"github.com/Conceptual-Machines/melodia-api/internal/logger"
	"github.com/Conceptual-Machines/melodia-api/internal/notation"
	"github.com/Conceptual-Machines/melodia-api/internal/session"
	"github.com/gin-gonic/gin"
)

// ClassifyError maps a domain error to an HTTP status and error kind
func ClassifyError(err error) (int, string) {
	var (
		validation *generation.ValidationError
		transport  *generation.TransportError
		format     *generation.FormatError
		playback   *session.PlaybackError
		exportErr  *export.ExportError
	)

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, kindValidation
	case errors.As(err, &transport):
		return http.StatusBadGateway, kindTransport
	case errors.As(err, &format):
		return http.StatusBadGateway, kindFormat
	case errors.Is(err, notation.ErrCapabilityMissing):
		return http.StatusServiceUnavailable, kindCapabilityMissing
	case errors.Is(err, session.ErrUnplayable):
		return http.StatusUnprocessableEntity, kindUnplayable
	case errors.As(err, &playback):
		return http.StatusUnprocessableEntity, kindPlayback
	case errors.Is(err, session.ErrIllegalTransition):
		return http.StatusConflict, kindIllegalTransition
	case errors.Is(err, session.ErrNoSuchTune):
		return http.StatusNotFound, kindNoSuchTune
	case errors.Is(err, session.ErrSuperseded):
		return http.StatusConflict, kindSuperseded
	case errors.Is(err, export.ErrNoNotation):
		return http.StatusUnprocessableEntity, kindNoNotation
	case errors.As(err, &exportErr):
		return http.StatusInternalServerError, kindExport
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, kindTimeout
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, kindCanceled
	default:
		return http.StatusInternalServerError, kindInternal
	}
}

// IsGenerationFailure reports errors that abort a whole generation and
// deserve the "check the backend" hint
func IsGenerationFailure(kind string) bool {
	switch kind {
	case kindTransport, kindFormat, kindCapabilityMissing, kindTimeout:
		return true
	}
	return false
}

// BackendHint is shown next to generation failures
func BackendHint(endpoint string) string {
	return fmt.Sprintf("Make sure the API server is running at %s", endpoint)
}

// respondError writes the JSON error body for err
func respondError(c *gin.Context, err error, endpoint string) {
	status, kind := ClassifyError(err)

	body := gin.H{
		"error":      err.Error(),
		"kind":       kind,
		"request_id": c.GetString("request_id"),
	}
	if IsGenerationFailure(kind) && endpoint != "" {
		body["hint"] = BackendHint(endpoint)
	}

	fields := logger.WithContext(c)
	fields["kind"] = kind
	fields["status_code"] = status
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", err, fields)
	} else {
		logger.Debug("Request rejected: "+err.Error(), fields)
	}

	c.JSON(status, body)
}
