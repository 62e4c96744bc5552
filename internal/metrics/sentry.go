package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
)

const (
	// HTTP status code threshold for considering a request successful
	successStatusCodeThreshold = http.StatusBadRequest
)

// SentryMetrics handles custom metrics for Sentry
type SentryMetrics struct {
	enabled bool
}

// NewSentryMetrics creates a new Sentry metrics client
func NewSentryMetrics() *SentryMetrics {
	return &SentryMetrics{
		enabled: true, // Always enabled if Sentry is configured
	}
}

// RecordAPIRequest records API request metrics
func (m *SentryMetrics) RecordAPIRequest(ctx context.Context, endpoint string, statusCode int, duration time.Duration) {
	if !m.enabled {
		return
	}

	span := sentry.StartSpan(ctx, "api.request")
	defer span.Finish()

	span.SetTag("endpoint", endpoint)
	span.SetTag("status_code", fmt.Sprintf("%d", statusCode))
	span.SetTag("success", fmt.Sprintf("%t", statusCode < successStatusCodeThreshold))

	span.SetData("duration_ms", duration.Milliseconds())
	span.SetData("endpoint", endpoint)
	span.SetData("status_code", statusCode)

	if statusCode < successStatusCodeThreshold {
		span.Status = sentry.SpanStatusOK
	} else {
		span.Status = sentry.SpanStatusInternalError
	}

	span.Description = fmt.Sprintf("API Request: %s", endpoint)
}

// RecordGeneration records a generation backend call
func (m *SentryMetrics) RecordGeneration(ctx context.Context, duration time.Duration, tunes int, success bool) {
	if !m.enabled {
		return
	}

	if transaction := sentry.TransactionFromContext(ctx); transaction != nil {
		transaction.SetTag("generation.success", fmt.Sprintf("%t", success))
		transaction.SetData("generation.tunes", tunes)
	}

	span := sentry.StartSpan(ctx, "generation.request")
	defer span.Finish()

	span.SetTag("success", fmt.Sprintf("%t", success))
	span.SetData("duration_ms", duration.Milliseconds())
	span.SetData("tunes", tunes)

	if success {
		span.Status = sentry.SpanStatusOK
	} else {
		span.Status = sentry.SpanStatusInternalError
	}

	span.Description = fmt.Sprintf("Generation Request: %t", success)
}

// RecordRender records the outcome of rendering a batch of tunes
func (m *SentryMetrics) RecordRender(ctx context.Context, rendered, failed int) {
	if !m.enabled {
		return
	}

	span := sentry.StartSpan(ctx, "notation.render")
	defer span.Finish()

	span.SetData("rendered", rendered)
	span.SetData("failed", failed)
	span.Status = sentry.SpanStatusOK
	if failed > 0 {
		span.SetTag("render_failures", "true")
	}
	span.Description = fmt.Sprintf("Rendered %d tunes (%d failed)", rendered, failed)
}

// RecordPlayback records a playback action on one tune
func (m *SentryMetrics) RecordPlayback(ctx context.Context, index int, action string, err error) {
	if !m.enabled {
		return
	}

	span := sentry.StartSpan(ctx, "playback."+action)
	defer span.Finish()

	span.SetTag("action", action)
	span.SetData("tune_index", index)
	if err != nil {
		span.SetData("error", err.Error())
		span.Status = sentry.SpanStatusAborted
	} else {
		span.Status = sentry.SpanStatusOK
	}
	span.Description = fmt.Sprintf("Playback %s: tune %d", action, index+1)
}

// RecordDownload records an export by file kind
func (m *SentryMetrics) RecordDownload(ctx context.Context, index int, kind string) {
	if !m.enabled {
		return
	}

	span := sentry.StartSpan(ctx, "export.download")
	defer span.Finish()

	span.SetTag("kind", kind)
	span.SetData("tune_index", index)
	span.Status = sentry.SpanStatusOK
	span.Description = fmt.Sprintf("Download %s: tune %d", kind, index+1)
}
