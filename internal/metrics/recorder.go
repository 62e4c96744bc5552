package metrics

import (
	"context"
	"time"
)

// Recorder fans domain events out to Sentry spans and CloudWatch counters.
// A nil CloudWatch client only records to Sentry.
type Recorder struct {
	sentry *SentryMetrics
	cloud  *Client
}

// NewRecorder combines both sinks
func NewRecorder(sentryMetrics *SentryMetrics, cloud *Client) *Recorder {
	if sentryMetrics == nil {
		sentryMetrics = NewSentryMetrics()
	}
	if cloud == nil {
		cloud = &Client{}
	}
	return &Recorder{sentry: sentryMetrics, cloud: cloud}
}

func (r *Recorder) RecordAPIRequest(ctx context.Context, endpoint string, statusCode int, duration time.Duration) {
	r.sentry.RecordAPIRequest(ctx, endpoint, statusCode, duration)
	r.cloud.RecordAPIRequest(endpoint, statusCode, duration)
}

func (r *Recorder) RecordGeneration(ctx context.Context, duration time.Duration, tunes int, err error) {
	r.sentry.RecordGeneration(ctx, duration, tunes, err == nil)
	r.cloud.RecordGeneration(duration, tunes, err == nil)
}

func (r *Recorder) RecordRender(ctx context.Context, rendered, failed int) {
	r.sentry.RecordRender(ctx, rendered, failed)
	r.cloud.RecordRender(rendered, failed)
}

func (r *Recorder) RecordPlayback(ctx context.Context, index int, action string, err error) {
	r.sentry.RecordPlayback(ctx, index, action, err)
	r.cloud.RecordPlayback(action, err == nil)
}

func (r *Recorder) RecordDownload(ctx context.Context, index int, kind string) {
	r.sentry.RecordDownload(ctx, index, kind)
	r.cloud.RecordDownload(kind)
}
