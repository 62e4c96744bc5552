package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/stretchr/testify/assert"
)

type fakePutter struct {
	mu    sync.Mutex
	names []string
	dims  map[string]map[string]string
}

func (f *fakePutter) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dims == nil {
		f.dims = map[string]map[string]string{}
	}
	for _, d := range params.MetricData {
		name := aws.ToString(d.MetricName)
		f.names = append(f.names, name)
		dims := map[string]string{}
		for _, dim := range d.Dimensions {
			dims[aws.ToString(dim.Name)] = aws.ToString(dim.Value)
		}
		f.dims[name] = dims
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func (f *fakePutter) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}

func enabledClient(putter metricPutter) *Client {
	return &Client{client: putter, enabled: true, environment: "test"}
}

func TestNewClientDisabledOutsideProduction(t *testing.T) {
	c, err := NewClient(context.Background(), "development")
	assert.NoError(t, err)
	assert.False(t, c.enabled)

	// disabled clients never touch CloudWatch
	c.RecordDownload("mid")
	c.RecordGeneration(time.Second, 1, true)
}

func TestClientRecordsDomainMetrics(t *testing.T) {
	putter := &fakePutter{}
	c := enabledClient(putter)

	c.RecordGeneration(120*time.Millisecond, 3, true)
	c.RecordRender(2, 1)
	c.RecordPlayback("play", true)
	c.RecordDownload("abc")

	assert.Eventually(t, func() bool { return len(putter.recorded()) == 7 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{
		"GenerationRequests", "GenerationDuration", "TunesGenerated",
		"TunesRendered", "RenderFailures", "PlaybackActions", "Downloads",
	}, putter.recorded())

	putter.mu.Lock()
	defer putter.mu.Unlock()
	assert.Equal(t, map[string]string{"Kind": "abc", "Environment": "test"}, putter.dims["Downloads"])
	assert.Equal(t, map[string]string{"Action": "play", "Success": "true", "Environment": "test"}, putter.dims["PlaybackActions"])
}

func TestClientSkipsTuneCountOnFailure(t *testing.T) {
	putter := &fakePutter{}
	c := enabledClient(putter)

	c.RecordGeneration(time.Second, 0, false)
	c.RecordRender(3, 0)

	assert.Eventually(t, func() bool { return len(putter.recorded()) == 3 }, time.Second, 5*time.Millisecond)
	assert.NotContains(t, putter.recorded(), "TunesGenerated")
	assert.NotContains(t, putter.recorded(), "RenderFailures")
}

func TestRecorderWithoutCloudWatch(t *testing.T) {
	r := NewRecorder(nil, nil)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		r.RecordAPIRequest(ctx, "/health", 200, time.Millisecond)
		r.RecordGeneration(ctx, time.Second, 2, nil)
		r.RecordGeneration(ctx, time.Second, 0, errors.New("backend down"))
		r.RecordRender(ctx, 2, 0)
		r.RecordPlayback(ctx, 0, "play", nil)
		r.RecordDownload(ctx, 0, "mid")
	})
}
