package metrics

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

const (
	namespace                = "Melodia/API"
	httpStatusServerError    = 500
	cloudwatchTimeoutSeconds = 5
)

// metricPutter is the part of the CloudWatch client we use
type metricPutter interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Client wraps CloudWatch client for custom metrics
type Client struct {
	client      metricPutter
	enabled     bool
	environment string
}

// NewClient creates a new CloudWatch metrics client
func NewClient(ctx context.Context, environment string) (*Client, error) {
	// Only enable in production
	if environment != "production" {
		log.Printf("📊 CloudWatch Metrics: DISABLED (environment: %s)", environment)
		return &Client{
			enabled:     false,
			environment: environment,
		}, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Printf("⚠️  Failed to load AWS config for CloudWatch: %v", err)
		return &Client{enabled: false}, nil
	}

	client := cloudwatch.NewFromConfig(cfg)
	log.Printf("📊 CloudWatch Metrics: ✅ ENABLED (namespace: %s)", namespace)

	return &Client{
		client:      client,
		enabled:     true,
		environment: environment,
	}, nil
}

// RecordAPIRequest records an API request metric
func (m *Client) RecordAPIRequest(endpoint string, statusCode int, duration time.Duration) {
	if !m.enabled {
		return
	}

	go func() {
		ctx := context.Background()
		metricName := "APIRequests"
		if statusCode >= httpStatusServerError {
			metricName = "APIErrors"
		}

		dimensions := m.dimensions("Endpoint", endpoint)

		if err := m.putMetric(ctx, metricName, 1, types.StandardUnitCount, dimensions); err != nil {
			log.Printf("Failed to record %s metric: %v", metricName, err)
		}

		latencyMs := float64(duration.Milliseconds())
		if err := m.putMetric(ctx, "APILatency", latencyMs, types.StandardUnitMilliseconds, dimensions); err != nil {
			log.Printf("Failed to record APILatency metric: %v", err)
		}
	}()
}

// RecordGeneration records one call to the generation backend
func (m *Client) RecordGeneration(duration time.Duration, tunes int, success bool) {
	if !m.enabled {
		return
	}

	go func() {
		ctx := context.Background()
		dimensions := m.dimensions("Success", strconv.FormatBool(success))

		if err := m.putMetric(ctx, "GenerationRequests", 1, types.StandardUnitCount, dimensions); err != nil {
			log.Printf("Failed to record GenerationRequests metric: %v", err)
		}

		durationMs := float64(duration.Milliseconds())
		if err := m.putMetric(ctx, "GenerationDuration", durationMs, types.StandardUnitMilliseconds, dimensions); err != nil {
			log.Printf("Failed to record GenerationDuration metric: %v", err)
		}

		if success {
			if err := m.putMetric(ctx, "TunesGenerated", float64(tunes), types.StandardUnitCount, dimensions); err != nil {
				log.Printf("Failed to record TunesGenerated metric: %v", err)
			}
		}
	}()
}

// RecordRender records how many tunes rendered and how many failed
func (m *Client) RecordRender(rendered, failed int) {
	if !m.enabled {
		return
	}

	go func() {
		ctx := context.Background()
		dimensions := m.dimensions()

		if err := m.putMetric(ctx, "TunesRendered", float64(rendered), types.StandardUnitCount, dimensions); err != nil {
			log.Printf("Failed to record TunesRendered metric: %v", err)
		}
		if failed > 0 {
			if err := m.putMetric(ctx, "RenderFailures", float64(failed), types.StandardUnitCount, dimensions); err != nil {
				log.Printf("Failed to record RenderFailures metric: %v", err)
			}
		}
	}()
}

// RecordPlayback records a playback action
func (m *Client) RecordPlayback(action string, success bool) {
	if !m.enabled {
		return
	}

	go func() {
		ctx := context.Background()
		dimensions := m.dimensions("Action", action, "Success", strconv.FormatBool(success))
		if err := m.putMetric(ctx, "PlaybackActions", 1, types.StandardUnitCount, dimensions); err != nil {
			log.Printf("Failed to record PlaybackActions metric: %v", err)
		}
	}()
}

// RecordDownload records a download by file kind (mid or abc)
func (m *Client) RecordDownload(kind string) {
	if !m.enabled {
		return
	}

	go func() {
		ctx := context.Background()
		dimensions := m.dimensions("Kind", kind)
		if err := m.putMetric(ctx, "Downloads", 1, types.StandardUnitCount, dimensions); err != nil {
			log.Printf("Failed to record Downloads metric: %v", err)
		}
	}()
}

// dimensions builds name/value pairs plus the environment dimension
func (m *Client) dimensions(pairs ...string) []types.Dimension {
	dims := make([]types.Dimension, 0, len(pairs)/2+1)
	for i := 0; i+1 < len(pairs); i += 2 {
		dims = append(dims, types.Dimension{
			Name:  aws.String(pairs[i]),
			Value: aws.String(pairs[i+1]),
		})
	}
	return append(dims, types.Dimension{
		Name:  aws.String("Environment"),
		Value: aws.String(m.environment),
	})
}

// putMetric sends a metric to CloudWatch
func (m *Client) putMetric(
	_ context.Context,
	metricName string,
	value float64,
	unit types.StandardUnit,
	dimensions []types.Dimension,
) error {
	if !m.enabled || m.client == nil {
		return nil
	}

	// Create context with timeout for CloudWatch call
	timeout := time.Duration(cloudwatchTimeoutSeconds) * time.Second
	cwCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, err := m.client.PutMetricData(cwCtx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String(metricName),
				Value:      aws.Float64(value),
				Unit:       unit,
				Timestamp:  aws.Time(time.Now()),
				Dimensions: dimensions,
			},
		},
	})

	return err
}
