package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Conceptual-Machines/melodia-api/internal/config"
	"github.com/Conceptual-Machines/melodia-api/internal/logger"
	"github.com/Conceptual-Machines/melodia-api/internal/observability"
	"github.com/tidwall/gjson"
)

const maxErrorBodyBytes = 4 << 10

// Request is the JSON body sent to the generation backend
type Request struct {
	StartChar string `json:"start_char"`
	Length    int    `json:"length"`
}

// Client talks to the external tune generation endpoint
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a client for the given endpoint. A zero timeout disables
// the client-side deadline.
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Endpoint returns the configured backend URL
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Validate checks request parameters without touching the network
func Validate(startChar string, length int) error {
	if strings.TrimSpace(startChar) == "" {
		return &ValidationError{Field: "start_char", Message: "Please enter a starting character"}
	}
	if length < config.MinLength || length > config.MaxLength {
		return &ValidationError{
			Field:   "length",
			Message: fmt.Sprintf("Length must be between %d and %d", config.MinLength, config.MaxLength),
		}
	}
	return nil
}

// Generate requests tunes from the backend and returns their ABC notation in
// the order the backend produced them.
func (c *Client) Generate(ctx context.Context, startChar string, length int) ([]string, error) {
	startChar = strings.TrimSpace(startChar)
	if err := Validate(startChar, length); err != nil {
		return nil, err
	}

	trace := observability.GetClient().StartTrace(ctx, "melodia.generate", map[string]interface{}{
		"endpoint": c.endpoint,
	})
	defer trace.Finish()
	gen := trace.Generation("generator.request", map[string]interface{}{"length": length})
	gen.Input(Request{StartChar: startChar, Length: length})
	defer gen.Finish()

	start := time.Now()
	tunes, err := c.do(ctx, Request{StartChar: startChar, Length: length})
	if err != nil {
		gen.SetLevel("ERROR")
		gen.Metadata(map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	gen.Output(tunes)

	logger.LogGenerationRequest(ctx, startChar, length, time.Since(start), len(tunes), nil)
	return tunes, nil
}

func (c *Client) do(ctx context.Context, body Request) ([]string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &TransportError{
			StatusCode: resp.StatusCode,
			Detail:     gjson.GetBytes(raw, "detail").String(),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: err}
	}
	return ParseTunes(raw)
}

// ParseTunes normalizes a backend response body into a list of tunes. The
// abc_notation field may be a single string or an array of strings.
func ParseTunes(body []byte) ([]string, error) {
	if !gjson.ValidBytes(body) {
		return nil, &FormatError{Reason: "body is not valid JSON"}
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, &FormatError{Reason: "top-level value is not an object"}
	}

	field := root.Get("abc_notation")
	switch {
	case field.IsArray():
		items := field.Array()
		tunes := make([]string, 0, len(items))
		for i, item := range items {
			if item.Type != gjson.String {
				return nil, &FormatError{Reason: fmt.Sprintf("abc_notation[%d] is not a string", i)}
			}
			tunes = append(tunes, item.String())
		}
		return tunes, nil
	case field.Type == gjson.String:
		return []string{field.String()}, nil
	case !field.Exists():
		return nil, &FormatError{Reason: "missing abc_notation"}
	default:
		return nil, &FormatError{Reason: "abc_notation must be a string or an array of strings"}
	}
}
