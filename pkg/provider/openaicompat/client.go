package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/cadence/pkg/debug"
	"github.com/rhuss/cadence/pkg/provider"
)

// DefaultBaseURL is the OpenRouter API root.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// Client talks to an OpenAI-compatible backend. It implements
// provider.Transport and provider.ModelLister.
type Client struct {
	httpClient *http.Client
	baseURL    string

	// referer and title are sent as HTTP-Referer and X-Title, the
	// attribution headers OpenRouter uses for app rankings.
	referer string
	title   string
}

var (
	_ provider.Transport   = (*Client)(nil)
	_ provider.ModelLister = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithAttribution sets the HTTP-Referer and X-Title headers. Empty values
// are not sent.
func WithAttribution(referer, title string) Option {
	return func(c *Client) {
		c.referer = referer
		c.title = title
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a Client. The timeout applies to model listing only;
// streaming requests are bounded by their context.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stream posts body to /chat/completions and returns the SSE body.
func (c *Client) Stream(ctx context.Context, apiKey string, body []byte) (io.ReadCloser, error) {
	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create stream request: %w", err)
	}

	c.setHeaders(req, apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	debug.Log("providers", "stream request", "url", url, "bytes", len(body))
	debug.Raw("providers", string(body))

	// The stream lives as long as the context; the client timeout would
	// cut off long answers.
	streamClient := &http.Client{Transport: c.httpClient.Transport}

	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, MapNetworkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		apiErr := MapHTTPError(resp)
		debug.Log("providers", "stream rejected", "status", resp.StatusCode, "message", apiErr.Message)
		return nil, apiErr
	}

	return resp.Body, nil
}

// ListModels returns the models served by the backend.
func (c *Client) ListModels(ctx context.Context, apiKey string) ([]provider.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("create models request: %w", err)
	}
	c.setHeaders(req, apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, MapHTTPError(resp)
	}

	var models ChatModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&models); err != nil {
		return nil, fmt.Errorf("decode models response: %w", err)
	}

	out := make([]provider.ModelInfo, 0, len(models.Data))
	for _, m := range models.Data {
		out = append(out, provider.ModelInfo{
			ID:            m.ID,
			Name:          m.Name,
			OwnedBy:       m.OwnedBy,
			ContextLength: m.ContextLength,
		})
	}
	return out, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) setHeaders(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}
}
