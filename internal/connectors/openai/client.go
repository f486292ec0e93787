// Package openai provides an HTTP client for OpenAI-compatible chat
// completion services, satisfying conformance.Collaborator.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bodhi-compat/compatcheck/internal/conformance"
	"github.com/bodhi-compat/compatcheck/internal/ratelimit"
	"github.com/bodhi-compat/compatcheck/internal/stream"
	"github.com/bodhi-compat/compatcheck/internal/tree"
)

// Client talks to one OpenAI-compatible endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	side       conformance.Side
	httpClient *http.Client
	limiter    *ratelimit.SideLimiter
	budget     *ratelimit.CallBudget
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) Option { return func(c *Client) { c.apiKey = key } }

// WithModel sets the model injected into every chat request and used for
// model retrieval.
func WithModel(model string) Option { return func(c *Client) { c.model = model } }

// WithSide names the side this client serves for rate limiting and budgets.
func WithSide(side conformance.Side) Option { return func(c *Client) { c.side = side } }

// WithLimiter rate-limits requests on the client's side.
func WithLimiter(l *ratelimit.SideLimiter) Option { return func(c *Client) { c.limiter = l } }

// WithBudget caps requests on the client's side.
func WithBudget(b *ratelimit.CallBudget) Option { return func(c *Client) { c.budget = b } }

// New creates a client for endpoint with an instrumented transport.
func New(endpoint string, opts ...Option) *Client {
	return NewWithHTTPClient(endpoint, &http.Client{
		Timeout:   5 * time.Minute,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}, opts...)
}

// NewWithHTTPClient creates a client with a custom HTTP client (for testing).
func NewWithHTTPClient(endpoint string, httpClient *http.Client, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		side:       conformance.SideCandidate,
		httpClient: httpClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Model returns the configured model.
func (c *Client) Model() string { return c.model }

// Complete implements conformance.Collaborator.
func (c *Client) Complete(ctx context.Context, req conformance.Request) (tree.Value, error) {
	var (
		resp *http.Response
		err  error
	)
	switch req.Operation {
	case conformance.OpChatCompletions:
		resp, err = c.post(ctx, req, false)
	case conformance.OpModelsList:
		resp, err = c.get(ctx, req, "/v1/models")
	case conformance.OpModelsRetrieve:
		resp, err = c.get(ctx, req, "/v1/models/"+url.PathEscape(c.retrieveID(req)))
	default:
		return tree.Value{}, &conformance.UnsupportedOperationError{Operation: req.Operation}
	}
	if err != nil {
		return tree.Value{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return tree.Value{}, fmt.Errorf("openai: read response: %w", err)
	}
	v, err := tree.FromJSON(body)
	if err != nil {
		return tree.Value{}, fmt.Errorf("openai: decode response: %w", err)
	}
	return v, nil
}

// Stream implements conformance.Collaborator. The returned source owns the
// response body and closes it when aggregation finishes.
func (c *Client) Stream(ctx context.Context, req conformance.Request) (stream.Source, error) {
	if req.Operation != conformance.OpChatCompletions {
		return nil, &conformance.UnsupportedOperationError{Operation: req.Operation, Streaming: true}
	}
	resp, err := c.post(ctx, req, true)
	if err != nil {
		return nil, err
	}
	return stream.NewSSESource(resp.Body), nil
}

func (c *Client) retrieveID(req conformance.Request) string {
	if id, ok := req.Stimulus["model"].(string); ok && id != "" {
		return id
	}
	return c.model
}

// chatBody encodes the stimulus, injects the configured model and sets the
// stream flag.
func (c *Client) chatBody(stimulus map[string]any, streaming bool) ([]byte, error) {
	if stimulus == nil {
		stimulus = map[string]any{}
	}
	body, err := json.Marshal(stimulus)
	if err != nil {
		return nil, err
	}
	if c.model != "" {
		if body, err = sjson.SetBytes(body, "model", c.model); err != nil {
			return nil, err
		}
	}
	if streaming {
		return sjson.SetBytes(body, "stream", true)
	}
	if body, err = sjson.DeleteBytes(body, "stream"); err != nil {
		return nil, err
	}
	return sjson.DeleteBytes(body, "stream_options")
}

func (c *Client) post(ctx context.Context, req conformance.Request, streaming bool) (*http.Response, error) {
	payload, err := c.chatBody(req.Stimulus, streaming)
	if err != nil {
		return nil, fmt.Errorf("openai: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("openai: invalid endpoint: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if streaming {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	return c.do(ctx, httpReq, req.Operation)
}

func (c *Client) get(ctx context.Context, req conformance.Request, path string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return nil, fmt.Errorf("openai: invalid endpoint: %w", err)
	}
	return c.do(ctx, httpReq, req.Operation)
}

func (c *Client) do(ctx context.Context, httpReq *http.Request, op conformance.Operation) (*http.Response, error) {
	side := string(c.side)
	if err := c.budget.Spend(side, string(op)); err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, side); err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Message: gjson.GetBytes(body, "error.message").String()}
	}
	return resp, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("openai: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("openai: unexpected status %d: %s", e.Code, e.Message)
}
