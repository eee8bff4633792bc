package opsdeck

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the OpsDeck server (e.g. "http://localhost:8080").
	BaseURL string

	// AgentKey is the agent's secret key, sent as the X-Agent-Key header.
	AgentKey string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the OpsDeck agent API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL  string
	agentKey string
	client   *http.Client
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL or AgentKey is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("opsdeck: BaseURL is required")
	}
	if cfg.AgentKey == "" {
		return nil, fmt.Errorf("opsdeck: AgentKey is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		agentKey: cfg.AgentKey,
		client:   httpClient,
	}, nil
}

// Self returns the authenticated agent's own record. The endpoint is scoped
// to the caller; no other agents are visible through it.
func (c *Client) Self(ctx context.Context) (*Agent, error) {
	var resp []Agent
	if err := c.get(ctx, "/api/agent/agents", &resp); err != nil {
		return nil, err
	}
	if len(resp) == 0 {
		return nil, &Error{StatusCode: 404, Code: "NOT_FOUND", Message: "no agent record returned"}
	}
	return &resp[0], nil
}

// ReportEvent records a timeline event for the authenticated agent.
func (c *Client) ReportEvent(ctx context.Context, req ReportEventRequest) (*Event, error) {
	var resp Event
	if err := c.post(ctx, "/api/agent/events", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReportUsage records a model-usage sample for the authenticated agent.
func (c *Client) ReportUsage(ctx context.Context, req ReportUsageRequest) (*UsageRecord, error) {
	var resp UsageRecord
	if err := c.post(ctx, "/api/agent/usage", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateJob updates the status and/or summary of a job owned by the
// authenticated agent. The server rejects updates to jobs owned by other
// agents and updates touching any other field.
func (c *Client) UpdateJob(ctx context.Context, jobID uuid.UUID, req UpdateJobRequest) (*Job, error) {
	var resp Job
	if err := c.patch(ctx, "/api/agent/jobs/"+jobID.String(), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks the server's health status. This endpoint does not require
// authentication and works even if the client has an invalid key.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return nil, fmt.Errorf("opsdeck: create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opsdeck: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var health HealthResponse
	if err := handleResponse(resp, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// apiEnvelope is the server's standard response wrapper.
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// apiErrorEnvelope is the server's standard error response wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("opsdeck: create request: %w", err)
	}
	return c.doRequest(req, dest)
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("opsdeck: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("opsdeck: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(req, dest)
}

func (c *Client) patch(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("opsdeck: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("opsdeck: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(req, dest)
}

func (c *Client) doRequest(req *http.Request, dest any) error {
	req.Header.Set("X-Agent-Key", c.agentKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("opsdeck: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("opsdeck: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	// Unwrap the server's { "data": ... } envelope.
	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("opsdeck: decode response envelope: %w", err)
	}
	if envelope.Data == nil {
		return json.Unmarshal(bodyBytes, dest)
	}
	return json.Unmarshal(envelope.Data, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}

	return apiErr
}
