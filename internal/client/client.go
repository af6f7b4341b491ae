// Package client provides an HTTP client for the ir-bench API.
package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/irbench/ir-bench/internal/scoring"
)

// Client is an HTTP client for the ir-bench API.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	connectionID string
}

// Config configures the client.
type Config struct {
	// BaseURL is the base URL of the API server.
	BaseURL string

	// Timeout is the request timeout. Evaluations can take a while on
	// the larger benchmarks, so the default is generous.
	Timeout time.Duration

	// ConnectionID is an optional explicit connection ID.
	// If empty, one will be auto-generated from hostname/MAC.
	ConnectionID string

	// MaxIdleConns controls the maximum number of idle (keep-alive) connections
	// across all hosts. Zero means no limit.
	MaxIdleConns int

	// MaxConnsPerHost limits the total number of connections per host.
	// Zero means no limit.
	MaxConnsPerHost int

	// IdleConnTimeout is the maximum amount of time an idle (keep-alive)
	// connection will remain idle before closing itself.
	IdleConnTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "http://localhost:8080",
		Timeout:         5 * time.Minute,
		MaxIdleConns:    100,
		MaxConnsPerHost: 100,
		IdleConnTimeout: 90 * time.Second,
	}
}

// GenerateConnectionID creates a stable, unique connection ID for this machine.
// It uses hostname + MAC address + OS/Arch to create a deterministic identifier.
func GenerateConnectionID() string {
	var parts []string

	// Hostname
	if hostname, err := os.Hostname(); err == nil {
		parts = append(parts, hostname)
	}

	// Primary MAC address
	if mac := getPrimaryMAC(); mac != "" {
		parts = append(parts, mac)
	}

	// OS and architecture for disambiguation
	parts = append(parts, runtime.GOOS, runtime.GOARCH)

	// Create a stable hash
	data := strings.Join(parts, "|")
	hash := sha256.Sum256([]byte(data))

	// Return first 16 characters of hex-encoded hash
	return hex.EncodeToString(hash[:8])
}

// getPrimaryMAC returns the MAC address of the first non-loopback interface.
func getPrimaryMAC() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return ""
	}

	for _, iface := range interfaces {
		// Skip loopback and interfaces without MAC
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		// Skip virtual interfaces (common patterns)
		name := strings.ToLower(iface.Name)
		if strings.HasPrefix(name, "docker") ||
			strings.HasPrefix(name, "veth") ||
			strings.HasPrefix(name, "br-") ||
			strings.HasPrefix(name, "virbr") {
			continue
		}
		return iface.HardwareAddr.String()
	}

	return ""
}

// GetConnectionInfo returns detailed info about this connection for debugging.
func GetConnectionInfo() map[string]string {
	info := make(map[string]string)

	if hostname, err := os.Hostname(); err == nil {
		info["hostname"] = hostname
	}
	info["os"] = runtime.GOOS
	info["arch"] = runtime.GOARCH
	info["connection_id"] = GenerateConnectionID()

	if mac := getPrimaryMAC(); mac != "" {
		info["mac"] = mac
	}

	return info
}

// New creates a new API client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxConnsPerHost == 0 {
		cfg.MaxConnsPerHost = 100
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}

	// Auto-generate connection ID if not provided
	connectionID := cfg.ConnectionID
	if connectionID == "" {
		connectionID = GenerateConnectionID()
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost / 5, // 20% per host
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableCompression:  false,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		baseURL:      cfg.BaseURL,
		connectionID: connectionID,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
}

// ConnectionID returns the client's connection ID.
func (c *Client) ConnectionID() string {
	return c.connectionID
}

// EvaluateRequest asks the server to score one benchmark.
type EvaluateRequest struct {
	Dataset     string `json:"dataset"`
	Engine      string `json:"engine,omitempty"`
	FeaturesDir string `json:"features_dir,omitempty"`
	Layer       string `json:"layer,omitempty"`
	Ks          []int  `json:"ks,omitempty"`

	// Async returns the running record immediately; poll GetRun for the
	// result.
	Async bool `json:"async,omitempty"`
}

// Run is an evaluation run record.
type Run struct {
	ID          string     `json:"id"`
	Dataset     string     `json:"dataset"`
	Engine      string     `json:"engine"`
	Status      string     `json:"status"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	Ks          []int      `json:"ks,omitempty"`
	Result      *RunResult `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  time.Time  `json:"finished_at"`
}

// RunResult carries the scores of a finished run.
type RunResult struct {
	Tiered *scoring.TieredResult    `json:"tiered,omitempty"`
	Global *scoring.AggregateResult `json:"global,omitempty"`
	MAPVal *float64                 `json:"map_val,omitempty"`
}

// DatasetInfo describes one registered benchmark.
type DatasetInfo struct {
	Name        string `json:"name"`
	NumDatabase int    `json:"num_database"`
	NumQueries  int    `json:"num_queries"`
	Tiered      bool   `json:"tiered"`
}

// StatsPoint is one time-series sample.
type StatsPoint struct {
	Timestamp time.Time `json:"ts"`
	Value     float64   `json:"value"`
}

// StatsResponse carries the server's evaluation time-series.
type StatsResponse struct {
	EvaluationRate    []StatsPoint `json:"evaluation_rate"`
	EvaluationLatency []StatsPoint `json:"evaluation_latency"`
	ExtractRate       []StatsPoint `json:"extract_rate"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// APIError represents an API error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Health checks if the API is healthy.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/healthz", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Evaluate scores a benchmark and returns the run record. With
// EvaluateRequest.Async the record comes back in the running state.
func (c *Client) Evaluate(ctx context.Context, req EvaluateRequest) (*Run, error) {
	var run Run
	if err := c.post(ctx, "/v1/evaluate", req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRun returns a run by id.
func (c *Client) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	if err := c.get(ctx, fmt.Sprintf("/v1/runs/%s", id), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns run records, newest first. A non-empty dataset
// restricts the listing to that benchmark.
func (c *Client) ListRuns(ctx context.Context, dataset string) ([]Run, error) {
	path := "/v1/runs"
	if dataset != "" {
		path += "?dataset=" + url.QueryEscape(dataset)
	}

	var resp struct {
		Runs  []Run `json:"runs"`
		Total int   `json:"total"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// DeleteRun deletes a run record.
func (c *Client) DeleteRun(ctx context.Context, id string) error {
	return c.delete(ctx, fmt.Sprintf("/v1/runs/%s", id))
}

// ListDatasets returns the registered benchmarks.
func (c *Client) ListDatasets(ctx context.Context) ([]DatasetInfo, error) {
	var resp struct {
		Datasets []DatasetInfo `json:"datasets"`
	}
	if err := c.get(ctx, "/v1/datasets", &resp); err != nil {
		return nil, err
	}
	return resp.Datasets, nil
}

// GetDataset returns one benchmark by name.
func (c *Client) GetDataset(ctx context.Context, name string) (*DatasetInfo, error) {
	var info DatasetInfo
	if err := c.get(ctx, fmt.Sprintf("/v1/datasets/%s", name), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Stats returns the server's evaluation time-series.
func (c *Client) Stats(ctx context.Context) (*StatsResponse, error) {
	var resp StatsResponse
	if err := c.get(ctx, "/v1/stats", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// get performs a GET request.
func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, result)
}

// post performs a POST request.
func (c *Client) post(ctx context.Context, path string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.do(req, result)
}

// delete performs a DELETE request.
func (c *Client) delete(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.do(req, nil)
}

// do executes a request.
func (c *Client) do(req *http.Request, result interface{}) error {
	// Add connection ID header to all requests
	if c.connectionID != "" {
		req.Header.Set("X-Connection-ID", c.connectionID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr APIError
		if err := json.Unmarshal(body, &apiErr); err != nil {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
		}
		return &apiErr
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
