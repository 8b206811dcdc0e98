package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	defaultDiagnosePath   = "/diagnose"
	defaultHealthPath     = "/"
	defaultConnectTimeout = 10 * time.Second
	// Model inference on a full recording is slow; the read timeout must
	// cover it.
	defaultReadTimeout = 300 * time.Second
)

// ErrorKind discriminates diagnosis failure causes.
type ErrorKind string

const (
	KindNetwork      ErrorKind = "network"
	KindTimeout      ErrorKind = "timeout"
	KindStatus       ErrorKind = "status"
	KindDecode       ErrorKind = "decode"
	KindMissingField ErrorKind = "missing_field"
)

// DiagnoseError reports a failed diagnosis attempt with its cause kind.
type DiagnoseError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *DiagnoseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("diagnosis failed (%s): %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("diagnosis failed (%s): %s", e.Kind, e.Message)
}

func (e *DiagnoseError) Unwrap() error { return e.Err }

// Config holds diagnosis client settings, constructed once at startup.
type Config struct {
	BaseURL        string
	DiagnosePath   string
	HealthPath     string
	Enabled        bool
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Client calls the external diagnosis service. A disabled client returns a
// fixed mock response and never touches the network, for environments
// without a live AI backend.
type Client struct {
	baseURL      string
	diagnosePath string
	healthPath   string
	enabled      bool
	httpClient   *http.Client
}

// NewClient constructs the diagnosis client.
func NewClient(cfg Config) *Client {
	diagnosePath := strings.TrimSpace(cfg.DiagnosePath)
	if diagnosePath == "" {
		diagnosePath = defaultDiagnosePath
	}
	healthPath := strings.TrimSpace(cfg.HealthPath)
	if healthPath == "" {
		healthPath = defaultHealthPath
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	return &Client{
		baseURL:      strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		diagnosePath: diagnosePath,
		healthPath:   healthPath,
		enabled:      cfg.Enabled,
		httpClient: &http.Client{
			Timeout: readTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
	}
}

// Diagnose performs a single synchronous diagnosis call. There is no
// automatic retry; a failed attempt surfaces to the caller as-is.
func (c *Client) Diagnose(ctx context.Context, request DiagnoseRequest) (DiagnoseResponse, error) {
	if !c.enabled {
		slog.Warn("ai client disabled, returning mock diagnosis")
		return mockResponse(), nil
	}

	body, err := json.Marshal(request)
	if err != nil {
		return DiagnoseResponse{}, &DiagnoseError{Kind: KindDecode, Message: "encode request", Err: err}
	}
	url := c.baseURL + c.diagnosePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return DiagnoseResponse{}, &DiagnoseError{Kind: KindNetwork, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return DiagnoseResponse{}, &DiagnoseError{Kind: KindTimeout, Message: "diagnosis request timed out", Err: err}
		}
		return DiagnoseResponse{}, &DiagnoseError{Kind: KindNetwork, Message: "reach ai server at " + c.baseURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return DiagnoseResponse{}, &DiagnoseError{
			Kind:    KindStatus,
			Message: fmt.Sprintf("ai server returned %s: %s", resp.Status, strings.TrimSpace(string(snippet))),
		}
	}

	var out DiagnoseResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return DiagnoseResponse{}, &DiagnoseError{Kind: KindDecode, Message: "decode diagnosis response", Err: err}
	}
	if len(out.Accuracy) == 0 {
		msg := "diagnosis response missing accuracy"
		if out.Error != "" {
			msg += ": " + out.Error
		}
		return DiagnoseResponse{}, &DiagnoseError{Kind: KindMissingField, Message: msg}
	}
	return out, nil
}

// HealthCheck probes the diagnosis service and folds any failure into the
// returned status string, matching the operator-facing health endpoint.
func (c *Client) HealthCheck(ctx context.Context) string {
	if !c.enabled {
		return "ai service disabled"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.healthPath, nil)
	if err != nil {
		return "ai server unreachable: " + err.Error()
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "ai server unreachable: " + err.Error()
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "ai server error: " + resp.Status
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	status := strings.TrimSpace(string(body))
	if status == "" {
		status = "ok"
	}
	return status
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// mockResponse satisfies the same shape contract as a real diagnosis.
func mockResponse() DiagnoseResponse {
	return DiagnoseResponse{
		Accuracy: []float64{0.05, 0.10, 0.85},
		ASR:      "mock transcript (ai service disabled)",
		Risk:     []string{"low", "low", "low", "low"},
		Explain: []string{
			"mock stroke assessment",
			"mock dementia assessment",
			"mock parkinson assessment",
			"mock als assessment",
		},
		Total:   "Mock overall assessment.",
		Summary: "Mock history summary.",
		Status:  "success",
	}
}
