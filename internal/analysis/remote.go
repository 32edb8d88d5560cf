package analysis

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/loglens/internal/core"
	"github.com/JonMunkholm/loglens/internal/logging"
)

// DefaultTimeout bounds one call to the analysis service.
const DefaultTimeout = 30 * time.Second

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// HTTPDoer is the part of *http.Client the remote analyzer needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RemoteAnalyzer posts requests to the analysis service and copies its
// verdict into the result without recomputing anything.
type RemoteAnalyzer struct {
	baseURL    string
	routes     Routes
	timeout    time.Duration
	maxPayload int64
	client     HTTPDoer
	now        func() time.Time
}

// NewRemoteAnalyzer validates cfg.BaseURL and returns an analyzer that uses
// client for every call.
func NewRemoteAnalyzer(cfg Config, client HTTPDoer) (*RemoteAnalyzer, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid analysis base URL %q", cfg.BaseURL)
	}
	routes := cfg.Routes
	if len(routes) == 0 {
		routes = DefaultRoutes()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &RemoteAnalyzer{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		routes:     routes,
		timeout:    timeout,
		maxPayload: cfg.MaxPayloadBytes,
		client:     client,
		now:        time.Now,
	}, nil
}

// Endpoint returns the full URL a label is submitted to.
func (a *RemoteAnalyzer) Endpoint(label core.SchemaLabel) string {
	return a.baseURL + a.routes.Route(label)
}

// Analyze submits req and normalizes the reply. Transport failures, non-2xx
// answers, timeouts and bodies that break the response contract are
// submission errors. Nothing is retried.
func (a *RemoteAnalyzer) Analyze(ctx context.Context, req core.AnalysisRequest) (core.NormalizedResult, error) {
	const op = "remote analyze"

	body, err := BuildPayload(req, a.maxPayload)
	if err != nil {
		return core.NormalizedResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	endpoint := a.Endpoint(req.Label)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return core.NormalizedResult{}, core.NewSubmissionError(op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	logger := logging.WithFields(ctx, "endpoint", endpoint, "label", req.Label, "file", req.FileName)
	start := time.Now()

	resp, err := a.client.Do(httpReq)
	if err != nil {
		logger.Warn("analysis request failed", "error", err)
		return core.NormalizedResult{}, core.NewSubmissionError(op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return core.NormalizedResult{}, core.NewSubmissionError(op, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Warn("analysis service rejected request", "status", resp.StatusCode)
		return core.NormalizedResult{}, core.Errorf(core.KindSubmission, op,
			"analysis service returned status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	parsed, err := parseResponse(respBody)
	if err != nil {
		return core.NormalizedResult{}, core.NewSubmissionError(op, err)
	}

	logger.Info("analysis completed",
		"status", parsed.Status,
		"probability", parsed.Probability,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return core.NormalizedResult{
		ID:          uuid.New(),
		SourceName:  req.FileName,
		Label:       req.Label,
		Status:      NormalizeStatus(parsed.Status),
		Probability: parsed.Probability,
		ObservedAt:  a.now().UTC(),
		Metrics:     parsed.Metrics,
		Origin:      core.OriginRemote,
	}, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
