// Package api is the REST collaborator that serves persisted feedback discussions.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"threadsync/internal/log"
	"threadsync/internal/metrics"
	"threadsync/internal/tracing"
	"threadsync/pkg/interfaces"
	"threadsync/pkg/types"
)

const maxErrorBody = 512

// ARCHITECTURAL DISCOVERY: the client is a thin adapter from the feedback endpoint to
// interfaces.HistorySource; no retries or caching live here
type Client struct {
	baseURL *url.URL
	http    *http.Client
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMetrics records fetch latency on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTracer wraps each fetch in a span.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// NewClient builds a client for the API rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: timeout},
		tracer:  tracing.Noop().Tracer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Feedback fetches the full feedback document for threadID.
// A 404 is reported as interfaces.ErrNotFound.
func (c *Client) Feedback(ctx context.Context, threadID string) (*types.Feedback, error) {
	if err := types.ValidateThreadID(threadID); err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "api.feedback",
		trace.WithAttributes(tracing.AttrThreadID.String(threadID)))
	defer span.End()

	start := time.Now()
	fb, err := c.fetch(ctx, threadID)
	outcome := "ok"
	switch {
	case err == nil:
	case isNotFound(err):
		outcome = "not_found"
	default:
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
	}
	c.metrics.HistoryFetch(outcome, time.Since(start))
	log.Debug(log.CatAPI, "feedback fetched", "thread", threadID, "outcome", outcome, "took", time.Since(start))

	return fb, err
}

// ThreadHistory returns the discussion snapshot of threadID.
func (c *Client) ThreadHistory(ctx context.Context, threadID string) ([]types.Message, error) {
	fb, err := c.Feedback(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return fb.Discussions, nil
}

func (c *Client) fetch(ctx context.Context, threadID string) (*types.Feedback, error) {
	endpoint := c.baseURL.JoinPath("api", "feedback", url.PathEscape(threadID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("feedback %s: %w", threadID, interfaces.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Warn(log.CatAPI, "feedback request failed", "thread", threadID, "status", resp.StatusCode, "body", strings.TrimSpace(string(body)))
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	var fb types.Feedback
	if err := json.NewDecoder(resp.Body).Decode(&fb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeResponse, err)
	}
	return &fb, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, interfaces.ErrNotFound)
}

var _ interfaces.HistorySource = (*Client)(nil)
