// Package httpclient is the JSON-over-HTTP plumbing shared by the accounts
// and todo clients: URL resolution, bearer headers, status checks, error
// mapping, tracing spans, latency metrics and an optional circuit breaker.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"portal/internal/platform/logger"
	"portal/internal/platform/metrics"
	dErrors "portal/pkg/domain-errors"
	"portal/pkg/platform/circuit"
	"portal/pkg/platform/sentinel"
	"portal/pkg/requestcontext"
)

// HeaderRequestID forwards the invocation's correlation id to the API.
const HeaderRequestID = "X-Request-ID"

const tracerName = "portal/internal/platform/httpclient"

// Client issues JSON requests against one API base URL.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	tracer     trace.Tracer
	userAgent  string
	breaker    *circuit.Breaker
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-request timeout of the underlying http.Client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithBreaker short-circuits requests while the API keeps failing.
// Transport errors and 5xx responses count as failures.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New parses baseURL and builds a client.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("baseURL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	c := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		tracer:     otel.Tracer(tracerName),
		userAgent:  "portal",
		logger:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Request describes one API call.
type Request struct {
	// Operation names the call in spans, metrics and error messages.
	Operation string
	Method    string
	Path      string
	// Token, when set, is sent as a bearer credential.
	Token string
	Body  any
	// Out receives the decoded JSON body of a successful response.
	Out any
	// Expect lists accepted statuses. Empty means any 2xx.
	Expect []int
}

// StatusError is the cause attached to errors produced by unexpected statuses.
type StatusError struct {
	Operation string
	Status    int
	Detail    string
	Fields    map[string][]string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Operation, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: status %d", e.Operation, e.Status)
}

// StatusOf returns the HTTP status behind err, or 0 when no response was received.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// Do performs req and returns the response status (0 when none was received).
func (c *Client) Do(ctx context.Context, req Request) (status int, err error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, req.Operation, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.Path),
		))
	defer func() {
		metrics.ObserveAPIRequest(req.Operation, status, start)
		if status > 0 {
			span.SetAttributes(attribute.Int("http.response.status_code", status))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.breaker != nil && !c.breaker.Allow() {
		return 0, dErrors.Wrap(sentinel.ErrUnavailable, dErrors.CodeUnavailable, req.Operation+": API circuit open")
	}

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(httpReq)
	c.record(ctx, resp, err)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, dErrors.Wrap(err, dErrors.CodeTimeout, req.Operation+" timed out")
		}
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, req.Operation+" request failed")
	}
	defer resp.Body.Close()

	if !accepted(resp.StatusCode, req.Expect) {
		return resp.StatusCode, statusError(req.Operation, resp)
	}

	if req.Out == nil || resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusResetContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(req.Out); err != nil {
		return resp.StatusCode, dErrors.Wrap(err, dErrors.CodeInternal, req.Operation+": decode response")
	}
	return resp.StatusCode, nil
}

func (c *Client) record(ctx context.Context, resp *http.Response, err error) {
	if c.breaker == nil {
		return
	}
	if err != nil || resp.StatusCode >= 500 {
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.logger.WarnContext(ctx, "API circuit opened", "breaker", c.breaker.Name())
		}
		return
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "API circuit closed", "breaker", c.breaker.Name())
	}
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	resolved := *c.baseURL
	basePath := strings.TrimSuffix(c.baseURL.Path, "/")
	resolved.Path = path.Clean(basePath + "/" + strings.TrimPrefix(req.Path, "/"))
	// The API routes end with a slash and redirects would drop the body.
	if strings.HasSuffix(req.Path, "/") && !strings.HasSuffix(resolved.Path, "/") {
		resolved.Path += "/"
	}

	var body io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, req.Operation+": marshal request")
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, resolved.String(), body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, req.Operation+": create request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	if id := requestcontext.RequestID(ctx); id != "" {
		httpReq.Header.Set(HeaderRequestID, id)
	}
	return httpReq, nil
}

func accepted(status int, expect []int) bool {
	if len(expect) == 0 {
		return status >= 200 && status < 300
	}
	return slices.Contains(expect, status)
}

// statusError reads the error envelope. The API answers either
// {"detail": "..."} or a map of field name to messages.
func statusError(operation string, resp *http.Response) error {
	se := &StatusError{Operation: operation, Status: resp.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var envelope map[string]json.RawMessage
	if len(raw) > 0 && json.Unmarshal(raw, &envelope) == nil {
		for field, value := range envelope {
			if field == "detail" {
				_ = json.Unmarshal(value, &se.Detail)
				continue
			}
			var msgs []string
			if json.Unmarshal(value, &msgs) != nil {
				var single string
				if json.Unmarshal(value, &single) != nil {
					continue
				}
				msgs = []string{single}
			}
			if se.Fields == nil {
				se.Fields = make(map[string][]string)
			}
			se.Fields[field] = msgs
		}
	} else if len(raw) > 0 {
		se.Detail = strings.TrimSpace(string(raw))
	}

	code := codeForStatus(resp.StatusCode)
	de := dErrors.Wrap(se, code, operation+" failed")
	if code == dErrors.CodeValidation {
		de.Fields = se.Fields
	}
	return de
}

func codeForStatus(status int) dErrors.Code {
	switch {
	case status == http.StatusBadRequest:
		return dErrors.CodeValidation
	case status == http.StatusUnauthorized:
		return dErrors.CodeUnauthorized
	case status == http.StatusForbidden:
		return dErrors.CodeForbidden
	case status == http.StatusNotFound:
		return dErrors.CodeNotFound
	case status == http.StatusConflict:
		return dErrors.CodeConflict
	case status >= 500:
		return dErrors.CodeUnavailable
	default:
		return dErrors.CodeInternal
	}
}
