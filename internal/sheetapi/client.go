package sheetapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultUserAgent  = "orderdesk/0.1"
	defaultTimeout    = 15 * time.Second
	defaultRetry      = 1
	defaultRetryDelay = 700 * time.Millisecond
	postContentType   = "text/plain;charset=utf-8"
	maxResponseBytes  = 8 << 20
)

// Options configure a Client. Zero values use the defaults; a negative Retry
// disables retries.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Retry      int
	RetryDelay time.Duration
	Logger     *log.Logger
	Debug      bool
	HTTPClient *http.Client
}

// Client talks to the spreadsheet web app.
type Client struct {
	baseURL    *url.URL
	http       *http.Client
	userAgent  string
	timeout    time.Duration
	retry      int
	retryDelay time.Duration
	logger     *log.Logger
	debug      bool
	now        func() time.Time
}

// NewClient validates the base URL and applies defaults.
func NewClient(opts Options) (*Client, error) {
	base, err := parseBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:    base,
		http:       opts.HTTPClient,
		userAgent:  defaultUserAgent,
		timeout:    opts.Timeout,
		retry:      opts.Retry,
		retryDelay: opts.RetryDelay,
		logger:     opts.Logger,
		debug:      opts.Debug,
		now:        time.Now,
	}
	if c.http == nil {
		// Per-attempt deadlines come from the request context.
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.retry == 0 {
		c.retry = defaultRetry
	} else if c.retry < 0 {
		c.retry = 0
	}
	if c.retryDelay <= 0 {
		c.retryDelay = defaultRetryDelay
	}
	return c, nil
}

// BaseURL returns the normalized endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Request describes one logical API call.
type Request struct {
	Action string
	Method string // GET when empty
	Params map[string]string
	Body   map[string]any
	// Timeout overrides the client timeout for each attempt.
	Timeout time.Duration
	// Retry overrides the client retry count; use NoRetry for zero.
	Retry     *int
	CacheBust bool
}

// NoRetry disables retries for a single request.
func NoRetry() *int {
	zero := 0
	return &zero
}

// Payload is a successful response object, fields still encoded.
type Payload map[string]json.RawMessage

// String returns a string field, rendering numbers as text.
func (p Payload) String(field string) string {
	raw, ok := p[field]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// Rows decodes a required array field.
func (p Payload) Rows(action, field string) ([]any, error) {
	raw, ok := p[field]
	if !ok {
		return nil, NewValidationError(action, fmt.Sprintf("response is missing %q", field))
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, NewValidationError(action, fmt.Sprintf("%q is not an array", field))
	}
	var rows []any
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return nil, NewValidationError(action, fmt.Sprintf("decode %q: %v", field, err))
	}
	return rows, nil
}

// Do performs the request with timeout, retry, and classification.
func (c *Client) Do(ctx context.Context, req Request) (Payload, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if strings.TrimSpace(req.Action) == "" {
		return nil, fmt.Errorf("action is required")
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	retry := c.retry
	if req.Retry != nil {
		retry = max(*req.Retry, 0)
	}
	timeout := c.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	cid := "cid_" + uuid.NewString()
	target := c.buildURL(req, cid)
	var body []byte
	if method != http.MethodGet {
		fields := make(map[string]any, len(req.Body)+1)
		for k, v := range req.Body {
			fields[k] = v
		}
		fields["correlation_id"] = cid
		encoded, err := json.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", req.Action, err)
		}
		body = encoded
	}

	for attempt := 0; ; attempt++ {
		payload, err := c.attempt(ctx, method, target, body, timeout, req.Action, cid)
		if err == nil {
			return payload, nil
		}
		var apiErr *Error
		if attempt >= retry || ctx.Err() != nil || !errors.As(err, &apiErr) || !apiErr.Retryable() {
			c.logf("[api] %s %s failed: %v", req.Action, cid, err)
			return nil, err
		}
		delay := c.retryDelay * time.Duration(attempt+1)
		c.logf("[api] %s %s attempt %d failed, retrying in %s: %v", req.Action, cid, attempt+1, delay, err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, err
		case <-timer.C:
		}
	}
}

func (c *Client) buildURL(req Request, cid string) string {
	u := *c.baseURL
	values := url.Values{}
	values.Set("action", req.Action)
	values.Set("cid", cid)
	if req.CacheBust {
		values.Set("t", strconv.FormatInt(c.now().UnixMilli(), 10))
	}
	for k, v := range req.Params {
		if strings.TrimSpace(v) == "" {
			continue
		}
		values.Set(k, v)
	}
	u.RawQuery = values.Encode()
	return u.String()
}

func (c *Client) attempt(ctx context.Context, method, target string, body []byte, timeout time.Duration, action, cid string) (Payload, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		httpReq.Header.Set("Content-Type", postContentType)
	}

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		return nil, &Error{Kind: KindNetwork, Action: action, CorrelationID: cid, Timeout: timedOut, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		return nil, &Error{Kind: KindNetwork, Action: action, CorrelationID: cid, Status: resp.StatusCode, Timeout: timedOut, Err: err}
	}
	if c.debug {
		c.logf("[api] %s %s %d in %s: %s", action, cid, resp.StatusCode, time.Since(started).Round(time.Millisecond), snippet(raw))
	}
	return classify(action, cid, resp, raw)
}

func classify(action, cid string, resp *http.Response, raw []byte) (Payload, error) {
	if looksLikeHTML(resp.Header.Get("Content-Type"), raw) {
		return nil, &Error{Kind: KindConfig, Action: action, CorrelationID: cid, Status: resp.StatusCode, Body: snippet(raw)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Kind: KindHTTP, Action: action, CorrelationID: cid, Status: resp.StatusCode, Body: snippet(raw)}
	}
	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil || payload == nil {
		if err == nil {
			err = fmt.Errorf("response is not an object")
		}
		return nil, &Error{Kind: KindMalformed, Action: action, CorrelationID: cid, Status: resp.StatusCode, Body: snippet(raw), Err: err}
	}
	if okRaw, present := payload["ok"]; present {
		var ok bool
		if err := json.Unmarshal(okRaw, &ok); err == nil && !ok {
			msg := payload.String("error")
			if msg == "" {
				msg = payload.String("message")
			}
			return nil, &Error{
				Kind:          KindApplication,
				Action:        action,
				CorrelationID: cid,
				Status:        resp.StatusCode,
				Message:       msg,
				RequestID:     payload.String("request_id"),
			}
		}
	}
	return payload, nil
}

func looksLikeHTML(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return true
	}
	head := strings.ToLower(strings.TrimSpace(string(body[:min(len(body), 64)])))
	for _, prefix := range []string{"<!doctype", "<html", "<head"} {
		if strings.HasPrefix(head, prefix) {
			return true
		}
	}
	return false
}

func (c *Client) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

// parseBaseURL normalizes an Apps Script deployment URL so it always targets
// /exec and carries no query or fragment.
func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("api url is empty")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("api url %q has no host", raw)
	}
	path := strings.TrimRight(u.Path, "/")
	switch {
	case strings.HasSuffix(path, "/exec"):
	case strings.HasSuffix(path, "/dev"):
		path = strings.TrimSuffix(path, "/dev") + "/exec"
	default:
		path += "/exec"
	}
	u.Path = path
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
