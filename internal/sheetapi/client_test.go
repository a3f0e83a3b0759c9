package sheetapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"
	"time"
)

func newTestClient(t *testing.T, url string, retry int) *Client {
	t.Helper()
	c, err := NewClient(Options{BaseURL: url, Retry: retry, RetryDelay: time.Millisecond, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return c
}

func TestParseBaseURL_Normalizes(t *testing.T) {
	cases := map[string]string{
		"https://script.google.com/macros/s/abc/dev":            "https://script.google.com/macros/s/abc/exec",
		"https://script.google.com/macros/s/abc/exec?x=1#frag":  "https://script.google.com/macros/s/abc/exec",
		"https://script.google.com/macros/s/abc/":               "https://script.google.com/macros/s/abc/exec",
		"script.google.com/macros/s/abc":                        "https://script.google.com/macros/s/abc/exec",
		"http://127.0.0.1:8080":                                 "http://127.0.0.1:8080/exec",
	}
	for in, want := range cases {
		u, err := parseBaseURL(in)
		if err != nil {
			t.Fatalf("parseBaseURL(%q) returned error: %v", in, err)
		}
		if u.String() != want {
			t.Fatalf("parseBaseURL(%q) = %q, want %q", in, u.String(), want)
		}
	}
	if _, err := parseBaseURL("  "); err == nil {
		t.Fatalf("expected error for empty url")
	}
}

func TestDo_GetCarriesCorrelationAndCacheBust(t *testing.T) {
	t.Parallel()

	var gotPath, gotAction, gotCID, gotT, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		q := r.URL.Query()
		gotAction, gotCID, gotT = q.Get("action"), q.Get("cid"), q.Get("t")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"categories":[{"category":"DAIRY"}],"updated_at":"2024-01-01T00:00:00Z"}`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 1)
	set, err := c.FetchCategories(context.Background())
	if err != nil {
		t.Fatalf("FetchCategories returned error: %v", err)
	}
	if gotPath != "/exec" {
		t.Fatalf("path = %q, want /exec", gotPath)
	}
	if gotAction != ActionCategories {
		t.Fatalf("action = %q", gotAction)
	}
	if !strings.HasPrefix(gotCID, "cid_") {
		t.Fatalf("cid = %q, want cid_ prefix", gotCID)
	}
	if gotT == "" {
		t.Fatalf("expected cache-busting t parameter")
	}
	if gotUA != defaultUserAgent {
		t.Fatalf("user agent = %q", gotUA)
	}
	if len(set.Rows) != 1 || set.UpdatedAt != "2024-01-01T00:00:00Z" {
		t.Fatalf("unexpected row set: %+v", set)
	}
}

func TestDo_PostSendsPlainTextJSONWithCorrelationID(t *testing.T) {
	t.Parallel()

	var gotType, gotCID string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		gotCID = r.URL.Query().Get("cid")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 1)
	if err := c.UpdateOrderStatus(context.Background(), "ORD-1", "Complete"); err != nil {
		t.Fatalf("UpdateOrderStatus returned error: %v", err)
	}
	if gotType != postContentType {
		t.Fatalf("content type = %q", gotType)
	}
	if gotBody["correlation_id"] != gotCID {
		t.Fatalf("correlation_id = %v, want %q", gotBody["correlation_id"], gotCID)
	}
	if gotBody["order_id"] != "ORD-1" || gotBody["status"] != "Complete" {
		t.Fatalf("unexpected body: %v", gotBody)
	}
}

func TestDo_ClassifiesFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		handler   http.HandlerFunc
		kind      Kind
		wantCalls int32
	}{
		{
			name: "html content type",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				_, _ = io.WriteString(w, "<p>sign in</p>")
			},
			kind:      KindConfig,
			wantCalls: 1,
		},
		{
			name: "html sniffed even on 500",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = io.WriteString(w, "  <!DOCTYPE html><html></html>")
			},
			kind:      KindConfig,
			wantCalls: 1,
		},
		{
			name: "server error is retried",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusBadGateway)
			},
			kind:      KindHTTP,
			wantCalls: 2,
		},
		{
			name: "client error is not retried",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "missing", http.StatusNotFound)
			},
			kind:      KindHTTP,
			wantCalls: 1,
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, "{not json")
			},
			kind:      KindMalformed,
			wantCalls: 1,
		},
		{
			name: "application failure",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"ok":false,"error":"sheet locked","request_id":"req-9"}`)
			},
			kind:      KindApplication,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				tt.handler(w, r)
			}))
			defer server.Close()

			c := newTestClient(t, server.URL, 1)
			_, err := c.Do(context.Background(), Request{Action: "ping"})
			var apiErr *Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if apiErr.Kind != tt.kind {
				t.Fatalf("kind = %s, want %s", apiErr.Kind, tt.kind)
			}
			if got := atomic.LoadInt32(&calls); got != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestDo_ApplicationErrorCarriesMessageAndRequestID(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"ok":false,"error":"store is required","request_id":"req-42"}`)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, 1).SubmitOrder(context.Background(), Submission{})
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Message != "store is required" || apiErr.RequestID != "req-42" {
		t.Fatalf("unexpected error fields: %+v", apiErr)
	}
	if got := apiErr.UserMessage(); !strings.Contains(got, "Request ID: req-42") {
		t.Fatalf("UserMessage = %q, want request id", got)
	}
}

func TestDo_HTTPErrorTruncatesBody(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", 500)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, long, http.StatusForbidden)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, 1).Do(context.Background(), Request{Action: "x"})
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Status != http.StatusForbidden || len(apiErr.Body) != bodySnippetLimit {
		t.Fatalf("status=%d body len=%d", apiErr.Status, len(apiErr.Body))
	}
}

func TestSnippetKeepsRunesWhole(t *testing.T) {
	// 199 ASCII bytes put the two-byte "é" across the limit.
	body := strings.Repeat("a", bodySnippetLimit-1) + strings.Repeat("é", 10)
	got := snippet([]byte(body))
	if !utf8.ValidString(got) {
		t.Fatalf("snippet split a rune: %q", got[len(got)-4:])
	}
	if len(got) != bodySnippetLimit-1 {
		t.Fatalf("len = %d, want %d", len(got), bodySnippetLimit-1)
	}

	short := "ünïcode"
	if got := snippet([]byte("  " + short + "\n")); got != short {
		t.Fatalf("short body = %q", got)
	}
}

func TestDo_TimeoutIsRetriedThenSurfaces(t *testing.T) {
	t.Parallel()
	var calls int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	c, err := NewClient(Options{BaseURL: server.URL, Retry: 2, RetryDelay: time.Millisecond, Timeout: 30 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	_, err = c.Do(context.Background(), Request{Action: "slow"})
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Kind != KindNetwork || !apiErr.Timeout {
		t.Fatalf("expected timeout network error, got %+v", apiErr)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestSubmitOrder_IsNeverRetried(t *testing.T) {
	t.Parallel()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, 3).SubmitOrder(context.Background(), Submission{Store: "North"})
	if !IsKind(err, KindHTTP) {
		t.Fatalf("expected http error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestFetchProducts_RejectsNonArray(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"products":"not-an-array"}`)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, 1).FetchProducts(context.Background())
	if !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestListOrders_ItemsOptional(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"orders":[{"id":"A"}],"updated_at":"u1"}`)
	}))
	defer server.Close()

	rows, err := newTestClient(t, server.URL, 1).ListOrders(context.Background())
	if err != nil {
		t.Fatalf("ListOrders returned error: %v", err)
	}
	if len(rows.Orders) != 1 || rows.Items != nil || rows.UpdatedAt != "u1" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestDescribeAddsHint(t *testing.T) {
	err := &Error{Kind: KindConfig, Action: "products"}
	got := Describe(err)
	if !strings.Contains(got, "HTML instead of JSON") || !strings.Contains(got, "deployment permissions") {
		t.Fatalf("Describe = %q", got)
	}
	if Describe(errors.New("plain")) != "plain" {
		t.Fatalf("plain errors should pass through")
	}
}
