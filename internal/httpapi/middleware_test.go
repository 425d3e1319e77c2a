package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"learnhub.dev/internal/obs"
)

func TestRateLimitExceeded(t *testing.T) {
	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequestID(RateLimit(base, 1, 1))

	req := httptest.NewRequest(http.MethodPost, "/v1/session/login", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, req.Clone(context.Background()))
	if rr1.Code != http.StatusOK {
		t.Fatalf("expected first call 200, got %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, req.Clone(context.Background()))
	if rr2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr2.Code)
	}
	if rr2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}

	var body map[string]any
	if err := json.Unmarshal(rr2.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode rate limit body: %v", err)
	}
	if body["error"] == "" || body["error"] == nil {
		t.Fatalf("expected error message in body")
	}
	if body["request_id"] == "" || body["request_id"] == nil {
		t.Fatalf("expected request_id in body")
	}
}

func TestRateLimitIsPerClient(t *testing.T) {
	handler := RateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), 1, 1)

	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/session/login", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", addr, rr.Code)
		}
	}
}

func TestLoggingJSONEmitsStructuredEntry(t *testing.T) {
	var buf bytes.Buffer
	restore := obs.SetOutput(&buf)
	defer restore()

	handler := RequestID(LoggingJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("ok"))
	})))

	req := httptest.NewRequest(http.MethodGet, "/log-test", nil)
	req.Header.Set("User-Agent", "middleware-test")
	req.RemoteAddr = "127.0.0.1:1234"

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req.Clone(context.Background()))

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log line")
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log is not valid JSON: %v", err)
	}
	for _, key := range []string{"ts", "level", "msg", "request_id", "method", "path", "status", "duration_ms"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("expected key %q in log entry", key)
		}
	}
	if entry["msg"] != "request_complete" {
		t.Fatalf("unexpected msg: %v", entry["msg"])
	}
	if entry["status"] != float64(http.StatusTeapot) {
		t.Fatalf("unexpected status: %v", entry["status"])
	}
	if entry["request_id"] != rr.Header().Get(requestIDHeader) {
		t.Fatalf("request id mismatch: log=%v header=%q", entry["request_id"], rr.Header().Get(requestIDHeader))
	}
}

func TestRequestIDPropagatesInbound(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if got := rr.Header().Get(requestIDHeader); got != "req-42" {
		t.Fatalf("expected inbound request id, got %q", got)
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Cache-Control"} {
		if rr.Header().Get(h) == "" {
			t.Fatalf("expected %s header", h)
		}
	}
}
