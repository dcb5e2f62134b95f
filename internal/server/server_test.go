package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/sitewarden/sitewarden/internal/cache"
	"github.com/sitewarden/sitewarden/internal/gateway"
	"github.com/sitewarden/sitewarden/internal/provider"
	"github.com/sitewarden/sitewarden/internal/quota"
	"github.com/sitewarden/sitewarden/internal/store"
)

// chatStub is a canned ChatClient that counts invocations.
type chatStub struct {
	mu    sync.Mutex
	calls int
	text  string
	err   error
}

func (c *chatStub) Complete(_ context.Context, req *provider.ChatRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	if c.text != "" {
		return c.text, nil
	}
	return "reply: " + req.Prompt, nil
}

func (c *chatStub) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func newTestServer(t *testing.T, chat *chatStub) (*Server, *store.MemoryStore) {
	t.Helper()

	s := store.NewMemoryStore()
	if err := s.Set(context.Background(), store.OptCredential, "gsk_test"); err != nil {
		t.Fatalf("set credential: %v", err)
	}

	c := cache.NewMemoryCache(context.Background())
	t.Cleanup(c.Close)

	gw := gateway.New(s, c, quota.New(s), chat, gateway.Options{})
	return New(gw, Options{DefaultMaxCalls: 3}), s
}

// serve runs the full middleware-wrapped handler on an in-memory listener
// and returns an HTTP client + cleanup.
func serve(t *testing.T, s *Server) (*http.Client, func()) {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()

	go func() {
		_ = fasthttp.Serve(ln, s.Handler())
	}()

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return ln.Dial()
			},
		},
	}

	return client, func() { ln.Close() }
}

func postJSON(t *testing.T, client *http.Client, url, body string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest("POST", url, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("parse body %q: %v", data, err)
	}
}

// --- /v1/generate -----------------------------------------------------------

func TestGenerateEndpoint(t *testing.T) {
	chat := &chatStub{}
	s, _ := newTestServer(t, chat)
	client, cleanup := serve(t, s)
	defer cleanup()

	resp := postJSON(t, client, "http://test/v1/generate", `{"prompt":"diagnose my site"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var env generateResponse
	decodeBody(t, resp, &env)
	if env.Kind != gateway.KindSuccess {
		t.Fatalf("kind = %q, want success", env.Kind)
	}
	if env.Cached {
		t.Error("first call must not be cached")
	}
	if env.CallsRemaining != 2 {
		t.Errorf("calls_remaining = %d, want 2", env.CallsRemaining)
	}
	if env.Provider != "groq" {
		t.Errorf("provider = %q, want groq", env.Provider)
	}

	// Identical prompt: served from cache, counter unchanged.
	resp = postJSON(t, client, "http://test/v1/generate", `{"prompt":"diagnose my site"}`)
	decodeBody(t, resp, &env)
	if !env.Cached {
		t.Error("repeat call should be cached")
	}
	if env.CallsRemaining != 2 {
		t.Errorf("calls_remaining after cache hit = %d, want 2", env.CallsRemaining)
	}
	if chat.callCount() != 1 {
		t.Errorf("upstream calls = %d, want 1", chat.callCount())
	}
}

func TestGenerateEmptyPromptRejected(t *testing.T) {
	s, _ := newTestServer(t, &chatStub{})
	client, cleanup := serve(t, s)
	defer cleanup()

	resp := postJSON(t, client, "http://test/v1/generate", `{"prompt":"   "}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGenerateInvalidJSONRejected(t *testing.T) {
	s, _ := newTestServer(t, &chatStub{})
	client, cleanup := serve(t, s)
	defer cleanup()

	resp := postJSON(t, client, "http://test/v1/generate", `{nope`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGenerateQuotaEnvelope(t *testing.T) {
	s, _ := newTestServer(t, &chatStub{})
	client, cleanup := serve(t, s)
	defer cleanup()

	for _, p := range []string{"a", "b", "c"} {
		resp := postJSON(t, client, "http://test/v1/generate", `{"prompt":"`+p+`"}`)
		resp.Body.Close()
	}

	resp := postJSON(t, client, "http://test/v1/generate", `{"prompt":"d"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 (quota is an envelope, not an HTTP error)", resp.StatusCode)
	}

	var env generateResponse
	decodeBody(t, resp, &env)
	if env.Kind != gateway.KindQuotaExceeded {
		t.Fatalf("kind = %q, want quota_exceeded", env.Kind)
	}
	if !strings.Contains(env.Message, "Upgrade") {
		t.Errorf("message = %q, want the upgrade prompt", env.Message)
	}
	if env.CallsRemaining != 0 {
		t.Errorf("calls_remaining = %d, want 0", env.CallsRemaining)
	}
}

// --- /v1/usage --------------------------------------------------------------

func TestUsageEndpoint(t *testing.T) {
	s, _ := newTestServer(t, &chatStub{})
	client, cleanup := serve(t, s)
	defer cleanup()

	resp := postJSON(t, client, "http://test/v1/generate", `{"prompt":"hello"}`)
	resp.Body.Close()

	req, _ := http.NewRequest("GET", "http://test/v1/usage", nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}

	var stats quota.Stats
	decodeBody(t, resp, &stats)
	if stats.CallsToday != 1 {
		t.Errorf("calls_today = %d, want 1", stats.CallsToday)
	}
	if stats.LastResetDate == "" || stats.NextResetDate == "" {
		t.Errorf("stats = %+v, want reset dates populated", stats)
	}
}

// --- diagnostics endpoints --------------------------------------------------

func TestSpamEndpointHeuristicOnly(t *testing.T) {
	chat := &chatStub{}
	s, _ := newTestServer(t, chat)
	client, cleanup := serve(t, s)
	defer cleanup()

	resp := postJSON(t, client, "http://test/v1/classify/spam",
		`{"content":"Buy viagra now http://a http://b http://c http://d [url=x]","author":"bot"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var verdict struct {
		IsSpam bool `json:"is_spam"`
		UsedAI bool `json:"used_ai"`
	}
	decodeBody(t, resp, &verdict)
	if !verdict.IsSpam || verdict.UsedAI {
		t.Errorf("verdict = %+v, want heuristic spam", verdict)
	}
	if chat.callCount() != 0 {
		t.Errorf("upstream calls = %d, want 0", chat.callCount())
	}
}

func TestConflictsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, &chatStub{})
	client, cleanup := serve(t, s)
	defer cleanup()

	resp := postJSON(t, client, "http://test/v1/diagnostics/conflicts",
		`{"plugins":[{"name":"Wordfence Security","slug":"wordfence","version":"7.11"}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var report struct {
		Conflicts []struct {
			Plugin string `json:"plugin"`
		} `json:"conflicts"`
	}
	decodeBody(t, resp, &report)
	if len(report.Conflicts) != 1 || report.Conflicts[0].Plugin != "Wordfence Security" {
		t.Errorf("report = %+v, want one known-issue conflict", report)
	}
}

func TestSecurityEndpoint(t *testing.T) {
	chat := &chatStub{text: `{"recommendations":["Enable SSL"]}`}
	s, _ := newTestServer(t, chat)
	client, cleanup := serve(t, s)
	defer cleanup()

	resp := postJSON(t, client, "http://test/v1/diagnostics/security",
		`{"core_version":"6.6","latest_core_version":"6.6","ssl_enabled":false,"file_edit_disabled":true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var report struct {
		Score           int      `json:"score"`
		Recommendations []string `json:"recommendations"`
	}
	decodeBody(t, resp, &report)
	if report.Score != 85 {
		t.Errorf("score = %d, want 85", report.Score)
	}
	if len(report.Recommendations) != 1 {
		t.Errorf("recommendations = %v", report.Recommendations)
	}
}

func TestSEOEndpointQuotaReturns429(t *testing.T) {
	s, _ := newTestServer(t, &chatStub{})
	client, cleanup := serve(t, s)
	defer cleanup()

	// Exhaust the shared daily counter.
	for _, p := range []string{"a", "b", "c"} {
		resp := postJSON(t, client, "http://test/v1/generate", `{"prompt":"`+p+`"}`)
		resp.Body.Close()
	}

	resp := postJSON(t, client, "http://test/v1/diagnostics/seo",
		`{"title":"Post","content":"Some content to optimize."}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("429 should carry Retry-After")
	}
}

func TestAutomationUnknownEventRejected(t *testing.T) {
	s, _ := newTestServer(t, &chatStub{})
	client, cleanup := serve(t, s)
	defer cleanup()

	resp := postJSON(t, client, "http://test/v1/automations/trigger", `{"event":"reboot_server"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

// --- middleware and plumbing ------------------------------------------------

func TestRequestIDAndSecurityHeaders(t *testing.T) {
	s, _ := newTestServer(t, &chatStub{})
	client, cleanup := serve(t, s)
	defer cleanup()

	req, _ := http.NewRequest("GET", "http://test/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q, want the client-supplied ID", got)
	}
	if resp.Header.Get("X-Response-Time") == "" {
		t.Error("missing X-Response-Time header")
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestNotFoundEnvelope(t *testing.T) {
	s, _ := newTestServer(t, &chatStub{})
	client, cleanup := serve(t, s)
	defer cleanup()

	req, _ := http.NewRequest("GET", "http://test/no/such/route", nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}

	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeBody(t, resp, &env)
	if env.Error.Code != "not_found" {
		t.Errorf("code = %q, want not_found", env.Error.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t, &chatStub{})

	ctx := &fasthttp.RequestCtx{}
	s.handleHealth(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Errorf("expected 200, got %d", ctx.Response.StatusCode())
	}

	var resp map[string]string
	if err := json.Unmarshal(ctx.Response.Body(), &resp); err != nil {
		t.Fatalf("failed to parse health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status=ok, got %v", resp["status"])
	}
}

func TestWriteJSON(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	writeJSON(ctx, map[string]string{"key": "value"})

	if string(ctx.Response.Header.ContentType()) != "application/json" {
		t.Errorf("expected application/json, got %s", string(ctx.Response.Header.ContentType()))
	}

	var resp map[string]string
	if err := json.Unmarshal(ctx.Response.Body(), &resp); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if resp["key"] != "value" {
		t.Errorf("expected key=value, got %v", resp["key"])
	}
}
