package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gaspardpetit/chatfront/internal/backend"
	"github.com/gaspardpetit/chatfront/internal/config"
	"github.com/gaspardpetit/chatfront/internal/serverstate"
	"github.com/gaspardpetit/chatfront/internal/session"
)

func newTestServer(t *testing.T, cfg config.ProxyConfig) *httptest.Server {
	t.Helper()
	be := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/models":
			_, _ = w.Write([]byte(`{"models":[{"name":"m1"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(be.Close)
	cfg.SetDefaults()
	cfg.BackendURL = be.URL
	h, err := New(cfg, Deps{
		Backend:  backend.New(be.URL, BackendTimeouts(cfg), nil),
		Sessions: session.NewManager(session.NewMemoryStore(), SessionOptions(cfg)),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	client := &http.Client{
		Timeout:       5 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

func TestMetricsEndpointDefaultPort(t *testing.T) {
	ts := newTestServer(t, config.ProxyConfig{Port: 8080})
	_, _ = get(t, ts.URL+"/health")
	resp, body := get(t, ts.URL+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, `chatfront_backend_requests_total{op="health",outcome="ok"}`) {
		t.Fatalf("backend metric missing:\n%s", body)
	}
}

func TestMetricsEndpointSeparatePort(t *testing.T) {
	ts := newTestServer(t, config.ProxyConfig{Port: 8080, MetricsAddr: ":9090"})
	resp, _ := get(t, ts.URL+"/metrics")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestRoutesMounted(t *testing.T) {
	ts := newTestServer(t, config.ProxyConfig{})
	cases := []struct {
		path   string
		status int
		want   string
	}{
		{"/health", http.StatusOK, `"healthy"`},
		{"/healthz", http.StatusOK, `"ok"`},
		{"/api/models", http.StatusOK, `"m1"`},
		{"/api/me", http.StatusUnauthorized, "Unauthorized"},
		{"/api/openapi.json", http.StatusOK, `"openapi"`},
		{"/login", http.StatusOK, `action="/login"`},
		{"/static/chat.js", http.StatusOK, "/api/stream"},
	}
	for _, tc := range cases {
		resp, body := get(t, ts.URL+tc.path)
		if resp.StatusCode != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.path, tc.status, resp.StatusCode)
		}
		if !strings.Contains(body, tc.want) {
			t.Fatalf("%s: missing %q in %s", tc.path, tc.want, body)
		}
	}
	resp, _ := get(t, ts.URL+"/dashboard")
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/login" {
		t.Fatalf("dashboard: %d %s", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func TestHealthzDraining(t *testing.T) {
	ts := newTestServer(t, config.ProxyConfig{})
	serverstate.StartDrain()
	defer serverstate.Reset()
	resp, body := get(t, ts.URL+"/healthz")
	if resp.StatusCode != http.StatusServiceUnavailable || !strings.Contains(body, "draining") {
		t.Fatalf("healthz: %d %s", resp.StatusCode, body)
	}
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, config.ProxyConfig{Origins: []string{"https://app.example"}})
	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/stream", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	_ = resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("allow origin %q", got)
	}
}
