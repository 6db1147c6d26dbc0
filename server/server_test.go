package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/wasm-boot/bootstrap"
	"github.com/wippyai/wasm-boot/metrics"
)

var bundle = map[string]string{
	"index.html":                   "<html>thoth</html>",
	"main.js":                      "import init, { run_app } from './pkg/thoth_manager.js';",
	"pkg/thoth_manager.js":         "export default function init() {}",
	"pkg/thoth_manager_bg.wasm":    "\x00asm\x01\x00\x00\x00",
	"css/thoth.css":                "body {}",
	"css/bulma-pageloader.min.css": ".pageloader {}",
	"favicon.ico":                  "ico",
	"img/thoth-logo.png":           "png",
}

func writeBundle(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range bundle {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newTestServer(t *testing.T, cfg Config, opts ...Option) *httptest.Server {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = writeBundle(t)
	}
	s, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(body)
}

func TestStaticFiles(t *testing.T) {
	ts := newTestServer(t, Config{})

	tests := []struct {
		path        string
		contentType string
		body        string
	}{
		{"/pkg/thoth_manager_bg.wasm", "application/wasm", bundle["pkg/thoth_manager_bg.wasm"]},
		{"/main.js", "application/javascript", bundle["main.js"]},
		{"/pkg/thoth_manager.js", "application/javascript", bundle["pkg/thoth_manager.js"]},
		{"/css/thoth.css", "text/css; charset=utf-8", bundle["css/thoth.css"]},
		{"/css/bulma-pageloader.min.css", "text/css; charset=utf-8", bundle["css/bulma-pageloader.min.css"]},
		{"/favicon.ico", "image/x-icon", "ico"},
		{"/img/thoth-logo.png", "image/png", "png"},
		{"/", "text/html; charset=utf-8", bundle["index.html"]},
		{"/works/123", "text/html; charset=utf-8", bundle["index.html"]},
		{"/pkg", "text/html; charset=utf-8", bundle["index.html"]},
		{"/../../etc/passwd", "text/html; charset=utf-8", bundle["index.html"]},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, body := get(t, ts.URL+tt.path)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d", resp.StatusCode)
			}
			if got := resp.Header.Get("Content-Type"); got != tt.contentType {
				t.Errorf("Content-Type = %q, want %q", got, tt.contentType)
			}
			if got := resp.Header.Get("Cache-Control"); got != "no-cache" {
				t.Errorf("Cache-Control = %q, want no-cache", got)
			}
			if body != tt.body {
				t.Errorf("body = %q, want %q", body, tt.body)
			}
		})
	}
}

func TestIndexMissing(t *testing.T) {
	dir := t.TempDir()
	ts := newTestServer(t, Config{Dir: dir})

	resp, _ := get(t, ts.URL+"/anything")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when the index is absent", resp.StatusCode)
	}
	if got := resp.Header.Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q", got)
	}
}

func TestPrefix(t *testing.T) {
	ts := newTestServer(t, Config{Prefix: "/admin/", Manifest: DefaultManifest("0.1.0")})

	resp, body := get(t, ts.URL+"/admin/pkg/thoth_manager_bg.wasm")
	if got := resp.Header.Get("Content-Type"); got != "application/wasm" {
		t.Errorf("Content-Type = %q", got)
	}
	if body != bundle["pkg/thoth_manager_bg.wasm"] {
		t.Errorf("body = %q", body)
	}

	_, body = get(t, ts.URL+"/pkg/thoth_manager_bg.wasm")
	if body != bundle["index.html"] {
		t.Errorf("unprefixed path should fall back to index, got %q", body)
	}

	_, body = get(t, ts.URL+"/administrator")
	if body != bundle["index.html"] {
		t.Errorf("prefix must match a whole segment, got %q", body)
	}

	resp, body = get(t, ts.URL+"/admin/manifest.json")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("manifest status = %d", resp.StatusCode)
	}
	var m Manifest
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if m.Scope != "/admin" {
		t.Errorf("scope = %q, want /admin", m.Scope)
	}
}

func TestManifest(t *testing.T) {
	ts := newTestServer(t, Config{Manifest: DefaultManifest("1.2.3")})

	resp, body := get(t, ts.URL+"/manifest.json")
	if got := resp.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := resp.Header.Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q", got)
	}

	var m Manifest
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Name != "Thoth" || m.Version != "1.2.3" {
		t.Errorf("manifest = %+v", m)
	}
	if len(m.Icons) != 6 || m.Icons[5].Sizes != "192x192" {
		t.Errorf("icons = %+v", m.Icons)
	}
	if m.Display != "standalone" || m.StartURL != "." {
		t.Errorf("display/start_url = %q/%q", m.Display, m.StartURL)
	}
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, Config{AllowedOrigins: []string{"https://thoth.pub"}})

	tests := []struct {
		origin     string
		wantOrigin string
	}{
		{"https://thoth.pub", "https://thoth.pub"},
		{"https://evil.example", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run("preflight "+tt.origin, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/pkg/thoth_manager_bg.wasm", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Errorf("status = %d", resp.StatusCode)
			}
			if got := resp.Header.Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
				t.Errorf("Allow-Methods = %q", got)
			}
			if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
		})
	}

	t.Run("wildcard", func(t *testing.T) {
		ts := newTestServer(t, Config{AllowedOrigins: []string{"*"}})
		req, _ := http.NewRequest(http.MethodGet, ts.URL+"/main.js", nil)
		req.Header.Set("Origin", "http://localhost:8000")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:8000" {
			t.Errorf("Allow-Origin = %q", got)
		}
	})

	t.Run("post", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/", "text/plain", strings.NewReader(""))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("POST status = %d", resp.StatusCode)
		}
	})
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		state    func() bootstrap.State
		name     string
		wantBody string
		wantCode int
	}{
		{name: "no state", wantCode: http.StatusOK, wantBody: `"status": "ok"`},
		{name: "running", state: func() bootstrap.State { return bootstrap.Running }, wantCode: http.StatusOK, wantBody: `"state": "running"`},
		{name: "failed", state: func() bootstrap.State { return bootstrap.Failed }, wantCode: http.StatusServiceUnavailable, wantBody: `"status": "failed"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.state != nil {
				opts = append(opts, WithState(tt.state))
			}
			ts := newTestServer(t, Config{}, opts...)

			resp, body := get(t, ts.URL+"/healthz")
			if resp.StatusCode != tt.wantCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			if !strings.Contains(body, tt.wantBody) {
				t.Errorf("body = %s, want %s", body, tt.wantBody)
			}
		})
	}
}

func TestMetricsAndAccessLog(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	core, logs := observer.New(zap.InfoLevel)

	ts := newTestServer(t, Config{}, WithMetrics(m, reg), WithLogger(zap.New(core)))

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/main.js", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("Referer", "https://thoth.pub/")
	req.Header.Set("User-Agent", "boot-test")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("200")); got != 1 {
		t.Errorf("requests{200} = %v, want 1", got)
	}

	entries := logs.FilterMessage("request").All()
	if len(entries) != 1 {
		t.Fatalf("access log entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["client"] != "203.0.113.7" {
		t.Errorf("client = %v", fields["client"])
	}
	if fields["request"] != "GET /main.js HTTP/1.1" {
		t.Errorf("request = %v", fields["request"])
	}
	if fields["status"] != int64(200) {
		t.Errorf("status = %v", fields["status"])
	}
	if fields["bytes"] != int64(len(bundle["main.js"])) {
		t.Errorf("bytes = %v", fields["bytes"])
	}
	if fields["referer"] != "https://thoth.pub/" || fields["user_agent"] != "boot-test" {
		t.Errorf("referer/user_agent = %v/%v", fields["referer"], fields["user_agent"])
	}

	_, body := get(t, ts.URL+"/metrics")
	if !strings.Contains(body, "boot_http_requests_total") {
		t.Error("/metrics should expose boot_http_requests_total")
	}
}

func TestRoutes_Options(t *testing.T) {
	s, err := New(Config{Dir: writeBundle(t), Prefix: "/admin"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		path string
		want string
	}{
		{"/healthz", "/healthz"},
		{"/admin/manifest.json", "/admin/manifest.json"},
	}

	for _, tt := range tests {
		for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
			req := httptest.NewRequest(method, tt.path, nil)
			var match mux.RouteMatch
			if !s.router.Match(req, &match) || match.Route == nil {
				t.Errorf("%s %s: no route", method, tt.path)
				continue
			}
			if got, _ := match.Route.GetPathTemplate(); got != tt.want {
				t.Errorf("%s %s routed to %q, want %q", method, tt.path, got, tt.want)
			}
		}
	}
}

func TestNewStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	var state atomic.Int32
	state.Store(int32(bootstrap.Initializing))

	s := NewStatus(Config{}, WithMetrics(m, reg), WithState(func() bootstrap.State { return bootstrap.State(state.Load()) }))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	resp, body := get(t, ts.URL+"/healthz")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"state": "initializing"`) {
		t.Errorf("healthz = %d %s", resp.StatusCode, body)
	}

	state.Store(int32(bootstrap.Failed))
	resp, body = get(t, ts.URL+"/healthz")
	if resp.StatusCode != http.StatusServiceUnavailable || !strings.Contains(body, `"status": "failed"`) {
		t.Errorf("healthz after failure = %d %s", resp.StatusCode, body)
	}

	if resp, body := get(t, ts.URL+"/metrics"); resp.StatusCode != http.StatusOK || !strings.Contains(body, "boot_http_requests_total") {
		t.Errorf("metrics = %d", resp.StatusCode)
	}

	if resp, _ := get(t, ts.URL+"/index.html"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("status server should not serve bundle files, got %d", resp.StatusCode)
	}
}

func TestNew_RequiresDir(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New without Dir should fail")
	}
}

func TestServe_Shutdown(t *testing.T) {
	s, err := New(Config{Dir: writeBundle(t), KeepAlive: 5 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ctx, ln) }()

	resp, body := get(t, "http://"+ln.Addr().String()+"/")
	if resp.StatusCode != http.StatusOK || body != bundle["index.html"] {
		t.Fatalf("GET / = %d %q", resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestAddr(t *testing.T) {
	s, err := New(Config{Dir: t.TempDir(), Host: "0.0.0.0", Port: 8000})
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Addr(); got != "0.0.0.0:8000" {
		t.Errorf("Addr() = %q", got)
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"a.wasm":    "application/wasm",
		"A.WASM":    "application/wasm",
		"x.tar.gz":  "application/octet-stream",
		"noext":     "application/octet-stream",
		"site.html": "text/html; charset=utf-8",
	}
	for name, want := range tests {
		if got := ContentType(name); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", name, got, want)
		}
	}
}
