package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/grundstein/gas/internal/api"
	"github.com/grundstein/gas/internal/cli/config"
	"github.com/grundstein/gas/internal/loader"
	"github.com/grundstein/gas/internal/web/cache"
)

func testConfig(t *testing.T, project string) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("failed to load default config: %v", err)
	}
	cfg.API.Dir = filepath.Join(project, "api")
	return cfg
}

func startGateway(t *testing.T, cfg *config.Config, registry *loader.Registry) *gateway {
	t.Helper()
	g, err := newGateway(context.Background(), cfg, registry, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create gateway: %v", err)
	}
	t.Cleanup(g.close)
	return g
}

func get(g *gateway, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for name, values := range header {
		req.Header[name] = values
	}
	rec := httptest.NewRecorder()
	g.handler.ServeHTTP(rec, req)
	return rec
}

func TestGateway_ServesCollection(t *testing.T) {
	cfg := testConfig(t, newProject(t, defaultInitOptions()))
	g := startGateway(t, cfg, loader.NewRegistry())

	rec := get(g, "http://localhost/v1/posts?published=true", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var posts []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &posts); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if len(posts) != 1 || posts[0]["slug"] != "hello-world" {
		t.Errorf("expected only the published post, got %v", posts)
	}

	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("expected default CORS origin, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id")
	}
}

func TestGateway_StaticHandler(t *testing.T) {
	cfg := testConfig(t, newProject(t, defaultInitOptions()))
	g := startGateway(t, cfg, loader.NewRegistry())

	rec := get(g, "http://localhost/v1/hello", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Hello from gas") {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestGateway_ExecHandler(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell handlers need a POSIX shell")
	}
	cfg := testConfig(t, newProject(t, defaultInitOptions()))
	g := startGateway(t, cfg, loader.NewRegistry())

	rec := get(g, "http://localhost/v1/now", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"time"`) {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestGateway_NotFound(t *testing.T) {
	cfg := testConfig(t, newProject(t, defaultInitOptions()))
	g := startGateway(t, cfg, loader.NewRegistry())

	tests := []struct {
		target string
		prefix string
	}{
		{"http://unknown.host/v1/posts", "No api for this host available."},
		{"http://localhost/v9/posts", "Api request urls must start with a version. supported: v1"},
		{"http://localhost/v1/missing", "Function not found. Got: missing"},
	}

	for _, tt := range tests {
		rec := get(g, tt.target, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status 404, got %d", tt.target, rec.Code)
		}
		if !strings.HasPrefix(rec.Body.String(), tt.prefix) {
			t.Errorf("%s: expected body starting with %q, got %q", tt.target, tt.prefix, rec.Body.String())
		}
	}
}

func TestGateway_RegisteredHandlerWins(t *testing.T) {
	registry := loader.NewRegistry()
	err := registry.RegisterFunc("localhost/v1/hello", func(rc *api.RequestContext) (*api.Response, error) {
		return api.Text(http.StatusOK, "compiled in"), nil
	})
	if err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(t, newProject(t, defaultInitOptions()))
	g := startGateway(t, cfg, registry)

	rec := get(g, "http://localhost/v1/hello", nil)
	if rec.Body.String() != "compiled in" {
		t.Errorf("expected registered handler, got %q", rec.Body.String())
	}
}

func TestGateway_SingleTenant(t *testing.T) {
	o := defaultInitOptions()
	o.Layout = api.SingleTenant.String()
	cfg := testConfig(t, newProject(t, o))
	cfg.API.Layout = o.Layout
	g := startGateway(t, cfg, loader.NewRegistry())

	for _, host := range []string{"localhost", "example.com"} {
		rec := get(g, "http://"+host+"/v1/hello", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", host, rec.Code)
		}
	}
}

func TestGateway_CachedResponsesAnswerConditionalRequests(t *testing.T) {
	cfg := testConfig(t, newProject(t, defaultInitOptions()))
	cfg.Cache.Backend = cache.BackendMemory
	g := startGateway(t, cfg, loader.NewRegistry())

	first := get(g, "http://localhost/v1/posts", nil)
	etag := first.Header().Get("ETag")
	if etag == "" {
		t.Fatal("expected an ETag on cached collection responses")
	}

	second := get(g, "http://localhost/v1/posts", http.Header{"If-None-Match": {etag}})
	if second.Code != http.StatusNotModified {
		t.Errorf("expected status 304, got %d", second.Code)
	}
	if second.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", second.Body.String())
	}
}

func TestGateway_ReloadEndpoint(t *testing.T) {
	cfg := testConfig(t, newProject(t, defaultInitOptions()))
	g := startGateway(t, cfg, loader.NewRegistry())
	if g.reloads != nil {
		t.Error("expected no reload server without watch")
	}

	cfg = testConfig(t, newProject(t, defaultInitOptions()))
	cfg.API.Watch = true
	g = startGateway(t, cfg, loader.NewRegistry())
	if g.reloads == nil {
		t.Fatal("expected a reload server with watch")
	}

	// a plain GET is not a websocket handshake
	rec := get(g, "http://localhost/_reload", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for a non-websocket request, got %d", rec.Code)
	}
}

func TestGateway_Rebuild(t *testing.T) {
	project := newProject(t, defaultInitOptions())
	cfg := testConfig(t, project)
	g := startGateway(t, cfg, loader.NewRegistry())

	extra := filepath.Join(project, "api", "localhost", "v1", "extra.yaml")
	if err := os.WriteFile(extra, []byte("body: added later\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if rec := get(g, "http://localhost/v1/extra", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 before the rebuild, got %d", rec.Code)
	}
	if _, err := g.reloader.Reload(context.Background(), []string{extra}); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if rec := get(g, "http://localhost/v1/extra", nil); rec.Body.String() != "added later" {
		t.Errorf("expected the new handler after the rebuild, got %q", rec.Body.String())
	}
}

func TestNewGateway_BuildFailure(t *testing.T) {
	// a file where the api directory should be
	file := filepath.Join(t.TempDir(), "api")
	if err := os.WriteFile(file, []byte("not a directory"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(t, t.TempDir())
	cfg.API.Dir = file

	if _, err := newGateway(context.Background(), cfg, loader.NewRegistry(), zap.NewNop()); err == nil {
		t.Error("expected error when the api directory cannot be read")
	}
}

func TestNewGateway_UnknownCacheBackend(t *testing.T) {
	cfg := testConfig(t, newProject(t, defaultInitOptions()))
	cfg.Cache.Backend = "memcached"

	if _, err := newGateway(context.Background(), cfg, loader.NewRegistry(), zap.NewNop()); err == nil {
		t.Error("expected error for unknown cache backend")
	}
}

func TestGateway_Servers(t *testing.T) {
	cfg := testConfig(t, newProject(t, defaultInitOptions()))
	cfg.Server.Port = 2351
	cfg.Metrics.Address = "127.0.0.1:0"
	g := startGateway(t, cfg, loader.NewRegistry())

	servers, err := g.servers()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("expected api and metrics servers, got %d", len(servers))
	}
	if servers[0].Name() != "api" || servers[1].Name() != "metrics" {
		t.Errorf("unexpected server names %s, %s", servers[0].Name(), servers[1].Name())
	}
	if servers[0].URL() != "http://127.0.0.1:2351" {
		t.Errorf("unexpected api url %s", servers[0].URL())
	}
}

func TestGateway_MetricsCountRequests(t *testing.T) {
	cfg := testConfig(t, newProject(t, defaultInitOptions()))
	g := startGateway(t, cfg, loader.NewRegistry())

	get(g, "http://localhost/v1/posts", nil)
	get(g, "http://localhost/v1/missing", nil)

	rec := httptest.NewRecorder()
	g.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`gas_requests_total{host="localhost",status="200",version="v1"} 1`,
		`gas_requests_total{host="localhost",status="404",version="v1"} 1`,
		`gas_table_builds_total{result="success"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics to contain %s", want)
		}
	}
}

func TestPrintBanner(t *testing.T) {
	cfg := testConfig(t, newProject(t, defaultInitOptions()))
	cfg.API.Watch = true
	g := startGateway(t, cfg, loader.NewRegistry())

	servers, err := g.servers()
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	printBanner(&buf, cfg, g.holder.Load(), servers)
	out := buf.String()

	for _, want := range []string{"gas is serving", "http://127.0.0.1:2351", "localhost (1 versions)", "/_reload"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected banner to contain %q, got:\n%s", want, out)
		}
	}
}
