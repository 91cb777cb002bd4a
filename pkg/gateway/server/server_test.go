package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/voxlink/livebridge/pkg/gateway/config"
)

func testConfig() config.Config {
	return config.Config{
		GeminiAPIKey:       "k",
		Model:              config.DefaultModel,
		SystemInstruction:  config.DefaultSystemInstruction,
		ResponseModalities: []string{"AUDIO"},
		InputAudioMIMEType: config.DefaultInputAudioMIMEType,
		MCPServerURL:       "http://localhost:8090/mcp",
		CORSAllowedOrigins: map[string]struct{}{},

		NegotiationTimeout:     2 * time.Second,
		ToolDiscoveryTimeout:   time.Second,
		UpstreamConnectTimeout: time.Second,
		ToolCallTimeout:        time.Second,
		LiveGraceDuration:      time.Second,
		LiveWSPingInterval:     20 * time.Second,
		LiveWSWriteTimeout:     time.Second,
	}
}

func TestServer_UnknownRoute_ReturnsJSON404(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	s := New(testConfig(), logger)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%q", ct)
	}
	if !strings.Contains(rr.Body.String(), `"type":"not_found"`) {
		t.Fatalf("unexpected body: %q", rr.Body.String())
	}
}

func TestServer_HealthRoutes_Reachable(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	s := New(testConfig(), logger)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		s.Handler().ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("path %s status=%d body=%q", path, rr.Code, rr.Body.String())
		}
	}
}

func TestServer_LiveRoute_Reachable(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	s := New(testConfig(), logger)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	s.Handler().ServeHTTP(rr, req)
	// No upgrade headers, so the handler fails the handshake, but the
	// route itself must exist.
	if rr.Code == http.StatusNotFound {
		t.Fatalf("/ws unexpectedly returned 404")
	}
}

func TestServer_ToolRoutes_Reachable(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	s := New(testConfig(), logger)

	// Missing required query params hit validation, proving the routes
	// resolve without touching the MCP backend.
	for path, want := range map[string]int{
		"/mcp/products/search": http.StatusBadRequest,
		"/mcp/appointments":    http.StatusBadRequest,
	} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		s.Handler().ServeHTTP(rr, req)
		if rr.Code != want {
			t.Fatalf("path %s status=%d, want %d", path, rr.Code, want)
		}
	}
}

func TestServer_DrainingRefusesLive(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	s := New(testConfig(), logger)
	s.SetDraining(true)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/readyz", nil)
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d, want 503", rr.Code)
	}
}
