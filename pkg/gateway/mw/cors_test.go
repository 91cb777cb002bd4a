package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxlink/livebridge/pkg/gateway/config"
)

func corsConfig(origins ...string) config.Config {
	cfg := config.Config{CORSAllowedOrigins: make(map[string]struct{})}
	for _, o := range origins {
		cfg.CORSAllowedOrigins[o] = struct{}{}
	}
	return cfg
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORSPreflightAllowedOrigin(t *testing.T) {
	h := CORS(corsConfig("https://app.example"), okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/ws", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status=%d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Fatalf("allow-origin=%q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestCORSPreflightDeniedWhenNotAllowlisted(t *testing.T) {
	h := CORS(corsConfig("https://app.example"), okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/ws", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status=%d, want 403", rec.Code)
	}
}

func TestCORSWildcardAllowsAnyOrigin(t *testing.T) {
	h := CORS(corsConfig("*"), okHandler())

	req := httptest.NewRequest(http.MethodGet, "/mcp/products", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://anywhere.example" {
		t.Fatalf("allow-origin=%q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestCORSDisabledAddsNoHeaders(t *testing.T) {
	h := CORS(corsConfig(), okHandler())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("CORS headers attached while disabled")
	}
}
