package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxlink/livebridge/pkg/gateway/config"
	"github.com/voxlink/livebridge/pkg/gateway/lifecycle"
)

func readyConfig() config.Config {
	return config.Config{
		GeminiAPIKey:       "k",
		Model:              config.DefaultModel,
		ResponseModalities: []string{"AUDIO"},
		MCPServerURL:       "http://localhost:8090/mcp",
		NegotiationTimeout: 1,
		LiveGraceDuration:  1,
	}
}

func TestHealthzOK(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if rec.Body.String() != "ok\n" {
		t.Fatalf("body=%q", rec.Body.String())
	}
}

func TestReadyzOK(t *testing.T) {
	h := ReadyHandler{Config: readyConfig(), Lifecycle: &lifecycle.Lifecycle{}}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		OK       bool `json:"ok"`
		Draining bool `json:"draining"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.OK || resp.Draining {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestReadyzDraining(t *testing.T) {
	lc := &lifecycle.Lifecycle{}
	lc.SetDraining(true)
	h := ReadyHandler{Config: readyConfig(), Lifecycle: lc}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", rec.Code)
	}
}

func TestReadyzReportsMissingKey(t *testing.T) {
	cfg := readyConfig()
	cfg.GeminiAPIKey = ""
	h := ReadyHandler{Config: cfg, Lifecycle: &lifecycle.Lifecycle{}}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", rec.Code)
	}
	var resp struct {
		Issues []string `json:"issues"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Issues) == 0 {
		t.Fatal("expected issues")
	}
}
