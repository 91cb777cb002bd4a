package handlers

import (
	"net/http"
	"strings"

	"github.com/voxlink/livebridge/pkg/gateway/config"
	"github.com/voxlink/livebridge/pkg/gateway/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// ReadyHandler reports config sanity and flips to 503 while draining so
// load balancers stop routing new sessions here.
type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK       bool     `json:"ok"`
		Draining bool     `json:"draining"`
		Model    string   `json:"model"`
		MCPURL   string   `json:"mcp_url"`
		Issues   []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)
	if h.Config.GeminiAPIKey == "" {
		issues = append(issues, "gemini api key not configured")
	}
	if strings.TrimSpace(h.Config.Model) == "" {
		issues = append(issues, "model must not be empty")
	}
	if len(h.Config.ResponseModalities) == 0 {
		issues = append(issues, "response modalities must not be empty")
	}
	if strings.TrimSpace(h.Config.MCPServerURL) == "" {
		issues = append(issues, "mcp url must not be empty")
	}
	if h.Config.NegotiationTimeout <= 0 || h.Config.LiveGraceDuration <= 0 {
		issues = append(issues, "session timeouts must be > 0")
	}

	draining := h.Lifecycle.IsDraining()
	ok := len(issues) == 0 && !draining
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, readyResp{
		OK:       ok,
		Draining: draining,
		Model:    h.Config.Model,
		MCPURL:   h.Config.MCPServerURL,
		Issues:   issues,
	})
}
