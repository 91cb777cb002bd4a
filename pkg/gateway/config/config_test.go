package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Addr != ":8000" {
		t.Fatalf("Addr=%q", cfg.Addr)
	}
	if cfg.Model != DefaultModel {
		t.Fatalf("Model=%q", cfg.Model)
	}
	if cfg.SystemInstruction != DefaultSystemInstruction {
		t.Fatalf("SystemInstruction=%q", cfg.SystemInstruction)
	}
	if len(cfg.ResponseModalities) != 1 || cfg.ResponseModalities[0] != "AUDIO" {
		t.Fatalf("ResponseModalities=%v", cfg.ResponseModalities)
	}
	if cfg.MCPServerURL != "http://localhost:8090/mcp" {
		t.Fatalf("MCPServerURL=%q", cfg.MCPServerURL)
	}
	if cfg.MCPRequired {
		t.Fatal("MCPRequired should default to false")
	}
	if cfg.NegotiationTimeout != 2*time.Second {
		t.Fatalf("NegotiationTimeout=%v", cfg.NegotiationTimeout)
	}
	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Fatalf("CORSAllowedOrigins=%v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadFromEnvRequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error without GEMINI_API_KEY")
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("LIVEBRIDGE_ADDR", ":9999")
	t.Setenv("LIVEBRIDGE_MODEL", "gemini-custom")
	t.Setenv("LIVEBRIDGE_RESPONSE_MODALITIES", "TEXT")
	t.Setenv("LIVEBRIDGE_MCP_REQUIRED", "true")
	t.Setenv("LIVEBRIDGE_NEGOTIATION_TIMEOUT", "750ms")
	t.Setenv("LIVEBRIDGE_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.Model != "gemini-custom" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if !cfg.MCPRequired {
		t.Fatal("MCPRequired override not applied")
	}
	if cfg.NegotiationTimeout != 750*time.Millisecond {
		t.Fatalf("NegotiationTimeout=%v", cfg.NegotiationTimeout)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("CORSAllowedOrigins=%v", cfg.CORSAllowedOrigins)
	}
	if _, ok := cfg.CORSAllowedOrigins["https://a.example"]; !ok {
		t.Fatal("origin not trimmed and stored")
	}
}

func TestLoadFromEnvRejectsBadModality(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("LIVEBRIDGE_RESPONSE_MODALITIES", "VIDEO")
	_, err := LoadFromEnv()
	if err == nil || !strings.Contains(err.Error(), "LIVEBRIDGE_RESPONSE_MODALITIES") {
		t.Fatalf("expected modality error, got %v", err)
	}
}

func TestLoadFromEnvRejectsNonPositiveDurations(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("LIVEBRIDGE_LIVE_GRACE_PERIOD", "-1s")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error for negative grace duration")
	}
}
