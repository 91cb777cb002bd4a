package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultModel = "gemini-2.5-flash-native-audio-preview-12-2025"

	DefaultSystemInstruction = "You are a helpful and friendly salon voice assistant."

	// Raw little-endian PCM; the rates Gemini Live consumes and emits.
	DefaultInputAudioMIMEType  = "audio/pcm;rate=16000"
	DefaultOutputAudioMIMEType = "audio/pcm;rate=24000"
)

// Config is the immutable process configuration, loaded once from the
// environment and passed by value to every component.
type Config struct {
	Addr string

	// Upstream Gemini Live session defaults; a client config frame can
	// override model, instruction and modalities per session.
	GeminiAPIKey       string
	Model              string
	SystemInstruction  string
	ResponseModalities []string
	InputAudioMIMEType string

	// MCP tool backend.
	MCPServerURL string
	MCPRequired  bool

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Live session timing.
	NegotiationTimeout     time.Duration
	ToolDiscoveryTimeout   time.Duration
	UpstreamConnectTimeout time.Duration
	ToolCallTimeout        time.Duration
	LiveGraceDuration      time.Duration
	LiveWSPingInterval     time.Duration
	LiveWSWriteTimeout     time.Duration
	LiveMaxMessageBytes    int64

	// Operational defaults.
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                   envOr("LIVEBRIDGE_ADDR", ":8000"),
		GeminiAPIKey:           strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		Model:                  envOr("LIVEBRIDGE_MODEL", DefaultModel),
		SystemInstruction:      envOr("LIVEBRIDGE_SYSTEM_INSTRUCTION", DefaultSystemInstruction),
		ResponseModalities:     splitCSV(envOr("LIVEBRIDGE_RESPONSE_MODALITIES", "AUDIO")),
		InputAudioMIMEType:     envOr("LIVEBRIDGE_INPUT_AUDIO_MIME_TYPE", DefaultInputAudioMIMEType),
		MCPServerURL:           envOr("LIVEBRIDGE_MCP_URL", "http://localhost:8090/mcp"),
		MCPRequired:            envBoolOr("LIVEBRIDGE_MCP_REQUIRED", false),
		CORSAllowedOrigins:     make(map[string]struct{}),
		NegotiationTimeout:     envDurationOr("LIVEBRIDGE_NEGOTIATION_TIMEOUT", 2*time.Second),
		ToolDiscoveryTimeout:   envDurationOr("LIVEBRIDGE_TOOL_DISCOVERY_TIMEOUT", 10*time.Second),
		UpstreamConnectTimeout: envDurationOr("LIVEBRIDGE_UPSTREAM_CONNECT_TIMEOUT", 15*time.Second),
		ToolCallTimeout:        envDurationOr("LIVEBRIDGE_TOOL_CALL_TIMEOUT", 30*time.Second),
		LiveGraceDuration:      envDurationOr("LIVEBRIDGE_LIVE_GRACE_PERIOD", 5*time.Second),
		LiveWSPingInterval:     envDurationOr("LIVEBRIDGE_LIVE_WS_PING_INTERVAL", 20*time.Second),
		LiveWSWriteTimeout:     envDurationOr("LIVEBRIDGE_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		LiveMaxMessageBytes:    envInt64Or("LIVEBRIDGE_LIVE_MAX_MESSAGE_BYTES", 1<<20),
		ReadHeaderTimeout:      envDurationOr("LIVEBRIDGE_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:    envDurationOr("LIVEBRIDGE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("LIVEBRIDGE_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY must be set")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return Config{}, fmt.Errorf("LIVEBRIDGE_MODEL must not be empty")
	}
	if len(cfg.ResponseModalities) == 0 {
		return Config{}, fmt.Errorf("LIVEBRIDGE_RESPONSE_MODALITIES must not be empty")
	}
	for _, m := range cfg.ResponseModalities {
		switch strings.ToUpper(m) {
		case "AUDIO", "TEXT":
		default:
			return Config{}, fmt.Errorf("LIVEBRIDGE_RESPONSE_MODALITIES must be AUDIO or TEXT, got %q", m)
		}
	}
	if strings.TrimSpace(cfg.MCPServerURL) == "" {
		return Config{}, fmt.Errorf("LIVEBRIDGE_MCP_URL must not be empty")
	}
	if cfg.NegotiationTimeout <= 0 {
		return Config{}, fmt.Errorf("LIVEBRIDGE_NEGOTIATION_TIMEOUT must be > 0")
	}
	if cfg.ToolDiscoveryTimeout <= 0 {
		return Config{}, fmt.Errorf("LIVEBRIDGE_TOOL_DISCOVERY_TIMEOUT must be > 0")
	}
	if cfg.UpstreamConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("LIVEBRIDGE_UPSTREAM_CONNECT_TIMEOUT must be > 0")
	}
	if cfg.ToolCallTimeout <= 0 {
		return Config{}, fmt.Errorf("LIVEBRIDGE_TOOL_CALL_TIMEOUT must be > 0")
	}
	if cfg.LiveGraceDuration <= 0 {
		return Config{}, fmt.Errorf("LIVEBRIDGE_LIVE_GRACE_PERIOD must be > 0")
	}
	if cfg.LiveWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("LIVEBRIDGE_LIVE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.LiveWSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("LIVEBRIDGE_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.LiveMaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("LIVEBRIDGE_LIVE_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("LIVEBRIDGE_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("LIVEBRIDGE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
