package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxlink/livebridge/pkg/gateway/config"
	"github.com/voxlink/livebridge/pkg/gateway/lifecycle"
	"github.com/voxlink/livebridge/pkg/gateway/live/session"
	"github.com/voxlink/livebridge/pkg/gateway/live/sessions"
	"github.com/voxlink/livebridge/pkg/gateway/mw"
	"github.com/voxlink/livebridge/pkg/gateway/upstream"
)

// LiveHandler upgrades /ws and runs one session bridge per connection.
type LiveHandler struct {
	Config       config.Config
	Logger       *slog.Logger
	Lifecycle    *lifecycle.Lifecycle
	LiveSessions *sessions.Tracker
	Upstream     upstream.Connector
	Tools        session.ToolGateway
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodGet {
		writeErrorJSON(w, http.StatusMethodNotAllowed, &apiError{
			Type: "invalid_request", Message: "method not allowed", RequestID: reqID,
		})
		return
	}
	if h.Lifecycle.IsDraining() {
		writeErrorJSON(w, http.StatusServiceUnavailable, &apiError{
			Type: "overloaded", Message: "gateway is draining", RequestID: reqID,
		})
		return
	}
	if !h.originAllowed(r) {
		writeErrorJSON(w, http.StatusForbidden, &apiError{
			Type: "permission", Message: "origin is not allowed", Param: "Origin", RequestID: reqID,
		})
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if h.Config.LiveMaxMessageBytes > 0 {
		conn.SetReadLimit(h.Config.LiveMaxMessageBytes)
	}

	sessionID := "s_" + randHex(8)
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bridge, err := session.New(session.Dependencies{
		SessionID: sessionID,
		Conn:      conn,
		Logger:    logger,
		Upstream:  h.Upstream,
		Tools:     h.Tools,
		Config: session.Config{
			Model:              h.Config.Model,
			SystemInstruction:  h.Config.SystemInstruction,
			ResponseModalities: h.Config.ResponseModalities,
			InputAudioMIMEType: h.Config.InputAudioMIMEType,
			NegotiationTimeout: h.Config.NegotiationTimeout,
			DiscoveryTimeout:   h.Config.ToolDiscoveryTimeout,
			ConnectTimeout:     h.Config.UpstreamConnectTimeout,
			ToolTimeout:        h.Config.ToolCallTimeout,
			GracePeriod:        h.Config.LiveGraceDuration,
			PingInterval:       h.Config.LiveWSPingInterval,
			WriteTimeout:       h.Config.LiveWSWriteTimeout,
			ToolsRequired:      h.Config.MCPRequired,
		},
	})
	if err != nil {
		logger.Error("bridge setup failed", "session_id", sessionID, "request_id", reqID, "error", err)
		return
	}

	unregister := h.LiveSessions.Register(sessionID, sessions.Handle{
		Cancel: bridge.Cancel,
		Notify: bridge.Notify,
	})
	defer unregister()

	logger.Info("session started", "session_id", sessionID, "request_id", reqID, "remote", r.RemoteAddr)
	if err := bridge.Run(); err != nil {
		logger.Info("session ended", "session_id", sessionID, "error", err)
		return
	}
	logger.Info("session ended", "session_id", sessionID)
}

// originAllowed mirrors the CORS allowlist for the upgrade request: no
// Origin header (non-browser client) and wildcard always pass; an empty
// allowlist passes too, matching the open deployment default.
func (h LiveHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" || len(h.Config.CORSAllowedOrigins) == 0 {
		return true
	}
	if _, ok := h.Config.CORSAllowedOrigins["*"]; ok {
		return true
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

func randHex(nbytes int) string {
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().Format("150405.000000000")))
	}
	return hex.EncodeToString(b)
}
