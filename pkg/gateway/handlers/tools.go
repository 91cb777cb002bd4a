package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/voxlink/livebridge/pkg/gateway/mw"
	"github.com/voxlink/livebridge/pkg/gateway/tools/mcp"
)

// toolCaller is the slice of the tool gateway the REST surface needs.
type toolCaller interface {
	Call(ctx context.Context, name string, args map[string]any) (map[string]any, error)
}

// ToolsHandler exposes the salon tool backend over plain REST, mostly
// for debugging the MCP server without a live session.
type ToolsHandler struct {
	Gateway toolCaller
	Logger  *slog.Logger
}

func (h ToolsHandler) Products(w http.ResponseWriter, r *http.Request) {
	h.call(w, r, "list_products", map[string]any{})
}

func (h ToolsHandler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		h.badRequest(w, r, "query parameter q is required", "q")
		return
	}
	h.call(w, r, "search_products", map[string]any{"query": q})
}

func (h ToolsHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		h.badRequest(w, r, "query parameter date is required", "date")
		return
	}
	h.call(w, r, "list_appointments_for_date", map[string]any{"date": date})
}

func (h ToolsHandler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decodeBody(w, r)
	if !ok {
		return
	}
	h.call(w, r, "create_appointment", payload)
}

func (h ToolsHandler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		h.badRequest(w, r, "appointment id is required", "id")
		return
	}
	payload, ok := h.decodeBody(w, r)
	if !ok {
		return
	}
	payload["id"] = id
	h.call(w, r, "update_appointment", payload)
}

func (h ToolsHandler) decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.badRequest(w, r, "request body must be a JSON object", "")
		return nil, false
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return payload, true
}

func (h ToolsHandler) badRequest(w http.ResponseWriter, r *http.Request, message, param string) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	writeErrorJSON(w, http.StatusBadRequest, &apiError{
		Type: "invalid_request", Message: message, Param: param, RequestID: reqID,
	})
}

func (h ToolsHandler) call(w http.ResponseWriter, r *http.Request, tool string, args map[string]any) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if h.Gateway == nil {
		writeErrorJSON(w, http.StatusServiceUnavailable, &apiError{
			Type: "unavailable", Message: "tool backend not configured", RequestID: reqID,
		})
		return
	}

	payload, err := h.Gateway.Call(r.Context(), tool, args)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("tool call failed", "request_id", reqID, "tool", tool, "error", err)
		}
		var toolErr *mcp.ToolError
		if errors.As(err, &toolErr) {
			writeErrorJSON(w, http.StatusBadGateway, &apiError{
				Type: "tool_error", Message: toolErr.Message, RequestID: reqID,
			})
			return
		}
		writeErrorJSON(w, http.StatusBadGateway, &apiError{
			Type: "tool_error", Message: err.Error(), RequestID: reqID,
		})
		return
	}
	writeJSON(w, http.StatusOK, payload)
}
