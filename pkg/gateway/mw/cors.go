package mw

import (
	"net/http"
	"strings"

	"github.com/voxlink/livebridge/pkg/gateway/config"
)

var corsAllowedMethods = "GET, POST, PATCH, OPTIONS"

var corsAllowedHeaders = strings.Join([]string{
	"Content-Type",
	"X-Request-ID",
}, ", ")

var corsExposedHeaders = "X-Request-ID"

// CORS applies the configured origin allowlist. A "*" entry allows any
// origin; an empty allowlist disables CORS entirely.
func CORS(cfg config.Config, next http.Handler) http.Handler {
	allowed := cfg.CORSAllowedOrigins
	_, allowAny := allowed["*"]

	originAllowed := func(origin string) bool {
		if origin == "" || len(allowed) == 0 {
			return false
		}
		if allowAny {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))

		// Preflight: explicitly allow/deny so browser callers get deterministic behavior.
		if r.Method == http.MethodOptions && strings.TrimSpace(r.Header.Get("Access-Control-Request-Method")) != "" {
			if !originAllowed(origin) {
				http.Error(w, "cors preflight not allowed", http.StatusForbidden)
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", corsAllowedMethods)
			w.Header().Set("Access-Control-Allow-Headers", corsAllowedHeaders)
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// Non-preflight: only attach CORS headers when explicitly allowed.
		if originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Expose-Headers", corsExposedHeaders)
		}

		next.ServeHTTP(w, r)
	})
}
