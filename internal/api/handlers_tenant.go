package api

import (
	"net/http"
	"strings"

	"leadflow/internal/tenant"
)

// handleTenant serves tenant-scoped routes after the middleware rewrite to
// /t/{slug}/...
func (s *Server) handleTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := tenant.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found", nil, false)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, tenant.PathPrefix+id.Slug)
	switch rest {
	case "/whoami":
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil, false)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"tenant": id.Slug,
			"source": id.Source,
		})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found", nil, false)
	}
}
