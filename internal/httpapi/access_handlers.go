package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"sameieportalen.no/internal/auth"
)

// Me describes the caller's roles and permissions.
func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.engine.Explain(r.Context()))
}

// CheckPermission answers whether the caller holds the named permission.
// Unknown names are reported as not allowed.
func (a *API) CheckPermission(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	p, known := auth.ParsePermission(name)
	if !known {
		p = auth.Permission(name)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"permission": p,
		"known":      known,
		"allowed":    a.engine.HasPermissionNamed(r.Context(), name),
	})
}
