package routes

import (
	"net/http"

	"civicgpt/tax-advisor/handlers"
)

// Middleware wraps a single route.
type Middleware func(http.Handler) http.Handler

// RegisterAllRoutes registers all application routes. auth guards every
// route that acts on behalf of a user.
func RegisterAllRoutes(mux *http.ServeMux, h *handlers.Handler, auth Middleware) {
	RegisterSessionRoutes(mux, h, auth)
	RegisterDocumentRoutes(mux, h, auth)
	RegisterBackendRoutes(mux, h, auth)

	mux.HandleFunc("GET /healthz", h.HealthzHandler)
}
