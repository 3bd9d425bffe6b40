package routes

import (
	"net/http"

	"civicgpt/tax-advisor/handlers"
)

// RegisterBackendRoutes registers connectivity and sign-out routes
func RegisterBackendRoutes(mux *http.ServeMux, h *handlers.Handler, auth Middleware) {
	mux.Handle("GET /backend/status", auth(http.HandlerFunc(h.BackendStatusHandler)))
	mux.Handle("POST /backend/check", auth(http.HandlerFunc(h.CheckBackendHandler)))
	mux.Handle("POST /backend/reset-vectors", auth(http.HandlerFunc(h.ResetVectorsHandler)))
	mux.Handle("POST /auth/signout", auth(http.HandlerFunc(h.SignOutHandler)))
}
