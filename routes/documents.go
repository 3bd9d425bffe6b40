package routes

import (
	"net/http"

	"civicgpt/tax-advisor/handlers"
)

// RegisterDocumentRoutes registers document and dashboard routes
func RegisterDocumentRoutes(mux *http.ServeMux, h *handlers.Handler, auth Middleware) {
	mux.Handle("GET /documents", auth(http.HandlerFunc(h.GetDocumentsHandler)))
	mux.Handle("GET /dashboard", auth(http.HandlerFunc(h.DashboardHandler)))
}
