package routes

import (
	"net/http"

	"civicgpt/tax-advisor/handlers"
)

// RegisterSessionRoutes registers all session-related routes
func RegisterSessionRoutes(mux *http.ServeMux, h *handlers.Handler, auth Middleware) {
	mux.Handle("POST /sessions/upload", auth(http.HandlerFunc(h.UploadSessionHandler)))
	mux.Handle("GET /sessions", auth(http.HandlerFunc(h.GetSessionsHandler)))
	mux.Handle("GET /sessions/stream", auth(http.HandlerFunc(h.StreamSessionsHandler)))
	mux.Handle("GET /sessions/{id}", auth(http.HandlerFunc(h.GetSessionHandler)))

	// Follow-up questions
	mux.Handle("POST /sessions/{id}/questions", auth(http.HandlerFunc(h.AskQuestionHandler)))
}
