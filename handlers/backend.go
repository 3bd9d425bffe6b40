package handlers

import (
	"net/http"

	"civicgpt/tax-advisor/connectivity"
	"civicgpt/tax-advisor/middleware"
	"civicgpt/tax-advisor/types"
)

func statusResponse(s connectivity.State) types.BackendStatusResponse {
	resp := types.BackendStatusResponse{
		Success: s.Connected(),
		Status:  string(s.Status),
		System:  s.System,
		Detail:  s.Detail,
		Error:   s.Err,
	}
	if !s.CheckedAt.IsZero() {
		checked := s.CheckedAt
		resp.CheckedAt = &checked
	}
	return resp
}

func (h *Handler) BackendStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse(h.Monitor.State()))
}

// CheckBackendHandler runs a health check now instead of waiting for the
// next retry.
func (h *Handler) CheckBackendHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse(h.Monitor.Check(r.Context())))
}

func (h *Handler) ResetVectorsHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.Monitor.State().Require(); err != nil {
		writeError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	if err := h.Vectors.ResetVectors(r.Context()); err != nil {
		middleware.Logger(r.Context()).Error("Failed to reset vector store: ", err)
		writeError(w, "Failed to reset vector store", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// SignOutHandler ends the caller's presence. Once nobody is present,
// deferred connectivity retries stop.
func (h *Handler) SignOutHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	h.Presence.Forget(userID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HealthzHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ok"})
}
