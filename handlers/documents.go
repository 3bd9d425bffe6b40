package handlers

import (
	"net/http"

	"civicgpt/tax-advisor/middleware"
	"civicgpt/tax-advisor/orchestrator"
	"civicgpt/tax-advisor/types"

	"golang.org/x/sync/errgroup"
)

func (h *Handler) GetDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	docs, err := h.Documents.ListByUser(r.Context(), userID, h.DocumentLimit)
	if err != nil {
		middleware.Logger(r.Context()).Error("Failed to fetch documents: ", err)
		writeError(w, "Failed to fetch documents", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, types.GetDocumentsResponse{
		Success:   true,
		Documents: docs,
	})
}

func (h *Handler) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var (
		sessions []types.Session
		docs     []types.Document
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		sessions, err = h.Sessions.ListByUser(ctx, userID, h.SessionLimit)
		return err
	})
	g.Go(func() error {
		var err error
		docs, err = h.Documents.ListByUser(ctx, userID, h.DocumentLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		middleware.Logger(r.Context()).Error("Failed to load dashboard: ", err)
		writeError(w, "Failed to load dashboard", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, types.DashboardResponse{
		Success: true,
		Stats:   orchestrator.Summarize(sessions, len(docs)),
	})
}
