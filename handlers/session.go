package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"civicgpt/tax-advisor/backend"
	"civicgpt/tax-advisor/config"
	"civicgpt/tax-advisor/connectivity"
	"civicgpt/tax-advisor/middleware"
	"civicgpt/tax-advisor/orchestrator"
	"civicgpt/tax-advisor/store"
	"civicgpt/tax-advisor/types"
)

var errInvalidUpload = errors.New("invalid upload")

// UploadSessionHandler takes a multipart form with a policy and a payslip
// file and runs the whole analysis before answering.
func (h *Handler) UploadSessionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	log := middleware.Logger(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, 2*h.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "Upload is too large", http.StatusRequestEntityTooLarge)
			return
		}
		log.Warn("Invalid multipart form: ", err)
		writeError(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	policy, err := h.readUpload(r, "policy", config.PolicyExtensions, "a PDF file")
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	payslip, err := h.readUpload(r, "payslip", config.PayslipExtensions, "a PDF, PNG or JPEG file")
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := h.Uploader.Submit(r.Context(), h.Monitor.State(), userID, policy, payslip)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, types.SessionResponse{Success: true, Session: sess})
	case errors.Is(err, orchestrator.ErrMissingFile):
		writeError(w, "Please upload both a policy document and a payslip", http.StatusBadRequest)
	case errors.Is(err, connectivity.ErrBackendUnreachable):
		writeError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, orchestrator.ErrUploadFailed):
		writeError(w, "Failed to upload documents", http.StatusBadGateway)
	case errors.Is(err, orchestrator.ErrProcessingFailed):
		writeJSON(w, http.StatusBadGateway, types.SessionResponse{Success: false, Session: sess, Error: sess.Error})
	default:
		log.Error("Failed to submit documents: ", err)
		writeError(w, "Failed to submit documents", http.StatusInternalServerError)
	}
}

func (h *Handler) readUpload(r *http.Request, field string, allowed []string, kinds string) (*types.Upload, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errInvalidUpload, field, err)
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !slices.Contains(allowed, ext) {
		return nil, fmt.Errorf("%w: %s must be %s", errInvalidUpload, field, kinds)
	}

	tooLarge := fmt.Errorf("%w: %s exceeds %d MB", errInvalidUpload, field, h.MaxUploadBytes>>20)
	if header.Size > h.MaxUploadBytes {
		return nil, tooLarge
	}
	body, err := io.ReadAll(io.LimitReader(file, h.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errInvalidUpload, field, err)
	}
	if int64(len(body)) > h.MaxUploadBytes {
		return nil, tooLarge
	}

	contentType := http.DetectContentType(body)
	if !sniffMatches(ext, contentType) {
		return nil, fmt.Errorf("%w: %s content does not match its %s extension", errInvalidUpload, field, ext)
	}

	return &types.Upload{Name: header.Filename, Size: int64(len(body)), ContentType: contentType, Body: body}, nil
}

func sniffMatches(ext, contentType string) bool {
	switch ext {
	case ".pdf":
		return contentType == "application/pdf"
	case ".png":
		return contentType == "image/png"
	case ".jpg", ".jpeg":
		return contentType == "image/jpeg"
	}
	return false
}

func (h *Handler) GetSessionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	sessions, err := h.Sessions.ListByUser(r.Context(), userID, h.SessionLimit)
	if err != nil {
		middleware.Logger(r.Context()).Error("Failed to fetch sessions: ", err)
		writeError(w, "Failed to fetch sessions", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, types.GetSessionsResponse{
		Success:  true,
		Sessions: sessions,
	})
}

func (h *Handler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	sess, err := h.Sessions.Get(r.Context(), r.PathValue("id"))
	if err == nil && sess.UserID != userID {
		err = store.ErrNotFound
	}
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "Session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		middleware.Logger(r.Context()).Error("Failed to fetch session: ", err)
		writeError(w, "Failed to fetch session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, types.SessionResponse{Success: true, Session: sess})
}

// StreamSessionsHandler pushes the caller's session list as server-sent
// events until the client goes away.
func (h *Handler) StreamSessionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	log := middleware.Logger(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.Feed.Subscribe(userID)
	defer sub.Close()

	for sessions, err := range sub.Snapshots(r.Context()) {
		event, payload := "sessions", any(types.GetSessionsResponse{Success: true, Sessions: sessions})
		if err != nil {
			log.Warn("Session feed read failed: ", err)
			event, payload = "error", types.ErrorResponse{Success: false, Error: "Failed to fetch sessions"}
		}

		data, err := json.Marshal(payload)
		if err != nil {
			log.Error("Failed to encode feed event: ", err)
			return
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (h *Handler) AskQuestionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req types.AskQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	answer, err := h.Asker.Ask(r.Context(), h.Monitor.State(), userID, r.PathValue("id"), req.Question)
	switch {
	case err == nil:
		resp := types.AskQuestionResponse{Success: true, Answer: answer}
		if !answer.Saved {
			resp.Warning = "The answer could not be saved to this session's history"
		}
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, orchestrator.ErrEmptyQuestion):
		writeError(w, "Please enter a question", http.StatusBadRequest)
	case errors.Is(err, connectivity.ErrBackendUnreachable):
		writeError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, "Session not found", http.StatusNotFound)
	case errors.Is(err, backend.ErrDocumentsNotProcessed):
		writeWarning(w, "Please upload and process documents first before asking questions", http.StatusConflict)
	case errors.Is(err, orchestrator.ErrQuestionFailed):
		writeError(w, questionFailure(err), http.StatusBadGateway)
	default:
		middleware.Logger(r.Context()).Error("Failed to answer question: ", err)
		writeError(w, "Failed to get answer", http.StatusInternalServerError)
	}
}

// questionFailure surfaces the backend's reason when it gave one.
func questionFailure(err error) string {
	var qerr *orchestrator.QuestionError
	if errors.As(err, &qerr) && qerr.Message != "" {
		return "Failed to get answer: " + qerr.Message
	}
	return "Failed to get answer"
}
