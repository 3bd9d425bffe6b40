package types

// Wire types of the document-processing backend.

type HealthResponse struct {
	Status string `json:"status"`
	System string `json:"system,omitempty"`
}

type ProcessRequest struct {
	SessionID  string `json:"sessionId"`
	PolicyURL  string `json:"policyUrl"`
	PayslipURL string `json:"payslipUrl"`
	UserID     string `json:"userId"`
}

// ProcessResult keeps the decoded body untyped in Raw; only the reconciler's
// sanitizer decides which fields survive.
type ProcessResult struct {
	Status string
	Error  string
	Raw    map[string]any
}

// Succeeded reports whether the backend reported status "success".
func (r ProcessResult) Succeeded() bool {
	return r.Status == "success"
}

type AskRequest struct {
	SessionID string `json:"sessionId"`
	Question  string `json:"question"`
	UserID    string `json:"userId"`
}

type AskResponse struct {
	Success       bool    `json:"success"`
	Answer        string  `json:"answer"`
	ResponseTime  float64 `json:"response_time"`
	ContextChunks int     `json:"context_chunks"`
	System        string  `json:"system"`
	ModelUsed     string  `json:"model_used,omitempty"`
	Error         string  `json:"error,omitempty"`
}

type ErrorBody struct {
	Error string `json:"error"`
}
