package types

import "time"

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Warning string `json:"warning,omitempty"`
}

type AskQuestionRequest struct {
	Question string `json:"question"`
}

type AskQuestionResponse struct {
	Success bool   `json:"success"`
	Answer  Answer `json:"answer"`
	Warning string `json:"warning,omitempty"`
}

type BackendStatusResponse struct {
	Success   bool       `json:"success"`
	Status    string     `json:"status"`
	System    string     `json:"system,omitempty"`
	Detail    string     `json:"detail,omitempty"`
	Error     string     `json:"error,omitempty"`
	CheckedAt *time.Time `json:"checked_at,omitempty"`
}

// DashboardStats summarizes a user's sessions.
type DashboardStats struct {
	TotalSessions      int     `json:"total_sessions"`
	CompletedSessions  int     `json:"completed_sessions"`
	ProcessingSessions int     `json:"processing_sessions"`
	FailedSessions     int     `json:"failed_sessions"`
	DocumentsProcessed int     `json:"documents_processed"`
	QuestionsAsked     int     `json:"questions_asked"`
	EstimatedSavings   float64 `json:"estimated_savings"`
	TaxLiability       float64 `json:"tax_liability"`
	SavingsPercentage  float64 `json:"savings_percentage"`
}

type DashboardResponse struct {
	Success bool           `json:"success"`
	Stats   DashboardStats `json:"stats"`
}
