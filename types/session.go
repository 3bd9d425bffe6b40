package types

import "time"

// Status is the lifecycle state of an analysis session.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether no further status transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// FileRef points at one uploaded attachment. Set once at creation.
type FileRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
	Path string `json:"path,omitempty"` // object key inside the bucket
}

// Session is one policy + payslip analysis unit.
type Session struct {
	ID             string          `json:"id,omitempty"` // assigned by the store
	UserID         string          `json:"user_id"`
	PolicyFile     FileRef         `json:"policy_file"`
	PayslipFile    FileRef         `json:"payslip_file"`
	Status         Status          `json:"status"`
	Analysis       *Analysis       `json:"analysis"`
	AnalysisResult *AnalysisResult `json:"analysis_result"`
	Questions      []QuestionEntry `json:"questions"`
	Error          string          `json:"error,omitempty"`
	Version        int64           `json:"version"`
	CreatedAt      *time.Time      `json:"created_at,omitempty"`
	UpdatedAt      *time.Time      `json:"updated_at,omitempty"`
}

// QuestionEntry is one persisted question/answer pair.
type QuestionEntry struct {
	Question     string  `json:"question"`
	Answer       string  `json:"answer"`
	Timestamp    string  `json:"timestamp"`
	ResponseTime float64 `json:"response_time"`
	System       string  `json:"system"`
}

// Answer is returned to the caller right after a successful question. Saved
// is false when the answer could not be appended to the question log.
type Answer struct {
	Question      string  `json:"question"`
	Answer        string  `json:"answer"`
	Timestamp     string  `json:"timestamp"`
	ResponseTime  float64 `json:"response_time"`
	ContextChunks int     `json:"context_chunks"`
	System        string  `json:"system"`
	Saved         bool    `json:"saved"`
}

// Upload is one file handed to the upload orchestrator.
type Upload struct {
	Name        string
	Size        int64
	ContentType string
	Body        []byte
}

type GetSessionsResponse struct {
	Success  bool      `json:"success"`
	Sessions []Session `json:"sessions"`
}

type SessionResponse struct {
	Success bool    `json:"success"`
	Session Session `json:"session"`
	Error   string  `json:"error,omitempty"`
}
