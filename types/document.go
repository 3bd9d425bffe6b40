package types

import "time"

// Document is flat per-file metadata, listed read-only.
type Document struct {
	ID         string     `json:"id,omitempty"`
	UserID     string     `json:"user_id"`
	Name       string     `json:"name"`
	URL        string     `json:"url"`
	Size       int64      `json:"size"`
	Status     string     `json:"status"`
	UploadedAt *time.Time `json:"uploaded_at,omitempty"`
}

type GetDocumentsResponse struct {
	Success   bool       `json:"success"`
	Documents []Document `json:"documents"`
}
