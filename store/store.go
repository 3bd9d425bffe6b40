// Package store declares the persistence ports shared by the session
// orchestrators and the storage adapters (supabase, postgres, memstore).
package store

import (
	"context"
	"errors"
	"time"

	"civicgpt/tax-advisor/types"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an optimistic update kept losing races.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrInvalidTransition is returned for a status change out of anything
	// other than processing.
	ErrInvalidTransition = errors.New("invalid session status transition")
)

// SessionStore owns the lifetime of analysis sessions.
//
// Complete and MarkError only apply to a session in status processing.
// AppendQuestion never drops a previously appended entry, even when
// called concurrently for the same session.
type SessionStore interface {
	Create(ctx context.Context, s types.Session) (types.Session, error)
	Get(ctx context.Context, id string) (types.Session, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]types.Session, error)
	Complete(ctx context.Context, id string, analysis types.Analysis) error
	MarkError(ctx context.Context, id, reason string) error
	AppendQuestion(ctx context.Context, id string, entry types.QuestionEntry) error
}

// DocumentStore lists per-file metadata.
type DocumentStore interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]types.Document, error)
}

// BlobStore keeps uploaded files.
type BlobStore interface {
	Put(ctx context.Context, path string, body []byte, contentType string) error
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
	Remove(ctx context.Context, paths ...string) error
}
