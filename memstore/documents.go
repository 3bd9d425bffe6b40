package memstore

import (
	"context"
	"slices"
	"sync"

	"civicgpt/tax-advisor/types"
)

type DocumentStore struct {
	mu   sync.RWMutex
	docs []types.Document
}

func NewDocumentStore(docs ...types.Document) *DocumentStore {
	return &DocumentStore{docs: slices.Clone(docs)}
}

// Add records document metadata; used to seed development data.
func (s *DocumentStore) Add(doc types.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, doc)
}

// ListByUser returns the newest documents first; documents without an
// upload time sort last.
func (s *DocumentStore) ListByUser(_ context.Context, userID string, limit int) ([]types.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []types.Document
	for _, d := range s.docs {
		if d.UserID == userID {
			result = append(result, d)
		}
	}
	slices.SortStableFunc(result, func(a, b types.Document) int {
		switch {
		case a.UploadedAt == nil && b.UploadedAt == nil:
			return 0
		case a.UploadedAt == nil:
			return 1
		case b.UploadedAt == nil:
			return -1
		}
		return b.UploadedAt.Compare(*a.UploadedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	if result == nil {
		result = []types.Document{}
	}
	return result, nil
}
