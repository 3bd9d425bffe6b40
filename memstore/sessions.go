// Package memstore holds in-memory implementations of the store ports,
// used for local development and tests.
package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"civicgpt/tax-advisor/store"
	"civicgpt/tax-advisor/types"

	"github.com/google/uuid"
)

type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*types.Session
	order    map[string]int64
	seq      int64
	now      func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*types.Session),
		order:    make(map[string]int64),
		now:      time.Now,
	}
}

// WithClock replaces the clock used for created/updated timestamps.
func (s *SessionStore) WithClock(now func() time.Time) *SessionStore {
	s.now = now
	return s
}

func (s *SessionStore) Create(_ context.Context, sess types.Session) (types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess.ID = uuid.NewString()
	sess.Status = types.StatusProcessing
	sess.Analysis = nil
	sess.AnalysisResult = nil
	sess.Questions = []types.QuestionEntry{}
	sess.Version = 0
	sess.CreatedAt = &now
	sess.UpdatedAt = &now

	s.seq++
	s.order[sess.ID] = s.seq
	s.sessions[sess.ID] = &sess
	return clone(sess), nil
}

func (s *SessionStore) Get(_ context.Context, id string) (types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return types.Session{}, store.ErrNotFound
	}
	return clone(*sess), nil
}

// ListByUser returns the newest sessions first.
func (s *SessionStore) ListByUser(_ context.Context, userID string, limit int) ([]types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, sess := range s.sessions {
		if sess.UserID == userID {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, func(a, b string) int {
		return int(s.order[b] - s.order[a])
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	result := make([]types.Session, 0, len(ids))
	for _, id := range ids {
		result = append(result, clone(*s.sessions[id]))
	}
	return result, nil
}

func (s *SessionStore) Complete(_ context.Context, id string, analysis types.Analysis) error {
	return s.transition(id, func(sess *types.Session) {
		a := analysis
		mirror := analysis.AnalysisResult
		sess.Status = types.StatusCompleted
		sess.Analysis = &a
		sess.AnalysisResult = &mirror
	})
}

func (s *SessionStore) MarkError(_ context.Context, id, reason string) error {
	return s.transition(id, func(sess *types.Session) {
		sess.Status = types.StatusError
		sess.Error = reason
	})
}

func (s *SessionStore) transition(id string, apply func(*types.Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	if sess.Status != types.StatusProcessing {
		return store.ErrInvalidTransition
	}
	apply(sess)
	now := s.now()
	sess.UpdatedAt = &now
	return nil
}

func (s *SessionStore) AppendQuestion(_ context.Context, id string, entry types.QuestionEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	sess.Questions = append(sess.Questions, entry)
	sess.Version++
	now := s.now()
	sess.UpdatedAt = &now
	return nil
}

func clone(s types.Session) types.Session {
	s.Questions = slices.Clone(s.Questions)
	if s.Questions == nil {
		s.Questions = []types.QuestionEntry{}
	}
	if s.Analysis != nil {
		a := *s.Analysis
		a.AnalysisResult = cloneResult(a.AnalysisResult)
		s.Analysis = &a
	}
	if s.AnalysisResult != nil {
		r := cloneResult(*s.AnalysisResult)
		s.AnalysisResult = &r
	}
	return s
}

func cloneResult(r types.AnalysisResult) types.AnalysisResult {
	r.TaxSavingTips = slices.Clone(r.TaxSavingTips)
	r.RecommendedActions = slices.Clone(r.RecommendedActions)
	return r
}
