package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"civicgpt/tax-advisor/store"
	"civicgpt/tax-advisor/types"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
)

const sessionsTable = "tax_sessions"

// SessionRepository stores sessions in the tax_sessions table through
// PostgREST. Question appends use optimistic concurrency on the version
// column.
type SessionRepository struct {
	client      *supabase.Client
	maxAttempts int
	now         func() time.Time
	log         *logrus.Entry
}

func NewSessionRepository(client *supabase.Client, maxAttempts int, log *logrus.Entry) *SessionRepository {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &SessionRepository{client: client, maxAttempts: maxAttempts, now: time.Now, log: log}
}

func (r *SessionRepository) Create(_ context.Context, s types.Session) (types.Session, error) {
	s.ID = ""
	s.Status = types.StatusProcessing
	s.Analysis = nil
	s.AnalysisResult = nil
	s.Questions = []types.QuestionEntry{}
	s.Version = 0
	s.CreatedAt = nil // Do NOT set, the table defaults it
	s.UpdatedAt = nil

	resp, _, err := r.client.From(sessionsTable).
		Insert(s, false, "", "representation", "").
		Execute()
	if err != nil {
		return types.Session{}, fmt.Errorf("failed to insert session: %w", err)
	}

	var created []types.Session
	if err := json.Unmarshal(resp, &created); err != nil {
		return types.Session{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if len(created) == 0 {
		return types.Session{}, fmt.Errorf("insert returned no session")
	}
	return created[0], nil
}

func (r *SessionRepository) Get(_ context.Context, id string) (types.Session, error) {
	// ids are uuids; anything else cannot exist and would be a 400 upstream
	if _, err := uuid.Parse(id); err != nil {
		return types.Session{}, store.ErrNotFound
	}

	resp, _, err := r.client.From(sessionsTable).
		Select("*", "", false).
		Eq("id", id).
		Execute()
	if err != nil {
		return types.Session{}, fmt.Errorf("failed to fetch session: %w", err)
	}

	var sessions []types.Session
	if err := json.Unmarshal(resp, &sessions); err != nil {
		return types.Session{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if len(sessions) == 0 {
		return types.Session{}, store.ErrNotFound
	}
	return sessions[0], nil
}

func (r *SessionRepository) ListByUser(_ context.Context, userID string, limit int) ([]types.Session, error) {
	resp, _, err := r.client.From(sessionsTable).
		Select("*", "", false).
		Eq("user_id", userID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sessions: %w", err)
	}

	sessions := []types.Session{}
	if err := json.Unmarshal(resp, &sessions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sessions: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) Complete(ctx context.Context, id string, analysis types.Analysis) error {
	return r.transition(ctx, id, map[string]any{
		"status":          types.StatusCompleted,
		"analysis":        analysis,
		"analysis_result": analysis.AnalysisResult,
		"updated_at":      r.now().UTC(),
	})
}

func (r *SessionRepository) MarkError(ctx context.Context, id, reason string) error {
	return r.transition(ctx, id, map[string]any{
		"status":     types.StatusError,
		"error":      reason,
		"updated_at": r.now().UTC(),
	})
}

// transition patches a session that is still processing. An empty result
// means the row is missing or already terminal.
func (r *SessionRepository) transition(ctx context.Context, id string, patch map[string]any) error {
	if _, err := uuid.Parse(id); err != nil {
		return store.ErrNotFound
	}

	resp, _, err := r.client.From(sessionsTable).
		Update(patch, "representation", "").
		Eq("id", id).
		Eq("status", string(types.StatusProcessing)).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	var updated []types.Session
	if err := json.Unmarshal(resp, &updated); err != nil {
		return fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if len(updated) > 0 {
		return nil
	}

	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return store.ErrInvalidTransition
}

// AppendQuestion reads the log, appends and writes it back only if nobody
// else wrote in between. Losing the race re-reads and tries again.
func (r *SessionRepository) AppendQuestion(ctx context.Context, id string, entry types.QuestionEntry) error {
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		current, err := r.Get(ctx, id)
		if err != nil {
			return err
		}

		questions := append(current.Questions, entry)
		resp, _, err := r.client.From(sessionsTable).
			Update(map[string]any{
				"questions":  questions,
				"version":    current.Version + 1,
				"updated_at": r.now().UTC(),
			}, "representation", "").
			Eq("id", id).
			Eq("version", strconv.FormatInt(current.Version, 10)).
			Execute()
		if err != nil {
			return fmt.Errorf("failed to append question: %w", err)
		}

		var updated []types.Session
		if err := json.Unmarshal(resp, &updated); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}
		if len(updated) > 0 {
			return nil
		}

		r.log.WithFields(logrus.Fields{
			"session_id": id,
			"attempt":    attempt,
		}).Debug("Question log changed underneath, retrying append")
	}
	return store.ErrConflict
}
