package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"civicgpt/tax-advisor/store"
	"civicgpt/tax-advisor/types"

	"github.com/google/uuid"
)

const sessionColumns = `id, user_id, policy_file, payslip_file, status, analysis, analysis_result, questions, error, version, created_at, updated_at`

// SessionRepository implements store.SessionStore over a DBTX.
type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s types.Session) (types.Session, error) {
	policy, err := json.Marshal(s.PolicyFile)
	if err != nil {
		return types.Session{}, fmt.Errorf("failed to encode policy file: %w", err)
	}
	payslip, err := json.Marshal(s.PayslipFile)
	if err != nil {
		return types.Session{}, fmt.Errorf("failed to encode payslip file: %w", err)
	}

	query := `
		INSERT INTO tax_sessions (user_id, policy_file, payslip_file, status)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + sessionColumns

	created, err := scanSession(r.db.QueryRowContext(ctx, query, s.UserID, policy, payslip, string(types.StatusProcessing)))
	if err != nil {
		return types.Session{}, fmt.Errorf("failed to insert session: %w", err)
	}
	return created, nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (types.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return types.Session{}, store.ErrNotFound
	}

	query := `SELECT ` + sessionColumns + ` FROM tax_sessions WHERE id = $1`
	s, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Session{}, store.ErrNotFound
	}
	if err != nil {
		return types.Session{}, fmt.Errorf("failed to select session: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]types.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM tax_sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select sessions: %w", err)
	}
	defer rows.Close()

	result := []types.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SessionRepository) Complete(ctx context.Context, id string, analysis types.Analysis) error {
	full, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}
	result, err := json.Marshal(analysis.AnalysisResult)
	if err != nil {
		return fmt.Errorf("failed to encode analysis result: %w", err)
	}

	query := `UPDATE tax_sessions
		SET status = 'completed', analysis = $2, analysis_result = $3, updated_at = now()
		WHERE id = $1 AND status = 'processing'`
	return r.transition(ctx, id, query, full, result)
}

func (r *SessionRepository) MarkError(ctx context.Context, id, reason string) error {
	query := `UPDATE tax_sessions
		SET status = 'error', error = $2, updated_at = now()
		WHERE id = $1 AND status = 'processing'`
	return r.transition(ctx, id, query, reason)
}

// transition runs a status-guarded update and tells a missing row apart
// from one that already left processing.
func (r *SessionRepository) transition(ctx context.Context, id, query string, args ...any) error {
	if _, err := uuid.Parse(id); err != nil {
		return store.ErrNotFound
	}

	res, err := r.db.ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM tax_sessions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrInvalidTransition
}

// AppendQuestion appends in a single statement, so concurrent appends are
// serialized by the row lock.
func (r *SessionRepository) AppendQuestion(ctx context.Context, id string, entry types.QuestionEntry) error {
	if _, err := uuid.Parse(id); err != nil {
		return store.ErrNotFound
	}

	item, err := json.Marshal([]types.QuestionEntry{entry})
	if err != nil {
		return fmt.Errorf("failed to encode question: %w", err)
	}

	query := `UPDATE tax_sessions
		SET questions = questions || $2::jsonb, version = version + 1, updated_at = now()
		WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, item)
	if err != nil {
		return fmt.Errorf("failed to append question: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (types.Session, error) {
	var (
		s                      types.Session
		status                 string
		policy, payslip        []byte
		analysis, result, qlog []byte
		createdAt, updatedAt   time.Time
	)
	if err := row.Scan(&s.ID, &s.UserID, &policy, &payslip, &status, &analysis, &result, &qlog, &s.Error, &s.Version, &createdAt, &updatedAt); err != nil {
		return types.Session{}, err
	}
	s.Status = types.Status(status)
	s.CreatedAt = &createdAt
	s.UpdatedAt = &updatedAt

	if err := json.Unmarshal(policy, &s.PolicyFile); err != nil {
		return types.Session{}, fmt.Errorf("failed to decode policy file: %w", err)
	}
	if err := json.Unmarshal(payslip, &s.PayslipFile); err != nil {
		return types.Session{}, fmt.Errorf("failed to decode payslip file: %w", err)
	}
	if len(analysis) > 0 {
		s.Analysis = &types.Analysis{}
		if err := json.Unmarshal(analysis, s.Analysis); err != nil {
			return types.Session{}, fmt.Errorf("failed to decode analysis: %w", err)
		}
	}
	if len(result) > 0 {
		s.AnalysisResult = &types.AnalysisResult{}
		if err := json.Unmarshal(result, s.AnalysisResult); err != nil {
			return types.Session{}, fmt.Errorf("failed to decode analysis result: %w", err)
		}
	}
	s.Questions = []types.QuestionEntry{}
	if len(qlog) > 0 {
		if err := json.Unmarshal(qlog, &s.Questions); err != nil {
			return types.Session{}, fmt.Errorf("failed to decode questions: %w", err)
		}
	}
	return s, nil
}
