package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"civicgpt/tax-advisor/backend"
	"civicgpt/tax-advisor/connectivity"
	"civicgpt/tax-advisor/store"
	"civicgpt/tax-advisor/types"

	"github.com/sirupsen/logrus"
)

type Asker struct {
	sessions store.SessionStore
	backend  Backend
	now      func() time.Time
	log      *logrus.Entry
}

func NewAsker(sessions store.SessionStore, backend Backend, log *logrus.Entry) *Asker {
	return &Asker{sessions: sessions, backend: backend, now: time.Now, log: log}
}

// Ask sends a question about one of the caller's sessions to the backend
// and appends the answer to the session's question log.
//
// backend.ErrDocumentsNotProcessed is a warning, not a failure: the session
// is left untouched. An answer that could not be appended is still returned,
// with Saved set to false.
func (a *Asker) Ask(ctx context.Context, state connectivity.State, userID, sessionID, question string) (types.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return types.Answer{}, ErrEmptyQuestion
	}
	if err := state.Require(); err != nil {
		return types.Answer{}, err
	}

	sess, err := a.sessions.Get(ctx, sessionID)
	if err != nil {
		return types.Answer{}, err
	}
	if sess.UserID != userID {
		return types.Answer{}, store.ErrNotFound
	}

	log := a.log.WithFields(logrus.Fields{"user_id": userID, "session_id": sessionID})

	resp, err := a.backend.AskQuestion(ctx, types.AskRequest{
		SessionID: sessionID,
		Question:  question,
		UserID:    userID,
	})
	if err != nil {
		if errors.Is(err, backend.ErrDocumentsNotProcessed) {
			log.Info("Question asked before documents were processed")
			return types.Answer{}, err
		}
		log.Error("Backend question failed: ", err)
		qerr := &QuestionError{Err: err}
		var httpErr *backend.HTTPError
		if errors.As(err, &httpErr) {
			qerr.Message = httpErr.Message
		}
		return types.Answer{}, qerr
	}
	if !resp.Success {
		log.Warn("Backend could not answer: ", resp.Error)
		return types.Answer{}, &QuestionError{Message: resp.Error}
	}

	timestamp := a.now().UTC().Format(time.RFC3339)
	answer := types.Answer{
		Question:      question,
		Answer:        resp.Answer,
		Timestamp:     timestamp,
		ResponseTime:  resp.ResponseTime,
		ContextChunks: resp.ContextChunks,
		System:        resp.System,
	}

	err = a.sessions.AppendQuestion(ctx, sessionID, types.QuestionEntry{
		Question:     question,
		Answer:       resp.Answer,
		Timestamp:    timestamp,
		ResponseTime: resp.ResponseTime,
		System:       resp.System,
	})
	if err != nil {
		log.Warn("Failed to save question to session history: ", err)
		return answer, nil
	}

	answer.Saved = true
	return answer, nil
}
