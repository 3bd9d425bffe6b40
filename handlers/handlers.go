// Package handlers exposes the session lifecycle over HTTP.
package handlers

import (
	"context"

	"civicgpt/tax-advisor/connectivity"
	"civicgpt/tax-advisor/feed"
	"civicgpt/tax-advisor/store"
	"civicgpt/tax-advisor/types"
)

type Submitter interface {
	Submit(ctx context.Context, state connectivity.State, userID string, policy, payslip *types.Upload) (types.Session, error)
}

type Questioner interface {
	Ask(ctx context.Context, state connectivity.State, userID, sessionID, question string) (types.Answer, error)
}

type Monitor interface {
	State() connectivity.State
	Check(ctx context.Context) connectivity.State
}

type VectorResetter interface {
	ResetVectors(ctx context.Context) error
}

type Presence interface {
	Forget(userID string)
}

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Sessions       store.SessionStore
	Documents      store.DocumentStore
	Uploader       Submitter
	Asker          Questioner
	Feed           *feed.Feed
	Monitor        Monitor
	Presence       Presence
	Vectors        VectorResetter
	MaxUploadBytes int64
	SessionLimit   int
	DocumentLimit  int
}

type Handler struct {
	Deps
}

func New(d Deps) *Handler {
	return &Handler{Deps: d}
}
