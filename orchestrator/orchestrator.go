// Package orchestrator drives the analysis session lifecycle: dual upload
// and processing (Uploader), result persistence (Reconciler) and follow-up
// questions (Asker).
//
// Every backend-dependent call takes the caller's connectivity.State
// explicitly and refuses to contact the backend unless it is connected.
package orchestrator

import (
	"context"
	"errors"

	"civicgpt/tax-advisor/types"
)

var (
	ErrMissingFile      = errors.New("both a policy document and a payslip are required")
	ErrEmptyQuestion    = errors.New("question must not be empty")
	ErrUploadFailed     = errors.New("failed to upload documents")
	ErrProcessingFailed = errors.New("failed to process documents")
	ErrQuestionFailed   = errors.New("failed to get answer")
)

// QuestionError is returned when the backend could not answer. Message is
// the backend's own reason, empty when it gave none.
type QuestionError struct {
	Message string
	Err     error
}

func (e *QuestionError) Error() string {
	switch {
	case e.Err != nil:
		return ErrQuestionFailed.Error() + ": " + e.Err.Error()
	case e.Message != "":
		return ErrQuestionFailed.Error() + ": " + e.Message
	}
	return ErrQuestionFailed.Error()
}

func (e *QuestionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrQuestionFailed}
	}
	return []error{ErrQuestionFailed, e.Err}
}

// Backend is the part of the processing service the orchestrators call.
type Backend interface {
	ProcessDocuments(ctx context.Context, req types.ProcessRequest) (types.ProcessResult, error)
	AskQuestion(ctx context.Context, req types.AskRequest) (types.AskResponse, error)
}
