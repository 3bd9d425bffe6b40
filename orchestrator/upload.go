package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"civicgpt/tax-advisor/backend"
	"civicgpt/tax-advisor/connectivity"
	"civicgpt/tax-advisor/store"
	"civicgpt/tax-advisor/types"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Uploader struct {
	sessions   store.SessionStore
	blobs      store.BlobStore
	backend    Backend
	reconciler *Reconciler
	urlTTL     time.Duration
	now        func() time.Time
	log        *logrus.Entry
}

func NewUploader(sessions store.SessionStore, blobs store.BlobStore, backend Backend, reconciler *Reconciler, urlTTL time.Duration, log *logrus.Entry) *Uploader {
	return &Uploader{
		sessions:   sessions,
		blobs:      blobs,
		backend:    backend,
		reconciler: reconciler,
		urlTTL:     urlTTL,
		now:        time.Now,
		log:        log,
	}
}

// Submit uploads both files, creates a processing session, asks the backend
// to process it and reconciles the result.
//
// Nothing remote happens unless both files are present and state is
// connected. An upload failure returns before any session exists. Once the
// session exists, any failure marks it error on a best-effort basis and the
// session is returned alongside the error.
func (u *Uploader) Submit(ctx context.Context, state connectivity.State, userID string, policy, payslip *types.Upload) (types.Session, error) {
	if policy == nil || payslip == nil || policy.Name == "" || payslip.Name == "" {
		return types.Session{}, ErrMissingFile
	}
	if err := state.Require(); err != nil {
		return types.Session{}, err
	}

	log := u.log.WithField("user_id", userID)

	ts := u.now().UnixMilli()
	policyPath := fmt.Sprintf("policies/%s/%d_%s", userID, ts, objectName(policy.Name))
	payslipPath := fmt.Sprintf("payslips/%s/%d_%s", userID, ts, objectName(payslip.Name))

	if err := u.uploadBoth(ctx, policyPath, policy, payslipPath, payslip); err != nil {
		log.Error("Document upload failed: ", err)
		return types.Session{}, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	policyURL, payslipURL, err := u.signBoth(ctx, policyPath, payslipPath)
	if err != nil {
		u.removeBlobs(ctx, log, policyPath, payslipPath)
		log.Error("Signed URL creation failed: ", err)
		return types.Session{}, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	sess, err := u.sessions.Create(ctx, types.Session{
		UserID:      userID,
		PolicyFile:  types.FileRef{Name: policy.Name, URL: policyURL, Size: policy.Size, Path: policyPath},
		PayslipFile: types.FileRef{Name: payslip.Name, URL: payslipURL, Size: payslip.Size, Path: payslipPath},
		Status:      types.StatusProcessing,
		Questions:   []types.QuestionEntry{},
	})
	if err != nil {
		u.removeBlobs(ctx, log, policyPath, payslipPath)
		return types.Session{}, fmt.Errorf("failed to create session: %w", err)
	}
	log = log.WithField("session_id", sess.ID)
	log.Info("Session created, sending documents to backend")

	result, err := u.backend.ProcessDocuments(ctx, types.ProcessRequest{
		SessionID:  sess.ID,
		PolicyURL:  policyURL,
		PayslipURL: payslipURL,
		UserID:     userID,
	})
	if err != nil {
		return u.fail(ctx, log, sess, processingReason(err))
	}
	if !result.Succeeded() {
		reason := result.Error
		if reason == "" {
			reason = "Backend processing failed"
		}
		return u.fail(ctx, log, sess, reason)
	}

	analysis, err := u.reconciler.Reconcile(ctx, sess.ID, result.Raw)
	if err != nil {
		return u.fail(ctx, log, sess, err.Error())
	}

	sess.Status = types.StatusCompleted
	sess.Analysis = &analysis
	mirror := analysis.AnalysisResult
	sess.AnalysisResult = &mirror
	return sess, nil
}

func (u *Uploader) uploadBoth(ctx context.Context, policyPath string, policy *types.Upload, payslipPath string, payslip *types.Upload) error {
	var policyDone, payslipDone bool

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := u.blobs.Put(gctx, policyPath, policy.Body, policy.ContentType); err != nil {
			return fmt.Errorf("policy upload: %w", err)
		}
		policyDone = true
		return nil
	})
	g.Go(func() error {
		if err := u.blobs.Put(gctx, payslipPath, payslip.Body, payslip.ContentType); err != nil {
			return fmt.Errorf("payslip upload: %w", err)
		}
		payslipDone = true
		return nil
	})

	err := g.Wait()
	if err == nil {
		return nil
	}

	// Remove the half that did land so no object outlives the failed submit.
	var orphans []string
	if policyDone {
		orphans = append(orphans, policyPath)
	}
	if payslipDone {
		orphans = append(orphans, payslipPath)
	}
	u.removeBlobs(ctx, u.log, orphans...)
	return err
}

func (u *Uploader) signBoth(ctx context.Context, policyPath, payslipPath string) (string, string, error) {
	var policyURL, payslipURL string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		policyURL, err = u.blobs.SignedURL(gctx, policyPath, u.urlTTL)
		return err
	})
	g.Go(func() (err error) {
		payslipURL, err = u.blobs.SignedURL(gctx, payslipPath, u.urlTTL)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", "", err
	}
	return policyURL, payslipURL, nil
}

// fail marks the session error. A failure to write the marker is logged and
// swallowed; the processing error is what the caller sees.
func (u *Uploader) fail(ctx context.Context, log *logrus.Entry, sess types.Session, reason string) (types.Session, error) {
	log.Error("Document processing failed: ", reason)

	if err := u.sessions.MarkError(context.WithoutCancel(ctx), sess.ID, reason); err != nil {
		log.Warn("Failed to mark session as error: ", err)
	}

	sess.Status = types.StatusError
	sess.Error = reason
	return sess, fmt.Errorf("%w: %s", ErrProcessingFailed, reason)
}

func (u *Uploader) removeBlobs(ctx context.Context, log *logrus.Entry, paths ...string) {
	if len(paths) == 0 {
		return
	}
	if err := u.blobs.Remove(context.WithoutCancel(ctx), paths...); err != nil {
		log.Warn("Failed to remove uploaded documents: ", err)
	}
}

func processingReason(err error) string {
	var httpErr *backend.HTTPError
	if errors.As(err, &httpErr) {
		reason := "Backend processing failed: " + strings.TrimSpace(strings.TrimPrefix(httpErr.Status, fmt.Sprint(httpErr.StatusCode)))
		if httpErr.Message != "" {
			reason += " (" + httpErr.Message + ")"
		}
		return reason
	}
	return "Backend processing failed: " + err.Error()
}

// objectName keeps only the base name so a crafted file name cannot escape
// the user's prefix.
func objectName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return "upload"
	}
	return name
}
