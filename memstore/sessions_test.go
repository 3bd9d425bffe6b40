package memstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"civicgpt/tax-advisor/store"
	"civicgpt/tax-advisor/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T, s *SessionStore, userID string) types.Session {
	t.Helper()
	sess, err := s.Create(context.Background(), types.Session{
		UserID:      userID,
		PolicyFile:  types.FileRef{Name: "policy.pdf", URL: "u1", Size: 10},
		PayslipFile: types.FileRef{Name: "payslip.pdf", URL: "u2", Size: 5},
	})
	require.NoError(t, err)
	return sess
}

func TestCreateStartsProcessing(t *testing.T) {
	s := NewSessionStore()
	sess := newSession(t, s, "user-1")

	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, types.StatusProcessing, sess.Status)
	assert.NotNil(t, sess.Questions)
	assert.Empty(t, sess.Questions)
	assert.Nil(t, sess.Analysis)
}

func TestStatusTransitionsOnlyLeaveProcessing(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()

	done := newSession(t, s, "user-1")
	require.NoError(t, s.Complete(ctx, done.ID, types.Analysis{AnalysisResult: types.AnalysisResult{EstimatedSavings: 1}}))
	assert.ErrorIs(t, s.MarkError(ctx, done.ID, "late failure"), store.ErrInvalidTransition)
	assert.ErrorIs(t, s.Complete(ctx, done.ID, types.Analysis{}), store.ErrInvalidTransition)

	got, err := s.Get(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, got.Status)
	require.NotNil(t, got.AnalysisResult)
	assert.Equal(t, float64(1), got.AnalysisResult.EstimatedSavings)

	failed := newSession(t, s, "user-1")
	require.NoError(t, s.MarkError(ctx, failed.ID, "boom"))
	assert.ErrorIs(t, s.Complete(ctx, failed.ID, types.Analysis{}), store.ErrInvalidTransition)

	assert.ErrorIs(t, s.MarkError(ctx, "missing", "x"), store.ErrNotFound)
}

func TestConcurrentAppendsKeepEveryEntry(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()
	sess := newSession(t, s, "user-1")

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AppendQuestion(ctx, sess.ID, types.QuestionEntry{Question: fmt.Sprintf("q%d", i)}))
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, got.Questions, 50)
	assert.Equal(t, int64(50), got.Version)
}

func TestListByUserNewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()

	var ids []string
	for range 12 {
		ids = append(ids, newSession(t, s, "user-1").ID)
	}
	newSession(t, s, "user-2")

	list, err := s.ListByUser(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, list, 10)
	assert.Equal(t, ids[11], list[0].ID)
	assert.Equal(t, ids[2], list[9].ID)
}

func TestGetReturnsIndependentCopy(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()
	sess := newSession(t, s, "user-1")
	require.NoError(t, s.AppendQuestion(ctx, sess.ID, types.QuestionEntry{Question: "q"}))

	got, err := s.Get(ctx, sess.ID)
	require.NoError(t, err)
	got.Questions[0].Question = "mutated"

	again, err := s.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "q", again.Questions[0].Question)
}

func TestBlobStoreServesSignedURLs(t *testing.T) {
	blobs := NewBlobStore("http://blobs.test")
	ctx := context.Background()
	require.NoError(t, blobs.Put(ctx, "policies/u1/1_policy.pdf", []byte("%PDF"), "application/pdf"))

	signed, err := blobs.SignedURL(ctx, "policies/u1/1_policy.pdf", time.Hour)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.Handle("GET /blobs/{key}", blobs)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(strings.Replace(signed, "http://blobs.test", srv.URL+"/blobs", 1))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "%PDF", string(body))
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))

	require.NoError(t, blobs.Remove(ctx, "policies/u1/1_policy.pdf"))
	_, err = blobs.SignedURL(ctx, "policies/u1/1_policy.pdf", time.Hour)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
