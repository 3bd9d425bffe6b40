package orchestrator

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"civicgpt/tax-advisor/backend"
	"civicgpt/tax-advisor/connectivity"
	"civicgpt/tax-advisor/memstore"
	"civicgpt/tax-advisor/store"
	"civicgpt/tax-advisor/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu           sync.Mutex
	processCalls []types.ProcessRequest
	askCalls     []types.AskRequest

	processResult types.ProcessResult
	processErr    error
	askResponse   types.AskResponse
	askErr        error
}

func (f *fakeBackend) ProcessDocuments(_ context.Context, req types.ProcessRequest) (types.ProcessResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processCalls = append(f.processCalls, req)
	return f.processResult, f.processErr
}

func (f *fakeBackend) AskQuestion(_ context.Context, req types.AskRequest) (types.AskResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.askCalls = append(f.askCalls, req)
	return f.askResponse, f.askErr
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.processCalls) + len(f.askCalls)
}

// failingMarker wraps a session store whose MarkError always fails.
type failingMarker struct {
	store.SessionStore
}

func (f failingMarker) MarkError(context.Context, string, string) error {
	return errors.New("store offline")
}

// failingCompleter wraps a session store whose Complete always fails.
type failingCompleter struct {
	store.SessionStore
}

func (f failingCompleter) Complete(context.Context, string, types.Analysis) error {
	return errors.New("write rejected")
}

// failingSigner wraps a blob store that cannot hand out signed URLs.
type failingSigner struct {
	*memstore.BlobStore
}

func (f failingSigner) SignedURL(context.Context, string, time.Duration) (string, error) {
	return "", errors.New("sign denied")
}

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

type harness struct {
	sessions *memstore.SessionStore
	blobs    *memstore.BlobStore
	backend  *fakeBackend
	uploader *Uploader
	asker    *Asker
}

func newHarness(be Backend) harness {
	h := harness{
		sessions: memstore.NewSessionStore(),
		blobs:    memstore.NewBlobStore("https://blobs.test"),
	}
	if fb, ok := be.(*fakeBackend); ok {
		h.backend = fb
	}
	reconciler := NewReconciler(h.sessions, testLogger())
	h.uploader = NewUploader(h.sessions, h.blobs, be, reconciler, time.Hour, testLogger())
	h.asker = NewAsker(h.sessions, be, testLogger())
	return h
}

func policyFile() *types.Upload {
	return &types.Upload{Name: "policy.pdf", Size: 10 * 1024, ContentType: "application/pdf", Body: make([]byte, 10*1024)}
}

func payslipFile() *types.Upload {
	return &types.Upload{Name: "payslip.pdf", Size: 5 * 1024, ContentType: "application/pdf", Body: make([]byte, 5*1024)}
}

func successResult(savings float64) types.ProcessResult {
	return types.ProcessResult{
		Status: "success",
		Raw: map[string]any{
			"status":           "success",
			"policyTextLength": float64(1200),
			"analysisResult":   map[string]any{"estimatedSavings": savings},
		},
	}
}

func TestSubmitCompletesSession(t *testing.T) {
	be := &fakeBackend{processResult: successResult(45000)}
	h := newHarness(be)
	ctx := context.Background()

	sess, err := h.uploader.Submit(ctx, connectivity.Connected(), "user-1", policyFile(), payslipFile())
	require.NoError(t, err)

	paths := h.blobs.Paths()
	require.Len(t, paths, 2)
	assert.True(t, strings.HasPrefix(paths[0], "payslips/user-1/"))
	assert.True(t, strings.HasPrefix(paths[1], "policies/user-1/"))

	require.Len(t, be.processCalls, 1)
	req := be.processCalls[0]
	assert.Equal(t, sess.ID, req.SessionID)
	assert.Equal(t, "user-1", req.UserID)
	assert.Contains(t, req.PolicyURL, "https://blobs.test/")
	assert.Contains(t, req.PayslipURL, "https://blobs.test/")

	stored, err := h.sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, stored.Status)
	require.NotNil(t, stored.Analysis)
	assert.Equal(t, float64(45000), stored.Analysis.AnalysisResult.EstimatedSavings)
	assert.Equal(t, 1200, stored.Analysis.PolicyTextLength)
	require.NotNil(t, stored.AnalysisResult)
	assert.Equal(t, float64(45000), stored.AnalysisResult.EstimatedSavings)
	assert.Equal(t, "policy.pdf", stored.PolicyFile.Name)
	assert.Equal(t, int64(10*1024), stored.PolicyFile.Size)
	assert.Equal(t, int64(5*1024), stored.PayslipFile.Size)
}

func TestSubmitBackend500MarksError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"ocr crashed"}`))
	}))
	defer srv.Close()

	h := newHarness(backend.NewClient(srv.URL, 5*time.Second, testLogger()))
	ctx := context.Background()

	sess, err := h.uploader.Submit(ctx, connectivity.Connected(), "user-1", policyFile(), payslipFile())
	require.ErrorIs(t, err, ErrProcessingFailed)
	assert.Equal(t, types.StatusError, sess.Status)

	stored, err := h.sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusError, stored.Status)
	assert.NotEmpty(t, stored.Error)
	assert.Contains(t, stored.Error, "Internal Server Error")
	assert.Nil(t, stored.Analysis)
}

func TestSubmitNonSuccessBodyMarksError(t *testing.T) {
	be := &fakeBackend{processResult: types.ProcessResult{Status: "failed", Error: "no text extracted"}}
	h := newHarness(be)

	sess, err := h.uploader.Submit(context.Background(), connectivity.Connected(), "user-1", policyFile(), payslipFile())
	require.ErrorIs(t, err, ErrProcessingFailed)

	stored, err := h.sessions.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusError, stored.Status)
	assert.Equal(t, "no text extracted", stored.Error)
}

func TestSubmitSwallowsErrorMarkerFailure(t *testing.T) {
	be := &fakeBackend{processErr: errors.New("connection reset")}
	sessions := memstore.NewSessionStore()
	blobs := memstore.NewBlobStore("https://blobs.test")
	u := NewUploader(failingMarker{sessions}, blobs, be, NewReconciler(sessions, testLogger()), time.Hour, testLogger())

	sess, err := u.Submit(context.Background(), connectivity.Connected(), "user-1", policyFile(), payslipFile())
	require.ErrorIs(t, err, ErrProcessingFailed)
	assert.Equal(t, types.StatusError, sess.Status)
}

func TestSubmitUploadFailureCreatesNoSession(t *testing.T) {
	be := &fakeBackend{processResult: successResult(1)}
	h := newHarness(be)
	h.blobs.FailPut = func(path string) bool { return strings.HasPrefix(path, "payslips/") }

	_, err := h.uploader.Submit(context.Background(), connectivity.Connected(), "user-1", policyFile(), payslipFile())
	require.ErrorIs(t, err, ErrUploadFailed)

	list, err := h.sessions.ListByUser(context.Background(), "user-1", 10)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, be.calls())
	assert.Empty(t, h.blobs.Paths(), "the policy that did upload is removed")
}

func TestSubmitSignFailureCreatesNoSession(t *testing.T) {
	be := &fakeBackend{processResult: successResult(1)}
	sessions := memstore.NewSessionStore()
	blobs := memstore.NewBlobStore("https://blobs.test")
	u := NewUploader(sessions, failingSigner{blobs}, be, NewReconciler(sessions, testLogger()), time.Hour, testLogger())

	_, err := u.Submit(context.Background(), connectivity.Connected(), "user-1", policyFile(), payslipFile())
	require.ErrorIs(t, err, ErrUploadFailed)
	assert.Contains(t, err.Error(), "sign denied")

	list, err := sessions.ListByUser(context.Background(), "user-1", 10)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, be.calls())
	assert.Empty(t, blobs.Paths(), "both uploaded documents are removed")
}

func TestSubmitReconcileFailureMarksError(t *testing.T) {
	be := &fakeBackend{processResult: successResult(45000)}
	sessions := memstore.NewSessionStore()
	rejecting := failingCompleter{sessions}
	u := NewUploader(rejecting, memstore.NewBlobStore("https://blobs.test"), be, NewReconciler(rejecting, testLogger()), time.Hour, testLogger())

	sess, err := u.Submit(context.Background(), connectivity.Connected(), "user-1", policyFile(), payslipFile())
	require.ErrorIs(t, err, ErrProcessingFailed)
	assert.Equal(t, types.StatusError, sess.Status)
	require.Len(t, be.processCalls, 1)

	stored, err := sessions.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusError, stored.Status)
	assert.NotEmpty(t, stored.Error)
	assert.Contains(t, stored.Error, "write rejected")
	assert.Nil(t, stored.Analysis)
}

func TestSubmitGating(t *testing.T) {
	be := &fakeBackend{processResult: successResult(1)}
	h := newHarness(be)

	_, err := h.uploader.Submit(context.Background(), connectivity.Unreachable("refused"), "user-1", policyFile(), payslipFile())
	require.ErrorIs(t, err, connectivity.ErrBackendUnreachable)
	assert.Zero(t, be.calls())
	assert.Empty(t, h.blobs.Paths())

	_, err = h.uploader.Submit(context.Background(), connectivity.Connected(), "user-1", policyFile(), nil)
	require.ErrorIs(t, err, ErrMissingFile)
	assert.Zero(t, be.calls())
	assert.Empty(t, h.blobs.Paths())
}

func TestSubmitKeepsObjectNamesUnderUserPrefix(t *testing.T) {
	be := &fakeBackend{processResult: successResult(1)}
	h := newHarness(be)
	policy := policyFile()
	policy.Name = "../../etc/passwd.pdf"

	_, err := h.uploader.Submit(context.Background(), connectivity.Connected(), "user-1", policy, payslipFile())
	require.NoError(t, err)
	for _, p := range h.blobs.Paths() {
		assert.NotContains(t, p, "..")
	}
}

func completedSession(t *testing.T, h harness) types.Session {
	t.Helper()
	h.backend.processResult = successResult(45000)
	sess, err := h.uploader.Submit(context.Background(), connectivity.Connected(), "user-1", policyFile(), payslipFile())
	require.NoError(t, err)
	return sess
}

func TestAskAppendsAnswer(t *testing.T) {
	be := &fakeBackend{askResponse: types.AskResponse{
		Success: true, Answer: "Invest in ELSS and PPF.", ResponseTime: 1.2, ContextChunks: 4, System: "pure_rag_llm_ocr",
	}}
	h := newHarness(be)
	sess := completedSession(t, h)

	answer, err := h.asker.Ask(context.Background(), connectivity.Connected(), "user-1", sess.ID, "  How can I save tax under Section 80C?  ")
	require.NoError(t, err)
	assert.Equal(t, 1.2, answer.ResponseTime)
	assert.Equal(t, 4, answer.ContextChunks)
	assert.True(t, answer.Saved)

	require.Len(t, be.askCalls, 1)
	assert.Equal(t, "How can I save tax under Section 80C?", be.askCalls[0].Question)
	assert.Equal(t, "user-1", be.askCalls[0].UserID)

	stored, err := h.sessions.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, stored.Questions, 1)
	assert.Equal(t, "How can I save tax under Section 80C?", stored.Questions[0].Question)
	assert.Equal(t, "Invest in ELSS and PPF.", stored.Questions[0].Answer)
	assert.Equal(t, 1.2, stored.Questions[0].ResponseTime)
	assert.Equal(t, "pure_rag_llm_ocr", stored.Questions[0].System)
}

func TestAskWhileUnreachable(t *testing.T) {
	be := &fakeBackend{askResponse: types.AskResponse{Success: true, Answer: "a"}}
	h := newHarness(be)
	sess := completedSession(t, h)
	before := be.calls()

	_, err := h.asker.Ask(context.Background(), connectivity.Unreachable("refused"), "user-1", sess.ID, "question")
	require.ErrorIs(t, err, connectivity.ErrBackendUnreachable)
	assert.Equal(t, before, be.calls())

	stored, err := h.sessions.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Questions)
}

func TestAskBeforeProcessingIsWarning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"Please process documents first"}`))
	}))
	defer srv.Close()

	sessions := memstore.NewSessionStore()
	sess, err := sessions.Create(context.Background(), types.Session{UserID: "user-1"})
	require.NoError(t, err)
	asker := NewAsker(sessions, backend.NewClient(srv.URL, 5*time.Second, testLogger()), testLogger())

	_, err = asker.Ask(context.Background(), connectivity.Connected(), "user-1", sess.ID, "What is my liability?")
	require.ErrorIs(t, err, backend.ErrDocumentsNotProcessed)
	assert.False(t, errors.Is(err, ErrQuestionFailed))

	stored, err := sessions.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Questions)
}

func TestAskEmptyQuestionSendsNothing(t *testing.T) {
	be := &fakeBackend{}
	h := newHarness(be)

	_, err := h.asker.Ask(context.Background(), connectivity.Connected(), "user-1", "any", "   ")
	require.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Zero(t, be.calls())
}

func TestAskUnsuccessfulBody(t *testing.T) {
	be := &fakeBackend{askResponse: types.AskResponse{Success: false, Error: "context window exceeded"}}
	h := newHarness(be)
	sess := completedSession(t, h)

	_, err := h.asker.Ask(context.Background(), connectivity.Connected(), "user-1", sess.ID, "q")
	require.ErrorIs(t, err, ErrQuestionFailed)
	assert.Contains(t, err.Error(), "context window exceeded")

	stored, err := h.sessions.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Questions)
}

func TestAskRejectsForeignSession(t *testing.T) {
	be := &fakeBackend{askResponse: types.AskResponse{Success: true}}
	h := newHarness(be)
	sess := completedSession(t, h)
	before := be.calls()

	_, err := h.asker.Ask(context.Background(), connectivity.Connected(), "intruder", sess.ID, "q")
	require.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, before, be.calls())
}

func TestAskLogIsAppendOnly(t *testing.T) {
	be := &fakeBackend{askResponse: types.AskResponse{Success: true, Answer: "a", System: "s"}}
	h := newHarness(be)
	sess := completedSession(t, h)

	questions := []string{"first", "second", "third"}
	for _, q := range questions {
		_, err := h.asker.Ask(context.Background(), connectivity.Connected(), "user-1", sess.ID, q)
		require.NoError(t, err)
	}

	stored, err := h.sessions.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, stored.Questions, 3)
	for i, q := range questions {
		assert.Equal(t, q, stored.Questions[i].Question)
	}
}

func TestSessionNeverLeavesTerminalStatus(t *testing.T) {
	be := &fakeBackend{}
	h := newHarness(be)
	sess := completedSession(t, h)

	reconciler := NewReconciler(h.sessions, testLogger())
	_, err := reconciler.Reconcile(context.Background(), sess.ID, successResult(1).Raw)
	require.ErrorIs(t, err, store.ErrInvalidTransition)

	stored, err := h.sessions.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, stored.Status)
	assert.Equal(t, float64(45000), stored.AnalysisResult.EstimatedSavings)
}

func TestSummarize(t *testing.T) {
	sessions := []types.Session{
		{Status: types.StatusCompleted, AnalysisResult: &types.AnalysisResult{EstimatedSavings: 45000, TaxLiability: types.TaxLiability{Current: 125000}}, Questions: make([]types.QuestionEntry, 2)},
		{Status: types.StatusProcessing},
		{Status: types.StatusError},
	}

	stats := Summarize(sessions, 1)
	assert.Equal(t, 3, stats.TotalSessions)
	assert.Equal(t, 1, stats.CompletedSessions)
	assert.Equal(t, 1, stats.ProcessingSessions)
	assert.Equal(t, 1, stats.FailedSessions)
	assert.Equal(t, 7, stats.DocumentsProcessed)
	assert.Equal(t, 2, stats.QuestionsAsked)
	assert.Equal(t, float64(45000), stats.EstimatedSavings)
	assert.InDelta(t, 36.0, stats.SavingsPercentage, 0.001)
}
