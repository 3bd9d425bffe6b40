package connectivity

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"civicgpt/tax-advisor/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (f *fakeChecker) Health(context.Context) (types.HealthResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return types.HealthResponse{}, err
		}
	}
	return types.HealthResponse{Status: "healthy", System: "pure_rag_llm_ocr"}, nil
}

func (f *fakeChecker) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// gatedChecker holds its first call until released and fails it. Later
// calls succeed at once.
type gatedChecker struct {
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (g *gatedChecker) Health(context.Context) (types.HealthResponse, error) {
	g.mu.Lock()
	g.calls++
	first := g.calls == 1
	g.mu.Unlock()

	if first {
		close(g.entered)
		<-g.release
		return types.HealthResponse{}, errors.New("deadline exceeded")
	}
	return types.HealthResponse{Status: "healthy"}, nil
}

// manualTimers captures scheduled retries so tests fire them explicitly.
type manualTimers struct {
	delays  []time.Duration
	pending []func()
	stopped int
}

func (m *manualTimers) after(d time.Duration, f func()) func() bool {
	m.delays = append(m.delays, d)
	idx := len(m.pending)
	m.pending = append(m.pending, f)
	return func() bool {
		if m.pending[idx] == nil {
			return false
		}
		m.pending[idx] = nil
		m.stopped++
		return true
	}
}

func (m *manualTimers) fire(t *testing.T) {
	t.Helper()
	for i, f := range m.pending {
		if f != nil {
			m.pending[i] = nil
			f()
			return
		}
	}
	t.Fatal("no pending retry")
}

func (m *manualTimers) armed() int {
	n := 0
	for _, f := range m.pending {
		if f != nil {
			n++
		}
	}
	return n
}

func newMonitor(checker HealthChecker, signedIn func() bool) (*Monitor, *manualTimers) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	m := NewMonitor(checker, 10*time.Second, signedIn, logrus.NewEntry(log))
	timers := &manualTimers{}
	m.after = timers.after
	return m, timers
}

func TestInitialStateIsNotConnected(t *testing.T) {
	m, _ := newMonitor(&fakeChecker{}, func() bool { return true })
	assert.ErrorIs(t, m.State().Require(), ErrBackendUnreachable)
}

func TestCheckSuccess(t *testing.T) {
	m, timers := newMonitor(&fakeChecker{}, func() bool { return true })

	state := m.Check(context.Background())
	assert.Equal(t, StatusConnected, state.Status)
	assert.Equal(t, "pure_rag_llm_ocr", state.System)
	assert.Equal(t, "healthy", state.Detail)
	assert.NoError(t, m.State().Require())
	assert.Zero(t, timers.armed())
}

func TestFailureArmsExactlyOneRetry(t *testing.T) {
	checker := &fakeChecker{errs: []error{errors.New("refused"), errors.New("refused")}}
	m, timers := newMonitor(checker, func() bool { return true })

	state := m.Check(context.Background())
	assert.Equal(t, StatusUnreachable, state.Status)
	assert.Equal(t, "refused", state.Err)

	// A second failure while a retry is pending does not stack another one.
	m.Check(context.Background())
	require.Equal(t, 1, timers.armed())
	assert.Equal(t, []time.Duration{10 * time.Second}, timers.delays)
}

func TestRetryRecoversWhenSignedIn(t *testing.T) {
	checker := &fakeChecker{errs: []error{errors.New("refused")}}
	m, timers := newMonitor(checker, func() bool { return true })

	m.Check(context.Background())
	timers.fire(t)

	assert.Equal(t, 2, checker.Calls())
	assert.Equal(t, StatusConnected, m.State().Status)
	assert.Zero(t, timers.armed())
}

func TestRetrySkippedWhenNobodySignedIn(t *testing.T) {
	checker := &fakeChecker{errs: []error{errors.New("refused")}}
	m, timers := newMonitor(checker, func() bool { return false })

	m.Check(context.Background())
	timers.fire(t)

	assert.Equal(t, 1, checker.Calls())
	assert.Equal(t, StatusUnreachable, m.State().Status)
	assert.Zero(t, timers.armed())
}

func TestFailedRetryArmsNext(t *testing.T) {
	checker := &fakeChecker{errs: []error{errors.New("refused"), errors.New("refused")}}
	m, timers := newMonitor(checker, func() bool { return true })

	m.Check(context.Background())
	timers.fire(t)

	assert.Equal(t, 2, checker.Calls())
	assert.Equal(t, 1, timers.armed())
}

func TestSuccessCancelsPendingRetry(t *testing.T) {
	checker := &fakeChecker{errs: []error{errors.New("refused")}}
	m, timers := newMonitor(checker, func() bool { return true })

	m.Check(context.Background())
	m.Check(context.Background())

	assert.Equal(t, StatusConnected, m.State().Status)
	assert.Zero(t, timers.armed())
	assert.Equal(t, 1, timers.stopped)
}

func TestSlowFailureDoesNotOverwriteNewerSuccess(t *testing.T) {
	checker := &gatedChecker{entered: make(chan struct{}), release: make(chan struct{})}
	m, timers := newMonitor(checker, func() bool { return true })

	slow := make(chan State, 1)
	go func() { slow <- m.Check(context.Background()) }()
	<-checker.entered

	assert.Equal(t, StatusConnected, m.Check(context.Background()).Status)

	close(checker.release)
	late := <-slow
	assert.Equal(t, StatusConnected, late.Status)
	assert.Equal(t, StatusConnected, m.State().Status)
	assert.Zero(t, timers.armed())
}

func TestPresence(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p := NewPresence(time.Minute)
	p.now = func() time.Time { return now }

	assert.False(t, p.SignedIn())
	assert.True(t, p.Touch("u1"))
	assert.False(t, p.Touch("u1"))
	assert.True(t, p.SignedIn())

	now = now.Add(2 * time.Minute)
	assert.False(t, p.SignedIn())
	assert.True(t, p.Touch("u1"))

	p.Forget("u1")
	assert.False(t, p.SignedIn())
}
