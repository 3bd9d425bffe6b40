// Package connectivity tracks whether the processing backend is reachable.
//
// A failed check arms one deferred retry. The retry only runs if somebody is
// still signed in when it fires, and a failing retry arms the next one, so
// retries continue at a fixed delay until the backend answers or everybody
// signs out.
package connectivity

import (
	"context"
	"errors"
	"sync"
	"time"

	"civicgpt/tax-advisor/types"

	"github.com/sirupsen/logrus"
)

// ErrBackendUnreachable gates every backend-dependent operation.
var ErrBackendUnreachable = errors.New("backend server is not connected, please make sure the processing server is running")

type Status string

const (
	StatusChecking    Status = "checking"
	StatusConnected   Status = "connected"
	StatusUnreachable Status = "unreachable"
)

// State is a snapshot of backend reachability. It is passed by value into
// the orchestrators.
type State struct {
	Status    Status    `json:"status"`
	System    string    `json:"system,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Err       string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

func (s State) Connected() bool {
	return s.Status == StatusConnected
}

// Require returns ErrBackendUnreachable unless the backend is connected.
func (s State) Require() error {
	if !s.Connected() {
		return ErrBackendUnreachable
	}
	return nil
}

// Connected is a ready-made connected state.
func Connected() State {
	return State{Status: StatusConnected, CheckedAt: time.Now()}
}

// Unreachable is a ready-made unreachable state.
func Unreachable(reason string) State {
	return State{Status: StatusUnreachable, Err: reason, CheckedAt: time.Now()}
}

type HealthChecker interface {
	Health(ctx context.Context) (types.HealthResponse, error)
}

// afterFunc schedules f after d and returns a stop function.
type afterFunc func(d time.Duration, f func()) (stop func() bool)

func timeAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

type Monitor struct {
	checker      HealthChecker
	retryDelay   time.Duration
	checkTimeout time.Duration
	signedIn     func() bool
	log          *logrus.Entry

	after afterFunc
	now   func() time.Time

	mu        sync.Mutex
	state     State
	stopRetry func() bool
	// started numbers checks as they begin; recorded is the number of the
	// check that last wrote state. Older results are dropped.
	started  uint64
	recorded uint64
}

// NewMonitor builds a monitor in the checking state. signedIn is consulted
// when a deferred retry fires.
func NewMonitor(checker HealthChecker, retryDelay time.Duration, signedIn func() bool, log *logrus.Entry) *Monitor {
	return &Monitor{
		checker:      checker,
		retryDelay:   retryDelay,
		checkTimeout: 10 * time.Second,
		signedIn:     signedIn,
		log:          log,
		after:        timeAfterFunc,
		now:          time.Now,
		state:        State{Status: StatusChecking},
	}
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Check performs one liveness request and records the outcome. When checks
// overlap, a result that lands after a later-started check has been
// recorded is discarded and the current state is returned.
func (m *Monitor) Check(ctx context.Context) State {
	ctx, cancel := context.WithTimeout(ctx, m.checkTimeout)
	defer cancel()

	m.mu.Lock()
	m.started++
	seq := m.started
	m.mu.Unlock()

	health, err := m.checker.Health(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if seq < m.recorded {
		m.log.Debug("Discarding stale backend check")
		return m.state
	}
	m.recorded = seq

	if err != nil {
		m.state = State{Status: StatusUnreachable, Err: err.Error(), CheckedAt: m.now()}
		m.log.Warn("Backend connection failed: ", err)
		m.armRetryLocked()
		return m.state
	}

	if m.state.Status != StatusConnected {
		m.log.WithField("system", health.System).Info("Backend connected")
	}
	m.state = State{
		Status:    StatusConnected,
		System:    health.System,
		Detail:    health.Status,
		CheckedAt: m.now(),
	}
	if m.stopRetry != nil {
		m.stopRetry()
		m.stopRetry = nil
	}
	return m.state
}

// Run checks on every tick until ctx ends. It is optional: without it the
// monitor only checks when asked and on deferred retries.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Stop cancels a pending retry.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopRetry != nil {
		m.stopRetry()
		m.stopRetry = nil
	}
}

// armRetryLocked schedules at most one pending retry.
func (m *Monitor) armRetryLocked() {
	if m.stopRetry != nil || m.retryDelay <= 0 {
		return
	}
	m.stopRetry = m.after(m.retryDelay, m.retry)
}

func (m *Monitor) retry() {
	m.mu.Lock()
	m.stopRetry = nil
	m.mu.Unlock()

	if m.signedIn != nil && !m.signedIn() {
		m.log.Debug("Skipping backend retry, nobody is signed in")
		return
	}
	m.Check(context.Background())
}
