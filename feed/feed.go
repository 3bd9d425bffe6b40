// Package feed turns the session store into a live, per-user stream of
// session-list snapshots.
//
//	sub := f.Subscribe(userID)
//	defer sub.Close()
//	for sessions, err := range sub.Snapshots(ctx) {
//		...
//	}
//
// Snapshots is lazy: nothing is read until the sequence is ranged over. It
// is restartable: every range opens a fresh listener and starts from the
// current list. Breaking out of the loop, cancelling ctx or calling Close
// tears the listener down.
package feed

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"civicgpt/tax-advisor/store"
	"civicgpt/tax-advisor/types"

	"github.com/sirupsen/logrus"
)

type Feed struct {
	sessions store.SessionStore
	notifier Notifier
	interval time.Duration
	limit    int
	log      *logrus.Entry
}

// New builds a feed. interval is the poll fallback used between change
// signals; zero disables polling.
func New(sessions store.SessionStore, notifier Notifier, interval time.Duration, limit int, log *logrus.Entry) *Feed {
	return &Feed{sessions: sessions, notifier: notifier, interval: interval, limit: limit, log: log}
}

type Subscription struct {
	feed   *Feed
	userID string

	closeOnce sync.Once
	closed    chan struct{}
}

// Subscribe registers interest in userID's sessions. No I/O happens until
// Snapshots is ranged over.
func (f *Feed) Subscribe(userID string) *Subscription {
	return &Subscription{feed: f, userID: userID, closed: make(chan struct{})}
}

// Close ends every running Snapshots loop of this subscription. Safe to
// call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// Snapshots yields the current session list and then every changed list.
// A failed read yields (nil, err) and the loop keeps going; the consumer
// decides whether to stop.
func (s *Subscription) Snapshots(ctx context.Context) iter.Seq2[[]types.Session, error] {
	return func(yield func([]types.Session, error) bool) {
		select {
		case <-s.closed:
			return
		default:
		}

		changes, release, err := s.feed.notifier.Subscribe(ctx, s.userID)
		if err != nil {
			yield(nil, fmt.Errorf("failed to listen for changes: %w", err))
			return
		}
		defer release()

		var tick <-chan time.Time
		if s.feed.interval > 0 {
			ticker := time.NewTicker(s.feed.interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		var last []types.Session
		first := true
		for {
			list, err := s.feed.sessions.ListByUser(ctx, s.userID, s.feed.limit)
			switch {
			case err != nil:
				if ctx.Err() != nil {
					return
				}
				if !yield(nil, err) {
					return
				}
			case first || !sameSnapshot(last, list):
				first = false
				last = list
				if !yield(list, nil) {
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-s.closed:
				return
			case <-changes:
			case <-tick:
			}
		}
	}
}

// sameSnapshot compares what a reader can observe changing: membership,
// order, status, question count and last update.
func sameSnapshot(a, b []types.Session) bool {
	return slices.EqualFunc(a, b, func(x, y types.Session) bool {
		return x.ID == y.ID &&
			x.Status == y.Status &&
			x.Version == y.Version &&
			len(x.Questions) == len(y.Questions) &&
			equalTime(x.UpdatedAt, y.UpdatedAt)
	})
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
