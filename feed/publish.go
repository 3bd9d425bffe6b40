package feed

import (
	"context"

	"civicgpt/tax-advisor/store"
	"civicgpt/tax-advisor/types"

	"github.com/sirupsen/logrus"
)

// PublishingStore wraps a SessionStore and signals the owner's feed after
// every successful write. Signal failures are logged, never returned: the
// poll fallback still catches the change.
type PublishingStore struct {
	store.SessionStore
	notifier Notifier
	log      *logrus.Entry
}

func NewPublishingStore(sessions store.SessionStore, notifier Notifier, log *logrus.Entry) *PublishingStore {
	return &PublishingStore{SessionStore: sessions, notifier: notifier, log: log}
}

func (p *PublishingStore) Create(ctx context.Context, s types.Session) (types.Session, error) {
	created, err := p.SessionStore.Create(ctx, s)
	if err == nil {
		p.publish(ctx, created.UserID)
	}
	return created, err
}

func (p *PublishingStore) Complete(ctx context.Context, id string, analysis types.Analysis) error {
	return p.afterWrite(ctx, id, p.SessionStore.Complete(ctx, id, analysis))
}

func (p *PublishingStore) MarkError(ctx context.Context, id, reason string) error {
	return p.afterWrite(ctx, id, p.SessionStore.MarkError(ctx, id, reason))
}

func (p *PublishingStore) AppendQuestion(ctx context.Context, id string, entry types.QuestionEntry) error {
	return p.afterWrite(ctx, id, p.SessionStore.AppendQuestion(ctx, id, entry))
}

func (p *PublishingStore) afterWrite(ctx context.Context, id string, err error) error {
	if err != nil {
		return err
	}
	sess, getErr := p.SessionStore.Get(ctx, id)
	if getErr != nil {
		p.log.Warn("Failed to resolve session owner for change signal: ", getErr)
		return nil
	}
	p.publish(ctx, sess.UserID)
	return nil
}

func (p *PublishingStore) publish(ctx context.Context, userID string) {
	if err := p.notifier.Publish(context.WithoutCancel(ctx), userID); err != nil {
		p.log.Warn("Failed to publish session change: ", err)
	}
}
