package worker

import (
	"context"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// Auditor writes the audit record of a mutation.
type Auditor interface {
	RecordAudit(ctx context.Context, effectID string, ev domain.MutationEvent) error
}

// Notifier fans a mutation out to best-effort notification channels.
type Notifier interface {
	Notify(ctx context.Context, ev domain.MutationEvent)
}

// Syncer propagates a mutation to linked vendor tickets and the external channel.
type Syncer interface {
	SyncVendor(ctx context.Context, ev domain.MutationEvent) error
	PushExternal(ctx context.Context, ev domain.MutationEvent) error
}

// RegisterEffects wires the four effect kinds onto pool. Notifications are
// attempted once; every other kind is retried.
func RegisterEffects(pool *Pool, auditor Auditor, notifier Notifier, syncer Syncer) {
	pool.Handle(domain.EffectAudit, func(ctx context.Context, effect domain.OutboxEffect) error {
		return auditor.RecordAudit(ctx, effect.ID, effect.Event)
	}, true)
	pool.Handle(domain.EffectNotify, func(ctx context.Context, effect domain.OutboxEffect) error {
		notifier.Notify(ctx, effect.Event)
		return nil
	}, false)
	pool.Handle(domain.EffectSyncVendor, func(ctx context.Context, effect domain.OutboxEffect) error {
		return syncer.SyncVendor(ctx, effect.Event)
	}, true)
	pool.Handle(domain.EffectSyncExternal, func(ctx context.Context, effect domain.OutboxEffect) error {
		return syncer.PushExternal(ctx, effect.Event)
	}, true)
}
