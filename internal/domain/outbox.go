package domain

import "time"

// EffectKind identifies a follow-up task recorded with a committed mutation.
type EffectKind string

const (
	EffectAudit        EffectKind = "AUDIT"
	EffectNotify       EffectKind = "NOTIFY"
	EffectSyncVendor   EffectKind = "SYNC_VENDOR"
	EffectSyncExternal EffectKind = "SYNC_EXTERNAL"
)

// EffectState tracks outbox processing.
type EffectState string

const (
	EffectStateProcessing EffectState = "PROCESSING"
	EffectStateDone       EffectState = "DONE"
	EffectStateFailed     EffectState = "FAILED"
)

// MutationEvent is the committed outcome of one ticket mutation. It is the
// payload every outbox effect carries.
type MutationEvent struct {
	Actor      Actor        `json:"actor"`
	Ticket     Ticket       `json:"ticket"`
	OldStatus  TicketStatus `json:"oldStatus"`
	NewStatus  TicketStatus `json:"newStatus"`
	Changes    ChangeSet    `json:"changes"`
	Warnings   []string     `json:"warnings,omitempty"`
	OccurredAt time.Time    `json:"occurredAt"`
}

// StatusChanged reports whether the mutation moved the ticket to a new status.
func (e MutationEvent) StatusChanged() bool { return e.OldStatus != e.NewStatus }

// OutboxEffect is a pending follow-up persisted in the same transaction as the mutation.
type OutboxEffect struct {
	ID        string
	TicketID  string
	Kind      EffectKind
	Event     MutationEvent
	State     EffectState
	Attempts  int
	LastError string
	ClaimedAt time.Time
	CreatedAt time.Time
}
