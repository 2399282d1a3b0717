// Package notify turns committed ticket mutations into audit records and
// best-effort notifications.
package notify

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk/internal/config"
	"github.com/spec-kit/servicedesk/internal/domain"
	"github.com/spec-kit/servicedesk/internal/events"
	"github.com/spec-kit/servicedesk/internal/mail"
	"github.com/spec-kit/servicedesk/internal/realtime"
)

const auditEntity = "Ticket"

// AuditStore appends audit records, once per effect id.
type AuditStore interface {
	Insert(ctx context.Context, record *domain.AuditRecord) (bool, error)
}

// CommentStore appends ticket comments.
type CommentStore interface {
	Create(ctx context.Context, comment *domain.TicketComment) error
}

// NotificationStore creates in-app notifications.
type NotificationStore interface {
	Create(ctx context.Context, n *domain.Notification) error
}

// UserDirectory resolves e-mail recipients.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	ListBySupportGroup(ctx context.Context, supportGroupID string) ([]domain.User, error)
}

// Broadcaster emits realtime room events.
type Broadcaster interface {
	Emit(ctx context.Context, room, event string, payload any) error
}

// MetricsRecorder records ticket outcome metrics.
type MetricsRecorder interface {
	TicketResolved(priority string, sinceCreated time.Duration)
	TicketClosed(priority string)
}

// Dependencies groups emitter collaborators.
type Dependencies struct {
	Audit         AuditStore
	Comments      CommentStore
	Notifications NotificationStore
	Users         UserDirectory
	Mail          mail.Sender
	Realtime      Broadcaster
	Metrics       MetricsRecorder
	Dispatcher    events.Dispatcher
	Routing       config.Routing
	BaseURL       string
	Logger        *zap.Logger
}

// Emitter runs the AUDIT and NOTIFY effects.
type Emitter struct {
	deps   Dependencies
	logger *zap.Logger
	now    func() time.Time
}

// NewEmitter builds an emitter.
func NewEmitter(deps Dependencies) *Emitter {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{deps: deps, logger: logger, now: time.Now}
}

// AuditAction picks the action recorded for changes.
func AuditAction(changes domain.ChangeSet) domain.AuditAction {
	switch {
	case changes.Has(domain.FieldCategory):
		return domain.AuditActionCategoryReclassification
	case changes.Has(domain.FieldStatus):
		return domain.AuditActionStatusUpdate
	default:
		return domain.AuditActionUpdateTicket
	}
}

// RecordAudit writes the single audit record of a mutation. effectID makes the
// write idempotent across retries. An empty change set records nothing.
func (e *Emitter) RecordAudit(ctx context.Context, effectID string, ev domain.MutationEvent) error {
	if len(ev.Changes) == 0 {
		return nil
	}
	record := &domain.AuditRecord{
		EffectID:  effectID,
		UserID:    ev.Actor.ID,
		Action:    AuditAction(ev.Changes),
		Entity:    auditEntity,
		EntityID:  ev.Ticket.ID,
		OldValues: ev.Changes.OldValues(),
		NewValues: ev.Changes.NewValues(),
	}
	if len(ev.Warnings) > 0 {
		record.NewValues["warnings"] = ev.Warnings
	}

	inserted, err := e.deps.Audit.Insert(ctx, record)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	if !inserted {
		e.logger.Debug("audit record already written", zap.String("effect_id", effectID))
		return nil
	}
	e.publish(ctx, ev, events.EventAuditRecorded, events.AuditRecordedPayload{
		EffectID: effectID,
		Action:   record.Action,
	})
	return nil
}

// Notify fans the mutation out to every notification channel concurrently.
// Failures are logged per channel and never reported to the caller.
func (e *Emitter) Notify(ctx context.Context, ev domain.MutationEvent) {
	tasks := map[string]func(context.Context, domain.MutationEvent) error{
		"realtime_update": e.broadcastUpdate,
	}
	if ev.Changes.Has(domain.FieldCategory) {
		tasks["category_comment"] = e.categoryComment
	}
	if ev.StatusChanged() {
		tasks["status_metrics"] = e.statusMetrics
		tasks["email"] = e.sendEmail
	}
	if ev.Changes.Has(domain.FieldAssignedToID) && ev.Ticket.AssignedToID != nil {
		tasks["assignment"] = e.notifyAssignee
	}

	var wg sync.WaitGroup
	for name, task := range tasks {
		wg.Add(1)
		go func(name string, task func(context.Context, domain.MutationEvent) error) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("notification task panicked",
						zap.String("task", name),
						zap.String("ticket_id", ev.Ticket.ID),
						zap.Any("panic", r),
						zap.ByteString("stack", debug.Stack()),
					)
				}
			}()
			if err := task(ctx, ev); err != nil {
				e.logger.Warn("notification task failed",
					zap.String("task", name),
					zap.String("ticket_id", ev.Ticket.ID),
					zap.Error(err),
				)
			}
		}(name, task)
	}
	wg.Wait()
}

func (e *Emitter) categoryComment(ctx context.Context, ev domain.MutationEvent) error {
	ch, _ := ev.Changes.Get(domain.FieldCategory)
	oldLabel := categoryLabel(ch.Old)
	newLabel := categoryLabel(ch.New)
	comment := &domain.TicketComment{
		TicketID:   ev.Ticket.ID,
		UserID:     ev.Actor.ID,
		Content:    fmt.Sprintf("Kategori tiket diubah dari %s menjadi %s", oldLabel, newLabel),
		IsInternal: true,
	}
	return e.deps.Comments.Create(ctx, comment)
}

func categoryLabel(v any) string {
	s, _ := v.(string)
	if s == "" {
		return "-"
	}
	return domain.TicketCategory(s).Label()
}

func (e *Emitter) statusMetrics(_ context.Context, ev domain.MutationEvent) error {
	t := ev.Ticket
	e.logger.Info("ticket status changed",
		zap.String("ticket_id", t.ID),
		zap.String("ticket_number", t.TicketNumber),
		zap.String("old_status", string(ev.OldStatus)),
		zap.String("new_status", string(ev.NewStatus)),
		zap.String("actor_id", ev.Actor.ID),
		zap.String("priority", string(t.Priority)),
	)
	switch ev.NewStatus {
	case domain.TicketStatusResolved:
		resolvedAt := ev.OccurredAt
		if t.ResolvedAt != nil {
			resolvedAt = *t.ResolvedAt
		}
		elapsed := resolvedAt.Sub(t.CreatedAt)
		if e.deps.Metrics != nil {
			e.deps.Metrics.TicketResolved(string(t.Priority), elapsed)
		}
		e.logger.Info("ticket resolved",
			zap.String("ticket_id", t.ID),
			zap.Float64("resolution_hours", elapsed.Hours()),
			zap.Duration("sla_paused", t.SLAPausedTotal),
		)
	case domain.TicketStatusClosed:
		if e.deps.Metrics != nil {
			e.deps.Metrics.TicketClosed(string(t.Priority))
		}
	}
	return nil
}

// TemplateKey selects the e-mail template for a new status.
func TemplateKey(status domain.TicketStatus) string {
	switch status {
	case domain.TicketStatusResolved:
		return config.TemplateTicketResolved
	case domain.TicketStatusClosed:
		return config.TemplateTicketClosed
	default:
		return config.TemplateTicketUpdated
	}
}

// TemplateData is the context e-mail templates render against.
type TemplateData struct {
	TicketNumber    string
	Title           string
	Description     string
	Status          string
	OldStatus       string
	Priority        string
	Category        string
	ActorName       string
	ResolutionNotes string
	Link            string
}

func (e *Emitter) templateData(ev domain.MutationEvent) TemplateData {
	t := ev.Ticket
	data := TemplateData{
		TicketNumber:    t.TicketNumber,
		Title:           t.Title,
		Description:     t.Description,
		Status:          string(ev.NewStatus),
		OldStatus:       string(ev.OldStatus),
		Priority:        string(t.Priority),
		Category:        t.Category.Label(),
		ActorName:       ev.Actor.Name,
		ResolutionNotes: t.ResolutionNotes,
		Link:            strings.TrimRight(e.deps.BaseURL, "/") + "/tickets/" + t.ID,
	}
	if t.IsConfidential {
		data.Description = ""
		data.ResolutionNotes = ""
	}
	return data
}

func (e *Emitter) sendEmail(ctx context.Context, ev domain.MutationEvent) error {
	if e.deps.Mail == nil {
		return nil
	}
	key := TemplateKey(ev.NewStatus)
	route := e.deps.Routing.Route(key)
	recipients, err := e.recipients(ctx, ev.Ticket, route.Recipients)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		e.logger.Debug("no e-mail recipients", zap.String("template", key), zap.String("ticket_id", ev.Ticket.ID))
		return nil
	}
	subject, body, err := mail.Render(route, e.templateData(ev))
	if err != nil {
		return err
	}
	if err := e.deps.Mail.Send(ctx, mail.Message{To: recipients, Subject: subject, Body: body}); err != nil {
		return fmt.Errorf("send %s: %w", key, err)
	}
	return nil
}

func (e *Emitter) recipients(ctx context.Context, t domain.Ticket, kinds []config.Recipient) ([]mail.Address, error) {
	seen := make(map[string]struct{})
	var out []mail.Address
	add := func(u *domain.User) {
		if u == nil || !u.IsActive || u.Email == "" {
			return
		}
		if _, ok := seen[u.Email]; ok {
			return
		}
		seen[u.Email] = struct{}{}
		out = append(out, mail.Address{Name: u.Name, Email: u.Email})
	}

	for _, kind := range kinds {
		switch kind {
		case config.RecipientRequester:
			u, err := e.deps.Users.GetByID(ctx, t.CreatedByID)
			if err != nil {
				return nil, fmt.Errorf("resolve requester: %w", err)
			}
			add(u)
		case config.RecipientAssignee:
			if t.AssignedToID == nil {
				continue
			}
			u, err := e.deps.Users.GetByID(ctx, *t.AssignedToID)
			if err != nil {
				return nil, fmt.Errorf("resolve assignee: %w", err)
			}
			add(u)
		case config.RecipientSupportGroup:
			if t.SupportGroupID == nil {
				continue
			}
			members, err := e.deps.Users.ListBySupportGroup(ctx, *t.SupportGroupID)
			if err != nil {
				return nil, fmt.Errorf("resolve support group: %w", err)
			}
			for i := range members {
				add(&members[i])
			}
		}
	}
	return out, nil
}

func (e *Emitter) notifyAssignee(ctx context.Context, ev domain.MutationEvent) error {
	assignee := *ev.Ticket.AssignedToID
	payload := events.TicketAssignedPayload{
		TicketNumber: ev.Ticket.TicketNumber,
		AssigneeID:   assignee,
	}
	if ch, ok := ev.Changes.Get(domain.FieldAssignedToID); ok {
		if prev, ok := ch.Old.(string); ok {
			payload.PreviousID = &prev
		}
	}
	e.publish(ctx, ev, events.EventTicketAssigned, payload)

	var errs []error
	if err := e.emit(ctx, realtime.TicketRoom(ev.Ticket.ID), string(events.EventTicketAssigned), payload); err != nil {
		errs = append(errs, err)
	}
	if assignee != ev.Actor.ID {
		n := &domain.Notification{
			UserID:  assignee,
			Type:    domain.NotificationTicketAssigned,
			Title:   "Tiket ditugaskan kepada Anda",
			Message: fmt.Sprintf("Tiket %s: %s telah ditugaskan kepada Anda oleh %s", ev.Ticket.TicketNumber, ev.Ticket.Title, ev.Actor.Name),
			Data: map[string]any{
				"ticketId":     ev.Ticket.ID,
				"ticketNumber": ev.Ticket.TicketNumber,
			},
		}
		if err := e.deps.Notifications.Create(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("create notification: %w", err))
		} else {
			created := events.NotificationCreatedPayload{
				NotificationID: n.ID,
				UserID:         n.UserID,
				Kind:           n.Type,
			}
			e.publish(ctx, ev, events.EventNotificationCreated, created)
			if err := e.emit(ctx, realtime.UserRoom(assignee), string(events.EventNotificationCreated), created); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (e *Emitter) broadcastUpdate(ctx context.Context, ev domain.MutationEvent) error {
	fields := make([]domain.Field, 0, len(ev.Changes))
	for _, ch := range ev.Changes {
		fields = append(fields, ch.Field)
	}
	payload := events.TicketUpdatedPayload{
		TicketNumber: ev.Ticket.TicketNumber,
		OldStatus:    ev.OldStatus,
		NewStatus:    ev.NewStatus,
		Fields:       fields,
	}
	e.publish(ctx, ev, events.EventTicketUpdated, payload)
	return e.emit(ctx, realtime.TicketRoom(ev.Ticket.ID), string(events.EventTicketUpdated), payload)
}

func (e *Emitter) emit(ctx context.Context, room, event string, payload any) error {
	if e.deps.Realtime == nil {
		return nil
	}
	return e.deps.Realtime.Emit(ctx, room, event, payload)
}

func (e *Emitter) publish(ctx context.Context, ev domain.MutationEvent, t events.EventType, payload any) {
	if e.deps.Dispatcher == nil {
		return
	}
	_ = e.deps.Dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      t,
		TicketID:  ev.Ticket.ID,
		Actor:     ev.Actor,
		Timestamp: e.now(),
		Payload:   payload,
	})
}
