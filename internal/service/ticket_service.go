package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk/internal/domain"
	"github.com/spec-kit/servicedesk/internal/lifecycle"
	"github.com/spec-kit/servicedesk/internal/repository"
	"github.com/spec-kit/servicedesk/internal/synchronizer"
	apperrors "github.com/spec-kit/servicedesk/pkg/util"
)

const maxTitleLength = 200

// FieldAuthorizer decides which requested fields an actor may change.
type FieldAuthorizer interface {
	AllowedFields(actor domain.Actor, ticket *domain.Ticket, requested domain.FieldSet) (domain.FieldSet, error)
}

// EffectQueue hands committed effects to background workers.
type EffectQueue interface {
	Enqueue(effects ...domain.OutboxEffect) int
}

// TicketLookup loads tickets by id or public number.
type TicketLookup interface {
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByNumber(ctx context.Context, number string) (*domain.Ticket, error)
}

// SLALookup loads the SLA row of a ticket.
type SLALookup interface {
	GetByTicket(ctx context.Context, ticketID string) (*domain.SLATracking, error)
}

// TicketService coordinates ticket mutations.
type TicketService struct {
	tickets   TicketLookup
	sla       SLALookup
	mutations repository.MutationRepository
	access    FieldAuthorizer
	priority  *PriorityPolicy
	effects   EffectQueue
	logger    *zap.Logger

	now   func() time.Time
	newID func() string
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Tickets   TicketLookup
	SLA       SLALookup
	Mutations repository.MutationRepository
	Access    FieldAuthorizer
	Priority  *PriorityPolicy
	Effects   EffectQueue
	Logger    *zap.Logger
}

// NewTicketService wires the ticket service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	priority := deps.Priority
	if priority == nil {
		priority = NewPriorityPolicy(nil, logger)
	}
	return &TicketService{
		tickets:   deps.Tickets,
		sla:       deps.SLA,
		mutations: deps.Mutations,
		access:    deps.Access,
		priority:  priority,
		effects:   deps.Effects,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// UpdateTicketInput carries the fields of a mutation request. Nil means absent.
// An empty AssignedToID unassigns the ticket.
type UpdateTicketInput struct {
	Title               *string
	Description         *string
	Priority            *domain.TicketPriority
	Justification       *string
	Status              *domain.TicketStatus
	AssignedToID        *string
	Category            *domain.TicketCategory
	IssueClassification *domain.IssueClassification
	RootCause           *string
	ResolutionNotes     *string
	EstimatedHours      *float64
	ActualHours         *float64
	Version             *int64
}

// Fields returns the set of fields present in the request.
func (in UpdateTicketInput) Fields() domain.FieldSet {
	set := domain.NewFieldSet()
	add := func(present bool, f domain.Field) {
		if present {
			set[f] = struct{}{}
		}
	}
	add(in.Title != nil, domain.FieldTitle)
	add(in.Description != nil, domain.FieldDescription)
	add(in.Priority != nil, domain.FieldPriority)
	add(in.Justification != nil, domain.FieldJustification)
	add(in.Status != nil, domain.FieldStatus)
	add(in.AssignedToID != nil, domain.FieldAssignedToID)
	add(in.Category != nil, domain.FieldCategory)
	add(in.IssueClassification != nil, domain.FieldIssueClassification)
	add(in.RootCause != nil, domain.FieldRootCause)
	add(in.ResolutionNotes != nil, domain.FieldResolutionNotes)
	add(in.EstimatedHours != nil, domain.FieldEstimatedHours)
	add(in.ActualHours != nil, domain.FieldActualHours)
	return set
}

// Validate checks the shape of every present field.
func (in UpdateTicketInput) Validate() error {
	invalid := func(field domain.Field, message string) error {
		return apperrors.NewValidationError(message, map[string]any{"field": string(field)})
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return invalid(domain.FieldTitle, "title must not be empty")
		}
		if utf8.RuneCountInString(title) > maxTitleLength {
			return invalid(domain.FieldTitle, "title must be at most 200 characters")
		}
	}
	if in.Priority != nil && !in.Priority.Valid() {
		return invalid(domain.FieldPriority, "unknown priority")
	}
	if in.Status != nil && !in.Status.Valid() {
		return invalid(domain.FieldStatus, "unknown status")
	}
	if in.Category != nil && !in.Category.Valid() {
		return invalid(domain.FieldCategory, "unknown category")
	}
	if in.IssueClassification != nil && !in.IssueClassification.Valid() {
		return invalid(domain.FieldIssueClassification, "unknown issue classification")
	}
	if in.EstimatedHours != nil && *in.EstimatedHours < 0 {
		return invalid(domain.FieldEstimatedHours, "estimated hours must not be negative")
	}
	if in.ActualHours != nil && *in.ActualHours < 0 {
		return invalid(domain.FieldActualHours, "actual hours must not be negative")
	}
	return nil
}

// UpdateResult is the committed ticket plus any non-fatal adjustments.
type UpdateResult struct {
	Ticket   *domain.Ticket
	Changes  domain.ChangeSet
	Warnings []Warning
}

// UpdateTicket applies input to the ticket with id on behalf of actor.
func (s *TicketService) UpdateTicket(ctx context.Context, actor domain.Actor, id string, input UpdateTicketInput) (*UpdateResult, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "id", id)
	}
	return s.update(ctx, actor, ticket, input)
}

// UpdateTicketByNumber is UpdateTicket addressed by the public ticket number.
func (s *TicketService) UpdateTicketByNumber(ctx context.Context, actor domain.Actor, number string, input UpdateTicketInput) (*UpdateResult, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	ticket, err := s.tickets.GetByNumber(ctx, number)
	if err != nil {
		return nil, notFound(err, "ticketNumber", number)
	}
	return s.update(ctx, actor, ticket, input)
}

func (s *TicketService) update(ctx context.Context, actor domain.Actor, current *domain.Ticket, input UpdateTicketInput) (*UpdateResult, error) {
	if input.Version != nil && *input.Version != current.Version {
		return nil, apperrors.NewStaleWrite("ticket", current.ID, current.Version)
	}
	if _, err := s.access.AllowedFields(actor, current, input.Fields()); err != nil {
		return nil, err
	}

	updated := current.Clone()
	var warnings []Warning
	if input.Priority != nil {
		priority, adjusted, err := s.priority.Resolve(ctx, actor, current, *input.Priority)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		updated.Priority = priority
		warnings = append(warnings, adjusted...)
	}
	applyPlainFields(updated, input)

	var tracking *domain.SLATracking
	now := s.now().UTC()
	if input.Status != nil {
		stored, err := s.sla.GetByTicket(ctx, current.ID)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		tracking = stored.Clone()
		tr := lifecycle.ApplyTransition(updated, *input.Status, actor.ID, now)
		patch := lifecycle.UpdateSLA(updated, tracking, tr.OldStatus, tr.NewStatus, now)
		tr.Apply(updated)
		patch.Apply(updated, tracking)
		if patch.Empty() {
			tracking = nil
		}
	}

	changes := domain.Diff(current, updated)
	if len(changes) == 0 {
		return &UpdateResult{Ticket: current, Changes: changes, Warnings: warnings}, nil
	}

	event := domain.MutationEvent{
		Actor:      actor,
		Ticket:     *updated,
		OldStatus:  current.Status,
		NewStatus:  updated.Status,
		Changes:    changes,
		Warnings:   warningMessages(warnings),
		OccurredAt: now,
	}
	event.Ticket.Version = current.Version + 1
	effects := s.buildEffects(event)

	err := s.mutations.Commit(ctx, repository.Mutation{
		Ticket:          updated,
		ExpectedVersion: current.Version,
		SLA:             tracking,
		Effects:         effects,
	})
	if errors.Is(err, repository.ErrVersionConflict) {
		return nil, apperrors.NewStaleWrite("ticket", current.ID, current.Version)
	}
	if err != nil {
		return nil, notFound(err, "id", current.ID)
	}

	s.logger.Info("ticket updated",
		zap.String("ticket_id", updated.ID),
		zap.String("ticket_number", updated.TicketNumber),
		zap.String("actor_id", actor.ID),
		zap.Strings("fields", changedFields(changes)),
		zap.Int("effects", len(effects)),
	)
	if s.effects != nil {
		if accepted := s.effects.Enqueue(effects...); accepted < len(effects) {
			s.logger.Warn("effects deferred to sweep",
				zap.String("ticket_id", updated.ID),
				zap.Int("deferred", len(effects)-accepted),
			)
		}
	}
	return &UpdateResult{Ticket: updated, Changes: changes, Warnings: warnings}, nil
}

func applyPlainFields(t *domain.Ticket, in UpdateTicketInput) {
	if in.Title != nil {
		t.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.Justification != nil {
		t.Justification = *in.Justification
	}
	if in.AssignedToID != nil {
		if *in.AssignedToID == "" {
			t.AssignedToID = nil
		} else {
			assignee := *in.AssignedToID
			t.AssignedToID = &assignee
		}
	}
	if in.Category != nil {
		t.Category = *in.Category
	}
	if in.IssueClassification != nil {
		classification := *in.IssueClassification
		t.IssueClassification = &classification
	}
	if in.RootCause != nil {
		t.RootCause = *in.RootCause
	}
	if in.ResolutionNotes != nil {
		t.ResolutionNotes = *in.ResolutionNotes
	}
	if in.EstimatedHours != nil {
		hours := *in.EstimatedHours
		t.EstimatedHours = &hours
	}
	if in.ActualHours != nil {
		hours := *in.ActualHours
		t.ActualHours = &hours
	}
}

func (s *TicketService) buildEffects(event domain.MutationEvent) []domain.OutboxEffect {
	kinds := []domain.EffectKind{domain.EffectAudit, domain.EffectNotify}
	if synchronizer.NeedsVendorSync(event) {
		kinds = append(kinds, domain.EffectSyncVendor)
	}
	if synchronizer.NeedsExternalSync(event) {
		kinds = append(kinds, domain.EffectSyncExternal)
	}
	effects := make([]domain.OutboxEffect, 0, len(kinds))
	for _, kind := range kinds {
		effects = append(effects, domain.OutboxEffect{
			ID:       s.newID(),
			TicketID: event.Ticket.ID,
			Kind:     kind,
			Event:    event,
			State:    domain.EffectStateProcessing,
		})
	}
	return effects
}

func warningMessages(warnings []Warning) []string {
	if len(warnings) == 0 {
		return nil
	}
	out := make([]string, 0, len(warnings))
	for _, w := range warnings {
		out = append(out, w.Message)
	}
	return out
}

func changedFields(changes domain.ChangeSet) []string {
	out := make([]string, 0, len(changes))
	for _, ch := range changes {
		out = append(out, string(ch.Field))
	}
	return out
}

func notFound(err error, key, value string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound("ticket", map[string]any{key: value})
	}
	return apperrors.MapError(err)
}
