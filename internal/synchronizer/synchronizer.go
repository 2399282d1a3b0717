// Package synchronizer propagates main-ticket transitions to vendor tickets and
// to the external channel a ticket originated from. Vendor ticket state is
// derived from the latest main-ticket transition only; nothing here writes the
// main ticket.
package synchronizer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk/internal/domain"
	"github.com/spec-kit/servicedesk/internal/events"
	"github.com/spec-kit/servicedesk/internal/omnichannel"
	"github.com/spec-kit/servicedesk/internal/repository"
)

// VendorStore reads and settles vendor tickets.
type VendorStore interface {
	FindActive(ctx context.Context, ticketID string) ([]domain.VendorTicket, error)
	Settle(ctx context.Context, s *repository.VendorSettlement) (bool, error)
}

// ExternalChannel pushes status changes to the originating platform.
type ExternalChannel interface {
	SyncStatus(ctx context.Context, ticketNumber, externalRef string, newStatus domain.TicketStatus) (omnichannel.Result, error)
}

// MetricsRecorder counts external pushes.
type MetricsRecorder interface {
	OmniStatusUpdate(result string)
}

// Synchronizer runs the SYNC_VENDOR and SYNC_EXTERNAL effects.
type Synchronizer struct {
	vendors    VendorStore
	external   ExternalChannel
	dispatcher events.Dispatcher
	metrics    MetricsRecorder
	logger     *zap.Logger
	now        func() time.Time
}

// Dependencies groups synchronizer collaborators. External may be nil when no
// channel is configured.
type Dependencies struct {
	Vendors    VendorStore
	External   ExternalChannel
	Dispatcher events.Dispatcher
	Metrics    MetricsRecorder
	Logger     *zap.Logger
}

// New builds a synchronizer.
func New(deps Dependencies) *Synchronizer {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		vendors:    deps.Vendors,
		external:   deps.External,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// NeedsVendorSync reports whether the transition affects vendor tickets.
func NeedsVendorSync(ev domain.MutationEvent) bool {
	if !ev.StatusChanged() {
		return false
	}
	if ev.NewStatus == domain.TicketStatusResolved || ev.NewStatus == domain.TicketStatusClosed {
		return true
	}
	return ev.OldStatus == domain.TicketStatusPendingVendor && ev.NewStatus == domain.TicketStatusInProgress
}

// NeedsExternalSync reports whether the transition must be pushed to an external channel.
func NeedsExternalSync(ev domain.MutationEvent) bool {
	return ev.StatusChanged() && ev.Ticket.ExternalRef != nil && *ev.Ticket.ExternalRef != ""
}

// SyncVendor settles the active vendor ticket for the transition in ev.
// Re-running it after success is a no-op because settled tickets are no longer active.
func (s *Synchronizer) SyncVendor(ctx context.Context, ev domain.MutationEvent) error {
	if !NeedsVendorSync(ev) {
		return nil
	}
	active, err := s.vendors.FindActive(ctx, ev.Ticket.ID)
	if err != nil {
		return fmt.Errorf("find active vendor ticket: %w", err)
	}
	if len(active) == 0 {
		return nil
	}
	if len(active) > 1 {
		s.logger.Warn("multiple active vendor tickets; settling oldest",
			zap.String("ticket_id", ev.Ticket.ID),
			zap.Int("active", len(active)),
		)
	}
	vt := active[0]

	status, eventType, content := settlement(vt, ev)
	at := s.now()
	settled, err := s.vendors.Settle(ctx, &repository.VendorSettlement{
		VendorTicketID: vt.ID,
		Status:         status,
		At:             at,
		Comment: domain.TicketComment{
			TicketID:   ev.Ticket.ID,
			UserID:     ev.Actor.ID,
			Content:    content,
			IsInternal: false,
		},
	})
	if err != nil {
		return fmt.Errorf("settle vendor ticket %s: %w", vt.ID, err)
	}
	if !settled {
		return nil
	}

	s.logger.Info("vendor ticket settled",
		zap.String("ticket_id", ev.Ticket.ID),
		zap.String("vendor_ticket_id", vt.ID),
		zap.String("vendor", vt.VendorName),
		zap.String("status", string(status)),
	)
	s.publish(ctx, ev, eventType, events.VendorTicketPayload{
		VendorTicketID:     vt.ID,
		VendorName:         vt.VendorName,
		VendorTicketNumber: vt.VendorTicketNumber,
		Status:             status,
	})
	return nil
}

func settlement(vt domain.VendorTicket, ev domain.MutationEvent) (domain.VendorTicketStatus, events.EventType, string) {
	ref := vt.VendorName
	if vt.VendorTicketNumber != "" {
		ref = fmt.Sprintf("%s (%s)", vt.VendorName, vt.VendorTicketNumber)
	}
	if ev.NewStatus == domain.TicketStatusInProgress {
		return domain.VendorTicketCancelled, events.EventVendorTicketCancelled,
			fmt.Sprintf("Tiket vendor %s dibatalkan karena penanganan dilanjutkan secara internal (status %s -> %s).",
				ref, ev.OldStatus, ev.NewStatus)
	}
	return domain.VendorTicketResolved, events.EventVendorTicketResolved,
		fmt.Sprintf("Tiket vendor %s ditandai selesai karena tiket utama diubah ke status %s.", ref, ev.NewStatus)
}

// PushExternal sends the new status to the external channel. A rejection by the
// platform is logged and counted but not returned; only transport errors are,
// so the caller may retry them.
func (s *Synchronizer) PushExternal(ctx context.Context, ev domain.MutationEvent) error {
	if !NeedsExternalSync(ev) || s.external == nil {
		return nil
	}
	ref := *ev.Ticket.ExternalRef
	result, err := s.external.SyncStatus(ctx, ev.Ticket.TicketNumber, ref, ev.NewStatus)
	if err != nil {
		s.recordOmni("error")
		return fmt.Errorf("push status to external channel: %w", err)
	}

	payload := events.ExternalStatusPayload{
		ExternalRef:    ref,
		ExternalStatus: result.ExternalStatus,
		Message:        result.Message,
	}
	if !result.Success {
		s.recordOmni("failed")
		s.logger.Warn("external channel rejected status",
			zap.String("ticket_number", ev.Ticket.TicketNumber),
			zap.String("external_ref", ref),
			zap.String("status", string(ev.NewStatus)),
			zap.String("message", result.Message),
		)
		s.publish(ctx, ev, events.EventExternalStatusRejected, payload)
		return nil
	}

	s.recordOmni("success")
	s.publish(ctx, ev, events.EventExternalStatusPushed, payload)
	return nil
}

func (s *Synchronizer) recordOmni(result string) {
	if s.metrics != nil {
		s.metrics.OmniStatusUpdate(result)
	}
}

func (s *Synchronizer) publish(ctx context.Context, ev domain.MutationEvent, t events.EventType, payload any) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      t,
		TicketID:  ev.Ticket.ID,
		Actor:     ev.Actor,
		Timestamp: s.now(),
		Payload:   payload,
	})
}
