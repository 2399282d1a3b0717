// Package realtime fans events out to websocket gateways through Redis pub/sub.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk/internal/config"
)

// Publisher is satisfied by persistence.Redis.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)
}

// Envelope is the message gateways relay to room members.
type Envelope struct {
	Room    string    `json:"room"`
	Event   string    `json:"event"`
	Payload any       `json:"payload"`
	SentAt  time.Time `json:"sentAt"`
}

// TicketRoom is the room of everyone watching a ticket.
func TicketRoom(ticketID string) string { return "ticket:" + ticketID }

// UserRoom is the personal room of a user.
func UserRoom(userID string) string { return "user:" + userID }

// Hub publishes room events.
type Hub struct {
	publisher Publisher
	prefix    string
	timeout   time.Duration
	enabled   bool
	logger    *zap.Logger
	now       func() time.Time
}

// NewHub builds a hub over publisher.
func NewHub(publisher Publisher, cfg config.RealtimeConfig, logger *zap.Logger) *Hub {
	return &Hub{
		publisher: publisher,
		prefix:    cfg.ChannelPrefix,
		timeout:   cfg.Timeout(),
		enabled:   cfg.Enabled,
		logger:    logger,
		now:       time.Now,
	}
}

// Emit publishes event to room. It is a no-op when the hub is disabled.
func (h *Hub) Emit(ctx context.Context, room, event string, payload any) error {
	if h == nil || !h.enabled || h.publisher == nil {
		return nil
	}
	raw, err := json.Marshal(Envelope{Room: room, Event: event, Payload: payload, SentAt: h.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode realtime event: %w", err)
	}
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	receivers, err := h.publisher.Publish(ctx, h.prefix+room, raw)
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", event, room, err)
	}
	h.logger.Debug("realtime event emitted",
		zap.String("room", room),
		zap.String("event", event),
		zap.Int64("receivers", receivers),
	)
	return nil
}
