package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk/internal/config"
)

type fakePublisher struct {
	channel string
	payload []byte
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, channel string, payload []byte) (int64, error) {
	f.channel = channel
	f.payload = payload
	return 1, f.err
}

func TestEmitPublishesEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	hub := NewHub(pub, config.RealtimeConfig{Enabled: true, ChannelPrefix: "realtime:", TimeoutSeconds: 1}, zap.NewNop())
	hub.now = func() time.Time { return time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC) }

	err := hub.Emit(context.Background(), TicketRoom("t-1"), "ticket.updated", map[string]string{"status": "RESOLVED"})

	require.NoError(t, err)
	assert.Equal(t, "realtime:ticket:t-1", pub.channel)
	var env map[string]any
	require.NoError(t, json.Unmarshal(pub.payload, &env))
	assert.Equal(t, "ticket.updated", env["event"])
	assert.Equal(t, "ticket:t-1", env["room"])
	assert.Equal(t, map[string]any{"status": "RESOLVED"}, env["payload"])
}

func TestEmitDisabled(t *testing.T) {
	pub := &fakePublisher{}
	hub := NewHub(pub, config.RealtimeConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, hub.Emit(context.Background(), UserRoom("u"), "ticket.assigned", nil))
	assert.Empty(t, pub.channel)
}

func TestEmitWrapsPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("conn refused")}
	hub := NewHub(pub, config.RealtimeConfig{Enabled: true}, zap.NewNop())
	err := hub.Emit(context.Background(), UserRoom("u"), "ticket.assigned", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conn refused")
}
