package observability

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTicketMetrics(t *testing.T) {
	m := NewMetrics()

	m.TicketResolved("HIGH", 5*time.Hour)
	m.TicketResolved("HIGH", 30*time.Hour)
	m.TicketClosed("LOW")
	m.OmniStatusUpdate("success")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ticketsResolved.WithLabelValues("HIGH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticketsClosed.WithLabelValues("LOW")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.omniStatusUpdates.WithLabelValues("success")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.resolutionHours))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/", "GET", 200, time.Second)
		m.TicketResolved("LOW", time.Hour)
		m.OutboxEffect("AUDIT", "done")
	})
}

func TestRequestLoggerAndHandler(t *testing.T) {
	m := NewMetrics()
	app := fiber.New()
	app.Use(RequestLogger(zap.NewNop(), m))
	app.Get("/ping/:id", func(c *fiber.Ctx) error { return c.SendString("pong") })
	app.Get("/metrics", m.Handler())

	resp, err := app.Test(httptest.NewRequest("GET", "/ping/1", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "servicedesk_http_requests_total{")
	assert.Contains(t, string(body), `status="200"`)
}
