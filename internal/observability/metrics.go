package observability

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exported by the service.
type Metrics struct {
	registry *prometheus.Registry

	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	errors            *prometheus.CounterVec
	ticketsResolved   *prometheus.CounterVec
	ticketsClosed     *prometheus.CounterVec
	resolutionHours   *prometheus.HistogramVec
	omniStatusUpdates *prometheus.CounterVec
	outboxEffects     *prometheus.CounterVec
}

// NewMetrics registers every collector on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "servicedesk_http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "servicedesk_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "servicedesk_http_errors_total",
			Help: "HTTP error responses by route and error code",
		}, []string{"route", "method", "code"}),
		ticketsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "servicedesk_tickets_resolved_total",
			Help: "Tickets moved into RESOLVED",
		}, []string{"priority"}),
		ticketsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "servicedesk_tickets_closed_total",
			Help: "Tickets moved into CLOSED",
		}, []string{"priority"}),
		resolutionHours: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "servicedesk_ticket_resolution_hours",
			Help:    "Hours from ticket creation to resolution",
			Buckets: []float64{1, 4, 8, 24, 48, 72, 168, 336},
		}, []string{"priority"}),
		omniStatusUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "servicedesk_omni_status_updates_total",
			Help: "Status pushes to the omnichannel platform",
		}, []string{"result"}),
		outboxEffects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "servicedesk_outbox_effects_total",
			Help: "Processed follow-up effects by kind and result",
		}, []string{"kind", "result"}),
	}
	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.errors,
		m.ticketsResolved,
		m.ticketsClosed,
		m.resolutionHours,
		m.omniStatusUpdates,
		m.outboxEffects,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// TicketResolved counts a resolution and observes its duration in hours.
func (m *Metrics) TicketResolved(priority string, sinceCreated time.Duration) {
	if m == nil {
		return
	}
	m.ticketsResolved.WithLabelValues(priority).Inc()
	if sinceCreated >= 0 {
		m.resolutionHours.WithLabelValues(priority).Observe(sinceCreated.Hours())
	}
}

// TicketClosed counts a closure.
func (m *Metrics) TicketClosed(priority string) {
	if m == nil {
		return
	}
	m.ticketsClosed.WithLabelValues(priority).Inc()
}

// OmniStatusUpdate counts a status push by result: success, failed or error.
func (m *Metrics) OmniStatusUpdate(result string) {
	if m == nil {
		return
	}
	m.omniStatusUpdates.WithLabelValues(result).Inc()
}

// OutboxEffect counts one effect outcome.
func (m *Metrics) OutboxEffect(kind, result string) {
	if m == nil {
		return
	}
	m.outboxEffects.WithLabelValues(kind, result).Inc()
}
