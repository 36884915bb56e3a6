// Package metrics collects and exposes Prometheus metrics for the limiter,
// the webhook guard and the cleanup job.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/BradenHooton/turnstile/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements the recorder interfaces used by services and background jobs
type Collector struct {
	decisions      *prometheus.CounterVec
	attempts       *prometheus.CounterVec
	webhookEvents  *prometheus.CounterVec
	cleanupDeleted *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics on reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "turnstile_rate_limit_decisions_total",
			Help: "Rate limit decisions by action type, scope and outcome.",
		}, []string{"action", "scope", "outcome"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "turnstile_attempts_recorded_total",
			Help: "Authentication attempts recorded by action type and result.",
		}, []string{"action", "success"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "turnstile_webhook_events_total",
			Help: "Webhook idempotency outcomes by provider.",
		}, []string{"provider", "outcome"}),
		cleanupDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "turnstile_cleanup_rows_deleted_total",
			Help: "Rows removed by the retention cleanup job.",
		}, []string{"table"}),
	}

	reg.MustRegister(
		c.decisions,
		c.attempts,
		c.webhookEvents,
		c.cleanupDeleted,
	)

	return c
}

// RecordDecision counts one limiter decision
func (c *Collector) RecordDecision(action models.ActionType, scope string, d *models.RateLimitDecision) {
	outcome := "allowed"
	switch {
	case d.Locked:
		outcome = "locked"
	case d.Remaining == models.UnlimitedRemaining:
		outcome = "unlimited"
	}
	c.decisions.WithLabelValues(string(action), scope, outcome).Inc()
}

// RecordAttempt counts one recorded attempt
func (c *Collector) RecordAttempt(action models.ActionType, success bool) {
	c.attempts.WithLabelValues(string(action), strconv.FormatBool(success)).Inc()
}

// RecordWebhookEvent counts one guard outcome
func (c *Collector) RecordWebhookEvent(provider, outcome string) {
	c.webhookEvents.WithLabelValues(provider, outcome).Inc()
}

// RecordCleanup adds rows pruned from table
func (c *Collector) RecordCleanup(table string, rows int64) {
	if rows > 0 {
		c.cleanupDeleted.WithLabelValues(table).Add(float64(rows))
	}
}

// Handler returns the /metrics HTTP handler for the given gatherer
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
