// Package metrics collects login and session metrics for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loginway/internal/auth"
)

// Collector implements auth.Metrics with Prometheus counters.
type Collector struct {
	logins        *prometheus.CounterVec
	sessions      *prometheus.CounterVec
	lookups       *prometheus.CounterVec
	logouts       prometheus.Counter
	sessionsSwept prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loginway_login_attempts_total",
			Help: "Login attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loginway_sessions_created_total",
			Help: "Sessions created by provider.",
		}, []string{"provider"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loginway_session_lookups_total",
			Help: "Session lookups by outcome (hit, missing, expired, error).",
		}, []string{"outcome"}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loginway_logouts_total",
			Help: "Logout requests.",
		}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loginway_sessions_swept_total",
			Help: "Expired sessions removed by the cleanup loop.",
		}),
	}

	reg.MustRegister(c.logins, c.sessions, c.lookups, c.logouts, c.sessionsSwept)
	return c
}

// LoginAttempt records a login attempt.
func (c *Collector) LoginAttempt(provider auth.Provider, outcome string) {
	c.logins.WithLabelValues(string(provider), outcome).Inc()
}

// SessionCreated records a new session.
func (c *Collector) SessionCreated(provider auth.Provider) {
	c.sessions.WithLabelValues(string(provider)).Inc()
}

// SessionLookup records a session lookup.
func (c *Collector) SessionLookup(outcome string) {
	c.lookups.WithLabelValues(outcome).Inc()
}

// SessionsSwept records expired sessions removed in bulk.
func (c *Collector) SessionsSwept(count int64) {
	c.sessionsSwept.Add(float64(count))
}

// Logout records a logout.
func (c *Collector) Logout() {
	c.logouts.Inc()
}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ auth.Metrics = (*Collector)(nil)
