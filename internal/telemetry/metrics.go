// Package telemetry registers the Prometheus metrics exposed on /metrics.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Login outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	once sync.Once

	AccountsCreated *prometheus.CounterVec // by provider
	Logins          *prometheus.CounterVec // by provider, outcome
	JamsCreated     prometheus.Counter
	MessagesPosted  prometheus.Counter

	HTTPRequests *prometheus.CounterVec   // by method, route, status
	HTTPDuration *prometheus.HistogramVec // seconds, by method, route
)

// Init registers metrics with the default registry. Safe to call repeatedly.
func Init() {
	once.Do(func() {
		AccountsCreated = promauto.NewCounterVec(prometheus.CounterOpts{Name: "jamspace_accounts_created_total", Help: "Accounts created, by identity provider"}, []string{"provider"})
		Logins = promauto.NewCounterVec(prometheus.CounterOpts{Name: "jamspace_logins_total", Help: "Login attempts, by identity provider and outcome"}, []string{"provider", "outcome"})
		JamsCreated = promauto.NewCounter(prometheus.CounterOpts{Name: "jamspace_jams_created_total", Help: "Jam sessions created"})
		MessagesPosted = promauto.NewCounter(prometheus.CounterOpts{Name: "jamspace_messages_posted_total", Help: "Chat messages posted"})
		HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{Name: "jamspace_http_requests_total", Help: "HTTP requests served"}, []string{"method", "route", "status"})
		HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "jamspace_http_request_duration_seconds", Help: "HTTP request latency seconds", Buckets: prometheus.DefBuckets}, []string{"method", "route"})
	})
}

// The Record helpers are no-ops until Init runs, so packages can be tested
// without touching the global registry.

// RecordAccountCreated counts a new account under the provider that created it.
func RecordAccountCreated(provider string) {
	if AccountsCreated != nil {
		AccountsCreated.WithLabelValues(provider).Inc()
	}
}

// RecordLogin counts one login attempt; a non-nil err is a failure.
func RecordLogin(provider string, err error) {
	if Logins == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	Logins.WithLabelValues(provider, outcome).Inc()
}

// RecordJamCreated counts a new jam session.
func RecordJamCreated() {
	if JamsCreated != nil {
		JamsCreated.Inc()
	}
}

// RecordMessagePosted counts a chat message.
func RecordMessagePosted() {
	if MessagesPosted != nil {
		MessagesPosted.Inc()
	}
}

// ObserveRequest records one served HTTP request. route is the chi pattern,
// not the raw path, to keep label cardinality bounded.
func ObserveRequest(method, route, status string, d time.Duration) {
	if HTTPRequests == nil {
		return
	}
	HTTPRequests.WithLabelValues(method, route, status).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
