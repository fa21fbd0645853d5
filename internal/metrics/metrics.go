package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/paasify/cfvault/internal/cfauth"
)

var (
	// LoginTotal counts login attempts by auth method and result.
	LoginTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cfvault_login_total",
			Help: "Total number of Vault login attempts (by method and result).",
		},
		[]string{"method", "result"},
	)

	// LoginDuration measures login round trips.
	LoginDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cfvault_login_duration_seconds",
			Help:    "Duration of Vault login attempts in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms → ~10s
		},
		[]string{"method"},
	)

	// TokenLease is the lease of the most recently issued token; 0 for fixed tokens.
	TokenLease = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cfvault_token_lease_seconds",
			Help: "Lease duration of the last token obtained by login.",
		},
	)

	// NATSPublishErrors tracks NATS publish failures by subject.
	NATSPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cfvault_nats_publish_errors_total",
			Help: "Number of NATS publish failures by subject.",
		},
		[]string{"subject"},
	)
)

// Login results used as the "result" label.
const (
	ResultSuccess    = "success"
	ResultRejected   = "rejected"
	ResultCredential = "credential_error"
	ResultMalformed  = "malformed"
)

// Result classifies a login error for the "result" label.
func Result(err error) string {
	var credErr *cfauth.CredentialLoadError
	var malformedErr *cfauth.MalformedResponseError
	switch {
	case err == nil:
		return ResultSuccess
	case errors.As(err, &credErr):
		return ResultCredential
	case errors.As(err, &malformedErr):
		return ResultMalformed
	default:
		return ResultRejected
	}
}

// IncNATSPublishError increments the NATS publish error counter for the given subject.
func IncNATSPublishError(subject string) {
	NATSPublishErrors.WithLabelValues(subject).Inc()
}

// Observer records login outcomes. It satisfies cfauth.Observer.
type Observer struct{}

func (Observer) LoginSucceeded(method string, tok cfauth.Token, elapsed time.Duration) {
	LoginTotal.WithLabelValues(method, ResultSuccess).Inc()
	LoginDuration.WithLabelValues(method).Observe(elapsed.Seconds())

	lease, _ := tok.LeaseDuration()
	TokenLease.Set(lease.Seconds())
}

func (Observer) LoginFailed(method string, err error, elapsed time.Duration) {
	LoginTotal.WithLabelValues(method, Result(err)).Inc()
	LoginDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}
