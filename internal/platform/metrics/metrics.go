package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the registration gateway. They
// cover the registration funnel end to end so drop-off between steps is
// visible on a dashboard.
type Metrics struct {
	SequencesStarted prometheus.Counter
	AccountsCreated  prometheus.Counter
	AccountsMerged   prometheus.Counter
	OTPSent          prometheus.Counter
	OTPVerified      prometheus.Counter
	RateLimited      *prometheus.CounterVec
	SequenceErrors   *prometheus.CounterVec
	IdentityLatency  prometheus.Histogram
}

// New creates and registers all metrics on the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers all metrics on the given registerer. Tests pass a fresh
// prometheus.NewRegistry to avoid duplicate registration panics.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SequencesStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "onboard_sequences_started_total",
			Help: "Registration sequences started via check_phone",
		}),
		AccountsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "onboard_accounts_created_total",
			Help: "New identity records created",
		}),
		AccountsMerged: factory.NewCounter(prometheus.CounterOpts{
			Name: "onboard_accounts_merged_total",
			Help: "Phone-only accounts merged into email accounts",
		}),
		OTPSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "onboard_otp_sent_total",
			Help: "OTP emails dispatched",
		}),
		OTPVerified: factory.NewCounter(prometheus.CounterOpts{
			Name: "onboard_otp_verified_total",
			Help: "OTP codes verified successfully",
		}),
		RateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onboard_rate_limited_total",
			Help: "Requests rejected by the fixed-window rate limiter",
		}, []string{"operation"}),
		SequenceErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onboard_sequence_errors_total",
			Help: "Registration operations failing by error code",
		}, []string{"code"}),
		IdentityLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "onboard_identity_gateway_duration_seconds",
			Help:    "Latency of identity gateway calls",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}
