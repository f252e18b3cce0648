package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"speedliner/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	quotes             *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	submissions        *prometheus.CounterVec
	errorsTotal        *prometheus.CounterVec
	latency            *prometheus.HistogramVec
	routesLoaded       prometheus.Gauge
	activeSessions     prometheus.Gauge
}

// New creates a recorder registered with the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered with reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		quotes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speedliner_quotes_total",
				Help: "Total number of successful quote calculations",
			},
			[]string{"express"},
		),
		validationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speedliner_validation_failures_total",
				Help: "Total number of rejected quote inputs by reason",
			},
			[]string{"code"},
		),
		submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speedliner_express_submissions_total",
				Help: "Express submission attempts by outcome",
			},
			[]string{"outcome"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speedliner_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "speedliner_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		routesLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "speedliner_routes_loaded",
			Help: "Number of routes in the active registry",
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "speedliner_active_sessions",
			Help: "Number of open quoting sessions",
		}),
	}
}

// RecordQuote records a successful calculation.
func (r *Recorder) RecordQuote(express bool) {
	r.quotes.WithLabelValues(strconv.FormatBool(express)).Inc()
}

// RecordValidationFailure records a rejected input by error code.
func (r *Recorder) RecordValidationFailure(code string) {
	r.validationFailures.WithLabelValues(code).Inc()
}

// RecordSubmission records the outcome of an express attempt.
func (r *Recorder) RecordSubmission(outcome models.AuditOutcome) {
	r.submissions.WithLabelValues(string(outcome)).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) SetRoutesLoaded(n int) {
	r.routesLoaded.Set(float64(n))
}

func (r *Recorder) SetActiveSessions(n int) {
	r.activeSessions.Set(float64(n))
}
