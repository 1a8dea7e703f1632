package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder exports metrics through a dedicated registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	checksTotal   *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec
	checkFailures *prometheus.CounterVec
	authFailures  *prometheus.CounterVec
	rateLimited   prometheus.Counter
}

// NewPrometheus registers the application metrics plus the Go and process collectors.
func NewPrometheus() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		checksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "patientcheck_checks_total",
			Help: "Total number of completed checks",
		}, []string{"source", "number_matched", "date_matched"}),
		checkDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "patientcheck_check_duration_seconds",
			Help:    "Duration of completed checks in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		checkFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "patientcheck_check_failures_total",
			Help: "Total number of checks that failed on a store error",
		}, []string{"stage"}),
		authFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "patientcheck_auth_failures_total",
			Help: "Total number of rejected credentials",
		}, []string{"reason"}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "patientcheck_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Registry returns the underlying registry.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

// ObserveCheck records a completed check.
func (p *PrometheusRecorder) ObserveCheck(source string, numberMatched, dateMatched bool, duration time.Duration) {
	p.checksTotal.WithLabelValues(source, strconv.FormatBool(numberMatched), strconv.FormatBool(dateMatched)).Inc()
	p.checkDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// IncCheckFailure records a store failure at stage.
func (p *PrometheusRecorder) IncCheckFailure(stage string) {
	p.checkFailures.WithLabelValues(stage).Inc()
}

// IncAuthFailure records a rejected credential.
func (p *PrometheusRecorder) IncAuthFailure(reason string) {
	p.authFailures.WithLabelValues(reason).Inc()
}

// IncRateLimited records a rate limited request.
func (p *PrometheusRecorder) IncRateLimited() {
	p.rateLimited.Inc()
}
