// Package metrics exposes Prometheus instruments for the approval service.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/garyjia/approval-flow/internal/application/port"
	"github.com/garyjia/approval-flow/internal/application/workflow"
	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/domain/progression"
)

const namespace = "approval"

// Metrics holds every instrument the service records
type Metrics struct {
	// Engine operations by name and result class
	OperationDuration *prometheus.HistogramVec
	OperationsTotal   *prometheus.CounterVec

	// Requests reaching a terminal status
	CompletedTotal *prometheus.CounterVec

	HTTPRequestDuration *prometheus.HistogramVec

	EscalationsTotal prometheus.Counter
}

// NewMetrics registers the instruments on reg; a nil reg gets a private registry
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of engine operations including persistence.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"operation", "result"}),

		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Engine operations by result class.",
		}, []string{"operation", "result"}),

		CompletedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_completed_total",
			Help:      "Requests that reached a terminal status.",
		}, []string{"status"}),

		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),

		EscalationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Escalation events raised for overdue steps.",
		}),
	}
}

// ObserveOperation records one engine operation
func (m *Metrics) ObserveOperation(operation string, err error, elapsed time.Duration) {
	result := Classify(err)
	m.OperationsTotal.WithLabelValues(operation, result).Inc()
	m.OperationDuration.WithLabelValues(operation, result).Observe(elapsed.Seconds())
}

// RequestCompleted counts a request reaching status
func (m *Metrics) RequestCompleted(status entity.RequestStatus) {
	m.CompletedTotal.WithLabelValues(string(status)).Inc()
}

// ObserveHTTP records one served HTTP request
func (m *Metrics) ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(code)).Observe(elapsed.Seconds())
}

// EscalationRaised counts one escalation event
func (m *Metrics) EscalationRaised() {
	m.EscalationsTotal.Inc()
}

// Classify maps an operation error to a low-cardinality result label
func Classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, port.ErrConcurrentUpdate):
		return "conflict"
	case errors.Is(err, port.ErrNotFound):
		return "not_found"
	case errors.Is(err, progression.ErrForbidden):
		return "forbidden"
	case errors.Is(err, progression.ErrInvalidState), errors.Is(err, progression.ErrNotCurrentStep):
		return "invalid_state"
	case errors.Is(err, progression.ErrCommentRequired),
		errors.Is(err, progression.ErrInvalidDecision),
		errors.Is(err, progression.ErrUnresolvedApprover),
		errors.Is(err, progression.ErrEmptyWorkflow),
		errors.Is(err, progression.ErrInvalidTemplate):
		return "rejected_input"
	default:
		return "error"
	}
}

// Verify interface compliance
var _ workflow.Recorder = (*Metrics)(nil)
