package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько времени заняла обработка (включая вызов CRM)
	RequestDuration *prometheus.HistogramVec

	// Traffic: общее кол-во запросов на запись
	TotalRequests *prometheus.CounterVec

	// Errors: классификация отказов
	ErrorTotal *prometheus.CounterVec

	// Исходы согласования: APPROVED / REJECTED / EXECUTED / FAILED
	WorkflowOutcomes *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker на Copper (0 - ок, 1 - выбило)
	CircuitBreakerState prometheus.Gauge

	// Заполненность буферов аудита и уведомлений (backpressure)
	AuditBufferFill  prometheus.Gauge
	NotifyBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crmgate_request_duration_seconds",
			Help:    "Histogram of write request latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"operation", "entity_type", "status"}),

		TotalRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "crmgate_requests_total",
			Help: "Total number of processed write requests.",
		}, []string{"operation", "entity_type"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "crmgate_errors_total",
			Help: "Total number of errors by type.",
		}, []string{"type"}), // типы: denied, frozen, validation, rate_limit, crm_error

		WorkflowOutcomes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "crmgate_workflow_outcomes_total",
			Help: "Terminal outcomes of approval workflow requests.",
		}, []string{"status"}),

		CircuitBreakerState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "crmgate_circuit_breaker_state",
			Help: "Current state of the Copper circuit breaker (0=closed, 1=open).",
		}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "crmgate_audit_buffer_utilization",
			Help: "Current number of events in audit buffer.",
		}),

		NotifyBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "crmgate_notify_buffer_utilization",
			Help: "Current number of messages in notification buffer.",
		}),
	}
}
