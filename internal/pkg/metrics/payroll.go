package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	RunOutcomeGenerated = "generated"
	RunOutcomeSkipped   = "skipped"
	RunOutcomeFailed    = "failed"
)

const (
	SettlementOutcomePaid   = "paid"
	SettlementOutcomeFailed = "failed"
)

// Config labels every payroll series.
type Config struct {
	ServiceName string
	Environment string
}

// PayrollMetrics captures payroll run and settlement signals.
type PayrollMetrics struct {
	runEmployees  *prometheus.CounterVec
	runDuration   prometheus.Observer
	settlements   *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// NewPayroll registers the payroll series on registerer, falling back to the
// default registerer when nil.
func NewPayroll(registerer prometheus.Registerer, cfg Config) *PayrollMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "payroll-engine"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	runEmployees := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payroll_run_employees_total",
		Help:        "Employees processed by payroll runs by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "payroll_run_duration_seconds",
		Help:        "Payroll run latency.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		ConstLabels: constLabels,
	})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payroll_settlements_total",
		Help:        "Payroll record settlements by mode and outcome.",
		ConstLabels: constLabels,
	}, []string{"mode", "outcome"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payroll_paid_notifications_total",
		Help:        "Paid notifications by delivery result.",
		ConstLabels: constLabels,
	}, []string{"result"})

	registerer.MustRegister(runEmployees, runDuration, settlements, notifications)

	return &PayrollMetrics{
		runEmployees:  runEmployees,
		runDuration:   runDuration,
		settlements:   settlements,
		notifications: notifications,
	}
}

// AddRunEmployees counts employees of a run with the given outcome.
func (m *PayrollMetrics) AddRunEmployees(outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.runEmployees.WithLabelValues(outcome).Add(float64(count))
}

// ObserveRunDuration records how long a payroll run took.
func (m *PayrollMetrics) ObserveRunDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Observe(duration.Seconds())
}

// IncSettlement counts one settlement attempt. mode is "single" or "bulk".
func (m *PayrollMetrics) IncSettlement(mode, outcome string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(mode, outcome).Inc()
}

// IncNotification counts a paid notification delivery result.
func (m *PayrollMetrics) IncNotification(err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.notifications.WithLabelValues(result).Inc()
}
