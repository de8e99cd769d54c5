package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks engine activity for the /metrics endpoint
type Metrics struct {
	registry *prometheus.Registry

	ticksTotal   prometheus.Counter
	ticksSkipped prometheus.Counter
	tickErrors   prometheus.Counter

	doseLogsCreated prometheus.Counter
	dosesTaken      prometheus.Counter

	notificationsEmitted    *prometheus.CounterVec
	notificationsSuppressed *prometheus.CounterVec
	escalationsTotal        prometheus.Counter

	activeSessions prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ticksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "dosetrack_scheduler_ticks_total",
			Help: "Scheduler ticks executed",
		}),
		ticksSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "dosetrack_scheduler_ticks_skipped_total",
			Help: "Ticks skipped because the previous tick was still running",
		}),
		tickErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "dosetrack_scheduler_tick_errors_total",
			Help: "Ticks that hit a store error",
		}),
		doseLogsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "dosetrack_dose_logs_created_total",
			Help: "Dose log rows created by the evaluator",
		}),
		dosesTaken: factory.NewCounter(prometheus.CounterOpts{
			Name: "dosetrack_doses_taken_total",
			Help: "Doses marked taken by users",
		}),
		notificationsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dosetrack_notifications_emitted_total",
			Help: "Notifications persisted, by type",
		}, []string{"type"}),
		notificationsSuppressed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dosetrack_notifications_suppressed_total",
			Help: "Duplicate deliveries suppressed by the dispatcher, by type",
		}, []string{"type"}),
		escalationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "dosetrack_caretaker_escalations_total",
			Help: "Missed-dose alerts sent to caretakers",
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dosetrack_active_sessions",
			Help: "User sessions with a running scheduler",
		}),
	}
}

func (m *Metrics) RecordTick()          { m.ticksTotal.Inc() }
func (m *Metrics) RecordTickSkipped()   { m.ticksSkipped.Inc() }
func (m *Metrics) RecordTickError()     { m.tickErrors.Inc() }
func (m *Metrics) RecordDoseLogCreated() { m.doseLogsCreated.Inc() }
func (m *Metrics) RecordDoseTaken()     { m.dosesTaken.Inc() }
func (m *Metrics) RecordEscalation()    { m.escalationsTotal.Inc() }

func (m *Metrics) RecordNotification(kind string) {
	m.notificationsEmitted.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordNotificationSuppressed(kind string) {
	m.notificationsSuppressed.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementActiveSessions() { m.activeSessions.Inc() }
func (m *Metrics) DecrementActiveSessions() { m.activeSessions.Dec() }

// Handler serves the registry in Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func RecordTick()                        { Default().RecordTick() }
func RecordTickSkipped()                 { Default().RecordTickSkipped() }
func RecordTickError()                   { Default().RecordTickError() }
func RecordDoseLogCreated()              { Default().RecordDoseLogCreated() }
func RecordDoseTaken()                   { Default().RecordDoseTaken() }
func RecordEscalation()                  { Default().RecordEscalation() }
func RecordNotification(kind string)     { Default().RecordNotification(kind) }
func RecordNotificationSuppressed(kind string) {
	Default().RecordNotificationSuppressed(kind)
}
func IncrementActiveSessions() { Default().IncrementActiveSessions() }
func DecrementActiveSessions() { Default().DecrementActiveSessions() }
func Handler() http.Handler    { return Default().Handler() }
