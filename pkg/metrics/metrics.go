package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Report pipeline metrics

	ReportsEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "klever_reports_emitted_total",
			Help: "Total number of reports enqueued by kind",
		},
		[]string{"kind"},
	)

	ReportUploadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "klever_report_upload_duration_seconds",
			Help:    "Time taken to stream one report to the Bridge",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReportUploadFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "klever_report_upload_failures_total",
			Help: "Total number of report uploads that failed",
		},
	)

	// Admission scheduler metrics

	TasksAdmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "klever_tasks_admitted_total",
			Help: "Total number of tasks admitted by the scheduler",
		},
	)

	TasksRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "klever_tasks_rejected_total",
			Help: "Total number of tasks rejected for insufficient resources",
		},
	)

	ReservedMemoryBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "klever_scheduler_reserved_memory_bytes",
			Help: "Memory currently reserved by the admission scheduler",
		},
	)

	SchedulingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "klever_scheduling_duration_seconds",
			Help:    "Time taken for one scheduling invocation",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Poller metrics

	PollCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "klever_poll_cycles_total",
			Help: "Total number of task-status poll cycles completed",
		},
	)

	PollLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "klever_poll_latency_seconds",
			Help:    "Time taken for one get_tasks_statuses call",
			Buckets: prometheus.DefBuckets,
		},
	)

	TasksInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "klever_tasks_in_flight",
			Help: "Number of tasks the poller is currently tracking",
		},
	)

	// Result worker pool metrics

	VerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "klever_verdicts_total",
			Help: "Total number of verdicts produced, by verdict",
		},
		[]string{"verdict"},
	)

	TaskProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "klever_task_processing_duration_seconds",
			Help:    "Time taken to process one task result end to end",
			Buckets: prometheus.DefBuckets,
		},
	)

	WitnessesProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "klever_witnesses_processed_total",
			Help: "Total number of witnesses processed, by outcome",
		},
		[]string{"outcome"},
	)

	CoverageAssembledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "klever_coverage_assembled_total",
			Help: "Total number of coverage assembly attempts, by outcome",
		},
		[]string{"outcome"},
	)

	// Retry / transport metrics

	BridgeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "klever_bridge_requests_total",
			Help: "Total number of Bridge HTTP requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	BridgeRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "klever_bridge_request_duration_seconds",
			Help:    "Bridge HTTP request duration in seconds, by endpoint",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
)

func init() {
	prometheus.MustRegister(
		ReportsEmittedTotal,
		ReportUploadDuration,
		ReportUploadFailuresTotal,
		TasksAdmittedTotal,
		TasksRejectedTotal,
		ReservedMemoryBytes,
		SchedulingDuration,
		PollCyclesTotal,
		PollLatency,
		TasksInFlight,
		VerdictsTotal,
		TaskProcessingDuration,
		WitnessesProcessedTotal,
		CoverageAssembledTotal,
		BridgeRequestsTotal,
		BridgeRequestDuration,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
