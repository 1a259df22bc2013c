package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "prep"

	labelStatus   = "status"
	labelGatherer = "gatherer"
	labelOutcome  = "outcome"
	labelPhase    = "phase"
)

var jobsSubmittedMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_submitted_total",
		Help:      "number of research jobs accepted",
	},
)

var jobsFinishedMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_finished_total",
		Help:      "number of research jobs that reached a terminal status",
	},
	[]string{labelStatus},
)

var gatherOutcomesMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gather_outcomes_total",
		Help:      "gatherer results by outcome (ok, timeout, error, empty)",
	},
	[]string{labelGatherer, labelOutcome},
)

var phaseDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "phase_duration_seconds",
		Help:      "wall time spent in each pipeline phase",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60, 90},
	},
	[]string{labelPhase},
)

var activeRunsMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_runs",
		Help:      "background runs currently executing",
	},
)

func init() {
	prometheus.MustRegister(jobsSubmittedMetric)
	prometheus.MustRegister(jobsFinishedMetric)
	prometheus.MustRegister(gatherOutcomesMetric)
	prometheus.MustRegister(phaseDurationMetric)
	prometheus.MustRegister(activeRunsMetric)
}

func IncJobsSubmitted() {
	jobsSubmittedMetric.Inc()
}

func IncJobsFinished(status string) {
	jobsFinishedMetric.With(prometheus.Labels{labelStatus: status}).Inc()
}

func IncGatherOutcome(gatherer, outcome string) {
	gatherOutcomesMetric.With(prometheus.Labels{labelGatherer: gatherer, labelOutcome: outcome}).Inc()
}

// ObservePhase records the duration of a phase that started at start.
func ObservePhase(phase string, start time.Time) {
	phaseDurationMetric.With(prometheus.Labels{labelPhase: phase}).Observe(time.Since(start).Seconds())
}

// RunStarted and RunFinished track in-flight background runs.
func RunStarted() {
	activeRunsMetric.Inc()
}

func RunFinished() {
	activeRunsMetric.Dec()
}
