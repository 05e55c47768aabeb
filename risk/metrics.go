package risk

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wardenterm/warden/metrics"
)

var (
	analyzeOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wardend",
			Subsystem: "risk",
			Name:      "analyze_outcomes_total",
			Help:      "Pre-flight verdicts by action",
		}, []string{"action"})

	reportSources = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wardend",
			Subsystem: "risk",
			Name:      "report_sources_total",
			Help:      "Which pipeline stage produced the structured report",
		}, []string{"source"})

	analyzeDuration = metrics.NewDurationHistogram("risk", "analyze_duration_ms",
		"Wall time of the full analysis pipeline")
)

func init() {
	prometheus.MustRegister(analyzeOutcomes)
	prometheus.MustRegister(reportSources)
}
