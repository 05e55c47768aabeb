package pty

import "github.com/prometheus/client_golang/prometheus"

const (
	metricNamespace = "wardend"
	metricSubsystem = "pty"
)

var (
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Subsystem: metricSubsystem,
			Name:      "active_sessions",
			Help:      "Number of live PTY sessions",
		})

	bytesRead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: metricSubsystem,
			Name:      "bytes_read_total",
			Help:      "Bytes drained from PTY masters",
		})
)

func init() {
	prometheus.MustRegister(activeSessions)
	prometheus.MustRegister(bytesRead)
}
