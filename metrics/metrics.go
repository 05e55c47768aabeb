// Package metrics carries small helpers shared by the instrumented
// packages. Histograms record timings in milliseconds.
package metrics

import (
	"time"

	"github.com/go-kit/kit/metrics"
	kitprom "github.com/go-kit/kit/metrics/prometheus"
	stdprom "github.com/prometheus/client_golang/prometheus"
)

const defaultTimingUnit = time.Millisecond

// MeasureSince records the elapsed time since t0 on h.
func MeasureSince(h metrics.Histogram, t0 time.Time) {
	measureSince(h, t0, time.Now(), float64(defaultTimingUnit))
}

func measureSince(h metrics.Histogram, t0, t1 time.Time, unit float64) {
	d := t1.Sub(t0)
	if d < 0 {
		d = 0
	}
	h.Observe(float64(d) / unit)
}

// NewDurationHistogram registers a millisecond histogram under the
// wardend namespace.
func NewDurationHistogram(subsystem, name, help string) metrics.Histogram {
	return kitprom.NewHistogramFrom(stdprom.HistogramOpts{
		Namespace: "wardend",
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
		Buckets:   stdprom.ExponentialBuckets(1, 4, 10),
	}, nil)
}
