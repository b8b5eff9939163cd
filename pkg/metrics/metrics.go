package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TraceLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "salogger_trace_fetch_seconds",
			Help:    "Time to request and parse one TRACE:DATA? response",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10},
		},
	)
	SamplesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "salogger_samples_total",
			Help: "Traces written to CSV",
		},
	)
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salogger_runs_total",
			Help: "Measurement runs by outcome",
		},
		[]string{"outcome"},
	)
	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salogger_errors_total",
			Help: "Errors by kind",
		},
		[]string{"kind"},
	)
	PeakDBm = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "salogger_last_peak_dbm",
			Help: "Peak level of the most recent trace",
		},
	)
	RunActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "salogger_run_active",
			Help: "1 while a measurement run is in progress",
		},
	)
)

func MustRegister() {
	prometheus.MustRegister(TraceLatencySeconds, SamplesTotal, RunsTotal, ErrorsTotal, PeakDBm, RunActive)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveTrace(dur time.Duration, peak float64) {
	TraceLatencySeconds.Observe(dur.Seconds())
	SamplesTotal.Inc()
	PeakDBm.Set(peak)
}

func RecordError(kind string) {
	ErrorsTotal.WithLabelValues(kind).Inc()
}

func RecordRun(outcome string) {
	RunsTotal.WithLabelValues(outcome).Inc()
}

func SetRunActive(active bool) {
	if active {
		RunActive.Set(1)
		return
	}
	RunActive.Set(0)
}
