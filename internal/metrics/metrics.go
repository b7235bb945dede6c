package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "refuel_"

// Submission results
const (
	ResultSaved                = "saved"
	ResultRejectedInsufficient = "rejected_insufficient"
	ResultRejectedHistory      = "rejected_history"
	ResultInvalid              = "invalid"
	ResultError                = "error"
)

// Scan and export results
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	registerOnce sync.Once

	submissionsTotal  *prometheus.CounterVec
	submissionLatency *prometheus.HistogramVec
	estimatedTotal    prometheus.Counter
	scansTotal        *prometheus.CounterVec
	exportsTotal      *prometheus.CounterVec
)

// Init registers the collectors with the default registry. Later calls are no-ops.
func Init() {
	registerOnce.Do(func() {
		submissionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "submissions_total",
				Help: "Total refuel submissions by result",
			},
			[]string{"result"},
		)
		submissionLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "submission_latency_seconds",
				Help:    "Refuel submission latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		estimatedTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "estimated_total",
				Help: "Total saved refuels with estimated values",
			},
		)
		scansTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "scans_total",
				Help: "Total ticket scans by result",
			},
			[]string{"result"},
		)
		exportsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "exports_total",
				Help: "Total log exports by format and result",
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			submissionsTotal,
			submissionLatency,
			estimatedTotal,
			scansTotal,
			exportsTotal,
		)
	})
}

// ObserveSubmission records a refuel submission outcome
func ObserveSubmission(result string, estimated bool, duration time.Duration) {
	if result == "" {
		result = ResultSaved
	}
	if submissionsTotal != nil {
		submissionsTotal.WithLabelValues(result).Inc()
	}
	if submissionLatency != nil {
		submissionLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if estimated && result == ResultSaved && estimatedTotal != nil {
		estimatedTotal.Inc()
	}
}

// CountSubmission counts a submission that was refused before it was timed
func CountSubmission(result string) {
	if result == "" {
		result = ResultInvalid
	}
	if submissionsTotal != nil {
		submissionsTotal.WithLabelValues(result).Inc()
	}
}

// IncScan counts a ticket scan
func IncScan(result string) {
	if result == "" {
		result = ResultSuccess
	}
	if scansTotal != nil {
		scansTotal.WithLabelValues(result).Inc()
	}
}

// IncExport counts a log export
func IncExport(format, result string) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = ResultSuccess
	}
	if exportsTotal != nil {
		exportsTotal.WithLabelValues(format, result).Inc()
	}
}
