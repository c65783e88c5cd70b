package metrics

import (
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

var (
    RequestsTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "cryptotracker_requests_total",
            Help: "Total number of requests per path",
        },
        []string{"path"},
    )

    RequestDurationSeconds = promauto.NewHistogramVec(
        prometheus.HistogramOpts{
            Name:    "cryptotracker_request_duration_seconds",
            Help:    "Request duration in seconds per path",
            Buckets: prometheus.DefBuckets,
        },
        []string{"path"},
    )

    RequestErrorsTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "cryptotracker_request_errors_total",
            Help: "Total number of error responses per path and code",
        },
        []string{"path", "code"},
    )
)

var (
    UpstreamFetchesTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "cryptotracker_upstream_fetches_total",
            Help: "Market data requests sent upstream, by HTTP status or \"error\"",
        },
        []string{"status"},
    )

    CacheLookupsTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "cryptotracker_cache_lookups_total",
            Help: "Snapshot cache lookups per layer and result",
        },
        []string{"layer", "result"},
    )

    ExportWritesTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "cryptotracker_export_writes_total",
            Help: "Spreadsheet exports written, by outcome",
        },
        []string{"outcome"},
    )
)

var (
    ScheduledJobLastRun = promauto.NewGaugeVec(
        prometheus.GaugeOpts{
            Name: "cryptotracker_job_last_run_timestamp",
            Help: "Unix timestamp of the last completed run for a job",
        },
        []string{"job"},
    )

    ScheduledJobLastDurationSeconds = promauto.NewGaugeVec(
        prometheus.GaugeOpts{
            Name: "cryptotracker_job_last_duration_seconds",
            Help: "Duration of the last completed run for a job",
        },
        []string{"job"},
    )

    ScheduledJobFailuresTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "cryptotracker_job_failures_total",
            Help: "Total number of failed executions per job",
        },
        []string{"job"},
    )
)

// ObserveRequest records one handled request for path.
func ObserveRequest(path string, startedAt time.Time) {
    RequestsTotal.WithLabelValues(path).Inc()
    RequestDurationSeconds.WithLabelValues(path).Observe(time.Since(startedAt).Seconds())
}

func UpdateJobMetrics(job string, startedAt time.Time, err error) {
    dur := time.Since(startedAt).Seconds()
    ScheduledJobLastDurationSeconds.WithLabelValues(job).Set(dur)
    ScheduledJobLastRun.WithLabelValues(job).Set(float64(time.Now().Unix()))
    if err != nil {
        ScheduledJobFailuresTotal.WithLabelValues(job).Inc()
    }
}
