// Package metrics exposes Prometheus counters/histograms for the backup
// and restore pipelines, behind an optional `--metrics-addr` HTTP handler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BackupRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wcbt_backup_runs_total",
			Help: "Total number of backup runs by profile and outcome",
		},
		[]string{"profile", "outcome"},
	)

	BackupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wcbt_backup_duration_seconds",
			Help:    "Backup run duration in seconds by profile",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"profile"},
	)

	BackupFilesCopied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wcbt_backup_files_copied_total",
			Help: "Total number of files copied into an archive by profile",
		},
		[]string{"profile"},
	)

	BackupFilesFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wcbt_backup_files_failed_total",
			Help: "Total number of files that failed to copy by profile",
		},
		[]string{"profile"},
	)

	VerifyFilesVerified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wcbt_verify_files_verified_total",
			Help: "Total number of archived files that passed digest verification",
		},
		[]string{"profile"},
	)

	VerifyFilesFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wcbt_verify_files_failed_total",
			Help: "Total number of archived files that failed digest verification",
		},
		[]string{"profile"},
	)

	RestoreRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wcbt_restore_runs_total",
			Help: "Total number of restore runs by result",
		},
		[]string{"result"},
	)

	RestoreDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wcbt_restore_duration_seconds",
			Help:    "Restore run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RestoreFilesStaged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wcbt_restore_files_staged_total",
			Help: "Total number of files copied into a restore stage",
		},
	)

	RestoreConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wcbt_restore_conflicts_total",
			Help: "Total number of add-only restore conflicts detected",
		},
	)

	LockAcquireFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wcbt_lock_acquire_failures_total",
			Help: "Total number of profile lock acquisition failures by profile",
		},
		[]string{"profile"},
	)

	ScanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wcbt_scan_duration_seconds",
			Help:    "Source tree scan duration in seconds by profile",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"profile"},
	)
)

func init() {
	prometheus.MustRegister(BackupRunsTotal)
	prometheus.MustRegister(BackupDuration)
	prometheus.MustRegister(BackupFilesCopied)
	prometheus.MustRegister(BackupFilesFailed)
	prometheus.MustRegister(VerifyFilesVerified)
	prometheus.MustRegister(VerifyFilesFailed)
	prometheus.MustRegister(RestoreRunsTotal)
	prometheus.MustRegister(RestoreDuration)
	prometheus.MustRegister(RestoreFilesStaged)
	prometheus.MustRegister(RestoreConflictsTotal)
	prometheus.MustRegister(LockAcquireFailuresTotal)
	prometheus.MustRegister(ScanDuration)
}

// Handler returns the Prometheus HTTP handler for `--metrics-addr`.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed wall time for one pipeline stage.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records elapsed time to a labeled histogram vector.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
