package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Record Store metrics
	PackagesInstalled = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pkgtx_packages_installed",
			Help: "Total number of packages currently tracked in the record store",
		},
	)

	// Disk-space accounting metrics
	FSBlocksFree = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pkgtx_fs_blocks_free",
			Help: "Free blocks remaining on a mounted filesystem after the running transaction's debits",
		},
		[]string{"mountpoint"},
	)

	FSInodesFree = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pkgtx_fs_inodes_free",
			Help: "Free inodes remaining on a mounted filesystem after the running transaction's debits",
		},
		[]string{"mountpoint"},
	)

	// Problem-set metrics
	ProblemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pkgtx_problems_total",
			Help: "Total number of problems recorded by kind",
		},
		[]string{"kind"},
	)

	// Orderer metrics
	UnorderedElementsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pkgtx_unordered_elements_total",
			Help: "Total number of transaction elements the orderer could not place via a breakable edge",
		},
	)

	// FSM stage durations
	FSMStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pkgtx_fsm_stage_duration_seconds",
			Help:    "Time spent in each FSM stage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage", "goal"},
	)

	// Per-run counters
	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pkgtx_transactions_total",
			Help: "Total number of transaction runs by outcome",
		},
		[]string{"outcome"},
	)

	TransactionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pkgtx_transaction_duration_seconds",
			Help:    "Time taken for a full transaction run() to complete",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)

	FilesProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pkgtx_files_processed_total",
			Help: "Total number of files processed by action",
		},
		[]string{"action"},
	)

	RollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pkgtx_rollbacks_total",
			Help: "Total number of inverse-transaction rollbacks executed",
		},
	)
)

func init() {
	prometheus.MustRegister(PackagesInstalled)
	prometheus.MustRegister(FSBlocksFree)
	prometheus.MustRegister(FSInodesFree)
	prometheus.MustRegister(ProblemsTotal)
	prometheus.MustRegister(UnorderedElementsTotal)
	prometheus.MustRegister(FSMStageDuration)
	prometheus.MustRegister(TransactionsTotal)
	prometheus.MustRegister(TransactionDuration)
	prometheus.MustRegister(FilesProcessedTotal)
	prometheus.MustRegister(RollbacksTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
