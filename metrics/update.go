package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels of productsync_records_total.
const (
	OutcomeAdded   = "added"
	OutcomeUpdated = "updated"
	OutcomeSkipped = "skipped"
)

var (
	syncRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "productsync_records_total",
			Help: "Dump records by reconciliation outcome.",
		},
		[]string{"flavor", "outcome", "reason"},
	)
	syncFlushDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "productsync_flush_duration_seconds",
			Help:    "Duration of batch upsert transactions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"flavor", "status"},
	)
	syncLastSuccess = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "productsync_last_success_timestamp_seconds",
			Help: "Unix time of the last successful sync run.",
		},
		[]string{"flavor"},
	)
)

func init() {
	prometheus.MustRegister(syncRecordsTotal)
	prometheus.MustRegister(syncFlushDuration)
	prometheus.MustRegister(syncLastSuccess)
}

// UpdateMetrics holds the counters of one sync run. The run summary is read
// from here; the Prometheus series are fed alongside.
type UpdateMetrics struct {
	Flavor string

	ProcessedCount atomic.Int64
	AddedCount     atomic.Int64
	UpdatedCount   atomic.Int64
	SkippedCount   atomic.Int64
	CommittedCount atomic.Int64
	WrittenCount   atomic.Int64
	FlushCount     atomic.Int64
}

func NewUpdateMetrics(flavor string) *UpdateMetrics {
	return &UpdateMetrics{Flavor: flavor}
}

func (m *UpdateMetrics) Processed() { m.ProcessedCount.Add(1) }

func (m *UpdateMetrics) Added() {
	m.AddedCount.Add(1)
	syncRecordsTotal.WithLabelValues(m.Flavor, OutcomeAdded, "").Inc()
}

func (m *UpdateMetrics) Updated() {
	m.UpdatedCount.Add(1)
	syncRecordsTotal.WithLabelValues(m.Flavor, OutcomeUpdated, "").Inc()
}

func (m *UpdateMetrics) Skipped(reason string) {
	m.SkippedCount.Add(1)
	syncRecordsTotal.WithLabelValues(m.Flavor, OutcomeSkipped, reason).Inc()
}

// Flushed records a batch transaction of rows rows, written of which
// changed the table.
func (m *UpdateMetrics) Flushed(rows int, written int64, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	} else {
		m.FlushCount.Add(1)
		m.CommittedCount.Add(int64(rows))
		m.WrittenCount.Add(written)
	}
	syncFlushDuration.WithLabelValues(m.Flavor, status).Observe(duration.Seconds())
}

func (m *UpdateMetrics) Succeeded(at time.Time) {
	syncLastSuccess.WithLabelValues(m.Flavor).Set(float64(at.Unix()))
}
