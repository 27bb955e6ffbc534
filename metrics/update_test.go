package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestUpdateMetricsCounters(t *testing.T) {
	m := NewUpdateMetrics("test_counters")

	m.Processed()
	m.Processed()
	m.Added()
	m.Skipped("duplicate_code")
	m.Flushed(2, 1, time.Millisecond, nil)
	m.Flushed(5, 0, time.Millisecond, errors.New("boom"))

	if got := m.ProcessedCount.Load(); got != 2 {
		t.Errorf("processed = %d, want 2", got)
	}
	if got := m.CommittedCount.Load(); got != 2 {
		t.Errorf("committed = %d, want 2 (failed flush must not count)", got)
	}
	if got := m.WrittenCount.Load(); got != 1 {
		t.Errorf("written = %d, want 1", got)
	}
	if got := m.FlushCount.Load(); got != 1 {
		t.Errorf("flushes = %d, want 1", got)
	}
	if got := testutil.ToFloat64(syncRecordsTotal.WithLabelValues("test_counters", OutcomeAdded, "")); got != 1 {
		t.Errorf("added series = %v, want 1", got)
	}
	if got := testutil.ToFloat64(syncRecordsTotal.WithLabelValues("test_counters", OutcomeSkipped, "duplicate_code")); got != 1 {
		t.Errorf("skipped series = %v, want 1", got)
	}
}

func TestClassifyStatus(t *testing.T) {
	cases := map[int]string{200: "2xx", 304: "3xx", 404: "4xx", 503: "5xx", 0: "error", 99: "unknown"}
	for code, want := range cases {
		if got := classifyStatus(code); got != want {
			t.Errorf("classifyStatus(%d) = %s, want %s", code, got, want)
		}
	}
}
