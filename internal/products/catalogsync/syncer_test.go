package catalogsync

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"openprices_sync/internal/catalog"
	"openprices_sync/pkg/logger"
)

func TestRunFlushesInBatches(t *testing.T) {
	store := newMemStore()
	stream := writeDump(t,
		dumpLine("1000000000001", yesterday, ""),
		dumpLine("1000000000002", yesterday, ""),
		dumpLine("1000000000003", yesterday, ""),
		dumpLine("1000000000004", yesterday, ""),
		dumpLine("1000000000005", yesterday, ""),
	)

	summary, err := newTestSyncer(store, nil, 2).Run(context.Background(), stream)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if !reflect.DeepEqual(store.batches, []int{2, 2, 1}) {
		t.Errorf("batches = %v, want [2 2 1]", store.batches)
	}
	if summary.Added != 5 || summary.Committed != 5 || summary.Flushes != 3 || summary.Processed != 5 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestRunSkipsInvalidRecords(t *testing.T) {
	store := newMemStore()
	stream := writeDump(t,
		dumpLine("abc", yesterday, ""),
		dumpLine("", yesterday, ""),
		`{"code":3017620422003,"last_modified_t":1700000000}`,
		`{"last_modified_t":1700000000}`,
		`{"code":"3017620422004"}`,
		`{"code":"3017620422005","last_modified_t":0}`,
		`{not json`,
		dumpLine("3017620422003", yesterday, `"product_name":"Nutella"`),
	)

	summary, err := newTestSyncer(store, nil, 10).Run(context.Background(), stream)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if summary.Added != 1 || summary.Skipped != 7 || summary.Processed != 8 {
		t.Errorf("summary = %+v, want 1 added, 7 skipped of 8", summary)
	}
	if _, ok := store.rows["3017620422003"]; !ok || len(store.rows) != 1 {
		t.Errorf("stored codes = %v", store.rows)
	}
}

func TestRunSkipsRecordsModifiedToday(t *testing.T) {
	store := newMemStore()
	startOfDay := catalog.StartOfDay(runNow)
	stream := writeDump(t,
		dumpLine("111", startOfDay, ""),
		dumpLine("222", startOfDay.Add(-time.Second), ""),
		dumpLine("333", runNow, ""),
	)

	summary, err := newTestSyncer(store, nil, 10).Run(context.Background(), stream)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if summary.Added != 1 || summary.Skipped != 2 {
		t.Errorf("summary = %+v", summary)
	}
	if _, ok := store.rows["222"]; !ok {
		t.Error("record modified just before midnight should be synced")
	}
	if _, ok := store.rows["111"]; ok {
		t.Error("record modified at midnight should be skipped")
	}
}

func TestRunKeepsFirstDuplicate(t *testing.T) {
	store := newMemStore()
	stream := writeDump(t,
		dumpLine("111", yesterday, `"product_name":"First"`),
		dumpLine("111", yesterday, `"product_name":"Second"`),
	)

	summary, err := newTestSyncer(store, nil, 10).Run(context.Background(), stream)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if summary.Added != 1 || summary.Skipped != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if p := store.rows["111"]; p.ProductName == nil || *p.ProductName != "First" {
		t.Errorf("product_name = %v, want First", p.ProductName)
	}
}

func TestRunNullsOversizedQuantity(t *testing.T) {
	store := newMemStore()
	stream := writeDump(t,
		dumpLine("111", yesterday, `"product_quantity":100000`),
		dumpLine("222", yesterday, `"product_quantity":99999`),
		dumpLine("333", yesterday, `"product_quantity":"250000"`),
	)

	if _, err := newTestSyncer(store, nil, 10).Run(context.Background(), stream); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if q := store.rows["111"].ProductQuantity; q != nil {
		t.Errorf("quantity 100000 stored as %d", *q)
	}
	if q := store.rows["222"].ProductQuantity; q == nil || *q != 99999 {
		t.Errorf("quantity 99999 stored as %v", q)
	}
	if q := store.rows["333"].ProductQuantity; q != nil {
		t.Errorf("quantity \"250000\" stored as %d", *q)
	}
}

func TestRunStampsSourceAndSyncTime(t *testing.T) {
	store := newMemStore()
	stream := writeDump(t, dumpLine("111", yesterday, ""))

	if _, err := newTestSyncer(store, nil, 10).Run(context.Background(), stream); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	p := store.rows["111"]
	if p.Source == nil || *p.Source != "off" {
		t.Errorf("source = %v", p.Source)
	}
	if p.SourceLastSynced == nil || !p.SourceLastSynced.Equal(runNow) {
		t.Errorf("source_last_synced = %v, want %v", p.SourceLastSynced, runNow)
	}
}

func TestRunAbortsOnStorageFailure(t *testing.T) {
	store := newMemStore()
	store.failBatch = 2
	stream := writeDump(t,
		dumpLine("1", yesterday, ""),
		dumpLine("2", yesterday, ""),
		dumpLine("3", yesterday, ""),
		dumpLine("4", yesterday, ""),
		dumpLine("5", yesterday, ""),
	)

	summary, err := newTestSyncer(store, nil, 2).Run(context.Background(), stream)
	var runErr *RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("Run() error = %v, want *RunError", err)
	}
	if !Is(err, ErrStorageWrite) {
		t.Errorf("error %v is not %s", err, ErrStorageWrite)
	}
	if runErr.Summary.Committed != 2 || summary.Committed != 2 {
		t.Errorf("committed = %d, want 2", runErr.Summary.Committed)
	}
	if summary.Processed != 4 {
		t.Errorf("processed = %d, want 4 (stopped at the failing flush)", summary.Processed)
	}
	if !reflect.DeepEqual(store.batches, []int{2}) || len(store.rows) != 2 {
		t.Errorf("batches = %v, rows = %d", store.batches, len(store.rows))
	}
}

func TestRunAbortsOnReadError(t *testing.T) {
	store := newMemStore()
	reader := &failingReader{records: []catalog.RawRecord{
		{"code": []byte(`"111"`), "last_modified_t": []byte("1700000000")},
	}}

	summary, err := newTestSyncer(store, nil, 10).Run(context.Background(), reader)
	if !Is(err, ErrAcquisition) {
		t.Fatalf("Run() error = %v, want %s", err, ErrAcquisition)
	}
	if summary.Processed != 1 || summary.Committed != 0 || len(store.batches) != 0 {
		t.Errorf("summary = %+v, batches = %v", summary, store.batches)
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestSyncer(newMemStore(), nil, 10).Run(ctx, writeDump(t, dumpLine("1", yesterday, "")))
	if !Is(err, ErrCanceled) || !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want %s", err, ErrCanceled)
	}
}

func TestRunDatasetMissingFile(t *testing.T) {
	dataset, err := catalog.NewDataset(catalog.FlavorOFF, filepath.Join(t.TempDir(), "missing.jsonl"),
		t.TempDir(), false, nil, logger.Discard())
	if err != nil {
		t.Fatalf("NewDataset() failed: %v", err)
	}

	_, err = newTestSyncer(newMemStore(), nil, 10).RunDataset(context.Background(), dataset)
	if !Is(err, ErrAcquisition) {
		t.Errorf("RunDataset() error = %v, want %s", err, ErrAcquisition)
	}
}
