package catalogsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"openprices_sync/internal/catalog"
	"openprices_sync/internal/core/models"
	"openprices_sync/pkg/logger"
)

// runNow is the fixed clock of every test run; its start of day is
// 2024-05-10T00:00:00Z.
var runNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

var yesterday = runNow.Add(-24 * time.Hour)

func dumpLine(code string, modified time.Time, extra string) string {
	line := fmt.Sprintf(`{"code":%q,"last_modified_t":%d`, code, modified.Unix())
	if extra != "" {
		line += "," + extra
	}
	return line + "}"
}

func writeDump(t *testing.T, lines ...string) *catalog.RecordStream {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write dump: %v", err)
	}
	stream, err := catalog.OpenRecordStream(path)
	if err != nil {
		t.Fatalf("open dump: %v", err)
	}
	t.Cleanup(func() { stream.Close() })
	return stream
}

func newTestSyncer(store ProductStore, journal Journal, batchSize int) *Syncer {
	return NewSyncer(catalog.FlavorOFF, batchSize, store, journal, logger.Discard()).
		SetClock(func() time.Time { return runNow })
}

// memStore is an in-memory ProductStore that records every batch.
type memStore struct {
	rows       map[string]models.Product
	batches    []int
	failBatch  int
	stateCalls int
}

func newMemStore() *memStore {
	return &memStore{rows: map[string]models.Product{}}
}

func (s *memStore) ExistingCodes(_ context.Context, flavor string) (*catalog.CodeSet, error) {
	codes := catalog.NewCodeSet(len(s.rows))
	for code, p := range s.rows {
		if p.Source != nil && *p.Source == flavor {
			codes.Add(code)
		}
	}
	return codes, nil
}

func (s *memStore) SyncState(_ context.Context, code string) (*models.SyncState, error) {
	s.stateCalls++
	p, ok := s.rows[code]
	if !ok {
		return nil, nil
	}
	return &models.SyncState{Code: code, Source: p.Source, SourceLastSynced: p.SourceLastSynced}, nil
}

func (s *memStore) UpsertBatch(_ context.Context, products []models.Product) (int64, error) {
	if s.failBatch == len(s.batches)+1 {
		return 0, errors.New("connection reset")
	}
	var written int64
	s.batches = append(s.batches, len(products))
	for _, p := range products {
		if old, ok := s.rows[p.Code]; ok && old.Source != nil && *old.Source != *p.Source {
			continue
		}
		s.rows[p.Code] = p
		written++
	}
	return written, nil
}

// failingReader yields its records and then a read error.
type failingReader struct {
	records []catalog.RawRecord
	line    int
}

func (r *failingReader) Next() (catalog.RawRecord, error) {
	if r.line < len(r.records) {
		r.line++
		return r.records[r.line-1], nil
	}
	return nil, errors.New("unexpected EOF in gzip stream")
}

func (r *failingReader) Line() int    { return r.line }
func (r *failingReader) Close() error { return nil }
