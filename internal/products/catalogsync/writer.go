package catalogsync

import (
	"context"
	"fmt"
	"time"

	"openprices_sync/internal/core/models"
	"openprices_sync/metrics"
)

const DefaultBatchSize = 1000

type BatchUpserter interface {
	UpsertBatch(ctx context.Context, products []models.Product) (int64, error)
}

// BatchWriter buffers products and writes them in transactional batches.
type BatchWriter struct {
	store   BatchUpserter
	size    int
	buf     []models.Product
	metrics *metrics.UpdateMetrics

	// AfterFlush runs after every committed batch.
	AfterFlush func(rows int)
}

func NewBatchWriter(store BatchUpserter, size int, m *metrics.UpdateMetrics) *BatchWriter {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &BatchWriter{
		store:   store,
		size:    size,
		buf:     make([]models.Product, 0, size),
		metrics: m,
	}
}

func (w *BatchWriter) Size() int    { return w.size }
func (w *BatchWriter) Pending() int { return len(w.buf) }

// Add queues p and flushes once the buffer is full.
func (w *BatchWriter) Add(ctx context.Context, p models.Product) error {
	w.buf = append(w.buf, p)
	if len(w.buf) >= w.size {
		return w.Flush(ctx)
	}
	return nil
}

// Flush writes the buffered products. An empty buffer is a no-op. The
// buffer is dropped either way: a failed batch is rolled back and the run is
// expected to stop.
func (w *BatchWriter) Flush(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}
	batch := w.buf
	w.buf = make([]models.Product, 0, w.size)

	start := time.Now()
	written, err := w.store.UpsertBatch(ctx, batch)
	if w.metrics != nil {
		w.metrics.Flushed(len(batch), written, time.Since(start), err)
	}
	if err != nil {
		return Wrap(ErrStorageWrite, fmt.Sprintf("upsert batch of %d products", len(batch)), err)
	}
	if w.AfterFlush != nil {
		w.AfterFlush(len(batch))
	}
	return nil
}
