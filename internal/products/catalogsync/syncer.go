package catalogsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"openprices_sync/internal/catalog"
	"openprices_sync/internal/core/models"
	"openprices_sync/metrics"
	"openprices_sync/pkg/logger"
)

// skip reason used when a known product is already up to date
const reasonUpToDate = "up_to_date"

type ProductStore interface {
	StateReader
	BatchUpserter
	ExistingCodes(ctx context.Context, flavor string) (*catalog.CodeSet, error)
}

type RecordReader interface {
	Next() (catalog.RawRecord, error)
	Line() int
	Close() error
}

// Journal records sync runs. It is optional.
type Journal interface {
	Start(ctx context.Context, flavor string, startedAt time.Time) (*models.SyncRun, error)
	Finish(ctx context.Context, run *models.SyncRun) error
}

// Summary is what a run did. Added and Updated count decisions, Committed
// the products of committed batches and Written the rows those batches
// changed. Written is lower than Committed when a create hits a product
// owned by another flavor.
type Summary struct {
	Flavor    catalog.Flavor
	StartedAt time.Time
	Duration  time.Duration
	Processed int
	Added     int
	Updated   int
	Skipped   int
	Committed int
	Written   int
	Flushes   int
}

// Syncer reconciles one flavor's dump with the products table. It is not
// safe to run two Syncers for the same flavor at once.
type Syncer struct {
	Flavor    catalog.Flavor
	BatchSize int

	store   ProductStore
	journal Journal
	log     logger.Logger
	now     func() time.Time
}

func NewSyncer(flavor catalog.Flavor, batchSize int, store ProductStore, journal Journal, log logger.Logger) *Syncer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Syncer{
		Flavor:    flavor,
		BatchSize: batchSize,
		store:     store,
		journal:   journal,
		log:       log.WithPrefix(fmt.Sprintf("[%s]", flavor)),
		now:       time.Now,
	}
}

// SetClock replaces the time source used for the start-of-day cutoff and
// source_last_synced.
func (s *Syncer) SetClock(now func() time.Time) *Syncer {
	if now != nil {
		s.now = now
	}
	return s
}

// RunDataset opens the flavor's dump and syncs it.
func (s *Syncer) RunDataset(ctx context.Context, dataset *catalog.Dataset) (Summary, error) {
	stream, err := dataset.Open(ctx)
	if err != nil {
		err = Wrap(ErrAcquisition, "open dataset "+dataset.URL, err)
		s.log.Error("%v", err)
		return Summary{Flavor: s.Flavor}, &RunError{Err: err, Summary: Summary{Flavor: s.Flavor}}
	}
	defer stream.Close()
	return s.Run(ctx, stream)
}

// Run streams records and upserts new and stale products. Malformed or
// ineligible records are counted as skipped. Failing to read the stream or
// to write a batch aborts the run with a *RunError; batches committed
// before that stay.
func (s *Syncer) Run(ctx context.Context, records RecordReader) (Summary, error) {
	startedAt := s.now().UTC()
	m := metrics.NewUpdateMetrics(string(s.Flavor))

	run := s.startJournal(ctx, startedAt)
	summary, err := s.run(ctx, records, startedAt, m)
	summary.Duration = s.now().Sub(startedAt)
	s.finishJournal(ctx, run, summary, err)

	if err != nil {
		s.log.Error("sync aborted at line %d: %v", records.Line(), err)
		s.log.Info("Products: %d added, %d updated, %d skipped, %d committed before failure",
			summary.Added, summary.Updated, summary.Skipped, summary.Committed)
		return summary, &RunError{Err: err, Summary: summary}
	}

	m.Succeeded(s.now())
	s.log.Info("Products: %d added, %d updated, %d skipped, %d rows written. Done! (%d processed in %s)",
		summary.Added, summary.Updated, summary.Skipped, summary.Written, summary.Processed, summary.Duration.Round(time.Millisecond))
	return summary, nil
}

func (s *Syncer) run(ctx context.Context, records RecordReader, startedAt time.Time, m *metrics.UpdateMetrics) (Summary, error) {
	snapshot := func() Summary {
		return Summary{
			Flavor:    s.Flavor,
			StartedAt: startedAt,
			Processed: int(m.ProcessedCount.Load()),
			Added:     int(m.AddedCount.Load()),
			Updated:   int(m.UpdatedCount.Load()),
			Skipped:   int(m.SkippedCount.Load()),
			Committed: int(m.CommittedCount.Load()),
			Written:   int(m.WrittenCount.Load()),
			Flushes:   int(m.FlushCount.Load()),
		}
	}

	existing, err := s.store.ExistingCodes(ctx, string(s.Flavor))
	if err != nil {
		return snapshot(), Wrap(ErrStorageRead, "load existing codes", err)
	}
	s.log.Info("%d products already synced from %s", existing.Len(), s.Flavor)

	normalizer := catalog.NewNormalizer(s.Flavor, startedAt, s.log)
	reconciler := NewReconciler(s.store, s.Flavor)
	writer := NewBatchWriter(s.store, s.BatchSize, m)
	writer.AfterFlush = func(rows int) {
		s.log.Info("Products: %d added, %d updated (batch of %d committed)",
			m.AddedCount.Load(), m.UpdatedCount.Load(), rows)
	}

	for {
		if err := ctx.Err(); err != nil {
			return snapshot(), Wrap(ErrCanceled, "sync interrupted", err)
		}

		raw, err := records.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if skipErr, ok := catalog.IsSkip(err); ok {
				m.Processed()
				s.skip(m, skipErr)
				continue
			}
			return snapshot(), Wrap(ErrAcquisition, "read dataset", err)
		}
		m.Processed()

		rec, err := normalizer.Normalize(raw)
		if err != nil {
			if skipErr, ok := catalog.IsSkip(err); ok {
				s.skip(m, skipErr)
				continue
			}
			return snapshot(), err
		}

		decision, err := reconciler.Decide(ctx, rec, existing)
		if err != nil {
			return snapshot(), Wrap(ErrStorageRead, "load sync state of "+rec.Code, err)
		}
		switch decision {
		case DecisionCreate:
			m.Added()
		case DecisionUpdate:
			m.Updated()
		default:
			m.Skipped(reasonUpToDate)
			continue
		}

		if err := writer.Add(ctx, rec.Product(s.Flavor, s.now().UTC())); err != nil {
			return snapshot(), err
		}
	}

	if err := writer.Flush(ctx); err != nil {
		return snapshot(), err
	}
	return snapshot(), nil
}

func (s *Syncer) skip(m *metrics.UpdateMetrics, err *catalog.SkipError) {
	m.Skipped(string(err.Reason))
	s.log.Debug("%v", err)
}

func (s *Syncer) startJournal(ctx context.Context, startedAt time.Time) *models.SyncRun {
	if s.journal == nil {
		return nil
	}
	run, err := s.journal.Start(ctx, string(s.Flavor), startedAt)
	if err != nil {
		s.log.Warn("sync run will not be journaled: %v", err)
		return nil
	}
	return run
}

func (s *Syncer) finishJournal(ctx context.Context, run *models.SyncRun, summary Summary, runErr error) {
	if run == nil {
		return
	}
	finished := s.now().UTC()
	run.FinishedAt = &finished
	run.Status = models.SyncRunSucceeded
	run.Processed = summary.Processed
	run.Added = summary.Added
	run.Updated = summary.Updated
	run.Skipped = summary.Skipped
	run.Committed = summary.Committed
	run.Written = summary.Written
	if runErr != nil {
		msg := runErr.Error()
		run.Status = models.SyncRunFailed
		run.Error = &msg
	}

	// The run context may already be canceled.
	if err := s.journal.Finish(context.WithoutCancel(ctx), run); err != nil {
		s.log.Warn("failed to journal sync run %s: %v", run.RunID, err)
	}
}
