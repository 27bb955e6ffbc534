package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"openprices_sync/config"
	"openprices_sync/internal/catalog"
	"openprices_sync/internal/core/models"
	"openprices_sync/internal/products"
	"openprices_sync/internal/products/catalogsync"
	"openprices_sync/internal/products/storage"
	"openprices_sync/metrics"
	"openprices_sync/migrations/infrastructure"
	"openprices_sync/pkg/dbconnect"
	"openprices_sync/pkg/dbconnect/migration"
	"openprices_sync/pkg/logger"
	"openprices_sync/pkg/runlock"
)

// SyncServer wires configuration, storage and the catalog sync together for
// one invocation of the sync command. The caller owns the connector and
// closes it.
type SyncServer struct {
	dbconnect.Database
	cfg    *config.AppConfig
	log    logger.Logger
	locker runlock.Locker
}

func NewSyncServer(connector dbconnect.Database, cfg *config.AppConfig, writer io.Writer) *SyncServer {
	_log := logger.NewLogger(writer, "[sync]").SetLevel(logger.ParseLevel(cfg.LogLevel))
	return &SyncServer{Database: connector, cfg: cfg, log: _log, locker: runlock.Noop{}}
}

func (s *SyncServer) SetLocker(locker runlock.Locker) *SyncServer {
	if locker != nil {
		s.locker = locker
	}
	return s
}

func (s *SyncServer) open() (*sql.DB, error) {
	db, err := s.Connect()
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", s.Dialect(), err)
	}
	if err := migration.Apply(db, s.Dialect(), infrastructure.All()...); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}
	s.log.Debug("%s migrations applied", s.Dialect())
	return db, nil
}

// ServeMetrics exposes /metrics on the configured address until ctx is done.
// It does nothing without an address.
func (s *SyncServer) ServeMetrics(ctx context.Context) {
	if s.cfg.Metrics.Addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.MetricsHandler())
	server := &http.Server{Addr: s.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		s.log.Info("serving metrics on %s", s.cfg.Metrics.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("metrics server: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()
}

func (s *SyncServer) dataset(flavor catalog.Flavor) (*catalog.Dataset, error) {
	return catalog.NewDataset(
		flavor,
		s.cfg.Sync.DatasetURLs[string(flavor)],
		s.cfg.Sync.CacheDir,
		s.cfg.Sync.ForceDownload,
		catalog.NewHTTPFetcher(s.cfg.API.UserAgent),
		s.log.WithPrefix("[dataset]"),
	)
}

// Sync runs a full catalog sync of flavor.
func (s *SyncServer) Sync(ctx context.Context, flavor catalog.Flavor) (catalogsync.Summary, error) {
	summary := catalogsync.Summary{Flavor: flavor}

	dataset, err := s.dataset(flavor)
	if err != nil {
		err = catalogsync.Wrap(catalogsync.ErrAcquisition, "no dataset for "+string(flavor), err)
		return summary, &catalogsync.RunError{Err: err, Summary: summary}
	}

	release, err := s.locker.Acquire(ctx, string(flavor))
	if err != nil {
		return summary, fmt.Errorf("sync %s: %w", flavor, err)
	}
	defer release()

	db, err := s.open()
	if err != nil {
		return summary, err
	}

	syncer := catalogsync.NewSyncer(
		flavor,
		s.cfg.Sync.BatchSize,
		storage.NewProductRepository(db, s.Dialect()),
		storage.NewSyncRunRepository(db, s.Dialect()),
		s.log,
	)
	s.log.Info("syncing %s from %s (batch size %d)", flavor, dataset.URL, syncer.BatchSize)
	return syncer.RunDataset(ctx, dataset)
}

// Enrich creates product code if needed and fills it from flavor's API.
func (s *SyncServer) Enrich(ctx context.Context, flavor catalog.Flavor, code string) (*models.Product, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}

	client := catalog.NewAPIClient(flavor, s.cfg.API.UserAgent, s.cfg.API.RequestsPerMinute, s.log.WithPrefix("[api]"))
	enricher := products.NewEnricher(storage.NewProductRepository(db, s.Dialect()), client, flavor, s.log)
	return enricher.Enrich(ctx, code)
}
