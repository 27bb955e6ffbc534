package products

import (
	"context"
	"errors"
	"fmt"
	"time"

	"openprices_sync/internal/catalog"
	"openprices_sync/internal/core/models"
	"openprices_sync/pkg/logger"
)

var ErrInvalidCode = errors.New("invalid product code")

type ProductLookup interface {
	GetProduct(ctx context.Context, code string) (*models.ProductFields, error)
}

type ProductStore interface {
	EnsureProduct(ctx context.Context, code string) (*models.Product, bool, error)
	GetByCode(ctx context.Context, code string) (*models.Product, error)
	UpsertBatch(ctx context.Context, products []models.Product) (int64, error)
}

// Enricher fills a single product from the flavor's product API, the way a
// price submission for an unknown barcode does. Products already owned by
// another flavor are returned untouched.
type Enricher struct {
	store  ProductStore
	lookup ProductLookup
	flavor catalog.Flavor
	log    logger.Logger
	now    func() time.Time
}

func NewEnricher(store ProductStore, lookup ProductLookup, flavor catalog.Flavor, log logger.Logger) *Enricher {
	return &Enricher{
		store:  store,
		lookup: lookup,
		flavor: flavor,
		log:    log.WithPrefix("[enrich]"),
		now:    time.Now,
	}
}

func (e *Enricher) Enrich(ctx context.Context, code string) (*models.Product, error) {
	if !catalog.ValidCode(code) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	product, created, err := e.store.EnsureProduct(ctx, code)
	if err != nil {
		return nil, err
	}
	if created {
		e.log.Info("created product %s", code)
	}
	if product.Source != nil && *product.Source != string(e.flavor) {
		e.log.Info("product %s belongs to %s, not fetching from %s", code, *product.Source, e.flavor)
		return product, nil
	}

	fields, err := e.lookup.GetProduct(ctx, code)
	if errors.Is(err, catalog.ErrProductNotFound) {
		e.log.Info("product %s not found in %s", code, e.flavor)
		return product, nil
	}
	if err != nil {
		return product, fmt.Errorf("fetch product %s: %w", code, err)
	}

	source := string(e.flavor)
	synced := e.now().UTC()
	update := models.Product{
		Code:             code,
		Source:           &source,
		SourceLastSynced: &synced,
		ProductFields:    *fields,
	}
	if _, err := e.store.UpsertBatch(ctx, []models.Product{update}); err != nil {
		return product, fmt.Errorf("store product %s: %w", code, err)
	}
	e.log.Info("product %s filled from %s", code, e.flavor)
	return e.store.GetByCode(ctx, code)
}
