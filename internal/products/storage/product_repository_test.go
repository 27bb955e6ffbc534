package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"openprices_sync/config"
	"openprices_sync/internal/core/models"
	"openprices_sync/migrations/infrastructure"
	"openprices_sync/pkg/dbconnect"
	"openprices_sync/pkg/dbconnect/migration"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn := dbconnect.NewSQLiteConnector(&config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "products.db")})
	db, err := conn.Connect()
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migration.Apply(db, dbconnect.DialectSQLite, infrastructure.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// openPostgresTestDB migrates a fresh schema on the server named by
// POSTGRES_TEST_DSN and drops it when the test ends. The pool is held to one
// connection so the search_path sticks.
func openPostgresTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)

	schema := "productsync_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := db.Exec("CREATE SCHEMA " + schema); err != nil {
		db.Close()
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		db.Exec("DROP SCHEMA " + schema + " CASCADE")
		db.Close()
	})
	if _, err := db.Exec("SET search_path TO " + schema); err != nil {
		t.Fatalf("set search_path: %v", err)
	}
	if err := migration.Apply(db, dbconnect.DialectPostgres, infrastructure.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// forEachDialect runs fn against SQLite and, when a test server is
// configured, against Postgres, which takes the COPY upsert path.
func forEachDialect(t *testing.T, fn func(t *testing.T, db *sql.DB, dialect dbconnect.Dialect)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, openTestDB(t), dbconnect.DialectSQLite) })
	t.Run("postgres", func(t *testing.T) { fn(t, openPostgresTestDB(t), dbconnect.DialectPostgres) })
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func offProduct(code string, synced time.Time) models.Product {
	return models.Product{
		Code:             code,
		Source:           strPtr("off"),
		SourceLastSynced: &synced,
		ProductFields: models.ProductFields{
			ProductName:     strPtr("Nutella"),
			ProductQuantity: intPtr(400),
			CategoriesTags:  []string{"en:spreads", "en:sweet-spreads"},
			BrandsTags:      []string{},
			NovaGroup:       intPtr(4),
		},
	}
}

func TestUpsertBatchInsertsAndReadsBack(t *testing.T) {
	forEachDialect(t, testUpsertBatchInsertsAndReadsBack)
}

func testUpsertBatchInsertsAndReadsBack(t *testing.T, db *sql.DB, dialect dbconnect.Dialect) {
	ctx := context.Background()
	repo := NewProductRepository(db, dialect)
	synced := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	written, err := repo.UpsertBatch(ctx, []models.Product{offProduct("3017620422003", synced)})
	if err != nil {
		t.Fatalf("UpsertBatch() failed: %v", err)
	}
	if written != 1 {
		t.Errorf("UpsertBatch() wrote %d rows, want 1", written)
	}

	p, err := repo.GetByCode(ctx, "3017620422003")
	if err != nil || p == nil {
		t.Fatalf("GetByCode() = %v, %v", p, err)
	}
	if p.Source == nil || *p.Source != "off" {
		t.Errorf("Source = %v, want off", p.Source)
	}
	if p.SourceLastSynced == nil || !p.SourceLastSynced.Equal(synced) {
		t.Errorf("SourceLastSynced = %v, want %v", p.SourceLastSynced, synced)
	}
	if p.ProductName == nil || *p.ProductName != "Nutella" {
		t.Errorf("ProductName = %v", p.ProductName)
	}
	if p.ProductQuantity == nil || *p.ProductQuantity != 400 {
		t.Errorf("ProductQuantity = %v", p.ProductQuantity)
	}
	if !reflect.DeepEqual(p.CategoriesTags, []string{"en:spreads", "en:sweet-spreads"}) {
		t.Errorf("CategoriesTags = %v", p.CategoriesTags)
	}
	if p.BrandsTags == nil || len(p.BrandsTags) != 0 {
		t.Errorf("BrandsTags = %#v, want empty non-nil list", p.BrandsTags)
	}
	if p.LabelsTags != nil {
		t.Errorf("LabelsTags = %#v, want nil", p.LabelsTags)
	}
	if p.Brands != nil {
		t.Errorf("Brands = %v, want nil", *p.Brands)
	}
	if p.PriceCount != 0 {
		t.Errorf("PriceCount = %d, want 0", p.PriceCount)
	}
}

func TestUpsertBatchOverwritesButKeepsPriceCount(t *testing.T) {
	forEachDialect(t, testUpsertBatchOverwritesButKeepsPriceCount)
}

func testUpsertBatchOverwritesButKeepsPriceCount(t *testing.T, db *sql.DB, dialect dbconnect.Dialect) {
	ctx := context.Background()
	repo := NewProductRepository(db, dialect)
	first := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	if _, err := repo.UpsertBatch(ctx, []models.Product{offProduct("123", first)}); err != nil {
		t.Fatalf("UpsertBatch() failed: %v", err)
	}
	if _, err := db.Exec("UPDATE products SET price_count = 7 WHERE code = '123'"); err != nil {
		t.Fatalf("set price_count: %v", err)
	}
	before, _ := repo.GetByCode(ctx, "123")

	second := first.Add(24 * time.Hour)
	updated := offProduct("123", second)
	updated.ProductName = nil
	if _, err := repo.UpsertBatch(ctx, []models.Product{updated}); err != nil {
		t.Fatalf("second UpsertBatch() failed: %v", err)
	}

	p, err := repo.GetByCode(ctx, "123")
	if err != nil {
		t.Fatalf("GetByCode() failed: %v", err)
	}
	if p.ProductName != nil {
		t.Errorf("ProductName = %q, want NULL after overwrite", *p.ProductName)
	}
	if *p.Source != "off" || !p.SourceLastSynced.Equal(second) {
		t.Errorf("sync state = %s/%v", *p.Source, p.SourceLastSynced)
	}
	if p.PriceCount != 7 {
		t.Errorf("PriceCount = %d, want 7", p.PriceCount)
	}
	if p.ID != before.ID || !p.CreatedAt.Equal(before.CreatedAt) {
		t.Errorf("row identity changed: id %d->%d created %v->%v", before.ID, p.ID, before.CreatedAt, p.CreatedAt)
	}
}

func TestUpsertBatchRespectsOtherSources(t *testing.T) {
	forEachDialect(t, testUpsertBatchRespectsOtherSources)
}

func testUpsertBatchRespectsOtherSources(t *testing.T, db *sql.DB, dialect dbconnect.Dialect) {
	ctx := context.Background()
	repo := NewProductRepository(db, dialect)
	synced := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	owned := offProduct("42", synced)
	owned.Source = strPtr("obf")
	if _, err := repo.UpsertBatch(ctx, []models.Product{owned}); err != nil {
		t.Fatalf("UpsertBatch(obf) failed: %v", err)
	}
	if _, _, err := repo.EnsureProduct(ctx, "43"); err != nil {
		t.Fatalf("EnsureProduct() failed: %v", err)
	}

	later := synced.Add(48 * time.Hour)
	intruder := offProduct("42", later)
	intruder.ProductName = strPtr("Overwritten")
	claim := offProduct("43", later)
	written, err := repo.UpsertBatch(ctx, []models.Product{intruder, claim})
	if err != nil {
		t.Fatalf("UpsertBatch(off) failed: %v", err)
	}
	if written != 1 {
		t.Errorf("UpsertBatch(off) wrote %d rows, want 1 (the claim only)", written)
	}

	p, _ := repo.GetByCode(ctx, "42")
	if *p.Source != "obf" || *p.ProductName != "Nutella" || !p.SourceLastSynced.Equal(synced) {
		t.Errorf("obf row was overwritten: source=%s name=%s", *p.Source, *p.ProductName)
	}
	p, _ = repo.GetByCode(ctx, "43")
	if p.Source == nil || *p.Source != "off" || p.ProductName == nil {
		t.Errorf("null-source row was not claimed: %+v", p)
	}
}

func TestUpsertBatchIsAtomic(t *testing.T) {
	forEachDialect(t, testUpsertBatchIsAtomic)
}

func testUpsertBatchIsAtomic(t *testing.T, db *sql.DB, dialect dbconnect.Dialect) {
	ctx := context.Background()
	repo := NewProductRepository(db, dialect)
	synced := time.Now().UTC()

	bad := offProduct("2", synced)
	bad.NovaGroup = intPtr(-1) // violates CHECK (nova_group >= 0)
	_, err := repo.UpsertBatch(ctx, []models.Product{offProduct("1", synced), bad})
	if err == nil {
		t.Fatal("expected constraint violation")
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM products").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("%d rows committed from a failed batch", n)
	}
}

func TestExistingCodesAndSyncState(t *testing.T) {
	forEachDialect(t, testExistingCodesAndSyncState)
}

func testExistingCodesAndSyncState(t *testing.T, db *sql.DB, dialect dbconnect.Dialect) {
	ctx := context.Background()
	repo := NewProductRepository(db, dialect)
	synced := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	obf := offProduct("222", synced)
	obf.Source = strPtr("obf")
	if _, err := repo.UpsertBatch(ctx, []models.Product{offProduct("111", synced), obf}); err != nil {
		t.Fatalf("UpsertBatch() failed: %v", err)
	}
	if _, _, err := repo.EnsureProduct(ctx, "333"); err != nil {
		t.Fatalf("EnsureProduct() failed: %v", err)
	}

	codes, err := repo.ExistingCodes(ctx, "off")
	if err != nil {
		t.Fatalf("ExistingCodes() failed: %v", err)
	}
	if codes.Len() != 1 || !codes.Contains("111") {
		t.Errorf("ExistingCodes(off) has %d codes, contains 111: %v", codes.Len(), codes.Contains("111"))
	}

	state, err := repo.SyncState(ctx, "222")
	if err != nil || state == nil {
		t.Fatalf("SyncState() = %v, %v", state, err)
	}
	if *state.Source != "obf" || !state.SourceLastSynced.Equal(synced) {
		t.Errorf("SyncState(222) = %s/%v", *state.Source, state.SourceLastSynced)
	}

	state, err = repo.SyncState(ctx, "333")
	if err != nil || state == nil {
		t.Fatalf("SyncState(333) = %v, %v", state, err)
	}
	if state.Source != nil || state.SourceLastSynced != nil {
		t.Errorf("bare product should have no sync state, got %+v", state)
	}

	state, err = repo.SyncState(ctx, "999")
	if err != nil || state != nil {
		t.Errorf("SyncState(unknown) = %v, %v, want nil, nil", state, err)
	}
}

func TestEnsureProduct(t *testing.T) {
	forEachDialect(t, testEnsureProduct)
}

func testEnsureProduct(t *testing.T, db *sql.DB, dialect dbconnect.Dialect) {
	ctx := context.Background()
	repo := NewProductRepository(db, dialect)

	p, created, err := repo.EnsureProduct(ctx, "5449000000996")
	if err != nil {
		t.Fatalf("EnsureProduct() failed: %v", err)
	}
	if !created || p.Code != "5449000000996" || p.Source != nil || p.PriceCount != 0 {
		t.Errorf("EnsureProduct() = %+v, created %v", p, created)
	}

	again, created, err := repo.EnsureProduct(ctx, "5449000000996")
	if err != nil {
		t.Fatalf("second EnsureProduct() failed: %v", err)
	}
	if created || again.ID != p.ID {
		t.Errorf("second EnsureProduct() created=%v id=%d, want existing id %d", created, again.ID, p.ID)
	}
}

func TestGetByCodeMissing(t *testing.T) {
	repo := NewProductRepository(openTestDB(t), dbconnect.DialectSQLite)
	p, err := repo.GetByCode(context.Background(), "404")
	if err != nil || p != nil {
		t.Errorf("GetByCode(missing) = %v, %v", p, err)
	}
}
