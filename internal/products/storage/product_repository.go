package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"openprices_sync/internal/catalog"
	"openprices_sync/internal/core/models"
	"openprices_sync/pkg/dbconnect"
)

const productsTable = "products"

// syncColumns precede the descriptive fields in every upsert.
var syncColumns = []string{"code", "source", "source_last_synced"}

type ProductRepository struct {
	DB      *sql.DB
	dialect dbconnect.Dialect
}

func NewProductRepository(db *sql.DB, dialect dbconnect.Dialect) *ProductRepository {
	return &ProductRepository{DB: db, dialect: dialect}
}

func upsertColumns() []string {
	return append(append([]string{}, syncColumns...), models.FieldNames()...)
}

func (r *ProductRepository) q(query string) string {
	return r.dialect.Rebind(query)
}

// ExistingCodes returns the codes of every product last synced from flavor.
func (r *ProductRepository) ExistingCodes(ctx context.Context, flavor string) (*catalog.CodeSet, error) {
	rows, err := r.DB.QueryContext(ctx, r.q("SELECT code FROM products WHERE source = ?"), flavor)
	if err != nil {
		return nil, fmt.Errorf("failed to list product codes: %w", err)
	}
	defer rows.Close()

	codes := catalog.NewCodeSet(1 << 16)
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan product code: %w", err)
		}
		codes.Add(code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list product codes: %w", err)
	}
	return codes, nil
}

// SyncState returns the sync bookkeeping of code, or nil if no row exists.
func (r *ProductRepository) SyncState(ctx context.Context, code string) (*models.SyncState, error) {
	var (
		state  = models.SyncState{Code: code}
		source sql.NullString
		synced sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		r.q("SELECT source, source_last_synced FROM products WHERE code = ?"), code,
	).Scan(&source, &synced)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get sync state of %s: %w", code, err)
	}
	if source.Valid {
		state.Source = &source.String
	}
	if synced.Valid {
		t := synced.Time.UTC()
		state.SourceLastSynced = &t
	}
	return &state, nil
}

// UpsertBatch inserts or updates products by code in a single transaction.
// Conflicting rows get every descriptive field plus source and
// source_last_synced overwritten, unless they belong to another source;
// price_count and created are left alone. It returns the number of rows
// inserted or updated; rows kept by the ownership guard are not counted.
func (r *ProductRepository) UpsertBatch(ctx context.Context, products []models.Product) (int64, error) {
	if len(products) == 0 {
		return 0, nil
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	var written int64
	now := time.Now().UTC()
	if r.dialect == dbconnect.DialectPostgres {
		written, err = r.upsertViaCopy(ctx, tx, products, now)
	} else {
		written, err = r.upsertRows(ctx, tx, products, now)
	}
	if err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	return written, nil
}

func (r *ProductRepository) rowArgs(p *models.Product) ([]interface{}, error) {
	args := make([]interface{}, 0, len(syncColumns)+len(models.Fields))
	args = append(args, p.Code, nullString(p.Source), nullTime(p.SourceLastSynced))
	for _, field := range models.Fields {
		v, err := p.ProductFields.Value(field.Name)
		if err != nil {
			return nil, err
		}
		switch val := v.(type) {
		case *string:
			args = append(args, nullString(val))
		case *int:
			args = append(args, nullInt(val))
		case []string:
			args = append(args, arrayValue(r.dialect, val))
		default:
			return nil, fmt.Errorf("field %s: unsupported type %T", field.Name, v)
		}
	}
	return args, nil
}

func conflictAssignments(columns []string) string {
	sets := make([]string, 0, len(columns))
	for _, col := range columns {
		if col == "code" {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	sets = append(sets, "updated = EXCLUDED.updated")
	return strings.Join(sets, ", ") + " " + ownershipGuard
}

// ownershipGuard keeps a row claimed by one flavor from being overwritten by
// another. Rows without a source can be claimed by any flavor.
const ownershipGuard = "WHERE " + productsTable + ".source IS NULL OR " + productsTable + ".source = EXCLUDED.source"

// upsertViaCopy streams the batch into a transaction-local staging table
// with COPY and merges it with one INSERT ... ON CONFLICT.
func (r *ProductRepository) upsertViaCopy(ctx context.Context, tx *sql.Tx, products []models.Product, now time.Time) (int64, error) {
	columns := upsertColumns()
	const staging = "products_batch"

	createStaging := fmt.Sprintf(`
		CREATE TEMP TABLE %s ON COMMIT DROP AS
		SELECT %s FROM %s WHERE 1=0
	`, staging, strings.Join(columns, ", "), productsTable)
	if _, err := tx.ExecContext(ctx, createStaging); err != nil {
		return 0, fmt.Errorf("create staging table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(staging, columns...))
	if err != nil {
		return 0, fmt.Errorf("prepare copyin: %w", err)
	}
	for i := range products {
		args, err := r.rowArgs(&products[i])
		if err != nil {
			stmt.Close()
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			stmt.Close()
			return 0, fmt.Errorf("copyin product %s: %w", products[i].Code, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return 0, fmt.Errorf("final copyin: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return 0, fmt.Errorf("close copyin: %w", err)
	}

	merge := fmt.Sprintf(`
		INSERT INTO %s (%s, created, updated)
		SELECT %s, $1::timestamptz, $1::timestamptz FROM %s
		ON CONFLICT (code) DO UPDATE SET %s
	`, productsTable, strings.Join(columns, ", "),
		strings.Join(columns, ", "), staging,
		conflictAssignments(columns))
	res, err := tx.ExecContext(ctx, merge, now)
	if err != nil {
		return 0, fmt.Errorf("merge staging table: %w", err)
	}
	return res.RowsAffected()
}

func (r *ProductRepository) upsertRows(ctx context.Context, tx *sql.Tx, products []models.Product, now time.Time) (int64, error) {
	columns := upsertColumns()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)+2), ", ")
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, created, updated) VALUES (%s)
		ON CONFLICT (code) DO UPDATE SET %s
	`, productsTable, strings.Join(columns, ", "), placeholders, conflictAssignments(columns))

	stmt, err := tx.PrepareContext(ctx, r.q(query))
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	var written int64
	for i := range products {
		args, err := r.rowArgs(&products[i])
		if err != nil {
			return 0, err
		}
		args = append(args, now, now)
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, fmt.Errorf("upsert product %s: %w", products[i].Code, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("upsert product %s: %w", products[i].Code, err)
		}
		written += n
	}
	return written, nil
}

func (r *ProductRepository) selectColumns() string {
	cols := append(append([]string{"id"}, syncColumns...), models.FieldNames()...)
	cols = append(cols, "price_count", "created", "updated")
	return strings.Join(cols, ", ")
}

// GetByCode returns the product with code, or nil if there is none.
func (r *ProductRepository) GetByCode(ctx context.Context, code string) (*models.Product, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE code = ?", r.selectColumns(), productsTable)

	var (
		p       models.Product
		source  sql.NullString
		synced  sql.NullTime
		created sql.NullTime
		updated sql.NullTime
	)
	strs := map[string]*sql.NullString{}
	ints := map[string]*sql.NullInt64{}
	tags := map[string]*[]string{}

	dest := []interface{}{&p.ID, &p.Code, &source, &synced}
	for _, field := range models.Fields {
		switch field.Kind {
		case models.KindString:
			v := &sql.NullString{}
			strs[field.Name] = v
			dest = append(dest, v)
		case models.KindInt:
			v := &sql.NullInt64{}
			ints[field.Name] = v
			dest = append(dest, v)
		case models.KindTags:
			v := new([]string)
			tags[field.Name] = v
			dest = append(dest, arrayScanner(r.dialect, v))
		}
	}
	dest = append(dest, &p.PriceCount, &created, &updated)

	if err := r.DB.QueryRowContext(ctx, r.q(query), code).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get product %s: %w", code, err)
	}

	if source.Valid {
		p.Source = &source.String
	}
	if synced.Valid {
		t := synced.Time.UTC()
		p.SourceLastSynced = &t
	}
	p.CreatedAt = created.Time.UTC()
	p.UpdatedAt = updated.Time.UTC()

	for name, v := range strs {
		var val interface{}
		if v.Valid {
			val = v.String
		}
		if err := p.ProductFields.Set(name, val); err != nil {
			return nil, err
		}
	}
	for name, v := range ints {
		var val interface{}
		if v.Valid {
			val = int(v.Int64)
		}
		if err := p.ProductFields.Set(name, val); err != nil {
			return nil, err
		}
	}
	for name, v := range tags {
		if err := p.ProductFields.Set(name, *v); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

// EnsureProduct creates a bare product with no source when code is unknown,
// the way a price submission does, and returns the stored row.
func (r *ProductRepository) EnsureProduct(ctx context.Context, code string) (*models.Product, bool, error) {
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx, r.q(`
		INSERT INTO products (code, price_count, created, updated) VALUES (?, 0, ?, ?)
		ON CONFLICT (code) DO NOTHING
	`), code, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure product %s: %w", code, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure product %s: %w", code, err)
	}

	p, err := r.GetByCode(ctx, code)
	if err != nil {
		return nil, false, err
	}
	return p, affected > 0, nil
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullInt(i *int) interface{} {
	if i == nil {
		return nil
	}
	return int64(*i)
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
