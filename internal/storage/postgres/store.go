// Package postgres stores each collection as a PostgreSQL table of JSONB
// documents. The id, version and created_at columns are lifted out of the
// document for keys, optimistic locking and ordering.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/safar/storefront-core/internal/config"
	"github.com/safar/storefront-core/internal/database"
	"github.com/safar/storefront-core/internal/models"
	"github.com/safar/storefront-core/internal/storage"
)

type Store struct {
	db    *sql.DB
	owned bool
}

var _ storage.Backend = (*Store)(nil)

// New wraps an existing, already migrated connection pool. Close leaves the
// pool open.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects, pings within timeout and applies the schema.
func Open(ctx context.Context, cfg *config.DatabaseConfig, timeout time.Duration, logger *slog.Logger) (*Store, error) {
	db, err := database.NewConnection(ctx, cfg, timeout)
	if err != nil {
		return nil, storage.Unavailable("open", "postgres", err)
	}

	if _, err := Migrate(ctx, db, logger); err != nil {
		db.Close()
		return nil, storage.Unavailable("migrate", "postgres", err)
	}

	return &Store{db: db, owned: true}, nil
}

func (s *Store) Name() string {
	return "postgres"
}

func (s *Store) Close(ctx context.Context) error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// args accumulates positional parameters and hands out their placeholders.
type args []any

func (a *args) add(v any) string {
	*a = append(*a, v)
	return fmt.Sprintf("$%d", len(*a))
}

func whereClause(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

// likePattern escapes LIKE metacharacters so text matches literally.
func likePattern(text string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(text) + "%"
}

func getDoc[T any](ctx context.Context, db *sql.DB, op, table, query string, key string) (*T, error) {
	var raw []byte
	if err := db.QueryRowContext(ctx, query, key).Scan(&raw); err != nil {
		return nil, database.Wrap(err, op, table, key)
	}

	var rec T
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, storage.Unavailable(op, table, fmt.Errorf("malformed document %s: %w", key, err))
	}
	return &rec, nil
}

func queryDocs[T any](ctx context.Context, db *sql.DB, op, table, query string, params ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, database.Wrap(err, op, table, "")
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, database.Wrap(err, op, table, "")
		}
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, storage.Unavailable(op, table, fmt.Errorf("malformed document: %w", err))
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Wrap(err, op, table, "")
	}
	return out, nil
}

func (s *Store) count(ctx context.Context, op, table, where string, params args) (int64, error) {
	var total int64
	query := "SELECT COUNT(*) FROM " + table + where
	if err := s.db.QueryRowContext(ctx, query, params...).Scan(&total); err != nil {
		return 0, database.Wrap(err, op, table, "")
	}
	return total, nil
}

func (s *Store) insert(ctx context.Context, table, id string, createdAt time.Time, version *int64, rec any) error {
	*version = 1
	doc, err := json.Marshal(rec)
	if err != nil {
		*version = 0
		return storage.Unavailable("insert", table, err)
	}

	query := "INSERT INTO " + table + " (id, version, created_at, doc) VALUES ($1, $2, $3, $4)"
	if _, err := s.db.ExecContext(ctx, query, id, *version, createdAt, doc); err != nil {
		*version = 0
		return database.Wrap(err, "insert", table, id)
	}
	return nil
}

// update replaces the document only when the stored version still matches.
func (s *Store) update(ctx context.Context, table, id string, version *int64, rec any) error {
	expected := *version
	*version = expected + 1
	doc, err := json.Marshal(rec)
	if err != nil {
		*version = expected
		return storage.Unavailable("update", table, err)
	}

	err = database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), table, id, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE "+table+" SET version = $1, doc = $2 WHERE id = $3 AND version = $4",
			expected+1, doc, id, expected)
		if err != nil {
			return database.Wrap(err, "update", table, id)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return database.Wrap(err, "update", table, id)
		}
		if n > 0 {
			return nil
		}

		var exists bool
		if err := tx.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM "+table+" WHERE id = $1)", id).Scan(&exists); err != nil {
			return database.Wrap(err, "update", table, id)
		}
		if !exists {
			return storage.NotFound("update", table, id)
		}
		return storage.Conflict("update", table, id)
	})
	if err != nil {
		*version = expected
		return err
	}
	return nil
}

func (s *Store) remove(ctx context.Context, table, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = $1", id)
	if err != nil {
		return database.Wrap(err, "delete", table, id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return database.Wrap(err, "delete", table, id)
	}
	if n == 0 {
		return storage.NotFound("delete", table, id)
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	return getDoc[models.Product](ctx, s.db, "get", storage.CollectionProducts,
		"SELECT doc FROM products WHERE id = $1", id)
}

func productOrder(sort storage.Sort) string {
	sort = sort.Normalize()
	dir := "ASC"
	if sort.Desc {
		dir = "DESC"
	}

	var key string
	switch sort.Field {
	case storage.SortByPrice:
		key = "(doc->>'price')::numeric"
	case storage.SortByName:
		key = `(doc->>'name') COLLATE "C"`
	default:
		key = "created_at"
	}
	return fmt.Sprintf(` ORDER BY %s %s, id COLLATE "C" %s`, key, dir, dir)
}

func (s *Store) FindProducts(ctx context.Context, q storage.ProductQuery) (*storage.Page[models.Product], error) {
	var params args
	var clauses []string
	f := q.Filter

	if f.CategorySlug != "" {
		clauses = append(clauses, "doc->>'categorySlug' = "+params.add(f.CategorySlug))
	}
	if f.InStock != nil {
		clauses = append(clauses, "(doc->>'inStock')::boolean = "+params.add(*f.InStock))
	}
	if f.Featured != nil {
		clauses = append(clauses, "(doc->>'featured')::boolean = "+params.add(*f.Featured))
	}
	if f.BestSeller != nil {
		clauses = append(clauses, "(doc->>'bestSeller')::boolean = "+params.add(*f.BestSeller))
	}
	if f.MinPrice != nil {
		clauses = append(clauses, "(doc->>'price')::numeric >= "+params.add(f.MinPrice.String())+"::numeric")
	}
	if f.MaxPrice != nil {
		clauses = append(clauses, "(doc->>'price')::numeric <= "+params.add(f.MaxPrice.String())+"::numeric")
	}
	if f.Search != "" {
		p := params.add(likePattern(f.Search))
		clauses = append(clauses, fmt.Sprintf(`(doc->>'name' ILIKE %[1]s OR doc->>'description' ILIKE %[1]s OR EXISTS (
			SELECT 1 FROM jsonb_array_elements_text(
				CASE WHEN jsonb_typeof(doc->'tags') = 'array' THEN doc->'tags' ELSE '[]'::jsonb END
			) AS tag WHERE tag ILIKE %[1]s))`, p))
	}

	where := whereClause(clauses)
	total, err := s.count(ctx, "find", storage.CollectionProducts, where, params)
	if err != nil {
		return nil, err
	}

	query := "SELECT doc FROM products" + where + productOrder(q.Sort)
	query += limitClause(&params, q.Pagination)

	products, err := queryDocs[models.Product](ctx, s.db, "find", storage.CollectionProducts, query, params...)
	if err != nil {
		return nil, err
	}
	return storage.NewPage(products, total, q.Pagination), nil
}

func limitClause(params *args, p storage.Pagination) string {
	p = p.Normalize()
	if p.Limit == 0 {
		return ""
	}
	return " LIMIT " + params.add(p.Limit) + " OFFSET " + params.add(p.Offset())
}

func (s *Store) ProductCategories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT (doc->>'category') COLLATE "C" AS category
		FROM products
		WHERE COALESCE(doc->>'category', '') <> ''
		ORDER BY category`)
	if err != nil {
		return nil, database.Wrap(err, "categories", storage.CollectionProducts, "")
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, database.Wrap(err, "categories", storage.CollectionProducts, "")
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Wrap(err, "categories", storage.CollectionProducts, "")
	}
	return categories, nil
}

func (s *Store) InsertProduct(ctx context.Context, product *models.Product) error {
	return s.insert(ctx, storage.CollectionProducts, product.ID, product.CreatedAt, &product.Version, product)
}

func (s *Store) UpdateProduct(ctx context.Context, product *models.Product) error {
	return s.update(ctx, storage.CollectionProducts, product.ID, &product.Version, product)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	return s.remove(ctx, storage.CollectionProducts, id)
}

func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return getDoc[models.Account](ctx, s.db, "get", storage.CollectionAccounts,
		"SELECT doc FROM accounts WHERE id = $1", id)
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return getDoc[models.Account](ctx, s.db, "get by email", storage.CollectionAccounts,
		"SELECT doc FROM accounts WHERE doc->>'email' = $1", email)
}

func (s *Store) InsertAccount(ctx context.Context, account *models.Account) error {
	return s.insert(ctx, storage.CollectionAccounts, account.ID, account.CreatedAt, &account.Version, account)
}

func (s *Store) UpdateAccount(ctx context.Context, account *models.Account) error {
	return s.update(ctx, storage.CollectionAccounts, account.ID, &account.Version, account)
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	return s.remove(ctx, storage.CollectionAccounts, id)
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return getDoc[models.Order](ctx, s.db, "get", storage.CollectionOrders,
		"SELECT doc FROM orders WHERE id = $1", id)
}

func (s *Store) FindOrders(ctx context.Context, q storage.OrderQuery) (*storage.Page[models.Order], error) {
	var params args
	var clauses []string
	if q.Filter.AccountID != "" {
		clauses = append(clauses, "doc->>'accountId' = "+params.add(q.Filter.AccountID))
	}
	if q.Filter.Status != "" {
		clauses = append(clauses, "doc->>'status' = "+params.add(string(q.Filter.Status)))
	}

	where := whereClause(clauses)
	total, err := s.count(ctx, "find", storage.CollectionOrders, where, params)
	if err != nil {
		return nil, err
	}

	query := "SELECT doc FROM orders" + where + ` ORDER BY created_at DESC, id COLLATE "C" DESC`
	query += limitClause(&params, q.Pagination)

	orders, err := queryDocs[models.Order](ctx, s.db, "find", storage.CollectionOrders, query, params...)
	if err != nil {
		return nil, err
	}
	return storage.NewPage(orders, total, q.Pagination), nil
}

func (s *Store) InsertOrder(ctx context.Context, order *models.Order) error {
	return s.insert(ctx, storage.CollectionOrders, order.ID, order.CreatedAt, &order.Version, order)
}

func (s *Store) UpdateOrder(ctx context.Context, order *models.Order) error {
	return s.update(ctx, storage.CollectionOrders, order.ID, &order.Version, order)
}
