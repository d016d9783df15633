// Package flatfile stores each collection as one JSON array on disk.
//
// Every collection is held in memory and rewritten through a temp file and
// rename after each mutation, so a crash leaves either the old or the new
// file. Writers are serialized by a mutex inside this process only. Two
// processes pointed at the same directory will overwrite each other's
// writes: run a single writer process, or put a lock service in front.
package flatfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/safar/storefront-core/internal/models"
	"github.com/safar/storefront-core/internal/storage"
)

type collection struct {
	name    string
	path    string
	records map[string]json.RawMessage
}

type Store struct {
	dir string

	mu       sync.RWMutex
	products *collection
	accounts *collection
	orders   *collection
}

var _ storage.Backend = (*Store)(nil)

// recordMeta is the part of a record the store itself inspects.
type recordMeta struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
	Email   string `json:"email"`
}

func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, storage.Unavailable("open", dir, err)
	}

	s := &Store{dir: dir}
	var err error
	if s.products, err = load(dir, storage.CollectionProducts); err != nil {
		return nil, err
	}
	if s.accounts, err = load(dir, storage.CollectionAccounts); err != nil {
		return nil, err
	}
	if s.orders, err = load(dir, storage.CollectionOrders); err != nil {
		return nil, err
	}

	// Fail at startup rather than on the first write.
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return nil, storage.Unavailable("open", dir, fmt.Errorf("directory not writable: %w", err))
	}
	probe.Close()
	os.Remove(probe.Name())

	return s, nil
}

func load(dir, name string) (*collection, error) {
	c := &collection{
		name:    name,
		path:    filepath.Join(dir, name+".json"),
		records: make(map[string]json.RawMessage),
	}

	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, storage.Unavailable("load", name, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return c, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, storage.Unavailable("load", name, fmt.Errorf("malformed file %s: %w", c.path, err))
	}
	for i, raw := range raws {
		var meta recordMeta
		if err := json.Unmarshal(raw, &meta); err != nil || meta.ID == "" {
			return nil, storage.Unavailable("load", name, fmt.Errorf("malformed record at index %d", i))
		}
		c.records[meta.ID] = raw
	}
	return c, nil
}

func (c *collection) flush() error {
	ids := make([]string, 0, len(c.records))
	for id := range c.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var buf bytes.Buffer
	buf.WriteString("[")
	for i, id := range ids {
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n")
		buf.Write(c.records[id])
	}
	buf.WriteString("\n]\n")

	tmp, err := os.CreateTemp(filepath.Dir(c.path), "."+c.name+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, c.path)
}

func (s *Store) Name() string {
	return "flatfile"
}

func (s *Store) Close(ctx context.Context) error {
	return nil
}

func decode[T any](c *collection, op, id string, raw json.RawMessage) (*T, error) {
	var rec T
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, storage.Unavailable(op, c.name, fmt.Errorf("malformed record %s: %w", id, err))
	}
	return &rec, nil
}

func get[T any](c *collection, op, id string) (*T, error) {
	raw, ok := c.records[id]
	if !ok {
		return nil, storage.NotFound(op, c.name, id)
	}
	return decode[T](c, op, id, raw)
}

func all[T any](c *collection, op string) ([]T, error) {
	out := make([]T, 0, len(c.records))
	for id, raw := range c.records {
		rec, err := decode[T](c, op, id, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// put stores raw under id and flushes, restoring the previous state if the
// file cannot be written.
func (c *collection) put(op, id string, raw json.RawMessage) error {
	prev, existed := c.records[id]
	c.records[id] = raw
	if err := c.flush(); err != nil {
		if existed {
			c.records[id] = prev
		} else {
			delete(c.records, id)
		}
		return storage.Unavailable(op, c.name, err)
	}
	return nil
}

func (c *collection) insert(op, id string, version *int64, rec any) error {
	if _, exists := c.records[id]; exists {
		return storage.Constraint(op, c.name, id, errors.New("duplicate id"))
	}

	*version = 1
	raw, err := json.Marshal(rec)
	if err != nil {
		*version = 0
		return storage.Unavailable(op, c.name, err)
	}
	if err := c.put(op, id, raw); err != nil {
		*version = 0
		return err
	}
	return nil
}

func (c *collection) update(op, id string, version *int64, rec any) error {
	raw, ok := c.records[id]
	if !ok {
		return storage.NotFound(op, c.name, id)
	}
	var meta recordMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return storage.Unavailable(op, c.name, err)
	}
	if meta.Version != *version {
		return storage.Conflict(op, c.name, id)
	}

	*version++
	encoded, err := json.Marshal(rec)
	if err != nil {
		*version--
		return storage.Unavailable(op, c.name, err)
	}
	if err := c.put(op, id, encoded); err != nil {
		*version--
		return err
	}
	return nil
}

func (c *collection) remove(op, id string) error {
	prev, ok := c.records[id]
	if !ok {
		return storage.NotFound(op, c.name, id)
	}
	delete(c.records, id)
	if err := c.flush(); err != nil {
		c.records[id] = prev
		return storage.Unavailable(op, c.name, err)
	}
	return nil
}

// emailTaken reports whether another account already uses email.
func (c *collection) emailTaken(email, exceptID string) bool {
	for id, raw := range c.records {
		if id == exceptID {
			continue
		}
		var meta recordMeta
		if json.Unmarshal(raw, &meta) == nil && meta.Email == email {
			return true
		}
	}
	return false
}

func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return get[models.Product](s.products, "get", id)
}

func (s *Store) FindProducts(ctx context.Context, q storage.ProductQuery) (*storage.Page[models.Product], error) {
	s.mu.RLock()
	products, err := all[models.Product](s.products, "find")
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	matched := products[:0]
	for i := range products {
		if q.Filter.Matches(&products[i]) {
			matched = append(matched, products[i])
		}
	}
	storage.SortProducts(matched, q.Sort)
	return storage.Paginate(matched, q.Pagination), nil
}

func (s *Store) ProductCategories(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	products, err := all[models.Product](s.products, "categories")
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	categories := []string{}
	for _, p := range products {
		if p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; !ok {
			seen[p.Category] = struct{}{}
			categories = append(categories, p.Category)
		}
	}
	sort.Strings(categories)
	return categories, nil
}

func (s *Store) InsertProduct(ctx context.Context, product *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products.insert("insert", product.ID, &product.Version, product)
}

func (s *Store) UpdateProduct(ctx context.Context, product *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products.update("update", product.ID, &product.Version, product)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products.remove("delete", id)
}

func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return get[models.Account](s.accounts, "get", id)
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, raw := range s.accounts.records {
		var meta recordMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, storage.Unavailable("get by email", s.accounts.name, err)
		}
		if meta.Email == email {
			return decode[models.Account](s.accounts, "get by email", id, raw)
		}
	}
	return nil, storage.NotFound("get by email", s.accounts.name, email)
}

func (s *Store) InsertAccount(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accounts.emailTaken(account.Email, account.ID) {
		return storage.Constraint("insert", s.accounts.name, account.ID, errors.New("email already registered"))
	}
	return s.accounts.insert("insert", account.ID, &account.Version, account)
}

func (s *Store) UpdateAccount(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accounts.emailTaken(account.Email, account.ID) {
		return storage.Constraint("update", s.accounts.name, account.ID, errors.New("email already registered"))
	}
	return s.accounts.update("update", account.ID, &account.Version, account)
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts.remove("delete", id)
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return get[models.Order](s.orders, "get", id)
}

func (s *Store) FindOrders(ctx context.Context, q storage.OrderQuery) (*storage.Page[models.Order], error) {
	s.mu.RLock()
	orders, err := all[models.Order](s.orders, "find")
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	matched := orders[:0]
	for i := range orders {
		if q.Filter.Matches(&orders[i]) {
			matched = append(matched, orders[i])
		}
	}
	storage.SortOrders(matched)
	return storage.Paginate(matched, q.Pagination), nil
}

func (s *Store) InsertOrder(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders.insert("insert", order.ID, &order.Version, order)
}

func (s *Store) UpdateOrder(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders.update("update", order.ID, &order.Version, order)
}
