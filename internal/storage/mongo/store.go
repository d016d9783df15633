// Package mongo persists the storefront collections in MongoDB. Records are
// stored under their domain id as _id; money fields round-trip through
// Decimal128.
package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/safar/storefront-core/internal/config"
	"github.com/safar/storefront-core/internal/models"
	"github.com/safar/storefront-core/internal/storage"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
	owned  bool

	products *mongo.Collection
	accounts *mongo.Collection
	orders   *mongo.Collection
}

var _ storage.Backend = (*Store)(nil)

// ClientOptions returns the options every storefront client needs,
// including the decimal codec.
func ClientOptions(uri string, timeout time.Duration) *options.ClientOptions {
	return options.Client().
		ApplyURI(uri).
		SetRegistry(newRegistry()).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)
}

// Open connects to cfg.URI and pings the primary within timeout.
func Open(ctx context.Context, cfg *config.MongoConfig, timeout time.Duration, logger *slog.Logger) (*Store, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client, err := mongo.Connect(ctx, ClientOptions(cfg.URI, timeout))
	if err != nil {
		return nil, storage.Unavailable("open", "mongo", fmt.Errorf("connect: %w", err))
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, storage.Unavailable("open", "mongo", fmt.Errorf("ping: %w", err))
	}

	s, err := New(ctx, client, cfg.Database)
	if err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	s.owned = true

	if logger != nil {
		logger.Info("mongo connected", "database", cfg.Database)
	}
	return s, nil
}

// New uses an existing client and ensures the indexes exist. Close leaves
// the client connected.
func New(ctx context.Context, client *mongo.Client, database string) (*Store, error) {
	db := client.Database(database)
	s := &Store{
		client:   client,
		db:       db,
		products: db.Collection(storage.CollectionProducts),
		accounts: db.Collection(storage.CollectionAccounts),
		orders:   db.Collection(storage.CollectionOrders),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{s.accounts, mongo.IndexModel{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{s.products, mongo.IndexModel{Keys: bson.D{{Key: "categorySlug", Value: 1}}}},
		{s.products, mongo.IndexModel{Keys: bson.D{{Key: "createdAt", Value: -1}}}},
		{s.orders, mongo.IndexModel{Keys: bson.D{{Key: "accountId", Value: 1}, {Key: "createdAt", Value: -1}}}},
	}

	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateOne(ctx, idx.model); err != nil {
			return wrap(err, "create index", idx.coll.Name(), "")
		}
	}
	return nil
}

func (s *Store) Name() string {
	return "mongo"
}

func (s *Store) Close(ctx context.Context) error {
	if !s.owned {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Drop removes the whole database. Tests use it to start from empty.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

func getDoc[T any](ctx context.Context, coll *mongo.Collection, op string, filter bson.M, key string) (*T, error) {
	var rec T
	if err := coll.FindOne(ctx, filter).Decode(&rec); err != nil {
		return nil, wrap(err, op, coll.Name(), key)
	}
	return &rec, nil
}

func findPage[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, order bson.D, p storage.Pagination) (*storage.Page[T], error) {
	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, wrap(err, "find", coll.Name(), "")
	}

	p = p.Normalize()
	opts := options.Find().SetSort(order)
	if p.Limit > 0 {
		opts.SetSkip(int64(p.Offset())).SetLimit(int64(p.Limit))
	}

	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, wrap(err, "find", coll.Name(), "")
	}
	items := []T{}
	if err := cur.All(ctx, &items); err != nil {
		return nil, wrap(err, "find", coll.Name(), "")
	}
	return storage.NewPage(items, total, p), nil
}

func insert(ctx context.Context, coll *mongo.Collection, id string, version *int64, rec any) error {
	*version = 1
	if _, err := coll.InsertOne(ctx, rec); err != nil {
		*version = 0
		return wrap(err, "insert", coll.Name(), id)
	}
	return nil
}

// update replaces the document only when the stored version still matches.
func update(ctx context.Context, coll *mongo.Collection, id string, version *int64, rec any) error {
	expected := *version
	*version = expected + 1

	res, err := coll.ReplaceOne(ctx, bson.M{"_id": id, "version": expected}, rec)
	if err != nil {
		*version = expected
		return wrap(err, "update", coll.Name(), id)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	*version = expected
	n, err := coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return wrap(err, "update", coll.Name(), id)
	}
	if n == 0 {
		return storage.NotFound("update", coll.Name(), id)
	}
	return storage.Conflict("update", coll.Name(), id)
}

func remove(ctx context.Context, coll *mongo.Collection, id string) error {
	res, err := coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return wrap(err, "delete", coll.Name(), id)
	}
	if res.DeletedCount == 0 {
		return storage.NotFound("delete", coll.Name(), id)
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	return getDoc[models.Product](ctx, s.products, "get", bson.M{"_id": id}, id)
}

func productFilter(f storage.ProductFilter) bson.M {
	filter := bson.M{}
	if f.CategorySlug != "" {
		filter["categorySlug"] = f.CategorySlug
	}
	if f.InStock != nil {
		filter["inStock"] = *f.InStock
	}
	if f.Featured != nil {
		filter["featured"] = *f.Featured
	}
	if f.BestSeller != nil {
		filter["bestSeller"] = *f.BestSeller
	}
	if f.MinPrice != nil || f.MaxPrice != nil {
		price := bson.M{}
		if f.MinPrice != nil {
			price["$gte"] = *f.MinPrice
		}
		if f.MaxPrice != nil {
			price["$lte"] = *f.MaxPrice
		}
		filter["price"] = price
	}
	if f.Search != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"name": re},
			bson.M{"description": re},
			bson.M{"tags": re},
		}
	}
	return filter
}

func productSort(sort storage.Sort) bson.D {
	sort = sort.Normalize()
	dir := 1
	if sort.Desc {
		dir = -1
	}
	return bson.D{{Key: string(sort.Field), Value: dir}, {Key: "_id", Value: dir}}
}

func (s *Store) FindProducts(ctx context.Context, q storage.ProductQuery) (*storage.Page[models.Product], error) {
	return findPage[models.Product](ctx, s.products, productFilter(q.Filter), productSort(q.Sort), q.Pagination)
}

func (s *Store) ProductCategories(ctx context.Context) ([]string, error) {
	values, err := s.products.Distinct(ctx, "category", bson.M{"category": bson.M{"$nin": bson.A{"", nil}}})
	if err != nil {
		return nil, wrap(err, "categories", storage.CollectionProducts, "")
	}

	categories := make([]string, 0, len(values))
	for _, v := range values {
		if c, ok := v.(string); ok {
			categories = append(categories, c)
		}
	}
	sort.Strings(categories)
	return categories, nil
}

func (s *Store) InsertProduct(ctx context.Context, product *models.Product) error {
	return insert(ctx, s.products, product.ID, &product.Version, product)
}

func (s *Store) UpdateProduct(ctx context.Context, product *models.Product) error {
	return update(ctx, s.products, product.ID, &product.Version, product)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	return remove(ctx, s.products, id)
}

func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return getDoc[models.Account](ctx, s.accounts, "get", bson.M{"_id": id}, id)
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return getDoc[models.Account](ctx, s.accounts, "get by email", bson.M{"email": email}, email)
}

func (s *Store) InsertAccount(ctx context.Context, account *models.Account) error {
	return insert(ctx, s.accounts, account.ID, &account.Version, account)
}

func (s *Store) UpdateAccount(ctx context.Context, account *models.Account) error {
	return update(ctx, s.accounts, account.ID, &account.Version, account)
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	return remove(ctx, s.accounts, id)
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return getDoc[models.Order](ctx, s.orders, "get", bson.M{"_id": id}, id)
}

func (s *Store) FindOrders(ctx context.Context, q storage.OrderQuery) (*storage.Page[models.Order], error) {
	filter := bson.M{}
	if q.Filter.AccountID != "" {
		filter["accountId"] = q.Filter.AccountID
	}
	if q.Filter.Status != "" {
		filter["status"] = q.Filter.Status
	}
	order := bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}
	return findPage[models.Order](ctx, s.orders, filter, order, q.Pagination)
}

func (s *Store) InsertOrder(ctx context.Context, order *models.Order) error {
	return insert(ctx, s.orders, order.ID, &order.Version, order)
}

func (s *Store) UpdateOrder(ctx context.Context, order *models.Order) error {
	return update(ctx, s.orders, order.ID, &order.Version, order)
}
