package flatfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar/storefront-core/internal/storage"
	"github.com/safar/storefront-core/internal/storage/storagetest"
)

func newStore(t *testing.T) storage.Backend {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestBackendContract(t *testing.T) {
	storagetest.Run(t, newStore)
}

func TestReopenKeepsRecords(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := Open(dir)
	require.NoError(t, err)
	account := storagetest.Account("acc-1", "ada@example.com")
	require.NoError(t, store.InsertAccount(ctx, &account))
	product := storagetest.Products()[0]
	require.NoError(t, store.InsertProduct(ctx, &product))

	reopened, err := Open(dir)
	require.NoError(t, err)

	got, err := reopened.GetAccountByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", got.ID)
	assert.Equal(t, int64(1), got.Version)

	p, err := reopened.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.True(t, p.Price.Equal(product.Price))
}

func TestMalformedFileIsUnavailable(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orders.json"), []byte(`{"not":"an array"`), 0o644))

	_, err := Open(dir)

	assert.ErrorIs(t, err, storage.ErrUnavailable)
}

func TestRecordWithoutIDIsUnavailable(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "products.json"), []byte(`[{"name":"orphan"}]`), 0o644))

	_, err := Open(dir)

	assert.ErrorIs(t, err, storage.ErrUnavailable)
}

func TestEmptyFileIsEmptyCollection(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "accounts.json"), nil, 0o644))

	store, err := Open(dir)
	require.NoError(t, err)

	_, err = store.GetAccount(context.Background(), "acc-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFailedFlushRollsBack(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	ctx := context.Background()
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)

	product := storagetest.Products()[0]
	require.NoError(t, store.InsertProduct(ctx, &product))

	// Make the directory read-only so the temp file cannot be created.
	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { os.Chmod(dir, 0o755) })

	product.Name = "Renamed"
	err = store.UpdateProduct(ctx, &product)
	assert.ErrorIs(t, err, storage.ErrUnavailable)
	assert.Equal(t, int64(1), product.Version)

	got, err := store.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, "USB-C Cable", got.Name)
}
