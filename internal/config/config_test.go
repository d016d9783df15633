package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("BCRYPT_COST", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverMongo, cfg.Storage.Driver)
	assert.Equal(t, 12, cfg.Security.BcryptCost)
	assert.Equal(t, 5, cfg.Security.MaxLoginAttempts)
	assert.Equal(t, 2*time.Hour, cfg.Security.LockDuration)
	assert.Equal(t, "USD", cfg.Orders.DefaultCurrency)
	assert.True(t, cfg.Orders.TaxRate.IsZero())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "FlatFile")
	t.Setenv("FLATFILE_DIR", "/var/lib/storefront")
	t.Setenv("ORDER_TAX_RATE", "0.2")
	t.Setenv("LOGIN_LOCK_DURATION", "30m")
	t.Setenv("DEFAULT_CURRENCY", "eur")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverFlatFile, cfg.Storage.Driver)
	assert.Equal(t, "/var/lib/storefront", cfg.FlatFile.Dir)
	assert.True(t, cfg.Orders.TaxRate.Equal(decimal.RequireFromString("0.2")))
	assert.Equal(t, 30*time.Minute, cfg.Security.LockDuration)
	assert.Equal(t, "EUR", cfg.Orders.DefaultCurrency)
}

func TestBcryptCostClamped(t *testing.T) {
	t.Setenv("BCRYPT_COST", "4")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, MinBcryptCost, cfg.Security.BcryptCost)
}

func TestUnknownDriverRejected(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "cassandra")

	_, err := Load()

	assert.Error(t, err)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("STORAGE_CONNECT_TIMEOUT", "soon")
	t.Setenv("ORDER_SHIPPING_FLAT", "free")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Storage.ConnectTimeout)
	assert.True(t, cfg.Orders.ShippingFlat.IsZero())
}
