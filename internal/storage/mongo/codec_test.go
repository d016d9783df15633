package mongo

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type priced struct {
	Price decimal.Decimal `bson:"price"`
}

func TestDecimalCodec(t *testing.T) {
	reg := newRegistry()

	raw, err := bson.MarshalWithRegistry(reg, priced{Price: decimal.RequireFromString("329.99")})
	require.NoError(t, err)

	var doc bson.M
	require.NoError(t, bson.Unmarshal(raw, &doc))
	assert.IsType(t, primitive.Decimal128{}, doc["price"])

	var back priced
	require.NoError(t, bson.UnmarshalWithRegistry(reg, raw, &back))
	assert.True(t, back.Price.Equal(decimal.RequireFromString("329.99")))
}

func TestDecimalCodecAcceptsLegacyTypes(t *testing.T) {
	reg := newRegistry()

	tests := []struct {
		name string
		doc  bson.M
		want string
	}{
		{"string", bson.M{"price": "12.30"}, "12.3"},
		{"double", bson.M{"price": 4.5}, "4.5"},
		{"int32", bson.M{"price": int32(7)}, "7"},
		{"int64", bson.M{"price": int64(8)}, "8"},
		{"null", bson.M{"price": nil}, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := bson.Marshal(tt.doc)
			require.NoError(t, err)

			var got priced
			require.NoError(t, bson.UnmarshalWithRegistry(reg, raw, &got))
			assert.True(t, got.Price.Equal(decimal.RequireFromString(tt.want)), "got %s", got.Price)
		})
	}
}
