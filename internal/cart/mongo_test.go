package cart

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestCartDoc_BSONRoundTripPreservesPrices(t *testing.T) {
	variantID := uuid.New()
	original := &Cart{
		UserID: "user-1",
		Items: []LineItem{
			{
				ID:          uuid.New(),
				ProductID:   uuid.New(),
				ProductName: "Widget",
				UnitPrice:   decimal.RequireFromString("99.99"),
				Quantity:    1,
				AddedAt:     time.Now().UTC().Truncate(time.Millisecond),
			},
			{
				ID:          uuid.New(),
				ProductID:   uuid.New(),
				VariantID:   &variantID,
				ProductName: "Widget",
				VariantName: "Large",
				UnitPrice:   decimal.RequireFromString("125.50"),
				Quantity:    3,
				AddedAt:     time.Now().UTC().Truncate(time.Millisecond),
			},
		},
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	items, err := toLineItemDocs(original.Items)
	require.NoError(t, err)
	doc := cartDoc{
		UserID:    original.UserID,
		Items:     items,
		CreatedAt: original.CreatedAt,
		UpdatedAt: original.UpdatedAt,
	}

	raw, err := bson.Marshal(doc)
	require.NoError(t, err)

	var decoded cartDoc
	require.NoError(t, bson.Unmarshal(raw, &decoded))

	got, err := decoded.toDomain()
	require.NoError(t, err)

	require.Len(t, got.Items, 2)
	assert.True(t, original.Items[0].UnitPrice.Equal(got.Items[0].UnitPrice),
		"unit price must survive the bson round trip: before=%s after=%s",
		original.Items[0].UnitPrice, got.Items[0].UnitPrice)
	assert.True(t, original.Items[1].UnitPrice.Equal(got.Items[1].UnitPrice))
	assert.Equal(t, original.Items[0].ID, got.Items[0].ID)
	assert.Equal(t, original.Items[1].VariantID, got.Items[1].VariantID)
	assert.Equal(t, "Large", got.Items[1].VariantName)
	assert.Equal(t, 3, got.Items[1].Quantity)
}

func TestCartDoc_EncodedPriceIsDecimal128(t *testing.T) {
	items, err := toLineItemDocs([]LineItem{{
		ID:        uuid.New(),
		ProductID: uuid.New(),
		UnitPrice: decimal.RequireFromString("10.05"),
		Quantity:  1,
	}})
	require.NoError(t, err)

	raw, err := bson.Marshal(cartDoc{UserID: "user-1", Items: items})
	require.NoError(t, err)

	var generic bson.M
	require.NoError(t, bson.Unmarshal(raw, &generic))
	encoded := generic["items"].(bson.A)[0].(bson.M)["unit_price"]
	assert.NotEqual(t, bson.M{}, encoded, "price must not flatten to an empty document")
	assert.Equal(t, "10.05", getDecimal128String(t, encoded))
}

func getDecimal128String(t *testing.T, v interface{}) string {
	t.Helper()
	type stringer interface{ String() string }
	s, ok := v.(stringer)
	require.True(t, ok, "unit_price encoded as %T, want Decimal128", v)
	return s.String()
}
