package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_AdjustStock(t *testing.T) {
	store := NewMemoryStore()
	productID := uuid.New()
	store.SeedProduct(Product{
		ID:    productID,
		Name:  "Widget",
		Price: decimal.NewFromFloat(9.99),
		Stock: 10,
	})

	err := store.AdjustStock(context.Background(), []StockAdjustment{
		{ProductID: productID, Delta: -3},
	})
	require.NoError(t, err)

	p, err := store.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	assert.Equal(t, 7, p.Stock)
}

func TestMemoryStore_AdjustStock_InsufficientLeavesStockUnchanged(t *testing.T) {
	store := NewMemoryStore()
	first := uuid.New()
	second := uuid.New()
	store.SeedProduct(Product{ID: first, Name: "A", Stock: 10})
	store.SeedProduct(Product{ID: second, Name: "B", Stock: 1})

	err := store.AdjustStock(context.Background(), []StockAdjustment{
		{ProductID: first, Delta: -5},
		{ProductID: second, Delta: -2}, // only 1 available
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)

	// The batch is all-or-nothing: the first adjustment must not have applied.
	p, err := store.GetProduct(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, 10, p.Stock)
}

func TestMemoryStore_AdjustStock_VariantTargetsVariantStock(t *testing.T) {
	store := NewMemoryStore()
	productID := uuid.New()
	variantID := uuid.New()
	store.SeedProduct(Product{ID: productID, Name: "Shirt", Stock: 100})
	store.SeedVariant(Variant{ID: variantID, ProductID: productID, Name: "Large", Stock: 4})

	err := store.AdjustStock(context.Background(), []StockAdjustment{
		{ProductID: productID, VariantID: &variantID, Delta: -4},
	})
	require.NoError(t, err)

	v, err := store.GetVariant(context.Background(), variantID)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Stock)

	p, err := store.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	assert.Equal(t, 100, p.Stock, "product stock must be untouched when a variant is targeted")
}

func TestMemoryStore_LowStock(t *testing.T) {
	store := NewMemoryStore()
	low := uuid.New()
	ok := uuid.New()
	store.SeedProduct(Product{ID: low, Name: "Scarce", Stock: 2, LowStockThreshold: 5})
	store.SeedProduct(Product{ID: ok, Name: "Plenty", Stock: 50, LowStockThreshold: 5})

	products, err := store.LowStock(context.Background(), []uuid.UUID{low, ok})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Scarce", products[0].Name)
}

func TestMemoryStore_GetProduct_NotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.GetProduct(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrProductNotFound)
}
