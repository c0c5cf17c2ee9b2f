package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrVariantNotFound   = errors.New("variant not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

type Product struct {
	ID                uuid.UUID       `json:"id"`
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	Stock             int             `json:"stock"`
	LowStockThreshold int             `json:"low_stock_threshold"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type Variant struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
}

// StockAdjustment is one relative inventory change, negative for a
// decrement. A nil VariantID targets the product's own stock.
type StockAdjustment struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Delta     int
}

// Store is the catalog slice the commerce core needs: price/stock lookups
// and relative inventory adjustment.
type Store interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
	GetVariant(ctx context.Context, id uuid.UUID) (*Variant, error)
	// AdjustStock applies all adjustments atomically. A decrement that
	// would take stock below zero fails the whole batch with
	// ErrInsufficientStock.
	AdjustStock(ctx context.Context, adjustments []StockAdjustment) error
	// LowStock returns products at or below their low-stock threshold
	// among the given ids.
	LowStock(ctx context.Context, productIDs []uuid.UUID) ([]Product, error)
}
