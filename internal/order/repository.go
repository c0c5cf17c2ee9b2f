package order

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shadowdestructor/storefront/internal/catalog"
)

// Query is an explicit filter specification for order listings. Nil fields
// are omitted from the generated predicate.
type Query struct {
	UserID        *string
	Status        *Status
	PaymentStatus *PaymentStatus
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	Limit         int
	Offset        int
}

type Repository interface {
	// CreateOrder persists the order header, its item snapshots, the
	// inventory decrements and the order.created outbox row in a single
	// transaction.
	CreateOrder(ctx context.Context, o *Order, decrements []catalog.StockAdjustment) error
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*Order, error)
	ListOrders(ctx context.Context, q Query) ([]*Order, error)
	// UpdateStatus persists an already-validated transition together with
	// its outbox row.
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status PaymentStatus) error
	SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID string) error
	// CancelOrder restores inventory and moves the order to CANCELLED in a
	// single transaction.
	CancelOrder(ctx context.Context, o *Order, restores []catalog.StockAdjustment, reason string) error
	// NextSequence returns the atomic per-day order number sequence,
	// starting at 1 for each day.
	NextSequence(ctx context.Context, day time.Time) (int, error)
	Summary(ctx context.Context, userID *string) (*AggregateSummary, error)
}
