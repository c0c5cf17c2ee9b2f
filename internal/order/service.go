package order

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shadowdestructor/storefront/internal/cart"
	"github.com/shadowdestructor/storefront/internal/catalog"
	"github.com/shadowdestructor/storefront/internal/pricing"
)

// Carts is the slice of the cart service checkout needs.
type Carts interface {
	GetCart(ctx context.Context, userID string) (*cart.Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// Notifier receives lifecycle events. Implementations must never block the
// caller; dispatch failures are their own to log.
type Notifier interface {
	OrderConfirmation(o *Order)
	OrderStatusChanged(o *Order, previous Status)
	LowStock(products []catalog.Product)
}

type Service struct {
	repo     Repository
	carts    Carts
	catalog  catalog.Store
	notifier Notifier
	now      func() time.Time
}

func NewService(repo Repository, carts Carts, store catalog.Store, notifier Notifier) *Service {
	return &Service{
		repo:     repo,
		carts:    carts,
		catalog:  store,
		notifier: notifier,
		now:      time.Now,
	}
}

// CreateOrderInput is the checkout submission: everything not derivable
// from the cart itself.
type CreateOrderInput struct {
	CartOwner       string // session or user key holding the cart
	UserID          *string
	Email           string
	ShippingAddress Address
	BillingAddress  Address
	PaymentMethod   string
	Discount        decimal.Decimal
}

// CreateOrder turns the owner's cart into a persisted order: assigns an
// order number, snapshots the line items, decrements inventory and emits
// the confirmation notification. The notification is best-effort and never
// rolls back the order.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error) {
	if input.Email == "" {
		return nil, &cart.ValidationError{Message: "email is required"}
	}

	c, err := s.carts.GetCart(ctx, input.CartOwner)
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		return nil, ErrEmptyCart
	}

	number, err := s.nextOrderNumber(ctx)
	if err != nil {
		return nil, err
	}

	lines := make([]pricing.Line, len(c.Items))
	for i, item := range c.Items {
		lines[i] = pricing.Line{UnitPrice: item.UnitPrice, Quantity: item.Quantity}
	}
	summary := pricing.Calculate(lines, input.Discount)

	o := &Order{
		ID:              uuid.New(),
		Number:          number,
		UserID:          input.UserID,
		Email:           input.Email,
		ShippingAddress: input.ShippingAddress,
		BillingAddress:  input.BillingAddress,
		PaymentMethod:   input.PaymentMethod,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		Subtotal:        summary.Subtotal,
		Tax:             summary.Tax,
		Shipping:        summary.Shipping,
		Discount:        summary.Discount,
		Total:           summary.Total,
		CreatedAt:       s.now(),
		UpdatedAt:       s.now(),
	}

	decrements := make([]catalog.StockAdjustment, len(c.Items))
	for i, item := range c.Items {
		o.Items = append(o.Items, Item{
			ID:          uuid.New(),
			OrderID:     o.ID,
			ProductID:   item.ProductID,
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			VariantName: item.VariantName,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			LineTotal:   item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2),
		})
		decrements[i] = catalog.StockAdjustment{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Delta:     -item.Quantity,
		}
	}

	if err := s.repo.CreateOrder(ctx, o, decrements); err != nil {
		return nil, err
	}

	// The order exists; everything below is best-effort.
	if err := s.carts.ClearCart(ctx, input.CartOwner); err != nil {
		log.Printf("failed to clear cart after checkout for %s: %v", input.CartOwner, err)
	}

	s.notifier.OrderConfirmation(o)
	s.alertLowStock(ctx, o)

	return o, nil
}

// nextOrderNumber builds ORD + yymmdd + a zero-padded daily sequence. The
// sequence comes from an atomic counter, so concurrent checkouts cannot
// mint duplicate numbers.
func (s *Service) nextOrderNumber(ctx context.Context) (string, error) {
	day := s.now()
	seq, err := s.repo.NextSequence(ctx, day)
	if err != nil {
		return "", fmt.Errorf("generate order number: %w", err)
	}
	return fmt.Sprintf("ORD%s%04d", day.Format("060102"), seq), nil
}

func (s *Service) alertLowStock(ctx context.Context, o *Order) {
	ids := make([]uuid.UUID, len(o.Items))
	for i, item := range o.Items {
		ids[i] = item.ProductID
	}

	low, err := s.catalog.LowStock(ctx, ids)
	if err != nil {
		log.Printf("low stock check failed: %v", err)
		return
	}
	if len(low) > 0 {
		s.notifier.LowStock(low)
	}
}

func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.repo.GetOrder(ctx, id)
}

func (s *Service) GetOrderByNumber(ctx context.Context, number string) (*Order, error) {
	return s.repo.GetOrderByNumber(ctx, number)
}

func (s *Service) ListOrders(ctx context.Context, q Query) ([]*Order, error) {
	return s.repo.ListOrders(ctx, q)
}

// UpdateStatus applies a fulfillment transition after checking it against
// the transition table. Fires a status-change notification on success.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, next Status) (*Order, error) {
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	if !o.Status.CanTransitionTo(next) {
		return nil, &IllegalTransitionError{From: string(o.Status), To: string(next)}
	}

	if err := s.repo.UpdateStatus(ctx, id, next); err != nil {
		return nil, err
	}

	previous := o.Status
	o.Status = next
	o.UpdatedAt = s.now()

	s.notifier.OrderStatusChanged(o, previous)
	return o, nil
}

// CancelOrder restores the order's inventory and transitions it to
// CANCELLED. Orders that already shipped cannot be cancelled.
func (s *Service) CancelOrder(ctx context.Context, id uuid.UUID, reason string) (*Order, error) {
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	if o.Status == StatusShipped || o.Status == StatusDelivered {
		return nil, &IllegalStateError{Message: "Cannot cancel shipped or delivered orders"}
	}
	if !o.Status.CanTransitionTo(StatusCancelled) {
		return nil, &IllegalTransitionError{From: string(o.Status), To: string(StatusCancelled)}
	}

	restores := make([]catalog.StockAdjustment, len(o.Items))
	for i, item := range o.Items {
		restores[i] = catalog.StockAdjustment{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Delta:     item.Quantity,
		}
	}

	if err := s.repo.CancelOrder(ctx, o, restores, reason); err != nil {
		return nil, err
	}

	previous := o.Status
	o.Status = StatusCancelled
	o.UpdatedAt = s.now()

	s.notifier.OrderStatusChanged(o, previous)
	return o, nil
}

// UpdatePaymentStatus applies a payment transition after checking the
// payment transition table.
func (s *Service) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, next PaymentStatus) (*Order, error) {
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	if !o.PaymentStatus.CanTransitionTo(next) {
		return nil, &IllegalTransitionError{From: string(o.PaymentStatus), To: string(next)}
	}

	if err := s.repo.UpdatePaymentStatus(ctx, id, next); err != nil {
		return nil, err
	}

	o.PaymentStatus = next
	o.UpdatedAt = s.now()
	return o, nil
}

// AttachPaymentIntent records the gateway's intent reference on the order.
func (s *Service) AttachPaymentIntent(ctx context.Context, id uuid.UUID, intentID string) error {
	return s.repo.SetPaymentIntent(ctx, id, intentID)
}

// PaymentEvent is a gateway webhook notification, already verified and
// correlated to an order by the payment adapter.
type PaymentEvent struct {
	Type     string
	OrderID  uuid.UUID
	IntentID string
}

const (
	PaymentEventSucceeded = "payment_intent.succeeded"
	PaymentEventFailed    = "payment_intent.payment_failed"
	PaymentEventCanceled  = "payment_intent.canceled"
)

// HandlePaymentEvent reacts to a webhook-driven payment state change.
// Redelivered events that would repeat an already-applied transition are
// treated as no-ops, since gateways redeliver webhooks at-least-once.
func (s *Service) HandlePaymentEvent(ctx context.Context, event PaymentEvent) error {
	o, err := s.repo.GetOrder(ctx, event.OrderID)
	if err != nil {
		return err
	}

	switch event.Type {
	case PaymentEventSucceeded:
		// Redeliveries skip steps already applied rather than bailing out
		// wholesale: a first delivery that marked the payment PAID but
		// failed to confirm the order still gets reconciled here.
		if o.PaymentStatus != PaymentPaid {
			if _, err := s.UpdatePaymentStatus(ctx, o.ID, PaymentPaid); err != nil {
				return err
			}
		}
		if o.Status == StatusPending {
			if _, err := s.UpdateStatus(ctx, o.ID, StatusConfirmed); err != nil {
				return err
			}
		}
		return nil

	case PaymentEventFailed, PaymentEventCanceled:
		if o.PaymentStatus == PaymentFailed {
			return nil // duplicate delivery
		}
		_, err := s.UpdatePaymentStatus(ctx, o.ID, PaymentFailed)
		return err

	default:
		log.Printf("ignoring unhandled payment event type %q for order %s", event.Type, event.OrderID)
		return nil
	}
}

// Summary aggregates order counts and revenue, optionally scoped to one
// user. Average order value guards the empty case.
func (s *Service) Summary(ctx context.Context, userID *string) (*AggregateSummary, error) {
	summary, err := s.repo.Summary(ctx, userID)
	if err != nil {
		return nil, err
	}

	if summary.TotalOrders > 0 {
		summary.AverageOrderValue = summary.TotalRevenue.
			Div(decimal.NewFromInt(int64(summary.TotalOrders))).Round(2)
	} else {
		summary.AverageOrderValue = decimal.Zero
	}
	return summary, nil
}
