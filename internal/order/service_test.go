package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowdestructor/storefront/internal/cart"
	"github.com/shadowdestructor/storefront/internal/catalog"
)

type mockRepository struct {
	orders     map[uuid.UUID]*Order
	store      catalog.Store
	seq        int
	summary    *AggregateSummary
	createErr  error
	updateErr  error
	lastReason string
}

func newMockRepository(store catalog.Store) *mockRepository {
	return &mockRepository{orders: make(map[uuid.UUID]*Order), store: store}
}

func (m *mockRepository) CreateOrder(ctx context.Context, o *Order, decrements []catalog.StockAdjustment) error {
	if m.createErr != nil {
		return m.createErr
	}
	if err := m.store.AdjustStock(ctx, decrements); err != nil {
		return err
	}
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *mockRepository) GetOrder(_ context.Context, id uuid.UUID) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockRepository) GetOrderByNumber(_ context.Context, number string) (*Order, error) {
	for _, o := range m.orders {
		if o.Number == number {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrOrderNotFound
}

func (m *mockRepository) ListOrders(context.Context, Query) ([]*Order, error) {
	var out []*Order
	for _, o := range m.orders {
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockRepository) UpdateStatus(_ context.Context, id uuid.UUID, status Status) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	o, ok := m.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = status
	return nil
}

func (m *mockRepository) UpdatePaymentStatus(_ context.Context, id uuid.UUID, status PaymentStatus) error {
	o, ok := m.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.PaymentStatus = status
	return nil
}

func (m *mockRepository) SetPaymentIntent(_ context.Context, id uuid.UUID, intentID string) error {
	o, ok := m.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.PaymentIntentID = &intentID
	return nil
}

func (m *mockRepository) CancelOrder(ctx context.Context, o *Order, restores []catalog.StockAdjustment, reason string) error {
	if err := m.store.AdjustStock(ctx, restores); err != nil {
		return err
	}
	m.lastReason = reason
	m.orders[o.ID].Status = StatusCancelled
	return nil
}

func (m *mockRepository) NextSequence(context.Context, time.Time) (int, error) {
	m.seq++
	return m.seq, nil
}

func (m *mockRepository) Summary(context.Context, *string) (*AggregateSummary, error) {
	if m.summary == nil {
		return &AggregateSummary{TotalRevenue: decimal.Zero}, nil
	}
	cp := *m.summary
	return &cp, nil
}

type mockCarts struct {
	cart    *cart.Cart
	cleared bool
	err     error
}

func (m *mockCarts) GetCart(context.Context, string) (*cart.Cart, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.cart, nil
}

func (m *mockCarts) ClearCart(context.Context, string) error {
	m.cleared = true
	return nil
}

type mockNotifier struct {
	confirmations []*Order
	statusChanges []Status // previous status per call
	lowStockCalls [][]catalog.Product
}

func (m *mockNotifier) OrderConfirmation(o *Order) {
	m.confirmations = append(m.confirmations, o)
}

func (m *mockNotifier) OrderStatusChanged(_ *Order, previous Status) {
	m.statusChanges = append(m.statusChanges, previous)
}

func (m *mockNotifier) LowStock(products []catalog.Product) {
	m.lowStockCalls = append(m.lowStockCalls, products)
}

func fixture(stock int) (*Service, *mockRepository, *mockCarts, *mockNotifier, uuid.UUID) {
	store := catalog.NewMemoryStore()
	productID := uuid.New()
	store.SeedProduct(catalog.Product{
		ID:                productID,
		Name:              "Widget",
		Price:             decimal.NewFromFloat(25.00),
		Stock:             stock,
		LowStockThreshold: 1,
	})

	carts := &mockCarts{
		cart: &cart.Cart{
			UserID: "user-1",
			Items: []cart.LineItem{
				{
					ID:          uuid.New(),
					ProductID:   productID,
					ProductName: "Widget",
					UnitPrice:   decimal.NewFromFloat(25.00),
					Quantity:    2,
				},
			},
		},
	}

	repo := newMockRepository(store)
	notifier := &mockNotifier{}
	svc := NewService(repo, carts, store, notifier)
	return svc, repo, carts, notifier, productID
}

func checkoutInput() CreateOrderInput {
	return CreateOrderInput{
		CartOwner:     "user-1",
		Email:         "buyer@example.com",
		PaymentMethod: "card",
		Discount:      decimal.Zero,
		ShippingAddress: Address{
			Name: "Buyer", Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US",
		},
		BillingAddress: Address{
			Name: "Buyer", Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US",
		},
	}
}

func TestCreateOrder_Success(t *testing.T) {
	svc, repo, carts, notifier, productID := fixture(10)

	o, err := svc.CreateOrder(context.Background(), checkoutInput())
	require.NoError(t, err)

	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Widget", o.Items[0].ProductName)
	assert.True(t, decimal.NewFromFloat(50.00).Equal(o.Items[0].LineTotal))

	// 50.00 subtotal, 4.00 tax, free shipping.
	assert.True(t, decimal.NewFromFloat(50.00).Equal(o.Subtotal))
	assert.True(t, decimal.NewFromFloat(4.00).Equal(o.Tax))
	assert.True(t, o.Shipping.IsZero())
	assert.True(t, decimal.NewFromFloat(54.00).Equal(o.Total))

	// Inventory decremented by the ordered quantity.
	p, err := repo.store.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	assert.Equal(t, 8, p.Stock)

	assert.True(t, carts.cleared, "cart must be cleared after checkout")
	assert.Len(t, notifier.confirmations, 1)
}

func TestCreateOrder_NumberFormat(t *testing.T) {
	svc, repo, _, _, _ := fixture(10)
	fixed := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	repo.seq = 41 // next checkout takes sequence 42

	o, err := svc.CreateOrder(context.Background(), checkoutInput())
	require.NoError(t, err)
	assert.Equal(t, "ORD2608290042", o.Number)
}

func TestCreateOrder_EmptyCart(t *testing.T) {
	svc, _, carts, _, _ := fixture(10)
	carts.cart = &cart.Cart{UserID: "user-1"}

	_, err := svc.CreateOrder(context.Background(), checkoutInput())
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCreateOrder_MissingEmail(t *testing.T) {
	svc, _, _, _, _ := fixture(10)
	input := checkoutInput()
	input.Email = ""

	_, err := svc.CreateOrder(context.Background(), input)
	var valErr *cart.ValidationError
	assert.ErrorAs(t, err, &valErr)
}

func TestCreateOrder_InsufficientStockAborts(t *testing.T) {
	svc, _, carts, notifier, _ := fixture(1) // cart wants 2

	_, err := svc.CreateOrder(context.Background(), checkoutInput())
	assert.ErrorIs(t, err, catalog.ErrInsufficientStock)
	assert.False(t, carts.cleared)
	assert.Empty(t, notifier.confirmations)
}

func TestCreateOrder_LowStockAlert(t *testing.T) {
	svc, _, _, notifier, _ := fixture(3) // 3 - 2 = 1 <= threshold 1

	_, err := svc.CreateOrder(context.Background(), checkoutInput())
	require.NoError(t, err)
	require.Len(t, notifier.lowStockCalls, 1)
	assert.Equal(t, "Widget", notifier.lowStockCalls[0][0].Name)
}

func TestUpdateStatus_LegalTransition(t *testing.T) {
	svc, _, _, notifier, _ := fixture(10)
	o, err := svc.CreateOrder(context.Background(), checkoutInput())
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(context.Background(), o.ID, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.Status)
	require.Len(t, notifier.statusChanges, 1)
	assert.Equal(t, StatusPending, notifier.statusChanges[0])
}

func TestUpdateStatus_IllegalTransitionRejected(t *testing.T) {
	svc, repo, _, _, _ := fixture(10)
	o, err := svc.CreateOrder(context.Background(), checkoutInput())
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), o.ID, StatusDelivered)
	var transErr *IllegalTransitionError
	require.ErrorAs(t, err, &transErr)
	assert.Equal(t, "PENDING", transErr.From)
	assert.Equal(t, "DELIVERED", transErr.To)

	stored, _ := repo.GetOrder(context.Background(), o.ID)
	assert.Equal(t, StatusPending, stored.Status, "status must be unchanged after a rejected transition")
}

func TestCancelOrder_RestoresInventory(t *testing.T) {
	svc, repo, _, _, productID := fixture(10)
	o, err := svc.CreateOrder(context.Background(), checkoutInput())
	require.NoError(t, err)

	p, _ := repo.store.GetProduct(context.Background(), productID)
	require.Equal(t, 8, p.Stock)

	cancelled, err := svc.CancelOrder(context.Background(), o.ID, "customer request")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	p, _ = repo.store.GetProduct(context.Background(), productID)
	assert.Equal(t, 10, p.Stock, "cancellation must restore exactly the ordered quantity")
	assert.Equal(t, "customer request", repo.lastReason)
}

func TestCancelOrder_ShippedGuard(t *testing.T) {
	svc, repo, _, _, _ := fixture(10)
	o, err := svc.CreateOrder(context.Background(), checkoutInput())
	require.NoError(t, err)
	repo.orders[o.ID].Status = StatusShipped

	_, err = svc.CancelOrder(context.Background(), o.ID, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cannot cancel shipped or delivered orders")

	stored, _ := repo.GetOrder(context.Background(), o.ID)
	assert.Equal(t, StatusShipped, stored.Status)
}

func TestCancelOrder_NotFound(t *testing.T) {
	svc, _, _, _, _ := fixture(10)
	_, err := svc.CancelOrder(context.Background(), uuid.New(), "")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestUpdatePaymentStatus_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		from    PaymentStatus
		to      PaymentStatus
		allowed bool
	}{
		{"pending to paid", PaymentPending, PaymentPaid, true},
		{"pending to failed", PaymentPending, PaymentFailed, true},
		{"paid to refunded", PaymentPaid, PaymentRefunded, true},
		{"pending to refunded", PaymentPending, PaymentRefunded, false},
		{"failed to paid", PaymentFailed, PaymentPaid, false},
		{"refunded anywhere", PaymentRefunded, PaymentPaid, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _, _, _ := fixture(10)
			o, err := svc.CreateOrder(context.Background(), checkoutInput())
			require.NoError(t, err)
			repo.orders[o.ID].PaymentStatus = tt.from

			_, err = svc.UpdatePaymentStatus(context.Background(), o.ID, tt.to)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				var transErr *IllegalTransitionError
				assert.ErrorAs(t, err, &transErr)
			}
		})
	}
}

func TestHandlePaymentEvent_SucceededConfirmsOrder(t *testing.T) {
	svc, repo, _, _, _ := fixture(10)
	o, err := svc.CreateOrder(context.Background(), checkoutInput())
	require.NoError(t, err)

	err = svc.HandlePaymentEvent(context.Background(), PaymentEvent{
		Type:    PaymentEventSucceeded,
		OrderID: o.ID,
	})
	require.NoError(t, err)

	stored, _ := repo.GetOrder(context.Background(), o.ID)
	assert.Equal(t, PaymentPaid, stored.PaymentStatus)
	assert.Equal(t, StatusConfirmed, stored.Status)
}

func TestHandlePaymentEvent_DuplicateDeliveryIsNoOp(t *testing.T) {
	svc, repo, _, _, _ := fixture(10)
	o, err := svc.CreateOrder(context.Background(), checkoutInput())
	require.NoError(t, err)

	evt := PaymentEvent{Type: PaymentEventSucceeded, OrderID: o.ID}
	require.NoError(t, svc.HandlePaymentEvent(context.Background(), evt))
	require.NoError(t, svc.HandlePaymentEvent(context.Background(), evt))

	stored, _ := repo.GetOrder(context.Background(), o.ID)
	assert.Equal(t, PaymentPaid, stored.PaymentStatus)
}

func TestHandlePaymentEvent_RedeliveryReconcilesPartialDelivery(t *testing.T) {
	svc, repo, _, _, _ := fixture(10)
	o, err := svc.CreateOrder(context.Background(), checkoutInput())
	require.NoError(t, err)

	evt := PaymentEvent{Type: PaymentEventSucceeded, OrderID: o.ID}

	// First delivery marks the payment PAID but fails before the order is
	// confirmed, so the gateway redelivers.
	repo.updateErr = errors.New("write timeout")
	require.Error(t, svc.HandlePaymentEvent(context.Background(), evt))

	stored, _ := repo.GetOrder(context.Background(), o.ID)
	require.Equal(t, PaymentPaid, stored.PaymentStatus)
	require.Equal(t, StatusPending, stored.Status)

	repo.updateErr = nil
	require.NoError(t, svc.HandlePaymentEvent(context.Background(), evt))

	stored, _ = repo.GetOrder(context.Background(), o.ID)
	assert.Equal(t, PaymentPaid, stored.PaymentStatus)
	assert.Equal(t, StatusConfirmed, stored.Status, "redelivery must finish the confirmation step")
}

func TestHandlePaymentEvent_Failed(t *testing.T) {
	svc, repo, _, _, _ := fixture(10)
	o, err := svc.CreateOrder(context.Background(), checkoutInput())
	require.NoError(t, err)

	err = svc.HandlePaymentEvent(context.Background(), PaymentEvent{
		Type:    PaymentEventFailed,
		OrderID: o.ID,
	})
	require.NoError(t, err)

	stored, _ := repo.GetOrder(context.Background(), o.ID)
	assert.Equal(t, PaymentFailed, stored.PaymentStatus)
	assert.Equal(t, StatusPending, stored.Status, "fulfillment status is untouched by a failed payment")
}

func TestSummary_AverageOrderValue(t *testing.T) {
	svc, repo, _, _, _ := fixture(10)
	repo.summary = &AggregateSummary{
		TotalOrders:     10,
		TotalRevenue:    decimal.NewFromInt(1000),
		PendingOrders:   3,
		DeliveredOrders: 7,
	}

	s, err := svc.Summary(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(s.AverageOrderValue))
}

func TestSummary_ZeroOrders(t *testing.T) {
	svc, _, _, _, _ := fixture(10)

	s, err := svc.Summary(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, s.AverageOrderValue.IsZero())
}

func TestCreateOrder_RepoErrorPropagates(t *testing.T) {
	svc, repo, _, _, _ := fixture(10)
	repo.createErr = errors.New("insert failed")

	_, err := svc.CreateOrder(context.Background(), checkoutInput())
	assert.ErrorContains(t, err, "insert failed")
}
