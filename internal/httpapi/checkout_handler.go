package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shadowdestructor/storefront/internal/order"
	"github.com/shadowdestructor/storefront/internal/payment"
)

// OrderService is the order surface the HTTP layer needs.
type OrderService interface {
	CreateOrder(ctx context.Context, input order.CreateOrderInput) (*order.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*order.Order, error)
	ListOrders(ctx context.Context, q order.Query) ([]*order.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, next order.Status) (*order.Order, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, next order.PaymentStatus) (*order.Order, error)
	CancelOrder(ctx context.Context, id uuid.UUID, reason string) (*order.Order, error)
	AttachPaymentIntent(ctx context.Context, id uuid.UUID, intentID string) error
	HandlePaymentEvent(ctx context.Context, event order.PaymentEvent) error
	Summary(ctx context.Context, userID *string) (*order.AggregateSummary, error)
}

type CheckoutHandler struct {
	orders   OrderService
	gateway  payment.Gateway
	currency string
	timeout  time.Duration
}

func NewCheckoutHandler(orders OrderService, gateway payment.Gateway, currency string, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{orders: orders, gateway: gateway, currency: currency, timeout: timeout}
}

type CheckoutRequestDTO struct {
	Email           string        `json:"email"`
	ShippingAddress order.Address `json:"shipping_address"`
	BillingAddress  order.Address `json:"billing_address"`
	PaymentMethod   string        `json:"payment_method"`
	PaymentMethodID string        `json:"payment_method_id,omitempty"`
	DiscountAmount  string        `json:"discount_amount,omitempty"`
}

type CheckoutResponseDTO struct {
	Order               *order.Order `json:"order"`
	PaymentClientSecret string       `json:"payment_client_secret,omitempty"`
}

// Checkout turns the caller's cart into an order. Card payments also open
// a payment intent whose client secret the storefront uses to collect the
// card; other methods leave payment pending for offline settlement.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	discount := decimal.Zero
	if req.DiscountAmount != "" {
		d, err := decimal.NewFromString(req.DiscountAmount)
		if err != nil || d.IsNegative() {
			respondError(w, http.StatusBadRequest, "invalid_discount", "discount_amount must be a non-negative decimal")
			return
		}
		discount = d
	}

	input := order.CreateOrderInput{
		CartOwner:       userID,
		Email:           req.Email,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		PaymentMethod:   req.PaymentMethod,
		Discount:        discount,
	}
	if authenticated := r.Header.Get("X-User-ID"); authenticated != "" {
		input.UserID = &authenticated
	}

	o, err := h.orders.CreateOrder(ctx, input)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	resp := CheckoutResponseDTO{Order: o}
	if req.PaymentMethod == "card" {
		intent, err := h.gateway.CreateIntent(ctx, payment.CreateIntentInput{
			OrderID:         o.ID,
			Amount:          o.Total,
			Currency:        h.currency,
			PaymentMethodID: req.PaymentMethodID,
		})
		if err != nil {
			// The order stands; payment can be retried against it.
			log.Printf("create payment intent for order %s: %v", o.Number, err)
			handleDomainError(w, err)
			return
		}
		if err := h.orders.AttachPaymentIntent(ctx, o.ID, intent.ID); err != nil {
			log.Printf("attach payment intent %s to order %s: %v", intent.ID, o.Number, err)
		}
		resp.PaymentClientSecret = intent.ClientSecret
	}

	respondJSON(w, http.StatusCreated, resp)
}

type RefundRequestDTO struct {
	Reason string `json:"reason,omitempty"`
}

// Refund reverses a paid order: full refund at the gateway, payment status
// to REFUNDED, fulfillment status to REFUNDED.
func (h *CheckoutHandler) Refund(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a valid UUID")
		return
	}

	var req RefundRequestDTO
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
	}

	o, err := h.orders.GetOrder(ctx, id)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	if o.PaymentStatus != order.PaymentPaid || o.PaymentIntentID == nil {
		respondError(w, http.StatusConflict, "illegal_state", "only paid orders can be refunded")
		return
	}
	// Both local transitions must be legal before any money moves; a
	// gateway refund with no recordable state change is unrecoverable.
	if !o.PaymentStatus.CanTransitionTo(order.PaymentRefunded) || !o.Status.CanTransitionTo(order.StatusRefunded) {
		respondError(w, http.StatusConflict, "illegal_transition",
			fmt.Sprintf("order in status %s cannot be refunded", o.Status))
		return
	}

	if err := h.gateway.Refund(ctx, *o.PaymentIntentID, nil, req.Reason); err != nil {
		handleDomainError(w, err)
		return
	}

	if _, err := h.orders.UpdatePaymentStatus(ctx, id, order.PaymentRefunded); err != nil {
		handleDomainError(w, err)
		return
	}
	o, err = h.orders.UpdateStatus(ctx, id, order.StatusRefunded)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, o)
}
