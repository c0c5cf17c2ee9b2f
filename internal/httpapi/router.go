package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Cart     *CartHandler
	Checkout *CheckoutHandler
	Orders   *OrdersHandler
	Webhooks *WebhookHandler
}

// NewRouter wires the full API surface with the shared middleware stack.
// The payment webhook route skips auth: the gateway authenticates with its
// signature, not a user identity.
func NewRouter(h Handlers, requestTimeout time.Duration) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(MockAuthMiddleware)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.Cart.GetCart)
				r.Delete("/", h.Cart.ClearCart)
				r.Get("/summary", h.Cart.Summary)
				r.Post("/items", h.Cart.AddItem)
				r.Put("/items/{item_id}", h.Cart.UpdateQuantity)
				r.Delete("/items/{item_id}", h.Cart.RemoveItem)
			})

			r.Post("/checkout", h.Checkout.Checkout)

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", h.Orders.ListOrders)
				r.Get("/summary", h.Orders.Summary)
				r.Get("/{order_ref}", h.Orders.GetOrder)
				r.Patch("/{order_id}/status", h.Orders.UpdateStatus)
				r.Post("/{order_id}/cancel", h.Orders.CancelOrder)
				r.Post("/{order_id}/refund", h.Checkout.Refund)
			})
		})

		r.Post("/webhooks/payment", h.Webhooks.HandlePaymentWebhook)
	})

	return r
}
