package httpapi

import (
	"context"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shadowdestructor/storefront/internal/order"
	"github.com/shadowdestructor/storefront/internal/payment"
)

// WebhookVerifier checks gateway signatures on raw webhook bodies.
type WebhookVerifier interface {
	Verify(body []byte, header string) (*payment.WebhookEvent, error)
}

type WebhookHandler struct {
	orders   OrderService
	verifier WebhookVerifier
	timeout  time.Duration
}

func NewWebhookHandler(orders OrderService, verifier WebhookVerifier, timeout time.Duration) *WebhookHandler {
	return &WebhookHandler{orders: orders, verifier: verifier, timeout: timeout}
}

const maxWebhookBody = 1 << 20

// HandlePaymentWebhook verifies and applies a gateway notification. The
// gateway retries on anything but 2xx, so unknown event types and orders
// we cannot correlate are acknowledged rather than retried forever.
func (h *WebhookHandler) HandlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "failed to read request body")
		return
	}

	event, err := h.verifier.Verify(body, r.Header.Get("Webhook-Signature"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_signature", "webhook signature verification failed")
		return
	}

	if event.OrderID == uuid.Nil {
		log.Printf("webhook event %s has no order correlation, acknowledging", event.ID)
		respondJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	err = h.orders.HandlePaymentEvent(ctx, order.PaymentEvent{
		Type:     event.Type,
		OrderID:  event.OrderID,
		IntentID: event.IntentID,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}
