package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/shadowdestructor/storefront/internal/cart"
	"github.com/shadowdestructor/storefront/internal/catalog"
	"github.com/shadowdestructor/storefront/internal/order"
	"github.com/shadowdestructor/storefront/internal/payment"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleDomainError maps service-layer errors to HTTP status codes.
func handleDomainError(w http.ResponseWriter, err error) {
	var (
		stockErr      *cart.StockExceededError
		validationErr *cart.ValidationError
		transitionErr *order.IllegalTransitionError
		stateErr      *order.IllegalStateError
	)

	switch {
	case errors.As(err, &stockErr):
		respondError(w, http.StatusConflict, "insufficient_stock", stockErr.Error())
	case errors.As(err, &validationErr):
		respondError(w, http.StatusBadRequest, "invalid_request", validationErr.Error())
	case errors.As(err, &transitionErr):
		respondError(w, http.StatusConflict, "illegal_transition", transitionErr.Error())
	case errors.As(err, &stateErr):
		respondError(w, http.StatusConflict, "illegal_state", stateErr.Error())
	case errors.Is(err, cart.ErrCartNotFound), errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, catalog.ErrProductNotFound), errors.Is(err, catalog.ErrVariantNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, order.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", err.Error())
	case errors.Is(err, catalog.ErrInsufficientStock):
		respondError(w, http.StatusConflict, "insufficient_stock", err.Error())
	case errors.Is(err, payment.ErrGatewayUnavailable):
		respondError(w, http.StatusServiceUnavailable, "payment_unavailable", "payment gateway unavailable")
	default:
		log.Printf("internal error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
