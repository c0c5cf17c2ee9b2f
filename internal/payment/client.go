package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

// Client talks to a Stripe-style payment API over HTTPS. All calls run
// through a circuit breaker so a degraded gateway fails fast instead of
// holding checkout connections open.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*Intent]
}

func NewClient(baseURL, apiKey string) *Client {
	settings := gobreaker.Settings{
		Name:    "payment-gateway",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
		breaker: gobreaker.NewCircuitBreaker[*Intent](settings),
	}
}

// CreateIntent opens a payment intent for the order amount. When a payment
// method is supplied the intent is confirmed in the same call.
func (c *Client) CreateIntent(ctx context.Context, input CreateIntentInput) (*Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(Cents(input.Amount), 10))
	form.Set("currency", strings.ToLower(input.Currency))
	form.Set("metadata[order_id]", input.OrderID.String())
	if input.PaymentMethodID != "" {
		form.Set("payment_method", input.PaymentMethodID)
		form.Set("confirm", "true")
	}

	return c.post(ctx, "/v1/payment_intents", form)
}

// ConfirmIntent confirms a previously created intent.
func (c *Client) ConfirmIntent(ctx context.Context, intentID string) (*Intent, error) {
	return c.post(ctx, "/v1/payment_intents/"+intentID+"/confirm", url.Values{})
}

// Refund reverses an intent, partially when an amount is given.
func (c *Client) Refund(ctx context.Context, intentID string, amount *decimal.Decimal, reason string) error {
	form := url.Values{}
	form.Set("payment_intent", intentID)
	if amount != nil {
		form.Set("amount", strconv.FormatInt(Cents(*amount), 10))
	}
	if reason != "" {
		form.Set("reason", reason)
	}
	_, err := c.post(ctx, "/v1/refunds", form)
	return err
}

func (c *Client) post(ctx context.Context, path string, form url.Values) (*Intent, error) {
	return c.breaker.Execute(func() (*Intent, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}

		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("payment gateway rejected request: status %d: %s", resp.StatusCode, body)
		}

		var intent Intent
		if err := json.Unmarshal(body, &intent); err != nil {
			return nil, fmt.Errorf("decode gateway response: %w", err)
		}
		return &intent, nil
	})
}
