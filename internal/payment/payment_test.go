package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCents(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		want   int64
	}{
		{"whole amount", "10.00", 1000},
		{"round up at half cent", "10.555", 1056},
		{"round down below half", "10.554", 1055},
		{"zero", "0", 0},
		{"sub-cent amount", "0.005", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, err := decimal.NewFromString(tt.amount)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Cents(amount))
		})
	}
}

func TestClient_CreateIntent(t *testing.T) {
	orderID := uuid.New()
	var gotForm map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"amount":             r.PostForm.Get("amount"),
			"currency":           r.PostForm.Get("currency"),
			"metadata[order_id]": r.PostForm.Get("metadata[order_id]"),
			"payment_method":     r.PostForm.Get("payment_method"),
			"confirm":            r.PostForm.Get("confirm"),
		}
		fmt.Fprint(w, `{"id":"pi_123","client_secret":"pi_123_secret","amount":5400,"currency":"usd","status":"requires_confirmation"}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test_123")
	intent, err := client.CreateIntent(context.Background(), CreateIntentInput{
		OrderID:  orderID,
		Amount:   decimal.NewFromFloat(54.00),
		Currency: "USD",
	})
	require.NoError(t, err)

	assert.Equal(t, "pi_123", intent.ID)
	assert.Equal(t, int64(5400), intent.AmountCents)
	assert.Equal(t, "5400", gotForm["amount"])
	assert.Equal(t, "usd", gotForm["currency"])
	assert.Equal(t, orderID.String(), gotForm["metadata[order_id]"])
	assert.Empty(t, gotForm["payment_method"], "no confirm without a payment method")
	assert.Empty(t, gotForm["confirm"])
}

func TestClient_CreateIntentConfirmsWithPaymentMethod(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "pm_card", r.PostForm.Get("payment_method"))
		assert.Equal(t, "true", r.PostForm.Get("confirm"))
		fmt.Fprint(w, `{"id":"pi_1","status":"succeeded"}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test_123")
	intent, err := client.CreateIntent(context.Background(), CreateIntentInput{
		OrderID:         uuid.New(),
		Amount:          decimal.NewFromInt(10),
		Currency:        "usd",
		PaymentMethodID: "pm_card",
	})
	require.NoError(t, err)
	assert.Equal(t, "succeeded", intent.Status)
}

func TestClient_ServerErrorSurfacesAsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test_123")
	_, err := client.CreateIntent(context.Background(), CreateIntentInput{
		OrderID:  uuid.New(),
		Amount:   decimal.NewFromInt(10),
		Currency: "usd",
	})
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestClient_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test_123")
	for i := 0; i < 6; i++ {
		_, _ = client.CreateIntent(context.Background(), CreateIntentInput{
			OrderID:  uuid.New(),
			Amount:   decimal.NewFromInt(10),
			Currency: "usd",
		})
	}
	assert.Equal(t, 5, hits, "breaker must stop calls after five consecutive failures")
}

func signBody(t *testing.T, secret string, timestamp int64, body []byte) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func TestWebhookVerifier_Valid(t *testing.T) {
	orderID := uuid.New()
	body := []byte(fmt.Sprintf(
		`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","metadata":{"order_id":"%s"}}}}`,
		orderID,
	))

	fixed := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	v := NewWebhookVerifier("whsec_test")
	v.now = func() time.Time { return fixed }

	event, err := v.Verify(body, signBody(t, "whsec_test", fixed.Unix(), body))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, "payment_intent.succeeded", event.Type)
	assert.Equal(t, "pi_1", event.IntentID)
	assert.Equal(t, orderID, event.OrderID)
}

func TestWebhookVerifier_WrongSecret(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	fixed := time.Now()

	v := NewWebhookVerifier("whsec_real")
	_, err := v.Verify(body, signBody(t, "whsec_forged", fixed.Unix(), body))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestWebhookVerifier_TamperedBody(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	header := signBody(t, "whsec_test", time.Now().Unix(), body)

	v := NewWebhookVerifier("whsec_test")
	_, err := v.Verify([]byte(`{"id":"evt_2","type":"payment_intent.succeeded"}`), header)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestWebhookVerifier_StaleTimestamp(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	stale := time.Now().Add(-10 * time.Minute)

	v := NewWebhookVerifier("whsec_test")
	_, err := v.Verify(body, signBody(t, "whsec_test", stale.Unix(), body))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestWebhookVerifier_MalformedHeader(t *testing.T) {
	v := NewWebhookVerifier("whsec_test")
	_, err := v.Verify([]byte(`{}`), "not-a-signature-header")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
