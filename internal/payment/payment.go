package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
)

// Intent mirrors the gateway's payment intent object, trimmed to the
// fields checkout needs.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	AmountCents  int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

// CreateIntentInput describes the charge to authorize. Amount is in major
// currency units; conversion to the gateway's integer cents happens at the
// wire boundary.
type CreateIntentInput struct {
	OrderID         uuid.UUID
	Amount          decimal.Decimal
	Currency        string
	PaymentMethodID string // when set, the intent is confirmed immediately
}

// Gateway is the payment provider surface the order flow depends on.
type Gateway interface {
	CreateIntent(ctx context.Context, input CreateIntentInput) (*Intent, error)
	ConfirmIntent(ctx context.Context, intentID string) (*Intent, error)
	// Refund reverses an intent. A nil amount refunds the full capture.
	Refund(ctx context.Context, intentID string, amount *decimal.Decimal, reason string) error
}

// Cents converts a decimal amount of major units to the gateway's integer
// minor units, rounding half away from zero. 10.555 becomes 1056.
func Cents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
