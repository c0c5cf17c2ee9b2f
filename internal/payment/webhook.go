package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// WebhookTolerance bounds how stale a signed webhook may be before it is
// rejected as a possible replay.
const WebhookTolerance = 5 * time.Minute

// WebhookEvent is the decoded gateway notification.
type WebhookEvent struct {
	ID       string
	Type     string
	IntentID string
	OrderID  uuid.UUID
}

type webhookPayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string `json:"id"`
			Metadata struct {
				OrderID string `json:"order_id"`
			} `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// WebhookVerifier checks gateway signatures and decodes event payloads.
type WebhookVerifier struct {
	secret []byte
	now    func() time.Time
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: []byte(secret), now: time.Now}
}

// Verify validates the signature header against the raw request body and
// returns the decoded event. The header carries a unix timestamp and an
// HMAC-SHA256 of "<timestamp>.<body>"; both must check out.
func (v *WebhookVerifier) Verify(body []byte, header string) (*WebhookEvent, error) {
	timestamp, signature, err := parseSignatureHeader(header)
	if err != nil {
		return nil, err
	}

	age := v.now().Sub(time.Unix(timestamp, 0))
	if age > WebhookTolerance || age < -WebhookTolerance {
		return nil, fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(signature)
	if err != nil || !hmac.Equal(expected, provided) {
		return nil, ErrInvalidSignature
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}

	event := &WebhookEvent{
		ID:       payload.ID,
		Type:     payload.Type,
		IntentID: payload.Data.Object.ID,
	}
	if raw := payload.Data.Object.Metadata.OrderID; raw != "" {
		orderID, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("webhook carries malformed order id %q: %w", raw, err)
		}
		event.OrderID = orderID
	}
	return event, nil
}

func parseSignatureHeader(header string) (timestamp int64, signature string, err error) {
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp, err = strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, "", fmt.Errorf("%w: malformed timestamp", ErrInvalidSignature)
			}
		case "v1":
			signature = value
		}
	}
	if timestamp == 0 || signature == "" {
		return 0, "", fmt.Errorf("%w: missing header fields", ErrInvalidSignature)
	}
	return timestamp, signature, nil
}
