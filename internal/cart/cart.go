package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Cart struct {
	ID        string     `json:"-"`
	UserID    string     `json:"user_id"`
	Items     []LineItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// LineItem is one product (optionally a specific variant) and its requested
// quantity. UnitPrice and the display names are snapshots taken when the
// item was added.
type LineItem struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   uuid.UUID       `json:"product_id"`
	VariantID   *uuid.UUID      `json:"variant_id,omitempty"`
	ProductName string          `json:"product_name"`
	VariantName string          `json:"variant_name,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	AddedAt     time.Time       `json:"added_at"`
}

// clone returns an independent copy, items included, so a snapshot handed
// to another goroutine is isolated from later mutations.
func (c *Cart) clone() *Cart {
	cp := *c
	cp.Items = append([]LineItem(nil), c.Items...)
	return &cp
}

// ItemCount is the total quantity across all line items.
func (c *Cart) ItemCount() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

func (c *Cart) findItem(id uuid.UUID) *LineItem {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return &c.Items[i]
		}
	}
	return nil
}

// findLine locates the item for a (product, variant) pair, the merge key
// for AddItem.
func (c *Cart) findLine(productID uuid.UUID, variantID *uuid.UUID) *LineItem {
	for i := range c.Items {
		item := &c.Items[i]
		if item.ProductID != productID {
			continue
		}
		if (item.VariantID == nil) != (variantID == nil) {
			continue
		}
		if item.VariantID == nil || *item.VariantID == *variantID {
			return item
		}
	}
	return nil
}

func (c *Cart) removeItem(id uuid.UUID) bool {
	for i, item := range c.Items {
		if item.ID == id {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return true
		}
	}
	return false
}
