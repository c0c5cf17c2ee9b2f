package cart

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/shadowdestructor/storefront/internal/catalog"
	"github.com/shadowdestructor/storefront/internal/pricing"
)

type Service struct {
	repo    Repository
	cache   Cache
	catalog catalog.Store
	sfg     singleflight.Group // collapses concurrent cache misses per user
}

func NewService(repo Repository, cache Cache, catalog catalog.Store) *Service {
	return &Service{
		repo:    repo,
		cache:   cache,
		catalog: catalog,
	}
}

// GetCart returns the user's cart, reading through the cache. A user with
// no stored cart gets an empty one, not an error.
func (s *Service) GetCart(ctx context.Context, userID string) (*Cart, error) {
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		cached, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			log.Printf("cache get error: %v", err) // log cache error but continue
		}

		cart, errGet := s.repo.GetCart(ctx, userID)
		if errors.Is(errGet, ErrCartNotFound) {
			return &Cart{
				UserID:    userID,
				Items:     nil,
				CreatedAt: time.Now(),
				UpdatedAt: time.Now(),
			}, nil
		}
		if errGet != nil {
			return nil, errGet
		}

		// The caller may mutate the returned cart; the fill gets its own
		// copy.
		snapshot := cart.clone()
		go func() {
			if errSet := s.cache.Set(context.Background(), userID, snapshot); errSet != nil {
				log.Printf("cache set error: %v", errSet)
			}
		}()

		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Cart), nil
}

// AddItem puts quantity units of a product (or variant) into the cart,
// merging with an existing line for the same product+variant pair. The
// requested total is checked against the stock ceiling; a violation
// rejects the whole operation and leaves the cart untouched.
func (s *Service) AddItem(ctx context.Context, userID string, productID uuid.UUID, variantID *uuid.UUID, quantity int) (*Cart, error) {
	if quantity < 1 {
		return nil, &ValidationError{Message: "quantity must be at least 1"}
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	var variant *catalog.Variant
	if variantID != nil {
		variant, err = s.catalog.GetVariant(ctx, *variantID)
		if err != nil {
			return nil, err
		}
	}

	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	ceiling := product.Stock
	unitPrice := product.Price
	variantName := ""
	if variant != nil {
		ceiling = variant.Stock
		unitPrice = variant.Price
		variantName = variant.Name
	}

	requested := quantity
	existing := cart.findLine(productID, variantID)
	if existing != nil {
		requested += existing.Quantity
	}
	if requested > ceiling {
		return nil, &StockExceededError{Available: ceiling}
	}

	if existing != nil {
		existing.Quantity = requested
	} else {
		cart.Items = append(cart.Items, LineItem{
			ID:          uuid.New(),
			ProductID:   productID,
			VariantID:   variantID,
			ProductName: product.Name,
			VariantName: variantName,
			UnitPrice:   unitPrice,
			Quantity:    quantity,
			AddedAt:     time.Now(),
		})
	}

	if err := s.repo.UpsertCart(ctx, cart); err != nil {
		log.Printf("repo upsert cart error: %v", err)
		return nil, err
	}

	s.invalidate(ctx, userID)
	return cart, nil
}

// UpdateQuantity sets an item's quantity. A quantity of zero or less
// behaves as RemoveItem. The new quantity is re-validated against the
// stock ceiling; on violation the existing quantity stands.
func (s *Service) UpdateQuantity(ctx context.Context, userID string, itemID uuid.UUID, quantity int) (*Cart, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, userID, itemID)
	}

	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	item := cart.findItem(itemID)
	if item == nil {
		return nil, ErrItemNotFound
	}

	ceiling, err := s.stockCeiling(ctx, item)
	if err != nil {
		return nil, err
	}
	if quantity > ceiling {
		return nil, &StockExceededError{Available: ceiling}
	}

	item.Quantity = quantity

	if err := s.repo.UpsertCart(ctx, cart); err != nil {
		log.Printf("repo update quantity error: %v", err)
		return nil, err
	}

	s.invalidate(ctx, userID)
	return cart, nil
}

// RemoveItem deletes a line item unconditionally.
func (s *Service) RemoveItem(ctx context.Context, userID string, itemID uuid.UUID) (*Cart, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !cart.removeItem(itemID) {
		return nil, ErrItemNotFound
	}

	if err := s.repo.UpsertCart(ctx, cart); err != nil {
		log.Printf("repo remove item error: %v", err)
		return nil, err
	}

	s.invalidate(ctx, userID)
	return cart, nil
}

// ClearCart empties the line-item list.
func (s *Service) ClearCart(ctx context.Context, userID string) error {
	err := s.repo.DeleteCart(ctx, userID)
	if err != nil && !errors.Is(err, ErrCartNotFound) {
		log.Printf("repo delete cart error: %v", err)
		return err
	}

	s.invalidate(ctx, userID)
	return nil
}

// Summary prices the current cart contents.
func (s *Service) Summary(ctx context.Context, userID string) (*pricing.Summary, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	lines := make([]pricing.Line, len(cart.Items))
	for i, item := range cart.Items {
		lines[i] = pricing.Line{UnitPrice: item.UnitPrice, Quantity: item.Quantity}
	}

	summary := pricing.Calculate(lines, decimal.Zero)
	return &summary, nil
}

func (s *Service) stockCeiling(ctx context.Context, item *LineItem) (int, error) {
	if item.VariantID != nil {
		variant, err := s.catalog.GetVariant(ctx, *item.VariantID)
		if err != nil {
			return 0, err
		}
		return variant.Stock, nil
	}

	product, err := s.catalog.GetProduct(ctx, item.ProductID)
	if err != nil {
		return 0, err
	}
	return product.Stock, nil
}

// invalidate drops the cached cart after a mutation. A failed delete only
// shortens cache freshness, so it is logged and not surfaced.
func (s *Service) invalidate(ctx context.Context, userID string) {
	if err := s.cache.Delete(ctx, userID); err != nil {
		log.Printf("cache invalidation error: %v", err)
	}
}
