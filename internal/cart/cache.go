package cart

import (
	"context"
	"errors"
)

var ErrCacheMiss = errors.New("cart not found in cache")

type Cache interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	Set(ctx context.Context, userID string, cart *Cart) error
	Delete(ctx context.Context, userID string) error
}
