package catalog

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore implements Store with in-memory storage. It backs tests and
// local development where no Postgres is available.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[uuid.UUID]*Product
	variants map[uuid.UUID]*Variant
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[uuid.UUID]*Product),
		variants: make(map[uuid.UUID]*Variant),
	}
}

// SeedProduct registers a product, replacing any previous entry.
func (s *MemoryStore) SeedProduct(p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.products[p.ID] = &cp
}

// SeedVariant registers a variant, replacing any previous entry.
func (s *MemoryStore) SeedVariant(v Variant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cv := v
	s.variants[v.ID] = &cv
}

func (s *MemoryStore) GetProduct(_ context.Context, id uuid.UUID) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetVariant(_ context.Context, id uuid.UUID) (*Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.variants[id]
	if !ok {
		return nil, ErrVariantNotFound
	}
	cv := *v
	return &cv, nil
}

func (s *MemoryStore) AdjustStock(_ context.Context, adjustments []StockAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: validate every adjustment before mutating anything.
	for _, a := range adjustments {
		if a.VariantID != nil {
			v, ok := s.variants[*a.VariantID]
			if !ok {
				return ErrVariantNotFound
			}
			if v.Stock+a.Delta < 0 {
				return ErrInsufficientStock
			}
			continue
		}
		p, ok := s.products[a.ProductID]
		if !ok {
			return ErrProductNotFound
		}
		if p.Stock+a.Delta < 0 {
			return ErrInsufficientStock
		}
	}

	// Second pass: apply.
	for _, a := range adjustments {
		if a.VariantID != nil {
			s.variants[*a.VariantID].Stock += a.Delta
		} else {
			s.products[a.ProductID].Stock += a.Delta
		}
	}
	return nil
}

func (s *MemoryStore) LowStock(_ context.Context, productIDs []uuid.UUID) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var low []Product
	for _, id := range productIDs {
		if p, ok := s.products[id]; ok && p.Stock <= p.LowStockThreshold {
			low = append(low, *p)
		}
	}
	return low, nil
}
