package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/onnwee/marketrank/internal/listing"
	"github.com/onnwee/marketrank/internal/ranking"
)

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development.
type InMemoryRepository struct {
	mu       sync.RWMutex
	products map[string]listing.Product
}

// NewInMemoryRepository creates a new in-memory catalog.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		products: make(map[string]listing.Product),
	}
}

// Put stores a copy of p, replacing any listing with the same id.
func (r *InMemoryRepository) Put(ctx context.Context, p *listing.Product) error {
	if err := Validate(p); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = cloneProduct(p)
	return nil
}

// GetByID returns a copy of the listing with the given id.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*listing.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	c := cloneProduct(&p)
	return &c, nil
}

// List returns copies of the listings matching q ordered by id.
func (r *InMemoryRepository) List(ctx context.Context, q Query) ([]listing.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]listing.Product, 0, len(r.products))
	for _, p := range r.products {
		if q.Window != nil {
			c, ok := p.Coordinates()
			if !ok || !q.Window.Contains(c.Lat, c.Lng) {
				continue
			}
		}
		out = append(out, cloneProduct(&p))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// CategoryAverages computes averages over the whole catalog.
func (r *InMemoryRepository) CategoryAverages(ctx context.Context) (ranking.CategoryAverages, error) {
	r.mu.RLock()
	all := make([]listing.Product, 0, len(r.products))
	for _, p := range r.products {
		all = append(all, p)
	}
	r.mu.RUnlock()

	return ranking.CategoryAveragePrices(all), nil
}
