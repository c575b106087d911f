package memory

import (
	"context"
	"strings"
	"sync"

	domain "github.com/Dilshan221/Cakey-sub000/internal/domain"
	"github.com/Dilshan221/Cakey-sub000/internal/repositories"
)

// ProductCatalog is a fixed in-memory catalog.
type ProductCatalog struct {
	mu       sync.RWMutex
	products map[string]domain.ProductSnapshot
}

// NewProductCatalog indexes products by id.
func NewProductCatalog(products ...domain.ProductSnapshot) *ProductCatalog {
	c := &ProductCatalog{products: make(map[string]domain.ProductSnapshot, len(products))}
	for _, p := range products {
		c.products[p.ProductID] = p
	}
	return c
}

func (c *ProductCatalog) FindProduct(ctx context.Context, productID string) (domain.ProductSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.ProductSnapshot{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[strings.TrimSpace(productID)]
	if !ok {
		return domain.ProductSnapshot{}, notFound("products.get", "product %q not found", productID)
	}
	return p, nil
}

// Put adds or replaces a catalog entry.
func (c *ProductCatalog) Put(product domain.ProductSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[product.ProductID] = product
}

// Registry bundles the in-memory repositories behind repositories.Registry.
type Registry struct {
	orders   *OrderRepository
	counters *CounterRepository
	products *ProductCatalog
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry returns a registry with empty stores and the given catalog entries.
func NewRegistry(products ...domain.ProductSnapshot) *Registry {
	return &Registry{
		orders:   NewOrderRepository(),
		counters: NewCounterRepository(),
		products: NewProductCatalog(products...),
	}
}

func (r *Registry) Orders() repositories.OrderRepository     { return r.orders }
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }
func (r *Registry) Products() repositories.ProductCatalog    { return r.products }
func (r *Registry) Ping(ctx context.Context) error           { return ctx.Err() }
func (r *Registry) Close(context.Context) error              { return nil }
