package firestore

import (
	"context"
	"fmt"
	"time"

	pfirestore "github.com/Dilshan221/Cakey-sub000/internal/platform/firestore"
	"github.com/Dilshan221/Cakey-sub000/internal/repositories"
)

// Registry serves every repository from a single Firestore provider.
type Registry struct {
	provider *pfirestore.Provider
	orders   *OrderRepository
	counters *CounterRepository
	products *ProductCatalog
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds the Firestore repositories. The provider dials lazily, so construction
// does not touch the network.
func NewRegistry(provider *pfirestore.Provider, clock func() time.Time) (*Registry, error) {
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: %w", err)
	}
	counters, err := NewCounterRepository(provider, clock)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: %w", err)
	}
	products, err := NewProductCatalog(provider)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: %w", err)
	}
	return &Registry{provider: provider, orders: orders, counters: counters, products: products}, nil
}

func (r *Registry) Orders() repositories.OrderRepository     { return r.orders }
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }
func (r *Registry) Products() repositories.ProductCatalog    { return r.products }

// Ping checks that Firestore answers.
func (r *Registry) Ping(ctx context.Context) error {
	return r.provider.Ping(ctx)
}

func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}
