package repositories

import (
	"context"
	"time"

	domain "github.com/Dilshan221/Cakey-sub000/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Counters() CounterRepository
	Products() ProductCatalog
	Ping(ctx context.Context) error
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderRepository is the durable order store. Implementations must enforce uniqueness of the
// internal id, the human code and a non-empty draft id, reporting violations as conflicts.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	// Update persists order when the stored revision equals order.Revision and returns the
	// saved record with the revision advanced by one.
	Update(ctx context.Context, order domain.Order) (domain.Order, error)
	Delete(ctx context.Context, orderID string) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByCode(ctx context.Context, code string) (domain.Order, error)
	FindByDraftID(ctx context.Context, draftID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
	Count(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (domain.OrderStats, error)
}

// CounterRepository hands out atomically incremented sequence values.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// ProductCatalog is a read-only view of the product catalog.
type ProductCatalog interface {
	FindProduct(ctx context.Context, productID string) (domain.ProductSnapshot, error)
}

// OrderListFilter narrows order listings. Results are always newest first. A zero Limit
// returns every match.
type OrderListFilter struct {
	CustomerID    string
	Status        []domain.OrderStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
