package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	domain "github.com/Dilshan221/Cakey-sub000/internal/domain"
	"github.com/Dilshan221/Cakey-sub000/internal/repositories"
)

// OrderRepository is a mutex-guarded order store for local development and tests. It enforces the
// same uniqueness and revision rules as the Firestore repository.
type OrderRepository struct {
	mu      sync.RWMutex
	byID    map[string]domain.Order
	byCode  map[string]string
	byDraft map[string]string
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository returns an empty store.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		byID:    make(map[string]domain.Order),
		byCode:  make(map[string]string),
		byDraft: make(map[string]string),
	}
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(order.ID) == "" || strings.TrimSpace(order.Code) == "" {
		return conflict("orders.insert", "", "order id and code are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[order.ID]; ok {
		return conflict("orders.insert", repositories.ConflictOrderID, "order %s already exists", order.ID)
	}
	if _, ok := r.byCode[order.Code]; ok {
		return conflict("orders.insert", repositories.ConflictOrderCode, "order code %s already assigned", order.Code)
	}
	if order.DraftID != "" {
		if _, ok := r.byDraft[order.DraftID]; ok {
			return conflict("orders.insert", repositories.ConflictDraft, "draft %s already committed", order.DraftID)
		}
		r.byDraft[order.DraftID] = order.ID
	}
	r.byID[order.ID] = order
	r.byCode[order.Code] = order.ID
	return nil
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[order.ID]
	if !ok {
		return domain.Order{}, notFound("orders.update", "order %s not found", order.ID)
	}
	if stored.Revision != order.Revision {
		return domain.Order{}, conflict("orders.update", repositories.ConflictRevision, "order %s revision %d is stale (current %d)", order.ID, order.Revision, stored.Revision)
	}
	order.Code = stored.Code
	order.DraftID = stored.DraftID
	order.CreatedAt = stored.CreatedAt
	order.Revision = stored.Revision + 1
	r.byID[order.ID] = order
	return order, nil
}

func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[orderID]
	if !ok {
		return notFound("orders.delete", "order %s not found", orderID)
	}
	delete(r.byID, orderID)
	delete(r.byCode, stored.Code)
	if stored.DraftID != "" {
		delete(r.byDraft, stored.DraftID)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.byID[orderID]
	if !ok {
		return domain.Order{}, notFound("orders.get", "order %s not found", orderID)
	}
	return order, nil
}

func (r *OrderRepository) FindByCode(ctx context.Context, code string) (domain.Order, error) {
	return r.findByIndex(ctx, "orders.get_by_code", r.byCode, code)
}

func (r *OrderRepository) FindByDraftID(ctx context.Context, draftID string) (domain.Order, error) {
	return r.findByIndex(ctx, "orders.get_by_draft", r.byDraft, draftID)
}

func (r *OrderRepository) findByIndex(ctx context.Context, op string, index map[string]string, key string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := index[key]
	if !ok {
		return domain.Order{}, notFound(op, "%q not found", key)
	}
	return r.byID[id], nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	matches := make([]domain.Order, 0, len(r.byID))
	for _, order := range r.byID {
		if matchesFilter(order, filter) {
			matches = append(matches, order)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(matches, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.Code, a.Code)
	})
	if filter.Limit > 0 && len(matches) > filter.Limit {
		matches = matches[:filter.Limit]
	}
	return matches, nil
}

func matchesFilter(order domain.Order, filter repositories.OrderListFilter) bool {
	if filter.CustomerID != "" && order.Customer.ID != filter.CustomerID {
		return false
	}
	if len(filter.Status) > 0 && !slices.Contains(filter.Status, order.Status) {
		return false
	}
	if filter.CreatedAfter != nil && order.CreatedAt.Before(*filter.CreatedAfter) {
		return false
	}
	if filter.CreatedBefore != nil && !order.CreatedAt.Before(*filter.CreatedBefore) {
		return false
	}
	return true
}

func (r *OrderRepository) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.byID)), nil
}

func (r *OrderRepository) Stats(ctx context.Context) (domain.OrderStats, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderStats{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := domain.OrderStats{CountsByStatus: make(map[domain.OrderStatus]int64, len(domain.OrderStatuses))}
	for _, order := range r.byID {
		stats.CountsByStatus[order.Status]++
		stats.TotalOrders++
		if order.Status == domain.OrderStatusCancelled {
			continue
		}
		stats.Revenue += order.Payment.Total
		stats.RevenueOrders++
	}
	return stats, nil
}

// Seed inserts orders without uniqueness checks beyond the primary id. Intended for fixtures.
func (r *OrderRepository) Seed(orders ...domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, order := range orders {
		if order.CreatedAt.IsZero() {
			order.CreatedAt = time.Now().UTC()
		}
		r.byID[order.ID] = order
		r.byCode[order.Code] = order.ID
		if order.DraftID != "" {
			r.byDraft[order.DraftID] = order.ID
		}
	}
}
