package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/Dilshan221/Cakey-sub000/internal/domain"
	pfirestore "github.com/Dilshan221/Cakey-sub000/internal/platform/firestore"
	"github.com/Dilshan221/Cakey-sub000/internal/repositories"
)

const (
	ordersCollection      = "orders"
	orderCodesCollection  = "orderCodes"
	orderDraftsCollection = "orderDrafts"

	deliveryDateLayout = "2006-01-02"
)

type orderDocument struct {
	Code         string           `firestore:"code"`
	DraftID      string           `firestore:"draftId,omitempty"`
	Channel      string           `firestore:"channel"`
	Product      productDocument  `firestore:"product"`
	Customer     customerDocument `firestore:"customer"`
	Item         itemDocument     `firestore:"item"`
	Delivery     deliveryDocument `firestore:"delivery"`
	Payment      paymentDocument  `firestore:"payment"`
	Status       string           `firestore:"status"`
	Revision     int64            `firestore:"revision"`
	CreatedAt    time.Time        `firestore:"createdAt"`
	UpdatedAt    time.Time        `firestore:"updatedAt"`
	CancelledAt  *time.Time       `firestore:"cancelledAt,omitempty"`
	DeliveredAt  *time.Time       `firestore:"deliveredAt,omitempty"`
	CancelReason string           `firestore:"cancelReason,omitempty"`
}

type productDocument struct {
	ProductID string `firestore:"productId,omitempty"`
	Name      string `firestore:"name"`
	ImageURL  string `firestore:"imageUrl,omitempty"`
	BasePrice int64  `firestore:"basePrice"`
}

type customerDocument struct {
	ID      string `firestore:"id"`
	Name    string `firestore:"name,omitempty"`
	Phone   string `firestore:"phone"`
	Address string `firestore:"address"`
}

type itemDocument struct {
	Size          string `firestore:"size"`
	Quantity      int    `firestore:"quantity"`
	Frosting      string `firestore:"frosting"`
	Message       string `firestore:"message,omitempty"`
	Customization string `firestore:"customization,omitempty"`
}

type deliveryDocument struct {
	Date         string `firestore:"date"`
	Slot         string `firestore:"slot"`
	Instructions string `firestore:"instructions,omitempty"`
}

type paymentDocument struct {
	Method      string `firestore:"method"`
	Reference   string `firestore:"reference,omitempty"`
	UnitPrice   int64  `firestore:"unitPrice"`
	Subtotal    int64  `firestore:"subtotal"`
	Tax         int64  `firestore:"tax"`
	DeliveryFee int64  `firestore:"deliveryFee"`
	Total       int64  `firestore:"total"`
}

// claimDocument reserves a unique key (human code or draft id) for one order.
type claimDocument struct {
	OrderID   string    `firestore:"orderId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// OrderRepository stores orders in Firestore. Code and draft uniqueness are enforced with claim
// documents written in the same transaction as the order.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	codes    *pfirestore.BaseRepository[claimDocument]
	drafts   *pfirestore.BaseRepository[claimDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs the Firestore order store.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection),
		codes:    pfirestore.NewBaseRepository[claimDocument](provider, orderCodesCollection),
		drafts:   pfirestore.NewBaseRepository[claimDocument](provider, orderDraftsCollection),
	}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	const op = "orders.insert"
	if strings.TrimSpace(order.ID) == "" || strings.TrimSpace(order.Code) == "" {
		return pfirestore.NewInvalidWriteError(op, "order id and code are required")
	}
	claim := claimDocument{OrderID: order.ID, CreatedAt: order.CreatedAt.UTC()}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		codeRef, err := r.codes.DocumentRef(ctx, order.Code)
		if err != nil {
			return err
		}
		var draftRef *firestore.DocumentRef
		if order.DraftID != "" {
			if draftRef, err = r.drafts.DocumentRef(ctx, order.DraftID); err != nil {
				return err
			}
		}
		return pfirestore.CreateClaims(tx, op,
			pfirestore.Claim{Ref: codeRef, Kind: repositories.ConflictOrderCode, Key: order.Code, Data: claim},
			pfirestore.Claim{Ref: draftRef, Kind: repositories.ConflictDraft, Key: order.DraftID, Data: claim},
			pfirestore.Claim{Ref: orderRef, Kind: repositories.ConflictOrderID, Key: order.ID, Data: newOrderDocument(order)},
		)
	}, pfirestore.WithTxOp(op))
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order) (domain.Order, error) {
	var saved domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		stored, err := pfirestore.Decode[orderDocument](snapshot)
		if err != nil {
			return err
		}
		if stored.Data.Revision != order.Revision {
			return pfirestore.NewRevisionConflict("orders.update", order.ID, order.Revision, stored.Data.Revision)
		}

		doc := newOrderDocument(order)
		doc.Code = stored.Data.Code
		doc.DraftID = stored.Data.DraftID
		doc.CreatedAt = stored.Data.CreatedAt
		doc.Revision = stored.Data.Revision + 1
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		saved = doc.toDomain(order.ID)
		return nil
	}, pfirestore.WithTxOp("orders.update"))
	if err != nil {
		return domain.Order{}, err
	}
	return saved, nil
}

func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		stored, err := pfirestore.Decode[orderDocument](snapshot)
		if err != nil {
			return err
		}
		codeRef, err := r.codes.DocumentRef(ctx, stored.Data.Code)
		if err != nil {
			return err
		}
		if err := tx.Delete(ref); err != nil {
			return err
		}
		if err := tx.Delete(codeRef); err != nil {
			return err
		}
		if stored.Data.DraftID == "" {
			return nil
		}
		draftRef, err := r.drafts.DocumentRef(ctx, stored.Data.DraftID)
		if err != nil {
			return err
		}
		return tx.Delete(draftRef)
	}, pfirestore.WithTxOp("orders.delete"))
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *OrderRepository) FindByCode(ctx context.Context, code string) (domain.Order, error) {
	claim, err := r.codes.Get(ctx, code)
	if err != nil {
		return domain.Order{}, err
	}
	return r.FindByID(ctx, claim.Data.OrderID)
}

func (r *OrderRepository) FindByDraftID(ctx context.Context, draftID string) (domain.Order, error) {
	claim, err := r.drafts.Get(ctx, draftID)
	if err != nil {
		return domain.Order{}, err
	}
	return r.FindByID(ctx, claim.Data.OrderID)
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.CustomerID != "" {
			q = q.Where("customer.id", "==", filter.CustomerID)
		}
		switch len(filter.Status) {
		case 0:
		case 1:
			q = q.Where("status", "==", string(filter.Status[0]))
		default:
			statuses := make([]string, 0, len(filter.Status))
			for _, s := range filter.Status {
				statuses = append(statuses, string(s))
			}
			q = q.Where("status", "in", statuses)
		}
		if filter.CreatedAfter != nil {
			q = q.Where("createdAt", ">=", filter.CreatedAfter.UTC())
		}
		if filter.CreatedBefore != nil {
			q = q.Where("createdAt", "<", filter.CreatedBefore.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc)
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return orders, nil
}

func (r *OrderRepository) Count(ctx context.Context) (int64, error) {
	result, err := r.orders.Aggregate(ctx, func(q firestore.Query) *firestore.AggregationQuery {
		return q.NewAggregationQuery().WithCount("orders")
	})
	if err != nil {
		return 0, err
	}
	count, err := pfirestore.AggregateInt(result, "orders")
	if err != nil {
		return 0, pfirestore.WrapError("orders.count", err)
	}
	return count, nil
}

// Stats runs one count+sum aggregation per status so no order documents are transferred.
func (r *OrderRepository) Stats(ctx context.Context) (domain.OrderStats, error) {
	stats := domain.OrderStats{CountsByStatus: make(map[domain.OrderStatus]int64, len(domain.OrderStatuses))}
	for _, s := range domain.OrderStatuses {
		result, err := r.orders.Aggregate(ctx, func(q firestore.Query) *firestore.AggregationQuery {
			q = q.Where("status", "==", string(s))
			return q.NewAggregationQuery().
				WithCount("orders").
				WithSum("payment.total", "revenue")
		})
		if err != nil {
			return domain.OrderStats{}, err
		}
		count, err := pfirestore.AggregateInt(result, "orders")
		if err != nil {
			return domain.OrderStats{}, pfirestore.WrapError("orders.stats", err)
		}
		revenue, err := pfirestore.AggregateInt(result, "revenue")
		if err != nil {
			return domain.OrderStats{}, pfirestore.WrapError("orders.stats", err)
		}

		stats.CountsByStatus[s] = count
		stats.TotalOrders += count
		if s == domain.OrderStatusCancelled {
			continue
		}
		stats.Revenue += revenue
		stats.RevenueOrders += count
	}
	return stats, nil
}

func newOrderDocument(order domain.Order) orderDocument {
	return orderDocument{
		Code:    order.Code,
		DraftID: order.DraftID,
		Channel: string(order.Channel),
		Product: productDocument{
			ProductID: order.Product.ProductID,
			Name:      order.Product.Name,
			ImageURL:  order.Product.ImageURL,
			BasePrice: order.Product.BasePrice,
		},
		Customer: customerDocument{
			ID:      order.Customer.ID,
			Name:    order.Customer.Name,
			Phone:   order.Customer.Phone,
			Address: order.Customer.Address,
		},
		Item: itemDocument{
			Size:          string(order.Item.Size),
			Quantity:      order.Item.Quantity,
			Frosting:      order.Item.Frosting,
			Message:       order.Item.Message,
			Customization: order.Item.Customization,
		},
		Delivery: deliveryDocument{
			Date:         order.Delivery.Date.Format(deliveryDateLayout),
			Slot:         string(order.Delivery.Slot),
			Instructions: order.Delivery.Instructions,
		},
		Payment: paymentDocument{
			Method:      string(order.Payment.Method),
			Reference:   order.Payment.Reference,
			UnitPrice:   order.Payment.UnitPrice,
			Subtotal:    order.Payment.Subtotal,
			Tax:         order.Payment.Tax,
			DeliveryFee: order.Payment.DeliveryFee,
			Total:       order.Payment.Total,
		},
		Status:       string(order.Status),
		Revision:     order.Revision,
		CreatedAt:    order.CreatedAt.UTC(),
		UpdatedAt:    order.UpdatedAt.UTC(),
		CancelledAt:  utcPtr(order.CancelledAt),
		DeliveredAt:  utcPtr(order.DeliveredAt),
		CancelReason: order.CancelReason,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	date, _ := time.Parse(deliveryDateLayout, d.Delivery.Date)
	return domain.Order{
		ID:      id,
		Code:    d.Code,
		DraftID: d.DraftID,
		Channel: domain.OrderChannel(d.Channel),
		Product: domain.ProductSnapshot{
			ProductID: d.Product.ProductID,
			Name:      d.Product.Name,
			ImageURL:  d.Product.ImageURL,
			BasePrice: d.Product.BasePrice,
		},
		Customer: domain.Customer{
			ID:      d.Customer.ID,
			Name:    d.Customer.Name,
			Phone:   d.Customer.Phone,
			Address: d.Customer.Address,
		},
		Item: domain.OrderItem{
			Size:          domain.CakeSize(d.Item.Size),
			Quantity:      d.Item.Quantity,
			Frosting:      d.Item.Frosting,
			Message:       d.Item.Message,
			Customization: d.Item.Customization,
		},
		Delivery: domain.Delivery{
			Date:         date,
			Slot:         domain.DeliverySlot(d.Delivery.Slot),
			Instructions: d.Delivery.Instructions,
		},
		Payment: domain.OrderPayment{
			Method:      domain.PaymentMethod(d.Payment.Method),
			Reference:   d.Payment.Reference,
			UnitPrice:   d.Payment.UnitPrice,
			Subtotal:    d.Payment.Subtotal,
			Tax:         d.Payment.Tax,
			DeliveryFee: d.Payment.DeliveryFee,
			Total:       d.Payment.Total,
		},
		Status:       domain.OrderStatus(d.Status),
		Revision:     d.Revision,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
		CancelledAt:  utcPtr(d.CancelledAt),
		DeliveredAt:  utcPtr(d.DeliveredAt),
		CancelReason: d.CancelReason,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
