package firestore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/Dilshan221/Cakey-sub000/internal/domain"
	pfirestore "github.com/Dilshan221/Cakey-sub000/internal/platform/firestore"
	"github.com/Dilshan221/Cakey-sub000/internal/repositories"
)

const productsCollection = "products"

type productCatalogDocument struct {
	Name     string `firestore:"name"`
	ImageURL string `firestore:"image"`
	Price    int64  `firestore:"price"`
	Active   *bool  `firestore:"active,omitempty"`
}

// ProductCatalog reads the products collection maintained by the catalog admin tooling.
type ProductCatalog struct {
	products *pfirestore.BaseRepository[productCatalogDocument]
}

var _ repositories.ProductCatalog = (*ProductCatalog)(nil)

// NewProductCatalog constructs a read-only catalog view.
func NewProductCatalog(provider *pfirestore.Provider) (*ProductCatalog, error) {
	if provider == nil {
		return nil, errors.New("product catalog requires firestore provider")
	}
	return &ProductCatalog{
		products: pfirestore.NewBaseRepository[productCatalogDocument](provider, productsCollection),
	}, nil
}

// FindProduct returns the current snapshot for productID. Inactive products are reported as not found.
func (c *ProductCatalog) FindProduct(ctx context.Context, productID string) (domain.ProductSnapshot, error) {
	id := strings.TrimSpace(productID)
	doc, err := c.products.Get(ctx, id)
	if err != nil {
		return domain.ProductSnapshot{}, err
	}
	if doc.Data.Active != nil && !*doc.Data.Active {
		return domain.ProductSnapshot{}, pfirestore.NewNotFoundError("products.get", "product "+id+" is inactive")
	}
	return domain.ProductSnapshot{
		ProductID: doc.ID,
		Name:      strings.TrimSpace(doc.Data.Name),
		ImageURL:  strings.TrimSpace(doc.Data.ImageURL),
		BasePrice: doc.Data.Price,
	}, nil
}
