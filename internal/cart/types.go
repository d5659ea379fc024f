package cart

import (
	"context"

	"github.com/angelmondragon/betza-storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/betza-storefront/pkg/errors"
	"github.com/shopspring/decimal"
)

// Product is the catalog snapshot a line is created from.
type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	ImageRef string
}

// Line is one product in the cart. Quantity is always at least 1.
type Line struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	ImageRef  string          `json:"image_ref,omitempty"`
	Quantity  int             `json:"quantity"`
}

// Total returns price multiplied by quantity.
func (l Line) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// StaleView is attached to an error when the write was saved but the
// snapshot could not be reloaded afterwards.
type StaleView struct {
	Op string `json:"op"`
}

// IsStaleView reports whether err only means the snapshot lags a saved write.
func IsStaleView(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil {
		return false
	}
	_, ok := typed.Details().(StaleView)
	return ok
}

func lineFromProduct(p Product, qty int) Line {
	return Line{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		ImageRef:  p.ImageRef,
		Quantity:  qty,
	}
}

// Persistence stores the account cart as (user, product, quantity) rows.
// Get returns nil and no error when the row does not exist.
type Persistence interface {
	List(ctx context.Context, userID string) ([]models.UserCartLine, error)
	Get(ctx context.Context, userID, productID string) (*models.UserCartLine, error)
	Upsert(ctx context.Context, userID, productID string, quantity int) error
	Delete(ctx context.Context, userID, productID string) error
	DeleteAll(ctx context.Context, userID string) error
}

// Catalog resolves product snapshots. Unknown or retired ids are absent from the result.
type Catalog interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.Product, error)
}

func copyLines(lines []Line) []Line {
	if lines == nil {
		return []Line{}
	}
	out := make([]Line, len(lines))
	copy(out, lines)
	return out
}
