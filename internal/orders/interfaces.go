package orders

import (
	"context"

	"github.com/angelmondragon/betza-storefront/pkg/db/models"
	"github.com/angelmondragon/betza-storefront/pkg/pagination"
	"gorm.io/gorm"
)

// Repository defines persistence operations for the orders tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, orderID string) (*models.Order, error)
	FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error)
	ListByUser(ctx context.Context, userID string, params pagination.Params) (*OrderList, error)
}
