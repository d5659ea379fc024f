package cart

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/betza-storefront/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errMissingKey = errors.New("user id and product id are required")

// Repository persists account carts in the user_carts table.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// List returns the user's rows in insertion order.
func (r *Repository) List(ctx context.Context, userID string) ([]models.UserCartLine, error) {
	var rows []models.UserCartLine
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Order("product_id ASC").
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Get loads one row; a missing row yields (nil, nil).
func (r *Repository) Get(ctx context.Context, userID, productID string) (*models.UserCartLine, error) {
	var row models.UserCartLine
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Take(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// Upsert writes the absolute quantity for (user, product).
func (r *Repository) Upsert(ctx context.Context, userID, productID string, quantity int) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(productID) == "" {
		return errMissingKey
	}
	if quantity < 1 {
		return errors.New("quantity must be at least 1")
	}
	row := models.UserCartLine{UserID: userID, ProductID: productID, Quantity: quantity}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
		}).
		Create(&row).
		Error
}

// Delete removes one row; deleting a missing row is not an error.
func (r *Repository) Delete(ctx context.Context, userID, productID string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&models.UserCartLine{}).
		Error
}

// DeleteAll empties the user's cart.
func (r *Repository) DeleteAll(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return errMissingKey
	}
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.UserCartLine{}).
		Error
}
