package wishlist

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/betza-storefront/internal/products"
	"github.com/angelmondragon/betza-storefront/pkg/db/models"
	"github.com/angelmondragon/betza-storefront/pkg/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository encapsulates wishlist persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a wishlist repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// AddItem inserts a wishlist entry and ignores duplicates.
func (r *Repository) AddItem(ctx context.Context, userID, productID string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(productID) == "" {
		return gorm.ErrInvalidValue
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
			DoNothing: true,
		}).
		Create(&models.WishlistItem{UserID: userID, ProductID: productID}).
		Error
}

// RemoveItem deletes the user-product like if it exists.
func (r *Repository) RemoveItem(ctx context.Context, userID, productID string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&models.WishlistItem{}).
		Error
}

// Contains reports whether the user liked productID.
func (r *Repository) Contains(ctx context.Context, userID, productID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.WishlistItem{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Count(&count).
		Error
	return count > 0, err
}

type wishlistRow struct {
	WishlistID        uint
	WishlistCreatedAt time.Time
	models.Product
}

// ListItems returns a page of liked active products, newest like first.
func (r *Repository) ListItems(ctx context.Context, userID, cursor string, limit int) (WishlistItemsPageDTO, error) {
	normalizedLimit := pagination.NormalizeLimit(limit)
	decodedCursor, err := pagination.ParseCursor(cursor)
	if err != nil {
		return WishlistItemsPageDTO{}, err
	}

	query := r.db.WithContext(ctx).
		Table("wishlist_items AS wi").
		Select("wi.id AS wishlist_id, wi.created_at AS wishlist_created_at, p.*").
		Joins("JOIN products p ON p.id = wi.product_id").
		Where("wi.user_id = ? AND p.is_active = ?", userID, true).
		Order("wi.created_at DESC").
		Order("wi.id DESC").
		Limit(pagination.LimitWithBuffer(limit))
	if decodedCursor != nil {
		cursorID, err := strconv.ParseUint(decodedCursor.ID, 10, 64)
		if err != nil {
			return WishlistItemsPageDTO{}, err
		}
		query = query.Where("(wi.created_at < ?) OR (wi.created_at = ? AND wi.id < ?)", decodedCursor.CreatedAt, decodedCursor.CreatedAt, cursorID)
	}

	var rows []wishlistRow
	if err := query.Scan(&rows).Error; err != nil {
		return WishlistItemsPageDTO{}, err
	}

	page := WishlistItemsPageDTO{Items: make([]WishlistItemDTO, 0, len(rows))}
	if len(rows) > normalizedLimit {
		last := rows[normalizedLimit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.WishlistCreatedAt,
			ID:        strconv.FormatUint(uint64(last.WishlistID), 10),
		})
		rows = rows[:normalizedLimit]
	}
	for _, row := range rows {
		page.Items = append(page.Items, WishlistItemDTO{
			Product:   products.FromModel(row.Product),
			CreatedAt: row.WishlistCreatedAt,
		})
	}
	return page, nil
}
