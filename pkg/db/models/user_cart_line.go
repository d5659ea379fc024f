package models

import "time"

// UserCartLine is one persisted (user, product, quantity) row of a remote cart.
// Rows never carry a quantity below 1; a line reaching zero is deleted instead.
type UserCartLine struct {
	UserID    string    `gorm:"column:user_id;type:text;primaryKey"`
	ProductID string    `gorm:"column:product_id;type:text;primaryKey"`
	Quantity  int       `gorm:"column:quantity;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName keeps the table name used by the hosted backend.
func (UserCartLine) TableName() string {
	return "user_carts"
}
