package models

import "github.com/shopspring/decimal"

// OrderItem snapshots one cart line at the moment the order was settled.
type OrderItem struct {
	ID        uint            `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID   string          `gorm:"column:order_id;type:text;not null;index:order_items_order_id_idx"`
	ProductID string          `gorm:"column:product_id;type:text;not null"`
	Quantity  int             `gorm:"column:quantity;not null"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Product   *Product        `gorm:"foreignKey:ProductID;references:ID"`
}
