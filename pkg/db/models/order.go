package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const OrderStatusPaid = "paid"

// Order is written once per settled payment reference.
type Order struct {
	ID               string          `gorm:"column:id;type:text;primaryKey"`
	UserID           string          `gorm:"column:user_id;type:text;not null;index:orders_user_id_idx"`
	Total            decimal.Decimal `gorm:"column:total;type:numeric(12,2);not null"`
	Status           string          `gorm:"column:status;not null;default:'paid'"`
	PaymentReference string          `gorm:"column:payment_reference;type:text;not null;uniqueIndex:orders_payment_reference_key"`
	Items            []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
}
