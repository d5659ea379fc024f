package orders

import (
	"time"

	"github.com/angelmondragon/betza-storefront/pkg/db/models"
	"github.com/angelmondragon/betza-storefront/pkg/money"
)

// OrderItemDTO is one purchased line as shown in order history.
type OrderItemDTO struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
	LineTotal string `json:"line_total"`
}

// OrderDTO is the history view of an order. Amounts are major-unit strings.
type OrderDTO struct {
	ID               string         `json:"id"`
	Total            string         `json:"total"`
	Status           string         `json:"status"`
	PaymentReference string         `json:"payment_reference"`
	TotalItems       int            `json:"total_items"`
	CreatedAt        time.Time      `json:"created_at"`
	Items            []OrderItemDTO `json:"items"`
}

// OrderList wraps one page of orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

func FromModel(order *models.Order) OrderDTO {
	dto := OrderDTO{
		ID:               order.ID,
		Total:            money.Format(order.Total),
		Status:           order.Status,
		PaymentReference: order.PaymentReference,
		CreatedAt:        order.CreatedAt,
		Items:            make([]OrderItemDTO, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		line := item.Price
		if total, err := money.LineTotal(item.Price, item.Quantity); err == nil {
			line = total
		}
		out := OrderItemDTO{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     money.Format(item.Price),
			LineTotal: money.Format(line),
		}
		if item.Product != nil {
			out.Name = item.Product.Name
			out.ImageURL = item.Product.ImageURL
		}
		dto.TotalItems += item.Quantity
		dto.Items = append(dto.Items, out)
	}
	return dto
}
