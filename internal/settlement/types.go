package settlement

import (
	"context"

	"github.com/angelmondragon/betza-storefront/pkg/paystack"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const guardScope = "settlement"

// CartItem is one purchased line sent by the client at initialization.
type CartItem struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"min=1"`
	Price     decimal.Decimal `json:"price"`
}

// Metadata is attached to the transaction and read back at verification.
type Metadata struct {
	UserID    string     `json:"user_id" validate:"required"`
	CartItems []CartItem `json:"cart_items" validate:"required,min=1,dive"`
}

// InitializeInput is the initialize-payment request. Amount is in major units.
type InitializeInput struct {
	Amount      decimal.Decimal `json:"amount"`
	Email       string          `json:"email" validate:"required,email"`
	Metadata    Metadata        `json:"metadata"`
	RedirectURL string          `json:"redirect_url,omitempty" validate:"omitempty,url"`
}

// InitializeResult is the hosted checkout handle returned to the client.
type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// VerifyResult names the order recorded for a reference. Replayed is set when
// the order already existed.
type VerifyResult struct {
	OrderID  string `json:"order_id"`
	Replayed bool   `json:"-"`
}

// Provider is the payment provider API the settlement step calls.
type Provider interface {
	InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (*paystack.Authorization, error)
	VerifyTransaction(ctx context.Context, reference string) (*paystack.Transaction, error)
}

// Guard keeps two verifications of the same reference from running at once.
type Guard interface {
	Acquire(ctx context.Context, scope, id string) (bool, error)
	Release(ctx context.Context, scope, id string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
