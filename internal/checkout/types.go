package checkout

import (
	"context"
	"time"

	"github.com/angelmondragon/betza-storefront/internal/cart"
	"github.com/angelmondragon/betza-storefront/internal/identity"
	"github.com/shopspring/decimal"
)

// State is the orchestrator's position in the payment flow.
type State string

const (
	StateIdle                     State = "idle"
	StateInitiating               State = "initiating"
	StateAwaitingExternalRedirect State = "awaiting_external_redirect"
	StateVerifying                State = "verifying"
	StateSettled                  State = "settled"
	StateFailed                   State = "failed"
)

// InFlight reports whether a session is between start and outcome.
func (s State) InFlight() bool {
	switch s {
	case StateInitiating, StateAwaitingExternalRedirect, StateVerifying:
		return true
	}
	return false
}

// SessionStatus is the lifecycle of one CheckoutSession.
type SessionStatus string

const (
	SessionPending          SessionStatus = "pending"
	SessionAwaitingCallback SessionStatus = "awaiting_callback"
	SessionVerifying        SessionStatus = "verifying"
	SessionSettled          SessionStatus = "settled"
	SessionFailed           SessionStatus = "failed"
)

// Session is one checkout attempt. CartSnapshot is a deep copy taken at start.
type Session struct {
	ID               string
	UserID           string
	PayerEmail       string
	CartSnapshot     []cart.Line
	Amount           decimal.Decimal
	Reference        string
	AuthorizationURL string
	OrderID          string
	Status           SessionStatus
	FailureReason    string
	CreatedAt        time.Time
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.CartSnapshot = append([]cart.Line(nil), s.CartSnapshot...)
	return &out
}

// StartInput carries the optional payer override for a checkout.
type StartInput struct {
	Email string `json:"email" validate:"omitempty,email"`
}

// CartItem is one line reported to the payment initialization endpoint.
type CartItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Metadata travels with the payment and is read back at settlement.
type Metadata struct {
	UserID    string     `json:"user_id"`
	CartItems []CartItem `json:"cart_items"`
}

// InitializeRequest is sent to the payment initialization endpoint. Amount is in major units.
type InitializeRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Email       string          `json:"email"`
	Metadata    Metadata        `json:"metadata"`
	RedirectURL string          `json:"redirect_url"`
}

// InitializeResult is the hosted payment page to open.
type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code,omitempty"`
	Reference        string `json:"reference"`
}

// VerifyResult carries the order created at settlement.
type VerifyResult struct {
	OrderID string `json:"order_id"`
}

// PaymentGateway reaches the payment initialization and verification endpoints.
type PaymentGateway interface {
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
}

// Browser opens the hosted payment page in an externally rendered session.
// Control comes back through Orchestrator.Resume.
type Browser interface {
	Open(ctx context.Context, authorizationURL, redirectURL string) error
}

// Navigator moves the UI to the views checkout can end on.
type Navigator interface {
	ShowOrder(ctx context.Context, orderID string)
	ShowSignIn(ctx context.Context)
}

// IdentitySource exposes the current identity; *identity.Signal satisfies it.
type IdentitySource interface {
	Current() identity.State
}

// CartStore is the part of the cart checkout reads, clears and reloads.
type CartStore interface {
	Lines() []cart.Line
	Clear(ctx context.Context) error
	Refresh(ctx context.Context) error
}
