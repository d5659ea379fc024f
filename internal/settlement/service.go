package settlement

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/betza-storefront/internal/cart"
	"github.com/angelmondragon/betza-storefront/internal/notifications"
	"github.com/angelmondragon/betza-storefront/internal/orders"
	pkgcheckout "github.com/angelmondragon/betza-storefront/pkg/checkout"
	"github.com/angelmondragon/betza-storefront/pkg/config"
	"github.com/angelmondragon/betza-storefront/pkg/db"
	"github.com/angelmondragon/betza-storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/betza-storefront/pkg/errors"
	"github.com/angelmondragon/betza-storefront/pkg/logger"
	"github.com/angelmondragon/betza-storefront/pkg/metrics"
	"github.com/angelmondragon/betza-storefront/pkg/money"
	"github.com/angelmondragon/betza-storefront/pkg/paystack"
	"github.com/angelmondragon/betza-storefront/pkg/validation"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	orderConfirmedMessage     = "Your order has been confirmed."
	referenceUniqueConstraint = "orders_payment_reference_key"
)

// Service initializes payments and turns verified payments into orders.
type Service interface {
	Initialize(ctx context.Context, input InitializeInput) (*InitializeResult, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
}

// ServiceParams groups the dependencies of the settlement service.
type ServiceParams struct {
	Tx       txRunner
	Orders   orders.Repository
	Carts    *cart.Repository
	Provider Provider
	Guard    Guard
	Notifier notifications.Sink
	Logger   *logger.Logger
	Metrics  *metrics.SettlementMetrics
	Checkout config.CheckoutConfig
	Now      func() time.Time
}

type service struct {
	tx       txRunner
	orders   orders.Repository
	carts    *cart.Repository
	provider Provider
	guard    Guard
	notifier notifications.Sink
	logg     *logger.Logger
	metrics  *metrics.SettlementMetrics
	redirect string
	now      func() time.Time
}

// NewService builds the settlement service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Tx == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tx runner required")
	case params.Orders == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "orders repository required")
	case params.Carts == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart repository required")
	case params.Provider == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment provider required")
	case params.Guard == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "settlement guard required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger required")
	}
	notifier := params.Notifier
	if notifier == nil {
		notifier = notifications.Discard
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		tx:       params.Tx,
		orders:   params.Orders,
		carts:    params.Carts,
		provider: params.Provider,
		guard:    params.Guard,
		notifier: notifier,
		logg:     params.Logger,
		metrics:  params.Metrics,
		redirect: strings.TrimSpace(params.Checkout.RedirectURL),
		now:      now,
	}, nil
}

// Initialize converts the major-unit amount to minor units and opens a
// transaction with the provider.
func (s *service) Initialize(ctx context.Context, input InitializeInput) (*InitializeResult, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}

	lines := make([]pkgcheckout.LineInput, 0, len(input.Metadata.CartItems))
	items := make([]paystack.CartItem, 0, len(input.Metadata.CartItems))
	for _, item := range input.Metadata.CartItems {
		lines = append(lines, pkgcheckout.LineInput{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price})
		items = append(items, paystack.CartItem{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price})
	}
	expected, err := pkgcheckout.Amount(lines)
	if err != nil {
		return nil, err
	}
	if !expected.Equal(input.Amount) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount does not match cart items").
			WithDetails(map[string]any{"amount": input.Amount.String(), "cart_total": expected.String()})
	}

	minor, err := money.ToMinorUnits(input.Amount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount")
	}

	callback := strings.TrimSpace(input.RedirectURL)
	if callback == "" {
		callback = s.redirect
	}

	ctx = s.logg.WithUserID(ctx, input.Metadata.UserID)
	started := s.now()
	auth, err := s.provider.InitializeTransaction(ctx, paystack.InitializeRequest{
		AmountMinor: minor,
		Email:       strings.TrimSpace(input.Email),
		CallbackURL: callback,
		Metadata: paystack.Metadata{
			UserID:            input.Metadata.UserID,
			CartItems:         items,
			CustomRedirectURL: callback,
		},
	})
	s.metrics.ObserveGateway("initialize", s.now().Sub(started), err)
	if err != nil {
		s.logg.Error(ctx, "payment initialization failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentInitialization, err, "initialize transaction")
	}

	s.logg.Info(s.logg.WithReference(ctx, auth.Reference), "payment initialized")
	return &InitializeResult{
		AuthorizationURL: auth.AuthorizationURL,
		AccessCode:       auth.AccessCode,
		Reference:        auth.Reference,
	}, nil
}

// Verify settles reference exactly once. Repeated calls return the order
// created by the first successful call.
func (s *service) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	ctx = s.logg.WithReference(ctx, reference)

	if res, err := s.existing(ctx, reference); res != nil || err != nil {
		return res, err
	}

	acquired, err := s.guard.Acquire(ctx, guardScope, reference)
	if err != nil {
		s.metrics.IncSettlement(metrics.SettlementErrored)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire settlement guard")
	}
	if !acquired {
		s.metrics.IncSettlement(metrics.SettlementConflict)
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "settlement already in progress for this reference")
	}
	defer func() {
		if err := s.guard.Release(context.WithoutCancel(ctx), guardScope, reference); err != nil {
			s.logg.Warn(ctx, "release settlement guard: "+err.Error())
		}
	}()

	if res, err := s.existing(ctx, reference); res != nil || err != nil {
		return res, err
	}

	started := s.now()
	tx, err := s.provider.VerifyTransaction(ctx, reference)
	s.metrics.ObserveGateway("verify", s.now().Sub(started), err)
	if err != nil {
		if errors.Is(err, paystack.ErrTransactionNotSuccessful) {
			s.metrics.IncSettlement(metrics.SettlementRejected)
			s.logg.Warn(ctx, "payment not successful: "+err.Error())
			return nil, pkgerrors.Wrap(pkgerrors.CodePaymentVerification, err, "payment not successful")
		}
		s.metrics.IncSettlement(metrics.SettlementErrored)
		s.logg.Error(ctx, "payment verification failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentVerification, err, "verify transaction")
	}

	userID := strings.TrimSpace(tx.Metadata.UserID)
	if userID == "" {
		s.metrics.IncSettlement(metrics.SettlementRejected)
		return nil, pkgerrors.New(pkgerrors.CodePaymentVerification, "transaction metadata has no user")
	}
	ctx = s.logg.WithUserID(ctx, userID)

	order := buildOrder(uuid.NewString(), userID, reference, tx)
	err = s.tx.WithTx(ctx, func(dbtx *gorm.DB) error {
		if err := s.orders.WithTx(dbtx).Create(ctx, order); err != nil {
			return err
		}
		return s.carts.WithTx(dbtx).DeleteAll(ctx, userID)
	})
	if err != nil {
		if db.IsUniqueViolation(err, referenceUniqueConstraint) {
			if res, lookupErr := s.existing(ctx, reference); res != nil || lookupErr != nil {
				return res, lookupErr
			}
		}
		s.metrics.IncSettlement(metrics.SettlementErrored)
		s.logg.Error(ctx, "order creation failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
	}

	s.metrics.IncSettlement(metrics.SettlementCreated)
	s.logg.Info(s.logg.WithField(ctx, "order_id", order.ID), "order created from payment")
	s.notifier.Notify(ctx, notifications.Success(orderConfirmedMessage).
		ForUser(userID).
		With("order_id", order.ID).
		With("reference", reference))
	return &VerifyResult{OrderID: order.ID}, nil
}

// existing returns the order already recorded for reference, or nil.
func (s *service) existing(ctx context.Context, reference string) (*VerifyResult, error) {
	order, err := s.orders.FindByPaymentReference(ctx, reference)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		s.metrics.IncSettlement(metrics.SettlementErrored)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order by reference")
	}
	s.metrics.IncSettlement(metrics.SettlementReplayed)
	s.logg.Info(s.logg.WithField(ctx, "order_id", order.ID), "payment already settled")
	return &VerifyResult{OrderID: order.ID, Replayed: true}, nil
}

func buildOrder(id, userID, reference string, tx *paystack.Transaction) *models.Order {
	items := make([]models.OrderItem, 0, len(tx.Metadata.CartItems))
	for _, item := range tx.Metadata.CartItems {
		if strings.TrimSpace(item.ProductID) == "" || item.Quantity < 1 {
			continue
		}
		items = append(items, models.OrderItem{
			OrderID:   id,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	return &models.Order{
		ID:               id,
		UserID:           userID,
		Total:            money.FromMinorUnits(tx.Amount),
		Status:           models.OrderStatusPaid,
		PaymentReference: reference,
		Items:            items,
	}
}
