// Package session assembles the per-session storefront state: the identity
// signal, the cart store and its merge reconciler, and the checkout flow.
package session

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/angelmondragon/betza-storefront/internal/cart"
	"github.com/angelmondragon/betza-storefront/internal/checkout"
	"github.com/angelmondragon/betza-storefront/internal/identity"
	"github.com/angelmondragon/betza-storefront/internal/notifications"
	"github.com/angelmondragon/betza-storefront/internal/payments"
	"github.com/angelmondragon/betza-storefront/internal/wishlist"
	"github.com/angelmondragon/betza-storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/betza-storefront/pkg/errors"
	"github.com/angelmondragon/betza-storefront/pkg/logger"
	"github.com/angelmondragon/betza-storefront/pkg/metrics"
	"github.com/google/uuid"
)

// Params groups everything a Session is built from. Gateway defaults to a
// payments.Client against Checkout.FunctionsBaseURL that sends the session's
// access token.
type Params struct {
	Persistence cart.Persistence
	Catalog     cart.Catalog
	Resolver    *identity.TokenResolver
	Gateway     checkout.PaymentGateway
	Browser     checkout.Browser
	Navigator   checkout.Navigator
	Wishlist    wishlist.Service
	Notifier    notifications.Sink
	Logger      *logger.Logger
	Checkout    config.CheckoutConfig
	HTTPClient  *http.Client

	CartMetrics     *metrics.CartMetrics
	CheckoutMetrics *metrics.CheckoutMetrics
}

// Session is one running storefront session. Every collaborator is owned by
// the session; nothing is shared between sessions.
type Session struct {
	ID         string
	Identity   *identity.Signal
	Cart       *cart.Store
	Reconciler *cart.Reconciler
	Checkout   *checkout.Orchestrator

	resolver *identity.TokenResolver
	wishlist wishlist.Service
	logg     *logger.Logger

	mu    sync.RWMutex
	token string

	unsubscribe func()
}

func New(params Params) (*Session, error) {
	if params.Resolver == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "token resolver is required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}

	s := &Session{
		ID:       uuid.NewString(),
		Identity: identity.NewSignal(identity.Anonymous()),
		resolver: params.Resolver,
		wishlist: params.Wishlist,
	}
	s.logg = params.Logger

	store, err := cart.NewStore(cart.StoreParams{
		Persistence: params.Persistence,
		Catalog:     params.Catalog,
		Notifier:    params.Notifier,
		Logger:      params.Logger,
		Metrics:     params.CartMetrics,
	})
	if err != nil {
		return nil, err
	}
	reconciler, err := cart.NewReconciler(cart.ReconcilerParams{
		Store:    store,
		Notifier: params.Notifier,
		Logger:   params.Logger,
		Metrics:  params.CartMetrics,
	})
	if err != nil {
		return nil, err
	}

	gateway := params.Gateway
	if gateway == nil {
		client, err := payments.NewClient(payments.ClientParams{
			Config:     params.Checkout,
			Logger:     params.Logger,
			Tokens:     s.accessToken,
			HTTPClient: params.HTTPClient,
		})
		if err != nil {
			return nil, err
		}
		gateway = client
	}

	orchestrator, err := checkout.NewOrchestrator(checkout.OrchestratorParams{
		Gateway:     gateway,
		Browser:     params.Browser,
		Navigator:   params.Navigator,
		Identity:    s.Identity,
		Cart:        store,
		Notifier:    params.Notifier,
		Logger:      params.Logger,
		Metrics:     params.CheckoutMetrics,
		RedirectURL: params.Checkout.RedirectURL,
	})
	if err != nil {
		return nil, err
	}

	s.Cart = store
	s.Reconciler = reconciler
	s.Checkout = orchestrator
	s.unsubscribe = s.Identity.Subscribe(reconciler.OnIdentityChange)
	return s, nil
}

// SignIn resolves the access token and publishes the resulting identity.
// The cart merge runs before SignIn returns.
func (s *Session) SignIn(ctx context.Context, accessToken string) (identity.Change, error) {
	state, err := s.resolver.Resolve(accessToken)
	if err != nil {
		return identity.Change{}, err
	}
	if !state.IsAuthenticated() {
		return identity.Change{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "access token is required")
	}
	s.setToken(accessToken)
	ctx = s.logg.WithFields(ctx, map[string]any{"session_id": s.ID})
	return s.Identity.Set(ctx, state), nil
}

// SignOut drops the access token and returns the session to anonymous.
func (s *Session) SignOut(ctx context.Context) identity.Change {
	s.setToken("")
	ctx = s.logg.WithFields(ctx, map[string]any{"session_id": s.ID})
	return s.Identity.Set(ctx, identity.Anonymous())
}

// MoveToCart moves a liked product into the cart for the signed-in user.
func (s *Session) MoveToCart(ctx context.Context, productID string) error {
	if s.wishlist == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "wishlist is not configured")
	}
	current := s.Identity.Current()
	if !current.IsAuthenticated() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to use the wishlist")
	}
	return s.wishlist.MoveToCart(ctx, current.UserID, productID, s.Cart)
}

// Close detaches the reconciler from the identity signal.
func (s *Session) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

func (s *Session) accessToken(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

func (s *Session) setToken(token string) {
	s.mu.Lock()
	s.token = strings.TrimSpace(token)
	s.mu.Unlock()
}
