package checkout

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/betza-storefront/internal/cart"
	"github.com/angelmondragon/betza-storefront/internal/notifications"
	pkgcheckout "github.com/angelmondragon/betza-storefront/pkg/checkout"
	pkgerrors "github.com/angelmondragon/betza-storefront/pkg/errors"
	"github.com/angelmondragon/betza-storefront/pkg/logger"
	"github.com/angelmondragon/betza-storefront/pkg/metrics"
	"github.com/angelmondragon/betza-storefront/pkg/validation"
	"github.com/google/uuid"
)

const orderPlacedMessage = "Payment successful! Your order has been placed."

// OrchestratorParams groups the collaborators of an Orchestrator.
type OrchestratorParams struct {
	Gateway     PaymentGateway
	Browser     Browser
	Navigator   Navigator
	Identity    IdentitySource
	Cart        CartStore
	Notifier    notifications.Sink
	Logger      *logger.Logger
	Metrics     *metrics.CheckoutMetrics
	RedirectURL string
	Now         func() time.Time
}

// Orchestrator drives one checkout at a time through initialize, external
// redirect and verification.
type Orchestrator struct {
	gateway   PaymentGateway
	browser   Browser
	navigator Navigator
	identity  IdentitySource
	cart      CartStore
	notifier  notifications.Sink
	logg      *logger.Logger
	metrics   *metrics.CheckoutMetrics
	redirect  string
	target    callbackTarget
	now       func() time.Time

	mu          sync.Mutex
	state       State
	session     *Session
	canReverify bool
}

func NewOrchestrator(params OrchestratorParams) (*Orchestrator, error) {
	switch {
	case params.Gateway == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment gateway is required")
	case params.Browser == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "browser is required")
	case params.Navigator == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "navigator is required")
	case params.Identity == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "identity source is required")
	case params.Cart == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart store is required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	target, err := parseCallbackTarget(params.RedirectURL)
	if err != nil {
		return nil, err
	}
	notifier := params.Notifier
	if notifier == nil {
		notifier = notifications.Discard
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		gateway:   params.Gateway,
		browser:   params.Browser,
		navigator: params.Navigator,
		identity:  params.Identity,
		cart:      params.Cart,
		notifier:  notifier,
		logg:      params.Logger,
		metrics:   params.Metrics,
		redirect:  strings.TrimSpace(params.RedirectURL),
		target:    target,
		now:       now,
		state:     StateIdle,
	}, nil
}

// State returns the current orchestrator state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Session returns a copy of the latest session, or nil before the first start.
func (o *Orchestrator) Session() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.clone()
}

// Start snapshots the cart, initializes the payment and opens the hosted page.
func (o *Orchestrator) Start(ctx context.Context, in StartInput) (*Session, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.state.InFlight() {
		o.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "a checkout is already in progress")
	}

	who := o.identity.Current()
	if !who.IsAuthenticated() {
		o.mu.Unlock()
		o.navigator.ShowSignIn(ctx)
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to check out")
	}

	snapshot := o.cart.Lines()
	amount, err := pkgcheckout.Amount(lineInputs(snapshot))
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}

	email := strings.TrimSpace(in.Email)
	if email == "" {
		email = who.Email
	}
	if email == "" {
		o.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payer email is required")
	}

	session := &Session{
		ID:           uuid.NewString(),
		UserID:       who.UserID,
		PayerEmail:   email,
		CartSnapshot: snapshot,
		Amount:       amount,
		Status:       SessionPending,
		CreatedAt:    o.now().UTC(),
	}
	o.session = session
	o.canReverify = false
	o.transitionLocked(StateInitiating)
	o.mu.Unlock()

	ctx = o.logg.WithFields(ctx, map[string]any{
		"checkout_session_id": session.ID,
		"user_id":             session.UserID,
	})
	o.logg.Info(ctx, "checkout started")

	res, err := o.gateway.Initialize(ctx, InitializeRequest{
		Amount:      amount,
		Email:       email,
		Metadata:    Metadata{UserID: who.UserID, CartItems: cartItems(snapshot)},
		RedirectURL: o.redirect,
	})
	if err == nil && (res == nil || strings.TrimSpace(res.AuthorizationURL) == "") {
		err = pkgerrors.New(pkgerrors.CodePaymentInitialization, "payment initialization returned no authorization url")
	}
	if err != nil {
		return nil, o.failInitialization(ctx, err)
	}

	o.mu.Lock()
	session.Reference = res.Reference
	session.AuthorizationURL = res.AuthorizationURL
	session.Status = SessionAwaitingCallback
	o.transitionLocked(StateAwaitingExternalRedirect)
	out := session.clone()
	o.mu.Unlock()

	ctx = o.logg.WithReference(ctx, res.Reference)
	if err := o.browser.Open(ctx, res.AuthorizationURL, o.redirect); err != nil {
		return nil, o.failInitialization(ctx, err)
	}
	o.logg.Info(ctx, "awaiting payment redirect")
	return out, nil
}

// Resume handles the return from the hosted payment page. It is the single
// entry point for every delivery path of the callback URL.
func (o *Orchestrator) Resume(ctx context.Context, callbackURL string) (*Session, error) {
	o.mu.Lock()
	if o.state != StateAwaitingExternalRedirect {
		state := o.state
		o.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no checkout is waiting for a payment callback").
			WithDetails(map[string]any{"state": string(state)})
	}
	reference, err := o.target.reference(callbackURL)
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}
	session := o.session

	if reference == "" {
		session.Status = SessionFailed
		session.FailureReason = "payment reference missing"
		o.canReverify = false
		o.transitionLocked(StateFailed)
		o.mu.Unlock()

		cancelled := pkgerrors.New(pkgerrors.CodePaymentCancelled, "payment reference missing")
		o.logg.Info(o.logg.WithUserID(ctx, session.UserID), "checkout returned without a payment reference")
		o.notifier.Notify(ctx, notifications.Info(pkgerrors.PublicMessage(cancelled)).ForUser(session.UserID))
		return nil, cancelled
	}

	if session.Reference != "" && session.Reference != reference {
		o.logg.Warn(o.logg.WithReference(ctx, reference), "callback reference differs from initialized reference")
	}
	session.Reference = reference
	return o.verifyLocked(ctx)
}

// RetryVerification re-runs verification for a session whose verification
// failed. Settlement is idempotent per reference, so a retry never creates a
// second order.
func (o *Orchestrator) RetryVerification(ctx context.Context) (*Session, error) {
	o.mu.Lock()
	if o.state != StateFailed || !o.canReverify || o.session == nil || o.session.Reference == "" {
		o.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no payment verification to retry")
	}
	return o.verifyLocked(ctx)
}

// verifyLocked moves to Verifying and settles the session. Callers hold o.mu;
// it is released before the gateway call.
func (o *Orchestrator) verifyLocked(ctx context.Context) (*Session, error) {
	session := o.session
	session.Status = SessionVerifying
	session.FailureReason = ""
	o.canReverify = false
	o.transitionLocked(StateVerifying)
	reference := session.Reference
	o.mu.Unlock()

	ctx = o.logg.WithReference(o.logg.WithUserID(ctx, session.UserID), reference)
	res, err := o.gateway.Verify(ctx, reference)
	if err == nil && (res == nil || strings.TrimSpace(res.OrderID) == "") {
		err = pkgerrors.New(pkgerrors.CodePaymentVerification, "payment verification returned no order id")
	}
	if err != nil {
		wrapped := asCheckoutError(pkgerrors.CodePaymentVerification, err, "payment verification failed")
		o.mu.Lock()
		session.Status = SessionFailed
		session.FailureReason = pkgerrors.PublicMessage(wrapped)
		o.canReverify = true
		o.transitionLocked(StateFailed)
		o.mu.Unlock()

		o.logg.Error(ctx, "payment verification failed", err)
		o.notifier.Notify(ctx, notifications.Error(pkgerrors.PublicMessage(wrapped)).ForUser(session.UserID))
		return nil, wrapped
	}

	o.mu.Lock()
	session.OrderID = res.OrderID
	session.Status = SessionSettled
	o.transitionLocked(StateSettled)
	out := session.clone()
	o.mu.Unlock()

	// settlement already deleted the account rows; reload to drop them from view
	if err := o.cart.Clear(ctx); err != nil {
		o.logg.Warn(ctx, "cart clear after settlement failed, reloading: "+err.Error())
		if rerr := o.cart.Refresh(ctx); rerr != nil {
			o.logg.Error(ctx, "cart reload after settlement failed", rerr)
		}
	}
	o.logg.Info(o.logg.WithField(ctx, "order_id", res.OrderID), "checkout settled")
	o.navigator.ShowOrder(ctx, res.OrderID)
	o.notifier.Notify(ctx, notifications.Success(orderPlacedMessage).ForUser(session.UserID).With("order_id", res.OrderID))
	return out, nil
}

func (o *Orchestrator) failInitialization(ctx context.Context, cause error) error {
	wrapped := asCheckoutError(pkgerrors.CodePaymentInitialization, cause, "payment initialization failed")

	o.mu.Lock()
	userID := ""
	if o.session != nil {
		o.session.Status = SessionFailed
		o.session.FailureReason = pkgerrors.PublicMessage(wrapped)
		userID = o.session.UserID
	}
	o.canReverify = false
	o.transitionLocked(StateFailed)
	o.mu.Unlock()

	o.logg.Error(ctx, "payment initialization failed", cause)
	o.notifier.Notify(ctx, notifications.Error(pkgerrors.PublicMessage(wrapped)).ForUser(userID))
	return wrapped
}

func (o *Orchestrator) transitionLocked(next State) {
	o.state = next
	o.metrics.ObserveTransition(string(next))
}

// asCheckoutError keeps err when it already carries code and wraps it otherwise.
func asCheckoutError(code pkgerrors.Code, err error, message string) *pkgerrors.Error {
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == code {
		return typed
	}
	return pkgerrors.Wrap(code, err, message)
}

func lineInputs(lines []cart.Line) []pkgcheckout.LineInput {
	out := make([]pkgcheckout.LineInput, 0, len(lines))
	for _, l := range lines {
		out = append(out, pkgcheckout.LineInput{ProductID: l.ProductID, Quantity: l.Quantity, Price: l.Price})
	}
	return out
}

func cartItems(lines []cart.Line) []CartItem {
	out := make([]CartItem, 0, len(lines))
	for _, l := range lines {
		out = append(out, CartItem{ProductID: l.ProductID, Quantity: l.Quantity, Price: l.Price})
	}
	return out
}
