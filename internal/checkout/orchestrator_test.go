package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/angelmondragon/betza-storefront/internal/cart"
	"github.com/angelmondragon/betza-storefront/internal/identity"
	"github.com/angelmondragon/betza-storefront/internal/notifications"
	pkgerrors "github.com/angelmondragon/betza-storefront/pkg/errors"
	"github.com/angelmondragon/betza-storefront/pkg/logger"
	"github.com/angelmondragon/betza-storefront/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
)

const testRedirect = "betza://payment-callback"

type stubGateway struct {
	initReq    InitializeRequest
	initRes    *InitializeResult
	initErr    error
	verifyRefs []string
	verifyRes  *VerifyResult
	verifyErr  error
}

func (g *stubGateway) Initialize(_ context.Context, req InitializeRequest) (*InitializeResult, error) {
	g.initReq = req
	return g.initRes, g.initErr
}

func (g *stubGateway) Verify(_ context.Context, reference string) (*VerifyResult, error) {
	g.verifyRefs = append(g.verifyRefs, reference)
	return g.verifyRes, g.verifyErr
}

type stubBrowser struct {
	opened   []string
	redirect string
	err      error
}

func (b *stubBrowser) Open(_ context.Context, authorizationURL, redirectURL string) error {
	b.opened = append(b.opened, authorizationURL)
	b.redirect = redirectURL
	return b.err
}

type stubNavigator struct {
	orders []string
	signIn int
}

func (n *stubNavigator) ShowOrder(_ context.Context, orderID string) { n.orders = append(n.orders, orderID) }
func (n *stubNavigator) ShowSignIn(context.Context) { n.signIn++ }

type stubCart struct {
	mu        sync.Mutex
	lines     []cart.Line
	clears    int
	clearFn   func() error
	refreshes int
	refreshFn func() error
}

func (c *stubCart) Lines() []cart.Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]cart.Line{}, c.lines...)
}

func (c *stubCart) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clears++
	if c.clearFn != nil {
		return c.clearFn()
	}
	c.lines = nil
	return nil
}

func (c *stubCart) Refresh(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshes++
	if c.refreshFn != nil {
		return c.refreshFn()
	}
	return nil
}

type harness struct {
	orch      *Orchestrator
	gateway   *stubGateway
	browser   *stubBrowser
	navigator *stubNavigator
	cart      *stubCart
	signal    *identity.Signal
	notes     *notifications.Recorder
	reg       *prometheus.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		gateway: &stubGateway{
			initRes:   &InitializeResult{AuthorizationURL: "https://pay.example/abc", Reference: "ref_1"},
			verifyRes: &VerifyResult{OrderID: "ord_9"},
		},
		browser:   &stubBrowser{},
		navigator: &stubNavigator{},
		cart: &stubCart{lines: []cart.Line{
			{ProductID: "P1", Name: "Ankara Tote", Price: decimal.NewFromInt(1000), Quantity: 2},
		}},
		signal: identity.NewSignal(identity.Authenticated("user_42", "buyer@example.com")),
		notes:  &notifications.Recorder{},
		reg:    prometheus.NewRegistry(),
	}
	orch, err := NewOrchestrator(OrchestratorParams{
		Gateway:     h.gateway,
		Browser:     h.browser,
		Navigator:   h.navigator,
		Identity:    h.signal,
		Cart:        h.cart,
		Notifier:    h.notes,
		Logger:      logger.Nop(),
		Metrics:     metrics.NewCheckoutMetrics(h.reg),
		RedirectURL: testRedirect,
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	h.orch = orch
	return h
}

func transitionCount(t *testing.T, reg *prometheus.Registry, state State) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "checkout_transitions_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelValue(m, "state") == string(state) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func TestCheckoutHappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session, err := h.orch.Start(ctx, StartInput{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !session.Amount.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("expected amount 2000, got %s", session.Amount)
	}
	if h.gateway.initReq.Email != "buyer@example.com" || h.gateway.initReq.Metadata.UserID != "user_42" {
		t.Fatalf("unexpected init request %+v", h.gateway.initReq)
	}
	if len(h.gateway.initReq.Metadata.CartItems) != 1 || h.gateway.initReq.Metadata.CartItems[0].Quantity != 2 {
		t.Fatalf("unexpected cart items %+v", h.gateway.initReq.Metadata.CartItems)
	}
	if h.gateway.initReq.RedirectURL != testRedirect {
		t.Fatalf("unexpected redirect %q", h.gateway.initReq.RedirectURL)
	}
	if len(h.browser.opened) != 1 || h.browser.opened[0] != "https://pay.example/abc" || h.browser.redirect != testRedirect {
		t.Fatalf("unexpected browser calls %+v", h.browser)
	}
	if h.orch.State() != StateAwaitingExternalRedirect {
		t.Fatalf("expected awaiting redirect, got %s", h.orch.State())
	}

	settled, err := h.orch.Resume(ctx, testRedirect+"?reference=ref_1")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if settled.OrderID != "ord_9" || settled.Status != SessionSettled {
		t.Fatalf("unexpected session %+v", settled)
	}
	if h.orch.State() != StateSettled {
		t.Fatalf("expected settled, got %s", h.orch.State())
	}
	if len(h.cart.Lines()) != 0 {
		t.Fatalf("expected empty cart, got %+v", h.cart.Lines())
	}
	if len(h.navigator.orders) != 1 || h.navigator.orders[0] != "ord_9" {
		t.Fatalf("expected navigation to ord_9, got %+v", h.navigator.orders)
	}
	if len(h.gateway.verifyRefs) != 1 || h.gateway.verifyRefs[0] != "ref_1" {
		t.Fatalf("unexpected verify calls %+v", h.gateway.verifyRefs)
	}
	last, ok := h.notes.Last()
	if !ok || last.Level != notifications.LevelSuccess || last.Data["order_id"] != "ord_9" {
		t.Fatalf("unexpected notification %+v", last)
	}
	if got := transitionCount(t, h.reg, StateSettled); got != 1 {
		t.Fatalf("expected one settled transition, got %v", got)
	}
}

func TestSettledCheckoutReloadsCartWhenClearFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.cart.clearFn = func() error { return errors.New("db down") }
	h.cart.refreshFn = func() error {
		h.cart.lines = nil
		return nil
	}

	if _, err := h.orch.Start(ctx, StartInput{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	settled, err := h.orch.Resume(ctx, testRedirect+"?reference=ref_1")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if settled.Status != SessionSettled {
		t.Fatalf("expected settled session, got %+v", settled)
	}
	if h.cart.clears != 1 || h.cart.refreshes != 1 {
		t.Fatalf("expected one clear and one reload, got %d and %d", h.cart.clears, h.cart.refreshes)
	}
	if len(h.cart.Lines()) != 0 {
		t.Fatalf("expected reloaded empty cart, got %+v", h.cart.Lines())
	}
	if len(h.navigator.orders) != 1 || h.navigator.orders[0] != "ord_9" {
		t.Fatalf("expected navigation to ord_9, got %+v", h.navigator.orders)
	}
}

func TestCheckoutCancelledWithoutReference(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.orch.Start(ctx, StartInput{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err := h.orch.Resume(ctx, testRedirect)
	if !pkgerrors.HasCode(err, pkgerrors.CodePaymentCancelled) {
		t.Fatalf("expected cancelled error, got %v", err)
	}
	if h.orch.State() != StateFailed {
		t.Fatalf("expected failed, got %s", h.orch.State())
	}
	session := h.orch.Session()
	if session.Status != SessionFailed || session.FailureReason != "payment reference missing" {
		t.Fatalf("unexpected session %+v", session)
	}
	if lines := h.cart.Lines(); len(lines) != 1 || lines[0].Quantity != 2 {
		t.Fatalf("expected untouched cart, got %+v", lines)
	}
	if len(h.gateway.verifyRefs) != 0 {
		t.Fatalf("verification must not run, got %+v", h.gateway.verifyRefs)
	}
	last, ok := h.notes.Last()
	if !ok || last.Level != notifications.LevelInfo || last.Message != "payment reference missing" {
		t.Fatalf("unexpected notification %+v", last)
	}
	if _, err := h.orch.RetryVerification(ctx); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected no retry after cancel, got %v", err)
	}

	if _, err := h.orch.Start(ctx, StartInput{}); err != nil {
		t.Fatalf("restart after cancel: %v", err)
	}
}

func TestCheckoutVerificationFailureKeepsCart(t *testing.T) {
	h := newHarness(t)
	h.gateway.verifyErr = errors.New("provider said: insufficient funds")
	ctx := context.Background()

	if _, err := h.orch.Start(ctx, StartInput{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err := h.orch.Resume(ctx, testRedirect+"?trxref=ref_1")
	if !pkgerrors.HasCode(err, pkgerrors.CodePaymentVerification) {
		t.Fatalf("expected verification error, got %v", err)
	}
	if h.orch.State() != StateFailed {
		t.Fatalf("expected failed, got %s", h.orch.State())
	}
	if h.cart.clears != 0 || len(h.cart.Lines()) != 1 {
		t.Fatalf("cart must be preserved, clears=%d lines=%+v", h.cart.clears, h.cart.Lines())
	}
	last, ok := h.notes.Last()
	if !ok || last.Level != notifications.LevelError {
		t.Fatalf("expected error notification, got %+v", last)
	}
	if last.Message == "" || last.Message == h.gateway.verifyErr.Error() {
		t.Fatalf("raw error leaked to notification: %q", last.Message)
	}

	h.gateway.verifyErr = nil
	session, err := h.orch.RetryVerification(ctx)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if session.OrderID != "ord_9" || h.orch.State() != StateSettled {
		t.Fatalf("unexpected retry result %+v state=%s", session, h.orch.State())
	}
	if len(h.gateway.verifyRefs) != 2 || h.gateway.verifyRefs[1] != "ref_1" {
		t.Fatalf("expected retry with same reference, got %+v", h.gateway.verifyRefs)
	}
}

func TestCheckoutInitializationFailure(t *testing.T) {
	cases := []struct {
		name  string
		setup func(h *harness)
	}{
		{name: "gateway error", setup: func(h *harness) { h.gateway.initErr = errors.New("dial tcp: timeout") }},
		{name: "missing authorization url", setup: func(h *harness) { h.gateway.initRes = &InitializeResult{Reference: "ref_1"} }},
		{name: "browser error", setup: func(h *harness) { h.browser.err = errors.New("no browser") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			tc.setup(h)

			_, err := h.orch.Start(context.Background(), StartInput{})
			if !pkgerrors.HasCode(err, pkgerrors.CodePaymentInitialization) {
				t.Fatalf("expected initialization error, got %v", err)
			}
			if h.orch.State() != StateFailed {
				t.Fatalf("expected failed, got %s", h.orch.State())
			}
			if h.cart.clears != 0 || len(h.cart.Lines()) != 1 {
				t.Fatalf("cart must be untouched")
			}
			if last, ok := h.notes.Last(); !ok || last.Level != notifications.LevelError {
				t.Fatalf("expected error notification, got %+v", last)
			}
		})
	}
}

func TestCheckoutRequiresSignIn(t *testing.T) {
	h := newHarness(t)
	h.signal.Set(context.Background(), identity.Anonymous())

	_, err := h.orch.Start(context.Background(), StartInput{})
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if h.navigator.signIn != 1 {
		t.Fatalf("expected sign-in redirect")
	}
	if h.orch.Session() != nil || h.orch.State() != StateIdle {
		t.Fatalf("no session expected, state=%s", h.orch.State())
	}
}

func TestCheckoutRejectsEmptyCart(t *testing.T) {
	h := newHarness(t)
	h.cart.lines = nil

	_, err := h.orch.Start(context.Background(), StartInput{})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if h.gateway.initReq.Email != "" {
		t.Fatal("gateway must not be called")
	}
}

func TestCheckoutRejectsSecondStart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.orch.Start(ctx, StartInput{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.orch.Start(ctx, StartInput{}); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestSnapshotIsolatedFromLaterCartChanges(t *testing.T) {
	h := newHarness(t)

	if _, err := h.orch.Start(context.Background(), StartInput{Email: "other@example.com"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.cart.mu.Lock()
	h.cart.lines[0].Quantity = 7
	h.cart.mu.Unlock()

	session := h.orch.Session()
	if session.CartSnapshot[0].Quantity != 2 || session.PayerEmail != "other@example.com" {
		t.Fatalf("unexpected snapshot %+v", session)
	}
}

func TestResumeRejectsForeignURL(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.orch.Resume(ctx, testRedirect+"?reference=ref_1"); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict before start, got %v", err)
	}
	if _, err := h.orch.Start(ctx, StartInput{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.orch.Resume(ctx, "betza://auth/callback?reference=ref_1"); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if h.orch.State() != StateAwaitingExternalRedirect {
		t.Fatalf("state must not change, got %s", h.orch.State())
	}
}

func TestNewOrchestratorValidatesRedirect(t *testing.T) {
	_, err := NewOrchestrator(OrchestratorParams{
		Gateway:     &stubGateway{},
		Browser:     &stubBrowser{},
		Navigator:   &stubNavigator{},
		Identity:    identity.NewSignal(identity.Anonymous()),
		Cart:        &stubCart{},
		Logger:      logger.Nop(),
		RedirectURL: "payment-callback",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
