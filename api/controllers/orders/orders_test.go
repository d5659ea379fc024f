package orders

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/betza-storefront/api/middleware"
	internalorders "github.com/angelmondragon/betza-storefront/internal/orders"
	pkgerrors "github.com/angelmondragon/betza-storefront/pkg/errors"
	"github.com/angelmondragon/betza-storefront/pkg/logger"
	"github.com/angelmondragon/betza-storefront/pkg/pagination"
)

type stubService struct {
	params pagination.Params
	userID string
}

func (s *stubService) List(_ context.Context, userID string, params pagination.Params) (*internalorders.OrderList, error) {
	s.userID = userID
	s.params = params
	return &internalorders.OrderList{Orders: []internalorders.OrderDTO{{ID: "ord_1"}}}, nil
}

func (s *stubService) Get(_ context.Context, userID, orderID string) (*internalorders.OrderDTO, error) {
	if orderID != "ord_1" || userID != "user_42" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return &internalorders.OrderDTO{ID: orderID}, nil
}

func TestListRequiresUser(t *testing.T) {
	rec := httptest.NewRecorder()
	List(&stubService{}, logger.Nop()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestListPassesPaging(t *testing.T) {
	svc := &stubService{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?limit=5&cursor=abc", nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), "user_42"))
	rec := httptest.NewRecorder()

	List(svc, logger.Nop()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.userID != "user_42" || svc.params.Limit != 5 || svc.params.Cursor != "abc" {
		t.Fatalf("unexpected call user=%s params=%+v", svc.userID, svc.params)
	}
}

func TestListRejectsBadLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?limit=0", nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), "user_42"))
	rec := httptest.NewRecorder()

	List(&stubService{}, logger.Nop()).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestDetailNotFoundForOtherUser(t *testing.T) {
	makeRequest := func(userID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/ord_1", nil)
		routeCtx := chi.NewRouteContext()
		routeCtx.URLParams.Add("orderId", "ord_1")
		ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
		ctx = middleware.WithUserID(ctx, userID)
		rec := httptest.NewRecorder()
		Detail(&stubService{}, logger.Nop()).ServeHTTP(rec, req.WithContext(ctx))
		return rec
	}

	if rec := makeRequest("user_42"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if rec := makeRequest("user_7"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}
