package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/angelmondragon/betza-storefront/api/middleware"
	"github.com/angelmondragon/betza-storefront/internal/settlement"
	pkgerrors "github.com/angelmondragon/betza-storefront/pkg/errors"
	"github.com/angelmondragon/betza-storefront/pkg/logger"
	"github.com/shopspring/decimal"
)

type stubSettlement struct {
	initInput settlement.InitializeInput
	initErr   error
	verified  []string
	verifyErr error
}

func (s *stubSettlement) Initialize(_ context.Context, input settlement.InitializeInput) (*settlement.InitializeResult, error) {
	s.initInput = input
	if s.initErr != nil {
		return nil, s.initErr
	}
	return &settlement.InitializeResult{AuthorizationURL: "https://checkout.paystack.com/abc", AccessCode: "abc", Reference: "ref_1"}, nil
}

func (s *stubSettlement) Verify(_ context.Context, reference string) (*settlement.VerifyResult, error) {
	s.verified = append(s.verified, reference)
	if s.verifyErr != nil {
		return nil, s.verifyErr
	}
	return &settlement.VerifyResult{OrderID: "ord_1"}, nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v (%s)", err, rec.Body.String())
	}
	return body
}

func asUser(req *http.Request, userID string) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), userID))
}

func TestInitializePaymentReturnsBareResult(t *testing.T) {
	svc := &stubSettlement{}
	body := `{"amount":"2000","email":"buyer@example.com","metadata":{"user_id":"user_42","cart_items":[{"product_id":"P1","quantity":2,"price":"1000"}]}}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/functions/v1/initialize-payment", strings.NewReader(body)), "user_42")
	rec := httptest.NewRecorder()

	InitializePayment(svc, logger.Nop()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeBody(t, rec)
	if got["authorization_url"] != "https://checkout.paystack.com/abc" || got["reference"] != "ref_1" {
		t.Fatalf("unexpected body %v", got)
	}
	if !svc.initInput.Amount.Equal(decimal.NewFromInt(2000)) || svc.initInput.Metadata.UserID != "user_42" {
		t.Fatalf("unexpected input %+v", svc.initInput)
	}
}

func TestInitializePaymentBindsCaller(t *testing.T) {
	const otherUser = `{"amount":"2000","email":"buyer@example.com","metadata":{"user_id":"user_7","cart_items":[{"product_id":"P1","quantity":2,"price":"1000"}]}}`
	const noUser = `{"amount":"2000","email":"buyer@example.com","metadata":{"cart_items":[{"product_id":"P1","quantity":2,"price":"1000"}]}}`

	cases := []struct {
		name     string
		caller   string
		body     string
		status   int
		wantUser string
	}{
		{"no caller", "", otherUser, http.StatusUnauthorized, ""},
		{"other user", "user_42", otherUser, http.StatusForbidden, ""},
		{"defaults to caller", "user_42", noUser, http.StatusOK, "user_42"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubSettlement{}
			req := httptest.NewRequest(http.MethodPost, "/functions/v1/initialize-payment", strings.NewReader(tc.body))
			if tc.caller != "" {
				req = asUser(req, tc.caller)
			}
			rec := httptest.NewRecorder()

			InitializePayment(svc, logger.Nop()).ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("expected %d got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if svc.initInput.Metadata.UserID != tc.wantUser {
				t.Fatalf("expected settlement user %q, got %q", tc.wantUser, svc.initInput.Metadata.UserID)
			}
			if tc.status != http.StatusOK {
				if msg, _ := decodeBody(t, rec)["error"].(string); msg == "" {
					t.Fatalf("expected error message")
				}
			}
		})
	}
}

func TestInitializePaymentValidationError(t *testing.T) {
	svc := &stubSettlement{}
	req := asUser(httptest.NewRequest(http.MethodPost, "/functions/v1/initialize-payment", strings.NewReader(`{"amount":"2000"}`)), "user_42")
	rec := httptest.NewRecorder()

	InitializePayment(svc, logger.Nop()).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if msg, _ := decodeBody(t, rec)["error"].(string); msg == "" {
		t.Fatalf("expected error message")
	}
}

func TestInitializePaymentProviderFailure(t *testing.T) {
	svc := &stubSettlement{initErr: pkgerrors.Wrap(pkgerrors.CodePaymentInitialization, errors.New("sk_live leaked"), "initialize transaction")}
	body := `{"amount":"2000","email":"buyer@example.com","metadata":{"user_id":"user_42","cart_items":[{"product_id":"P1","quantity":2,"price":"1000"}]}}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/functions/v1/initialize-payment", strings.NewReader(body)), "user_42")
	rec := httptest.NewRecorder()

	InitializePayment(svc, logger.Nop()).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	msg, _ := decodeBody(t, rec)["error"].(string)
	if msg != "initialize transaction" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestVerifyPayment(t *testing.T) {
	cases := []struct {
		name      string
		body      string
		verifyErr error
		status    int
		wantKey   string
	}{
		{"settled", `{"reference":"ref_1"}`, nil, http.StatusOK, "order_id"},
		{"missing reference", `{}`, nil, http.StatusBadRequest, "error"},
		{"not successful", `{"reference":"ref_1"}`, pkgerrors.New(pkgerrors.CodePaymentVerification, "payment not successful"), http.StatusBadRequest, "error"},
		{"in progress", `{"reference":"ref_1"}`, pkgerrors.New(pkgerrors.CodeConflict, "settlement already in progress for this reference"), http.StatusConflict, "error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubSettlement{verifyErr: tc.verifyErr}
			req := httptest.NewRequest(http.MethodPost, "/functions/v1/verify-payment", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()

			VerifyPayment(svc, logger.Nop()).ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, rec.Code)
			}
			if _, ok := decodeBody(t, rec)[tc.wantKey]; !ok {
				t.Fatalf("expected %q in body %s", tc.wantKey, rec.Body.String())
			}
		})
	}
}
