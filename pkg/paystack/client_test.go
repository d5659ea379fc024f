package paystack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/angelmondragon/betza-storefront/pkg/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(context.Background(), config.PaystackConfig{
		SecretKey: "sk_test_123",
		BaseURL:   srv.URL + "/",
		Timeout:   time.Second,
	}, nil)
	require.NoError(t, err)
	return client
}

func TestInitializeTransaction(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 200000, body["amount"])
		assert.Equal(t, "betza://payment-callback", body["callback_url"])
		meta := body["metadata"].(map[string]any)
		assert.Equal(t, "user-1", meta["user_id"])
		assert.Equal(t, "betza://payment-callback", meta["custom_redirect_url"])

		_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"authorization_url":"https://checkout.paystack.com/abc","access_code":"abc","reference":"ref_1"}}`))
	})

	auth, err := client.InitializeTransaction(context.Background(), InitializeRequest{
		AmountMinor: 200000,
		Email:       "a@b.co",
		CallbackURL: "betza://payment-callback",
		Metadata: Metadata{
			UserID:            "user-1",
			CustomRedirectURL: "betza://payment-callback",
			CartItems: []CartItem{
				{ProductID: "p1", Quantity: 2, Price: decimal.NewFromInt(1000)},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.paystack.com/abc", auth.AuthorizationURL)
	assert.Equal(t, "ref_1", auth.Reference)
}

func TestInitializeTransactionMissingAuthorizationURL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":true,"data":{"reference":"ref_1"}}`))
	})
	_, err := client.InitializeTransaction(context.Background(), InitializeRequest{AmountMinor: 100, Email: "a@b.co"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
}

func TestInitializeTransactionAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":false,"message":"Invalid Email Address Passed"}`))
	})
	_, err := client.InitializeTransaction(context.Background(), InitializeRequest{AmountMinor: 100, Email: "bad"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Invalid Email Address Passed", apiErr.Message)
}

func TestVerifyTransactionSuccess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/verify/ref_1", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":true,"data":{"id":9,"status":"success","reference":"ref_1","amount":200000,"gateway_response":"Successful","metadata":{"user_id":"user-1","cart_items":[{"product_id":"p1","quantity":2,"price":1000}]}}}`))
	})

	tx, err := client.VerifyTransaction(context.Background(), "ref_1")
	require.NoError(t, err)
	assert.Equal(t, int64(200000), tx.Amount)
	assert.Equal(t, "user-1", tx.Metadata.UserID)
	require.Len(t, tx.Metadata.CartItems, 1)
	assert.True(t, tx.Metadata.CartItems[0].Price.Equal(decimal.NewFromInt(1000)))
}

func TestVerifyTransactionNotSuccessful(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":true,"data":{"status":"abandoned","reference":"ref_1","gateway_response":"The transaction was not completed"}}`))
	})

	tx, err := client.VerifyTransaction(context.Background(), "ref_1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransactionNotSuccessful))
	require.NotNil(t, tx)
	assert.Equal(t, "The transaction was not completed", tx.GatewayResponse)
}

func TestVerifyTransactionRequiresReference(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("no request expected")
	})
	_, err := client.VerifyTransaction(context.Background(), " ")
	require.Error(t, err)
}

func TestMetadataAcceptsEncodedString(t *testing.T) {
	var m Metadata
	require.NoError(t, json.Unmarshal([]byte(`"{\"user_id\":\"u\",\"cart_items\":[]}"`), &m))
	assert.Equal(t, "u", m.UserID)

	var empty Metadata
	require.NoError(t, json.Unmarshal([]byte(`null`), &empty))
	assert.Empty(t, empty.UserID)
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(context.Background(), config.PaystackConfig{BaseURL: "https://api.paystack.co"}, nil)
	require.Error(t, err)
	_, err = NewClient(context.Background(), config.PaystackConfig{SecretKey: "sk"}, nil)
	require.Error(t, err)
}
