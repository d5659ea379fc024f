package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/betza-storefront/internal/checkout"
	"github.com/angelmondragon/betza-storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/betza-storefront/pkg/errors"
	"github.com/angelmondragon/betza-storefront/pkg/logger"
	"github.com/sony/gobreaker/v2"
)

const (
	initializePath = "/initialize-payment"
	verifyPath     = "/verify-payment"

	breakerName          = "settlement-functions"
	breakerTripFailures  = 5
	breakerOpenTimeout   = 30 * time.Second
	breakerHalfOpenRequests = 1
	maxResponseBytes     = 1 << 20
)

// TokenSource returns the bearer token sent with each call, or "" for none.
type TokenSource func(ctx context.Context) (string, error)

// Client calls the settlement backend's payment functions. It implements
// checkout.PaymentGateway.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logg       *logger.Logger
}

var _ checkout.PaymentGateway = (*Client)(nil)

// ClientParams configures a Client. HTTPClient defaults to one with cfg.GatewayTimeout.
type ClientParams struct {
	Config     config.CheckoutConfig
	Logger     *logger.Logger
	Tokens     TokenSource
	HTTPClient *http.Client
}

func NewClient(params ClientParams) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(params.Config.FunctionsBaseURL), "/")
	if baseURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "functions base url is required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	httpClient := params.HTTPClient
	if httpClient == nil {
		timeout := params.Config.GatewayTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	tokens := params.Tokens
	if tokens == nil {
		tokens = func(context.Context) (string, error) { return "", nil }
	}

	logg := params.Logger
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: breakerHalfOpenRequests,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripFailures
		},
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode < http.StatusInternalServerError
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logg.Warn(context.Background(), fmt.Sprintf("circuit breaker %s: %s -> %s", name, from, to))
		},
	})

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		tokens:     tokens,
		breaker:    breaker,
		logg:       logg,
	}, nil
}

// APIError is a non-2xx answer or an `{error}` body from a payment function.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payment function error (%d): %s", e.StatusCode, e.Message)
}

type initializeBody struct {
	Amount      string            `json:"amount"`
	Email       string            `json:"email"`
	Metadata    checkout.Metadata `json:"metadata"`
	RedirectURL string            `json:"redirect_url,omitempty"`
}

type initializeResponse struct {
	checkout.InitializeResult
	Error string `json:"error,omitempty"`
}

type verifyResponse struct {
	checkout.VerifyResult
	Error string `json:"error,omitempty"`
}

// Initialize starts a payment. The amount is sent in major units.
func (c *Client) Initialize(ctx context.Context, req checkout.InitializeRequest) (*checkout.InitializeResult, error) {
	body := initializeBody{
		Amount:      req.Amount.String(),
		Email:       req.Email,
		Metadata:    req.Metadata,
		RedirectURL: req.RedirectURL,
	}
	var out initializeResponse
	if err := c.call(ctx, initializePath, body, &out); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentInitialization, err, "initialize payment")
	}
	if strings.TrimSpace(out.AuthorizationURL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodePaymentInitialization, "initialize payment: missing authorization_url")
	}
	return &out.InitializeResult, nil
}

// Verify settles the payment for reference and returns the order id.
func (c *Client) Verify(ctx context.Context, reference string) (*checkout.VerifyResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodePaymentCancelled, "payment reference missing")
	}
	var out verifyResponse
	if err := c.call(ctx, verifyPath, map[string]string{"reference": reference}, &out); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentVerification, err, "verify payment")
	}
	if strings.TrimSpace(out.OrderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodePaymentVerification, "verify payment: missing order_id")
	}
	return &out.VerifyResult, nil
}

func (c *Client) call(ctx context.Context, path string, payload any, dest any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.post(ctx, path, raw)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logg.Warn(ctx, "payment functions unavailable, circuit open")
		}
		return err
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	if msg := errorField(body); msg != "" {
		return &APIError{StatusCode: http.StatusOK, Message: msg}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, raw []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	token, err := c.tokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("access token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := errorField(body)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	return body, nil
}

func errorField(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.Error)
}
