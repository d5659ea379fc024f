package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/betza-storefront/pkg/config"
	"github.com/angelmondragon/betza-storefront/pkg/logger"
	"github.com/shopspring/decimal"
)

const (
	initializePath = "/transaction/initialize"
	verifyPath     = "/transaction/verify/"

	// StatusSuccess is the transaction status Paystack reports for a captured charge.
	StatusSuccess = "success"
)

var (
	errSecretKeyRequired = errors.New("paystack secret key is required")
	errBaseURLRequired   = errors.New("paystack base url is required")

	// ErrTransactionNotSuccessful is returned by VerifyTransaction when the charge did not succeed.
	ErrTransactionNotSuccessful = errors.New("paystack transaction not successful")
)

// Client talks to the Paystack transaction API with the merchant secret key.
type Client struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
	logger     *logger.Logger
}

// NewClient validates credentials and builds a client with the configured timeout.
func NewClient(ctx context.Context, cfg config.PaystackConfig, logg *logger.Logger) (*Client, error) {
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, errSecretKeyRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	if logg != nil {
		logg.Info(ctx, "paystack client initialized")
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		secretKey:  secret,
		logger:     logg,
	}, nil
}

// CartItem is one purchased line carried through transaction metadata.
type CartItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Metadata is attached at initialization and echoed back by verification.
type Metadata struct {
	UserID            string     `json:"user_id"`
	CartItems         []CartItem `json:"cart_items"`
	CustomRedirectURL string     `json:"custom_redirect_url,omitempty"`
}

// UnmarshalJSON accepts metadata as an object or as a JSON-encoded string.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	type alias Metadata
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '"' {
		var raw string
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		if raw == "" {
			return nil
		}
		trimmed = []byte(raw)
	}
	var out alias
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return err
	}
	*m = Metadata(out)
	return nil
}

// InitializeRequest starts a hosted checkout. Amount is in minor units.
type InitializeRequest struct {
	AmountMinor int64    `json:"amount"`
	Email       string   `json:"email"`
	CallbackURL string   `json:"callback_url,omitempty"`
	Reference   string   `json:"reference,omitempty"`
	Metadata    Metadata `json:"metadata"`
}

// Authorization is the hosted checkout handle returned by initialization.
type Authorization struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// Transaction is the verification view of a charge. Amount is in minor units.
type Transaction struct {
	ID              int64    `json:"id"`
	Status          string   `json:"status"`
	Reference       string   `json:"reference"`
	Amount          int64    `json:"amount"`
	Currency        string   `json:"currency"`
	GatewayResponse string   `json:"gateway_response"`
	Metadata        Metadata `json:"metadata"`
}

// APIError is a non-2xx response from Paystack.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paystack error %d: %s", e.StatusCode, e.Message)
}

type envelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// InitializeTransaction creates a transaction and returns its authorization URL.
func (c *Client) InitializeTransaction(ctx context.Context, req InitializeRequest) (*Authorization, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal initialize payload: %w", err)
	}
	var out envelope[Authorization]
	if err := c.do(ctx, http.MethodPost, initializePath, body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Data.AuthorizationURL) == "" {
		return nil, &APIError{StatusCode: http.StatusOK, Message: "missing authorization_url"}
	}
	return &out.Data, nil
}

// VerifyTransaction fetches the transaction for reference. A transaction whose
// status is not success is returned together with ErrTransactionNotSuccessful.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, errors.New("reference is required")
	}
	var out envelope[Transaction]
	if err := c.do(ctx, http.MethodGet, verifyPath+url.PathEscape(reference), nil, &out); err != nil {
		return nil, err
	}
	if out.Data.Status != StatusSuccess {
		return &out.Data, fmt.Errorf("%w: %s", ErrTransactionNotSuccessful, out.Data.GatewayResponse)
	}
	return &out.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read paystack response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var parsed struct {
			Message string `json:"message"`
			Data    struct {
				GatewayResponse string `json:"gateway_response"`
			} `json:"data"`
		}
		if json.Unmarshal(raw, &parsed) == nil {
			switch {
			case parsed.Data.GatewayResponse != "":
				apiErr.Message = parsed.Data.GatewayResponse
			case parsed.Message != "":
				apiErr.Message = parsed.Message
			}
		}
		return apiErr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode paystack response: %w", err)
	}
	return nil
}
