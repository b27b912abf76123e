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

	"github.com/zjoart/paystack-settlements/pkg/logger"
)

const DefaultBaseURL = "https://api.paystack.co"

type Config struct {
	SecretKey string
	BaseURL   string
	Timeout   time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

// APIError is a structured rejection from Paystack.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paystack %s failed (%d): %s", e.Op, e.StatusCode, e.Message)
}

// TransportError means the request never produced a usable response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("paystack %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type RecipientRequest struct {
	Type          string `json:"type"`
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	Currency      string `json:"currency"`
}

type TransferRequest struct {
	Source    string `json:"source"`
	Amount    int64  `json:"amount"`
	Recipient string `json:"recipient"`
	Reference string `json:"reference"`
	Reason    string `json:"reason,omitempty"`
	Currency  string `json:"currency,omitempty"`
}

type Transfer struct {
	TransferCode string                 `json:"transfer_code"`
	Reference    string                 `json:"reference"`
	Status       string                 `json:"status"`
	Reason       string                 `json:"reason"`
	Amount       int64                  `json:"amount"`
	Raw          map[string]interface{} `json:"-"`
}

type InitializeRequest struct {
	Email       string                 `json:"email"`
	Amount      int64                  `json:"amount"`
	Reference   string                 `json:"reference"`
	Currency    string                 `json:"currency"`
	CallbackURL string                 `json:"callback_url,omitempty"`
	Channels    []string               `json:"channels,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

type Authorization struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

func (c *Client) CreateTransferRecipient(ctx context.Context, req RecipientRequest) (string, error) {
	if req.Type == "" {
		req.Type = "nuban"
	}
	var data struct {
		RecipientCode string `json:"recipient_code"`
	}
	if err := c.do(ctx, "create recipient", http.MethodPost, "/transferrecipient", req, &data, nil); err != nil {
		return "", err
	}
	return data.RecipientCode, nil
}

func (c *Client) InitiateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	if req.Source == "" {
		req.Source = "balance"
	}
	var t Transfer
	if err := c.do(ctx, "initiate transfer", http.MethodPost, "/transfer", req, &t, &t.Raw); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) VerifyTransfer(ctx context.Context, reference string) (*Transfer, error) {
	var t Transfer
	path := "/transfer/verify/" + url.PathEscape(reference)
	if err := c.do(ctx, "verify transfer", http.MethodGet, path, nil, &t, &t.Raw); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) InitializeTransaction(ctx context.Context, req InitializeRequest) (*Authorization, error) {
	var auth Authorization
	if err := c.do(ctx, "initialize transaction", http.MethodPost, "/transaction/initialize", req, &auth, nil); err != nil {
		return nil, err
	}
	return &auth, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, payload, out interface{}, raw *map[string]interface{}) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return &TransportError{Op: op, Err: err}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return &APIError{Op: op, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		}
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}

	if resp.StatusCode >= http.StatusBadRequest || !env.Status {
		logger.Error("Paystack error", logger.Fields{
			"op":          op,
			"status_code": resp.StatusCode,
			"message":     env.Message,
		})
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: env.Message}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("decode data: %w", err)}
		}
	}
	if raw != nil && len(env.Data) > 0 {
		_ = json.Unmarshal(env.Data, raw)
	}
	return nil
}

// IsAPIError reports whether err is a structured Paystack rejection rather
// than a transport failure.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
