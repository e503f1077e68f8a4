// Package revolut предоставляет клиент для Merchant API Revolut.
package revolut

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	liveBaseURL    = "https://merchant.revolut.com/api/1.0"
	sandboxBaseURL = "https://sandbox-merchant.revolut.com/api/1.0"
)

// Client инкапсулирует HTTP-взаимодействие с Merchant API Revolut.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// APIError описывает отказ Merchant API с сообщением провайдера и HTTP-статусом.
type APIError struct {
	StatusCode int
	Message    string
}

// Error реализует интерфейс error.
func (e *APIError) Error() string {
	return fmt.Sprintf("revolut api: %s (status %d)", e.Message, e.StatusCode)
}

// OrderRequest описывает запрос на создание платёжного заказа.
type OrderRequest struct {
	Amount             int64  `json:"amount"`
	Currency           string `json:"currency"`
	MerchantOrderRef   string `json:"merchant_order_ext_ref,omitempty"`
	Description        string `json:"description,omitempty"`
	CustomerEmail      string `json:"customer_email,omitempty"`
	SettlementCurrency string `json:"settlement_currency,omitempty"`
	CaptureMode        string `json:"capture_mode,omitempty"`
}

// Order описывает заказ в ответе Merchant API.
type Order struct {
	ID          string `json:"id"`
	PublicID    string `json:"public_id"`
	State       string `json:"state"`
	Amount      int64  `json:"order_amount,omitempty"`
	CheckoutURL string `json:"checkout_url,omitempty"`
}

// NewClient создаёт клиент Merchant API с указанным ключом.
// В режиме песочницы запросы направляются на sandbox-окружение.
func NewClient(apiKey string, sandbox bool) *Client {
	baseURL := liveBaseURL
	if sandbox {
		baseURL = sandboxBaseURL
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// newClientWithBaseURL используется в тестах для подмены адреса API.
func newClientWithBaseURL(apiKey, baseURL string) *Client {
	c := NewClient(apiKey, false)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// CreateOrder создаёт платёжный заказ у провайдера.
func (c *Client) CreateOrder(ctx context.Context, req *OrderRequest) (*Order, error) {
	var order Order
	if err := c.doRequest(ctx, http.MethodPost, "/orders", req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrder возвращает состояние заказа у провайдера.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	if err := c.doRequest(ctx, http.MethodGet, "/orders/"+orderID, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// CaptureOrder списывает ранее авторизованный платёж. Нулевая сумма
// означает списание полной суммы заказа.
func (c *Client) CaptureOrder(ctx context.Context, orderID string, amount int64) (*Order, error) {
	body := map[string]int64{}
	if amount > 0 {
		body["amount"] = amount
	}

	var order Order
	if err := c.doRequest(ctx, http.MethodPost, "/orders/"+orderID+"/capture", body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// RefundOrder возвращает средства по заказу.
func (c *Client) RefundOrder(ctx context.Context, orderID string, amount int64, reason string) (*Order, error) {
	body := map[string]any{
		"amount":      amount,
		"description": reason,
	}

	var order Order
	if err := c.doRequest(ctx, http.MethodPost, "/orders/"+orderID+"/refund", body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// CancelOrder отменяет неоплаченный заказ у провайдера.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	return c.doRequest(ctx, http.MethodDelete, "/orders/"+orderID, nil, nil)
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, payload, result any) error {
	if c == nil || c.apiKey == "" {
		return fmt.Errorf("revolut client not configured")
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: "API request failed"}

		var errResp struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Message != "" {
			apiErr.Message = errResp.Message
		}

		return apiErr
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}
