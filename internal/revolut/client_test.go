package revolut

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCreateOrder_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/orders" {
			t.Fatalf("path = %s, want /orders", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Fatalf("authorization = %q, want bearer token", auth)
		}

		var req OrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Amount != 2500 || req.Currency != "EUR" {
			t.Fatalf("unexpected request: %+v", req)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Order{
			ID:          "rev-1",
			PublicID:    "pub-1",
			State:       "PENDING",
			CheckoutURL: "https://checkout.revolut.com/pub-1",
		})
	}))
	defer ts.Close()

	client := newClientWithBaseURL("sk-test", ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	order, err := client.CreateOrder(ctx, &OrderRequest{Amount: 2500, Currency: "EUR"})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}
	if order.ID != "rev-1" || order.PublicID != "pub-1" {
		t.Fatalf("unexpected order: %+v", order)
	}
	if order.CheckoutURL == "" {
		t.Fatalf("checkout url must be set")
	}
}

func TestCreateOrder_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"currency not supported"}`))
	}))
	defer ts.Close()

	client := newClientWithBaseURL("sk-test", ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := client.CreateOrder(ctx, &OrderRequest{Amount: 1, Currency: "XXX"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", apiErr.StatusCode)
	}
	if apiErr.Message != "currency not supported" {
		t.Fatalf("message = %q", apiErr.Message)
	}
}

func TestRefundOrder_Path(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders/rev-1/refund" {
			t.Fatalf("path = %s, want /orders/rev-1/refund", r.URL.Path)
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["amount"].(float64) != 500 {
			t.Fatalf("amount = %v, want 500", body["amount"])
		}
		if body["description"] != "customer request" {
			t.Fatalf("description = %v", body["description"])
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Order{ID: "rev-1", State: "REFUNDED"})
	}))
	defer ts.Close()

	client := newClientWithBaseURL("sk-test", ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	order, err := client.RefundOrder(ctx, "rev-1", 500, "customer request")
	if err != nil {
		t.Fatalf("RefundOrder error: %v", err)
	}
	if order.State != "REFUNDED" {
		t.Fatalf("state = %s, want REFUNDED", order.State)
	}
}

func TestCancelOrder_NoBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Fatalf("method = %s, want DELETE", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	client := newClientWithBaseURL("sk-test", ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := client.CancelOrder(ctx, "rev-1"); err != nil {
		t.Fatalf("CancelOrder error: %v", err)
	}
}

func TestClient_NotConfigured(t *testing.T) {
	client := NewClient("", false)

	_, err := client.GetOrder(context.Background(), "rev-1")
	if err == nil {
		t.Fatalf("expected error for client without api key")
	}
}
