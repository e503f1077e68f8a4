package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/VrumVrum/Gatespark/internal/model"
	"github.com/VrumVrum/Gatespark/internal/service"
)

func newOrdersHandler(svc Service) *Handler {
	return NewHandler(svc, nil, nil, nil, zap.NewNop())
}

func TestCreateOrder_Success(t *testing.T) {
	svc := &stubService{
		order: &model.Order{
			ID:         1,
			Status:     model.OrderStatusPending,
			TotalCents: 2500,
			Currency:   "EUR",
			CreatedAt:  time.Now(),
		},
	}
	h := newOrdersHandler(svc)

	body, _ := json.Marshal(createOrderRequest{Amount: 2500, Currency: "EUR"})
	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.CreateOrder(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}

	var resp orderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != 1 || resp.Status != "pending" || resp.Amount != 2500 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCreateOrder_UnsupportedCurrency(t *testing.T) {
	svc := &stubService{orderErr: service.ErrUnsupportedCurrency}
	h := newOrdersHandler(svc)

	body, _ := json.Marshal(createOrderRequest{Amount: 100, Currency: "XXX"})
	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.CreateOrder(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	h := newOrdersHandler(&stubService{})

	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/orders/99", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestGetReport_BadDate(t *testing.T) {
	h := newOrdersHandler(&stubService{})

	req := httptest.NewRequest(http.MethodGet, "/gatespark/v1/reports?from=yesterday", nil)
	rec := httptest.NewRecorder()
	h.GetReport(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
