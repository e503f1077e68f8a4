package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/VrumVrum/Gatespark/internal/model"
	"github.com/VrumVrum/Gatespark/internal/repository"
	"github.com/VrumVrum/Gatespark/internal/service"
)

type createOrderRequest struct {
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	CustomerEmail string `json:"customer_email"`
}

type orderResponse struct {
	ID              int64  `json:"id"`
	Status          string `json:"status"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	CustomerEmail   string `json:"customer_email,omitempty"`
	RevolutOrderID  string `json:"revolut_order_id,omitempty"`
	RevolutPublicID string `json:"revolut_public_id,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func toOrderResponse(o *model.Order) orderResponse {
	return orderResponse{
		ID:              o.ID,
		Status:          string(o.Status),
		Amount:          o.TotalCents,
		Currency:        o.Currency,
		CustomerEmail:   o.CustomerEmail,
		RevolutOrderID:  o.RevolutOrderID,
		RevolutPublicID: o.RevolutPublicID,
		CreatedAt:       o.CreatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) orderID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// CreateOrder создаёт новый заказ магазина.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.CreateOrder(r.Context(), req.Amount, req.Currency, req.CustomerEmail)
	if err != nil {
		if errors.Is(err, service.ErrInvalidAmount) || errors.Is(err, service.ErrUnsupportedCurrency) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("create order", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// GetOrder возвращает заказ по идентификатору.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get order", zap.Error(err), zap.Int64("orderID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

type noteResponse struct {
	Note      string `json:"note"`
	CreatedAt string `json:"created_at"`
}

// GetOrderNotes возвращает журнал заказа.
func (h *Handler) GetOrderNotes(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	notes, err := h.service.GetOrderNotes(r.Context(), id)
	if err != nil {
		h.logger.Error("get order notes", zap.Error(err), zap.Int64("orderID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]noteResponse, 0, len(notes))
	for _, n := range notes {
		resp = append(resp, noteResponse{
			Note:      n.Note,
			CreatedAt: n.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type checkoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
}

// Checkout создаёт заказ у провайдера и возвращает URL страницы оплаты.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	url, err := h.service.Checkout(r.Context(), id)
	if err != nil {
		h.paymentError(w, err, id, "checkout")
		return
	}

	h.writeJSON(w, http.StatusOK, checkoutResponse{CheckoutURL: url})
}

type refundRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// Refund выполняет возврат средств по заказу.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.Refund(r.Context(), id, req.Amount, req.Reason); err != nil {
		h.paymentError(w, err, id, "refund")
		return
	}

	w.WriteHeader(http.StatusOK)
}

type captureRequest struct {
	Amount int64 `json:"amount"`
}

// Capture списывает ранее авторизованный платёж.
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req captureRequest
	if r.Body != nil {
		// Тело необязательно: без суммы списывается полная сумма заказа.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if err := h.service.Capture(r.Context(), id, req.Amount); err != nil {
		h.paymentError(w, err, id, "capture")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Cancel отменяет неоплаченный заказ у провайдера.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.Cancel(r.Context(), id); err != nil {
		h.paymentError(w, err, id, "cancel")
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) paymentError(w http.ResponseWriter, err error, orderID int64, op string) {
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, service.ErrNoProcessorRef):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrGatewayNotConfigured):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		h.logger.Error(op+" error", zap.Error(err), zap.Int64("orderID", orderID))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
	}
}
