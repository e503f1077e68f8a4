// Package handler содержит HTTP-обработчики платёжного шлюза.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/VrumVrum/Gatespark/internal/model"
	"github.com/VrumVrum/Gatespark/internal/ratelimit"
	"github.com/VrumVrum/Gatespark/internal/signature"
	"github.com/VrumVrum/Gatespark/internal/webhook"
)

// signatureHeader передаёт hex-представление HMAC-SHA256 от тела запроса.
const signatureHeader = "X-Revolut-Signature"

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateOrder(ctx context.Context, totalCents int64, currency, customerEmail string) (*model.Order, error)
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	GetOrderNotes(ctx context.Context, orderID int64) ([]model.OrderNote, error)
	Checkout(ctx context.Context, orderID int64) (string, error)
	Refund(ctx context.Context, orderID, amountCents int64, reason string) error
	Capture(ctx context.Context, orderID, amountCents int64) error
	Cancel(ctx context.Context, orderID int64) error
	GetReport(ctx context.Context, from, to time.Time) ([]model.DailyStat, *model.StatTotals, error)
}

// WebhookProcessor определяет точку входа обработки вебхуков.
type WebhookProcessor interface {
	Process(ctx context.Context, ev *model.WebhookEvent) error
}

// Handler реализует HTTP-обработчики платёжного шлюза.
type Handler struct {
	service   Service
	processor WebhookProcessor
	verifier  *signature.Verifier
	limiter   *ratelimit.Limiter
	logger    *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, p WebhookProcessor, v *signature.Verifier, l *ratelimit.Limiter, logger *zap.Logger) *Handler {
	return &Handler{
		service:   s,
		processor: p,
		verifier:  v,
		limiter:   l,
		logger:    logger,
	}
}

type webhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

// clientKey определяет ключ источника для ограничителя частоты.
func clientKey(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RestWebhook обрабатывает вебхук на современном REST-пути: сначала
// ограничитель частоты, затем проверка подписи по исходным байтам тела,
// затем разбор и применение события.
func (h *Handler) RestWebhook(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow(clientKey(r)) {
		h.writeJSON(w, http.StatusTooManyRequests, webhookResponse{
			Success: false,
			Message: "Too many requests",
		})
		return
	}

	if h.processor == nil || h.verifier == nil {
		h.writeJSON(w, http.StatusInternalServerError, webhookResponse{
			Success: false,
			Message: "Payment gateway not configured",
		})
		return
	}

	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 {
		h.writeJSON(w, http.StatusBadRequest, webhookResponse{
			Success: false,
			Message: "Empty webhook payload",
		})
		return
	}

	sig := r.Header.Get(signatureHeader)
	if sig == "" {
		h.writeJSON(w, http.StatusBadRequest, webhookResponse{
			Success: false,
			Message: "Missing webhook signature",
		})
		return
	}

	if !h.verifier.Verify(body, sig) {
		h.logger.Warn("webhook signature verification failed", zap.String("source", clientKey(r)))
		h.writeJSON(w, http.StatusUnauthorized, webhookResponse{
			Success: false,
			Message: "Invalid webhook signature",
		})
		return
	}

	ev, perr := webhook.ParseEvent(body)
	if perr != nil {
		h.writeJSON(w, http.StatusBadRequest, webhookResponse{
			Success: false,
			Message: perr.Message,
		})
		return
	}

	if err := h.processor.Process(r.Context(), ev); err != nil {
		status, msg := webhookErrorStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("process webhook", zap.Error(err))
		}
		h.writeJSON(w, status, webhookResponse{Success: false, Message: msg})
		return
	}

	h.writeJSON(w, http.StatusOK, webhookResponse{
		Success: true,
		Message: "Webhook processed successfully",
	})
}

// LegacyWebhook обрабатывает вебхук на устаревшем пути. Подпись и
// ограничитель частоты здесь не применяются, как в исходной интеграции;
// ответ ограничен голым кодом состояния.
func (h *Handler) LegacyWebhook(w http.ResponseWriter, r *http.Request) {
	if h.processor == nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 {
		h.logger.Warn("legacy webhook: empty payload")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ev, perr := webhook.ParseEvent(body)
	if perr != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.processor.Process(r.Context(), ev); err != nil {
		status, _ := webhookErrorStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("process legacy webhook", zap.Error(err))
		}
		w.WriteHeader(status)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// webhookErrorStatus транслирует ошибку обработчика вебхуков в HTTP-статус.
// Отказы таксономии дают 400, внутренние сбои и таймауты 5xx, чтобы
// провайдер повторил доставку.
func webhookErrorStatus(err error) (int, string) {
	var werr *webhook.Error
	if errors.As(err, &werr) {
		switch werr.Code {
		case webhook.CodeEmptyPayload, webhook.CodeMissingFields,
			webhook.CodeOrderNotFound, webhook.CodeUnknownEvent:
			return http.StatusBadRequest, werr.Message
		}
	}
	return http.StatusInternalServerError, "Webhook processing failed"
}
