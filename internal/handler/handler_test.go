package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/VrumVrum/Gatespark/internal/model"
	"github.com/VrumVrum/Gatespark/internal/ratelimit"
	"github.com/VrumVrum/Gatespark/internal/repository"
	"github.com/VrumVrum/Gatespark/internal/signature"
	"github.com/VrumVrum/Gatespark/internal/webhook"
)

// memRepo — репозиторий в памяти для сквозных тестов вебхуков.
type memRepo struct {
	orders    map[int64]*model.Order
	processed map[string]bool
	notes     []string
}

func newMemRepo(orders ...*model.Order) *memRepo {
	r := &memRepo{
		orders:    make(map[int64]*model.Order),
		processed: make(map[string]bool),
	}
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return r
}

func (r *memRepo) FindOrdersByRevolutID(ctx context.Context, revolutID string, limit int) ([]model.Order, error) {
	var res []model.Order
	for _, o := range r.orders {
		if o.RevolutOrderID == revolutID && len(res) < limit {
			res = append(res, *o)
		}
	}
	return res, nil
}

func (r *memRepo) MarkEventProcessed(ctx context.Context, orderID int64, eventID string) (bool, error) {
	if r.processed[eventID] {
		return false, nil
	}
	r.processed[eventID] = true
	return true, nil
}

func (r *memRepo) UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus, note string) error {
	r.orders[orderID].Status = status
	if note != "" {
		r.notes = append(r.notes, note)
	}
	return nil
}

func (r *memRepo) AddOrderNote(ctx context.Context, orderID int64, note string) error {
	r.notes = append(r.notes, note)
	return nil
}

type memStats struct {
	calls int
}

func (s *memStats) LogTransaction(ctx context.Context, order *model.Order, status model.OrderStatus, amountCents int64) error {
	s.calls++
	return nil
}

// stubService закрывает интерфейс Service в тестах, где вебхуки его не используют.
type stubService struct {
	order    *model.Order
	orderErr error
}

func (s *stubService) CreateOrder(ctx context.Context, totalCents int64, currency, customerEmail string) (*model.Order, error) {
	return s.order, s.orderErr
}

func (s *stubService) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	if s.order == nil {
		return nil, repository.ErrOrderNotFound
	}
	return s.order, s.orderErr
}

func (s *stubService) GetOrderNotes(ctx context.Context, orderID int64) ([]model.OrderNote, error) {
	return nil, nil
}

func (s *stubService) Checkout(ctx context.Context, orderID int64) (string, error) {
	return "", nil
}

func (s *stubService) Refund(ctx context.Context, orderID, amountCents int64, reason string) error {
	return nil
}

func (s *stubService) Capture(ctx context.Context, orderID, amountCents int64) error {
	return nil
}

func (s *stubService) Cancel(ctx context.Context, orderID int64) error {
	return nil
}

func (s *stubService) GetReport(ctx context.Context, from, to time.Time) ([]model.DailyStat, *model.StatTotals, error) {
	return nil, &model.StatTotals{}, nil
}

type webhookEnv struct {
	handler  *Handler
	repo     *memRepo
	stats    *memStats
	verifier *signature.Verifier
	limiter  *ratelimit.Limiter
}

func newWebhookEnv(t *testing.T, orders ...*model.Order) *webhookEnv {
	t.Helper()

	repo := newMemRepo(orders...)
	stats := &memStats{}
	logger := zap.NewNop()

	verifier := signature.NewVerifier("test-secret")
	limiter := ratelimit.NewLimiter(10, time.Minute)
	t.Cleanup(limiter.Close)

	processor := webhook.NewProcessor(repo, stats, logger)
	h := NewHandler(&stubService{}, processor, verifier, limiter, logger)

	return &webhookEnv{handler: h, repo: repo, stats: stats, verifier: verifier, limiter: limiter}
}

func pendingOrder() *model.Order {
	return &model.Order{
		ID:             7,
		Status:         model.OrderStatusPending,
		TotalCents:     2500,
		Currency:       "EUR",
		RevolutOrderID: "rev-7",
	}
}

func (e *webhookEnv) postRest(t *testing.T, body []byte, sign bool) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/gatespark/v1/webhook", bytes.NewReader(body))
	if sign {
		req.Header.Set("X-Revolut-Signature", e.verifier.Sign(body))
	}

	rec := httptest.NewRecorder()
	e.handler.RestWebhook(rec, req)
	return rec
}

func TestRestWebhook_CompletedOrder(t *testing.T) {
	env := newWebhookEnv(t, pendingOrder())

	body := []byte(`{"event":"ORDER_COMPLETED","order_id":"rev-7","timestamp":1700000000}`)
	rec := env.postRest(t, body, true)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp webhookResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Fatalf("response success = false, body %s", rec.Body.String())
	}

	if env.repo.orders[7].Status != model.OrderStatusCompleted {
		t.Fatalf("order status = %s, want completed", env.repo.orders[7].Status)
	}
	if env.stats.calls != 1 {
		t.Fatalf("stats calls = %d, want 1", env.stats.calls)
	}
}

func TestRestWebhook_ReplayIsIdempotent(t *testing.T) {
	env := newWebhookEnv(t, pendingOrder())

	body := []byte(`{"event":"ORDER_COMPLETED","order_id":"rev-7","timestamp":1700000000}`)

	first := env.postRest(t, body, true)
	if first.Code != http.StatusOK {
		t.Fatalf("first delivery status = %d, want 200", first.Code)
	}

	second := env.postRest(t, body, true)
	if second.Code != http.StatusOK {
		t.Fatalf("replay status = %d, want 200", second.Code)
	}

	if env.repo.orders[7].Status != model.OrderStatusCompleted {
		t.Fatalf("order status = %s, want completed", env.repo.orders[7].Status)
	}
	if env.stats.calls != 1 {
		t.Fatalf("stats calls = %d, want exactly 1 after replay", env.stats.calls)
	}
}

func TestRestWebhook_InvalidSignature(t *testing.T) {
	env := newWebhookEnv(t, pendingOrder())

	body := []byte(`{"event":"ORDER_COMPLETED","order_id":"rev-7","timestamp":1700000000}`)

	req := httptest.NewRequest(http.MethodPost, "/gatespark/v1/webhook", bytes.NewReader(body))
	req.Header.Set("X-Revolut-Signature", "deadbeef")

	rec := httptest.NewRecorder()
	env.handler.RestWebhook(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if env.repo.orders[7].Status != model.OrderStatusPending {
		t.Fatalf("order must stay untouched on bad signature")
	}
	if env.stats.calls != 0 {
		t.Fatalf("stats calls = %d, want 0", env.stats.calls)
	}
}

func TestRestWebhook_MissingSignature(t *testing.T) {
	env := newWebhookEnv(t, pendingOrder())

	body := []byte(`{"event":"ORDER_COMPLETED","order_id":"rev-7"}`)
	rec := env.postRest(t, body, false)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRestWebhook_EmptyPayload(t *testing.T) {
	env := newWebhookEnv(t)

	rec := env.postRest(t, nil, false)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRestWebhook_OrderNotFound(t *testing.T) {
	env := newWebhookEnv(t)

	body := []byte(`{"event":"ORDER_COMPLETED","order_id":"ghost","timestamp":1}`)
	rec := env.postRest(t, body, true)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	var resp webhookResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success {
		t.Fatalf("response success must be false")
	}
}

func TestRestWebhook_RateLimited(t *testing.T) {
	env := newWebhookEnv(t, pendingOrder())

	body := []byte(`{"event":"ORDER_CANCELLED","order_id":"rev-7","timestamp":42}`)

	for i := 0; i < 10; i++ {
		rec := env.postRest(t, body, true)
		if rec.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d must not be rate limited", i+1)
		}
	}

	rec := env.postRest(t, body, true)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("request 11 status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}

	var resp webhookResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success {
		t.Fatalf("rate limited response must not be success")
	}
}

func TestRestWebhook_NotConfigured(t *testing.T) {
	logger := zap.NewNop()
	h := NewHandler(&stubService{}, nil, nil, nil, logger)

	req := httptest.NewRequest(http.MethodPost, "/gatespark/v1/webhook", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	h.RestWebhook(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestLegacyWebhook_NoSignatureRequired(t *testing.T) {
	env := newWebhookEnv(t, pendingOrder())

	body := []byte(`{"event":"ORDER_COMPLETED","order_id":"rev-7","timestamp":1700000000}`)
	req := httptest.NewRequest(http.MethodPost, "/wc-api/gatespark_revolut_webhook", bytes.NewReader(body))

	rec := httptest.NewRecorder()
	env.handler.LegacyWebhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if env.repo.orders[7].Status != model.OrderStatusCompleted {
		t.Fatalf("order status = %s, want completed", env.repo.orders[7].Status)
	}
}

func TestLegacyWebhook_EmptyPayload(t *testing.T) {
	env := newWebhookEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/wc-api/gatespark_revolut_webhook", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	env.handler.LegacyWebhook(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestLegacyWebhook_UnknownEvent(t *testing.T) {
	env := newWebhookEnv(t, pendingOrder())

	body := []byte(`{"event":"ORDER_EXPLODED","order_id":"rev-7","timestamp":1}`)
	req := httptest.NewRequest(http.MethodPost, "/wc-api/gatespark_revolut_webhook", bytes.NewReader(body))

	rec := httptest.NewRecorder()
	env.handler.LegacyWebhook(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if env.repo.orders[7].Status != model.OrderStatusPending {
		t.Fatalf("unknown event must not mutate order")
	}
}
