// Package webhook реализует обработку уведомлений Revolut об изменении
// состояния платежа: поиск заказа, подавление дублей и конечный автомат
// статусов заказа.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/VrumVrum/Gatespark/internal/model"
)

// Типы событий, присылаемых Revolut.
const (
	EventOrderCompleted     = "ORDER_COMPLETED"
	EventOrderAuthorised    = "ORDER_AUTHORISED"
	EventOrderPaymentFailed = "ORDER_PAYMENT_FAILED"
	EventOrderCancelled     = "ORDER_CANCELLED"
)

// processTimeout ограничивает время поиска заказа и применения перехода,
// чтобы не держать входящее соединение: Revolut повторит доставку при 5xx.
const processTimeout = 5 * time.Second

// Repository описывает контракт доступа к данным, используемый обработчиком.
type Repository interface {
	FindOrdersByRevolutID(ctx context.Context, revolutID string, limit int) ([]model.Order, error)
	MarkEventProcessed(ctx context.Context, orderID int64, eventID string) (bool, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus, note string) error
	AddOrderNote(ctx context.Context, orderID int64, note string) error
}

// StatsSink принимает записи о транзакциях для дневной статистики.
type StatsSink interface {
	LogTransaction(ctx context.Context, order *model.Order, status model.OrderStatus, amountCents int64) error
}

// Processor применяет события вебхуков к заказам. Зависимости передаются
// явно при создании, по одной точке входа на транспорт.
type Processor struct {
	repo   Repository
	stats  StatsSink
	logger *zap.Logger
	now    func() time.Time
}

// NewProcessor создаёт обработчик вебхуков с указанными зависимостями.
func NewProcessor(repo Repository, stats StatsSink, logger *zap.Logger) *Processor {
	return &Processor{
		repo:   repo,
		stats:  stats,
		logger: logger,
		now:    time.Now,
	}
}

// ParseEvent разбирает тело вебхука. Пустое или некорректное тело
// считается отказом empty_payload.
func ParseEvent(body []byte) (*model.WebhookEvent, *Error) {
	if len(body) == 0 {
		return nil, newError(CodeEmptyPayload, "empty webhook payload")
	}

	var ev model.WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, newError(CodeEmptyPayload, "empty webhook payload")
	}

	return &ev, nil
}

// EventID строит идентификатор события для подавления дублей. Revolut не
// присылает собственный идентификатор, поэтому ключ собирается из типа
// события, заказа и метки времени. При отсутствии метки используется
// время получения: повторная доставка без timestamp будет выглядеть как
// новое событие.
func EventID(ev *model.WebhookEvent, receivedAt time.Time) string {
	ts := receivedAt.Unix()
	if ev.Timestamp != nil {
		ts = *ev.Timestamp
	}
	return ev.Event + "_" + ev.OrderID + "_" + strconv.FormatInt(ts, 10)
}

// Process применяет событие вебхука к заказу. Возвращает *Error для
// отказов из таксономии (неполные поля, неизвестный заказ или тип
// события) и обычную ошибку при внутренних сбоях. Повторная доставка
// уже применённого события завершается успешно без побочных эффектов.
func (p *Processor) Process(ctx context.Context, ev *model.WebhookEvent) error {
	ctx, cancel := context.WithTimeout(ctx, processTimeout)
	defer cancel()

	if ev == nil || ev.Event == "" || ev.OrderID == "" {
		p.logger.Warn("webhook missing required fields")
		return newError(CodeMissingFields, "missing required webhook fields")
	}

	orders, err := p.repo.FindOrdersByRevolutID(ctx, ev.OrderID, 2)
	if err != nil {
		return fmt.Errorf("find order by revolut id: %w", err)
	}
	if len(orders) == 0 {
		p.logger.Warn("webhook order not found", zap.String("revolutOrderID", ev.OrderID))
		return newError(CodeOrderNotFound, "order not found")
	}
	if len(orders) > 1 {
		// Уникальный индекс в схеме не должен этого допускать.
		p.logger.Error("multiple orders match revolut order id",
			zap.String("revolutOrderID", ev.OrderID))
	}
	order := orders[0]

	eventID := EventID(ev, p.now())

	recorded, err := p.repo.MarkEventProcessed(ctx, order.ID, eventID)
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	if !recorded {
		p.logger.Info("duplicate webhook event ignored",
			zap.String("eventID", eventID), zap.Int64("orderID", order.ID))
		return nil
	}

	switch ev.Event {
	case EventOrderCompleted:
		return p.handleCompleted(ctx, &order, ev)
	case EventOrderAuthorised:
		return p.handleAuthorised(ctx, &order, ev)
	case EventOrderPaymentFailed:
		return p.handleFailed(ctx, &order, ev)
	case EventOrderCancelled:
		return p.handleCancelled(ctx, &order, ev)
	default:
		p.logger.Warn("unknown webhook event type", zap.String("event", ev.Event))
		return newError(CodeUnknownEvent, "unknown event type")
	}
}

func (p *Processor) handleCompleted(ctx context.Context, order *model.Order, ev *model.WebhookEvent) error {
	if order.Status == model.OrderStatusCompleted || order.Status == model.OrderStatusProcessing {
		p.logger.Info("order already paid", zap.Int64("orderID", order.ID))
		return nil
	}

	note := fmt.Sprintf("Revolut payment completed. Transaction ID: %s", ev.OrderID)
	if err := p.repo.UpdateOrderStatus(ctx, order.ID, model.OrderStatusCompleted, note); err != nil {
		return fmt.Errorf("complete order: %w", err)
	}

	p.logTransaction(ctx, order, model.OrderStatusCompleted, order.TotalCents)

	p.logger.Info("order completed", zap.Int64("orderID", order.ID))
	return nil
}

func (p *Processor) handleAuthorised(ctx context.Context, order *model.Order, ev *model.WebhookEvent) error {
	if order.Status != model.OrderStatusPending {
		p.logger.Info("order not pending, authorisation ignored", zap.Int64("orderID", order.ID))
		return nil
	}

	if err := p.repo.UpdateOrderStatus(ctx, order.ID, model.OrderStatusOnHold,
		"Payment authorised, waiting for capture."); err != nil {
		return fmt.Errorf("hold order: %w", err)
	}

	note := fmt.Sprintf("Revolut payment authorised. Transaction ID: %s", ev.OrderID)
	if err := p.repo.AddOrderNote(ctx, order.ID, note); err != nil {
		return fmt.Errorf("add order note: %w", err)
	}

	p.logger.Info("order authorised", zap.Int64("orderID", order.ID))
	return nil
}

func (p *Processor) handleFailed(ctx context.Context, order *model.Order, ev *model.WebhookEvent) error {
	if order.Status == model.OrderStatusFailed {
		p.logger.Info("order already failed", zap.Int64("orderID", order.ID))
		return nil
	}

	reason := ev.Reason
	if reason == "" {
		reason = "unknown reason"
	}

	if err := p.repo.UpdateOrderStatus(ctx, order.ID, model.OrderStatusFailed,
		fmt.Sprintf("Payment failed: %s", reason)); err != nil {
		return fmt.Errorf("fail order: %w", err)
	}

	note := fmt.Sprintf("Revolut payment failed. Reason: %s. Transaction ID: %s", reason, ev.OrderID)
	if err := p.repo.AddOrderNote(ctx, order.ID, note); err != nil {
		return fmt.Errorf("add order note: %w", err)
	}

	p.logTransaction(ctx, order, model.OrderStatusFailed, 0)

	p.logger.Info("order failed", zap.Int64("orderID", order.ID), zap.String("reason", reason))
	return nil
}

func (p *Processor) handleCancelled(ctx context.Context, order *model.Order, ev *model.WebhookEvent) error {
	if order.Status == model.OrderStatusCancelled {
		p.logger.Info("order already cancelled", zap.Int64("orderID", order.ID))
		return nil
	}

	if err := p.repo.UpdateOrderStatus(ctx, order.ID, model.OrderStatusCancelled,
		"Payment cancelled by customer."); err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}

	note := fmt.Sprintf("Revolut payment cancelled. Transaction ID: %s", ev.OrderID)
	if err := p.repo.AddOrderNote(ctx, order.ID, note); err != nil {
		return fmt.Errorf("add order note: %w", err)
	}

	p.logger.Info("order cancelled", zap.Int64("orderID", order.ID))
	return nil
}

// logTransaction пишет запись в дневную статистику. Ошибка записи не
// прерывает обработку вебхука: статистика ведётся по принципу best-effort.
func (p *Processor) logTransaction(ctx context.Context, order *model.Order, status model.OrderStatus, amountCents int64) {
	if p.stats == nil {
		return
	}
	if err := p.stats.LogTransaction(ctx, order, status, amountCents); err != nil {
		p.logger.Error("log transaction stat", zap.Error(err), zap.Int64("orderID", order.ID))
	}
}
