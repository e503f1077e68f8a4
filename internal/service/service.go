// Package service реализует бизнес-логику платёжного шлюза: создание и
// оплату заказов через Revolut, возвраты и ведение дневной статистики.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/VrumVrum/Gatespark/internal/model"
	"github.com/VrumVrum/Gatespark/internal/repository"
	"github.com/VrumVrum/Gatespark/internal/revolut"
	"github.com/VrumVrum/Gatespark/internal/signature"
	"github.com/VrumVrum/Gatespark/internal/validation"
)

// ErrUnsupportedCurrency возвращается для валют, которые провайдер не принимает.
var (
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	// ErrInvalidAmount возвращается при неположительной сумме заказа.
	ErrInvalidAmount = errors.New("order amount must be positive")
	// ErrGatewayNotConfigured возвращается, если клиент Merchant API не настроен.
	ErrGatewayNotConfigured = errors.New("payment gateway not configured")
	// ErrNoProcessorRef возвращается, если у заказа нет привязки к заказу Revolut.
	ErrNoProcessorRef = errors.New("order has no revolut order id")
)

const webhookSecretKey = "webhook_secret"

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateOrder(ctx context.Context, totalCents int64, currency, customerEmail string) (int64, error)
	GetOrderByID(ctx context.Context, id int64) (*model.Order, error)
	SetOrderRevolutRefs(ctx context.Context, orderID int64, revolutID, publicID string) error
	UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus, note string) error
	AddOrderNote(ctx context.Context, orderID int64, note string) error
	GetOrderNotes(ctx context.Context, orderID int64) ([]model.OrderNote, error)
	IncrementStats(ctx context.Context, date time.Time, status model.OrderStatus, amountCents int64) error
	GetStatsRange(ctx context.Context, from, to time.Time) ([]model.DailyStat, error)
	RebuildStatsForDate(ctx context.Context, date time.Time) error
	GetSetting(ctx context.Context, key string) (string, error)
	EnsureSetting(ctx context.Context, key, value string) (string, error)
}

// PaymentAPI описывает контракт клиента Merchant API, используемый сервисом.
type PaymentAPI interface {
	CreateOrder(ctx context.Context, req *revolut.OrderRequest) (*revolut.Order, error)
	GetOrder(ctx context.Context, orderID string) (*revolut.Order, error)
	CaptureOrder(ctx context.Context, orderID string, amount int64) (*revolut.Order, error)
	RefundOrder(ctx context.Context, orderID string, amount int64, reason string) (*revolut.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// Service содержит бизнес-логику платёжного шлюза.
type Service struct {
	repo        Repository
	api         PaymentAPI
	logger      *zap.Logger
	orderPrefix string
}

// NewService создаёт сервис с указанным репозиторием и клиентом Merchant API.
// api может быть nil, если ключ не настроен: операции оплаты будут
// завершаться ошибкой ErrGatewayNotConfigured.
func NewService(repo Repository, api PaymentAPI, logger *zap.Logger, orderPrefix string) *Service {
	return &Service{
		repo:        repo,
		api:         api,
		logger:      logger,
		orderPrefix: orderPrefix,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// EnsureWebhookSecret возвращает секрет подписи вебхуков, генерируя и
// сохраняя его при первом запуске. Повторная генерация не выполняется.
func (s *Service) EnsureWebhookSecret(ctx context.Context) (string, error) {
	secret, err := s.repo.GetSetting(ctx, webhookSecretKey)
	if err == nil {
		return secret, nil
	}
	if !errors.Is(err, repository.ErrSettingNotFound) {
		return "", err
	}

	generated, err := signature.GenerateSecret()
	if err != nil {
		return "", err
	}

	return s.repo.EnsureSetting(ctx, webhookSecretKey, generated)
}

// CreateOrder создаёт локальный заказ в статусе pending.
func (s *Service) CreateOrder(ctx context.Context, totalCents int64, currency, customerEmail string) (*model.Order, error) {
	if totalCents <= 0 {
		return nil, ErrInvalidAmount
	}
	if !validation.IsSupportedCurrency(currency) {
		return nil, ErrUnsupportedCurrency
	}

	id, err := s.repo.CreateOrder(ctx, totalCents, currency, customerEmail)
	if err != nil {
		return nil, err
	}

	return s.repo.GetOrderByID(ctx, id)
}

// GetOrder возвращает заказ по идентификатору.
func (s *Service) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	return s.repo.GetOrderByID(ctx, id)
}

// GetOrderNotes возвращает журнал заказа.
func (s *Service) GetOrderNotes(ctx context.Context, orderID int64) ([]model.OrderNote, error) {
	return s.repo.GetOrderNotes(ctx, orderID)
}

// Checkout создаёт заказ у провайдера, сохраняет его идентификаторы и
// возвращает URL страницы оплаты.
func (s *Service) Checkout(ctx context.Context, orderID int64) (string, error) {
	if s.api == nil {
		return "", ErrGatewayNotConfigured
	}

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return "", err
	}

	req := &revolut.OrderRequest{
		Amount:             order.TotalCents,
		Currency:           order.Currency,
		MerchantOrderRef:   fmt.Sprintf("%s%d", s.orderPrefix, order.ID),
		Description:        fmt.Sprintf("Order #%d", order.ID),
		CustomerEmail:      order.CustomerEmail,
		SettlementCurrency: order.Currency,
		CaptureMode:        "AUTOMATIC",
	}

	created, err := s.api.CreateOrder(ctx, req)
	if err != nil {
		s.logger.Error("create revolut order", zap.Error(err), zap.Int64("orderID", order.ID))
		return "", err
	}

	if err := s.repo.SetOrderRevolutRefs(ctx, order.ID, created.ID, created.PublicID); err != nil {
		return "", err
	}

	if err := s.repo.AddOrderNote(ctx, order.ID,
		fmt.Sprintf("Revolut order created: %s", created.ID)); err != nil {
		return "", err
	}

	// Строка статистики за сегодня создаётся заранее, счётчики не меняются.
	if err := s.repo.IncrementStats(ctx, time.Now(), model.OrderStatusPending, 0); err != nil {
		s.logger.Error("log pending stat", zap.Error(err), zap.Int64("orderID", order.ID))
	}

	s.logger.Info("revolut order created",
		zap.Int64("orderID", order.ID), zap.String("revolutOrderID", created.ID))

	return created.CheckoutURL, nil
}

// Refund выполняет возврат средств по заказу. Нулевая сумма означает
// возврат полной суммы заказа.
func (s *Service) Refund(ctx context.Context, orderID, amountCents int64, reason string) error {
	if s.api == nil {
		return ErrGatewayNotConfigured
	}

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.RevolutOrderID == "" {
		return ErrNoProcessorRef
	}

	full := amountCents <= 0 || amountCents >= order.TotalCents
	if amountCents <= 0 {
		amountCents = order.TotalCents
	}

	if _, err := s.api.RefundOrder(ctx, order.RevolutOrderID, amountCents, reason); err != nil {
		s.logger.Error("refund revolut order", zap.Error(err), zap.Int64("orderID", order.ID))
		return err
	}

	note := fmt.Sprintf("Revolut refund processed: %d %s. Reason: %s", amountCents, order.Currency, reason)
	if full {
		if err := s.repo.UpdateOrderStatus(ctx, order.ID, model.OrderStatusRefunded, note); err != nil {
			return err
		}
	} else {
		if err := s.repo.AddOrderNote(ctx, order.ID, note); err != nil {
			return err
		}
	}

	if err := s.repo.IncrementStats(ctx, time.Now(), model.OrderStatusRefunded, amountCents); err != nil {
		s.logger.Error("log refunded stat", zap.Error(err), zap.Int64("orderID", order.ID))
	}

	s.logger.Info("refund processed", zap.Int64("orderID", order.ID), zap.Int64("amount", amountCents))
	return nil
}

// Capture списывает ранее авторизованный платёж. Итоговый статус заказа
// установит вебхук ORDER_COMPLETED от провайдера.
func (s *Service) Capture(ctx context.Context, orderID, amountCents int64) error {
	if s.api == nil {
		return ErrGatewayNotConfigured
	}

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.RevolutOrderID == "" {
		return ErrNoProcessorRef
	}

	if _, err := s.api.CaptureOrder(ctx, order.RevolutOrderID, amountCents); err != nil {
		s.logger.Error("capture revolut order", zap.Error(err), zap.Int64("orderID", order.ID))
		return err
	}

	return s.repo.AddOrderNote(ctx, order.ID,
		fmt.Sprintf("Revolut capture requested: %s", order.RevolutOrderID))
}

// Cancel отменяет неоплаченный заказ у провайдера. Локальный статус
// установит вебхук ORDER_CANCELLED.
func (s *Service) Cancel(ctx context.Context, orderID int64) error {
	if s.api == nil {
		return ErrGatewayNotConfigured
	}

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.RevolutOrderID == "" {
		return ErrNoProcessorRef
	}

	if err := s.api.CancelOrder(ctx, order.RevolutOrderID); err != nil {
		s.logger.Error("cancel revolut order", zap.Error(err), zap.Int64("orderID", order.ID))
		return err
	}

	return s.repo.AddOrderNote(ctx, order.ID,
		fmt.Sprintf("Revolut order cancelled: %s", order.RevolutOrderID))
}

// LogTransaction реализует приёмник статистики для обработчика вебхуков.
// Нулевая сумма заменяется полной суммой заказа.
func (s *Service) LogTransaction(ctx context.Context, order *model.Order, status model.OrderStatus, amountCents int64) error {
	if amountCents <= 0 {
		amountCents = order.TotalCents
	}
	return s.repo.IncrementStats(ctx, time.Now(), status, amountCents)
}

// GetReport возвращает дневную статистику за период и сводные показатели.
func (s *Service) GetReport(ctx context.Context, from, to time.Time) ([]model.DailyStat, *model.StatTotals, error) {
	stats, err := s.repo.GetStatsRange(ctx, from, to)
	if err != nil {
		return nil, nil, err
	}

	totals := &model.StatTotals{}
	for _, st := range stats {
		totals.TotalRevenueCents += st.TotalRevenueCents
		totals.TransactionCount += st.TransactionCount
		totals.SuccessfulCount += st.SuccessfulCount
		totals.FailedCount += st.FailedCount
		totals.RefundedCount += st.RefundedCount
		totals.RefundedAmountCents += st.RefundedAmountCents
	}

	if totals.TransactionCount > 0 {
		rate := float64(totals.SuccessfulCount) / float64(totals.TransactionCount) * 100
		totals.SuccessRate = float64(int(rate*10+0.5)) / 10
	}
	if totals.SuccessfulCount > 0 {
		totals.AvgOrderCents = totals.TotalRevenueCents / totals.SuccessfulCount
	}

	return stats, totals, nil
}

// StartDailyStatsRebuild запускает фоновый пересчёт статистики за
// предыдущий день. Пересчёт сверяет инкрементальные счётчики с таблицей
// заказов раз в сутки.
func (s *Service) StartDailyStatsRebuild(ctx context.Context) {
	go func() {
		s.rebuildYesterday(ctx)

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.rebuildYesterday(ctx)
			}
		}
	}()
}

func (s *Service) rebuildYesterday(ctx context.Context) {
	yesterday := time.Now().AddDate(0, 0, -1)
	if err := s.repo.RebuildStatsForDate(ctx, yesterday); err != nil {
		s.logger.Error("rebuild daily stats", zap.Error(err))
	}
}
