// Package model содержит доменные сущности платёжного шлюза GateSpark.
package model

import "time"

// OrderStatus описывает статус платёжного заказа.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusOnHold     OrderStatus = "on-hold"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// Order описывает заказ магазина и его привязку к заказу в Revolut.
// Денежные суммы хранятся в минимальных единицах валюты.
type Order struct {
	ID              int64
	Status          OrderStatus
	TotalCents      int64
	Currency        string
	CustomerEmail   string
	RevolutOrderID  string
	RevolutPublicID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderNote представляет запись в журнале изменений заказа.
type OrderNote struct {
	ID        int64
	OrderID   int64
	Note      string
	CreatedAt time.Time
}

// WebhookEvent описывает разобранное тело входящего вебхука Revolut.
type WebhookEvent struct {
	Event     string `json:"event"`
	OrderID   string `json:"order_id"`
	Timestamp *int64 `json:"timestamp,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// DailyStat содержит агрегированную статистику транзакций за один день.
type DailyStat struct {
	Date                time.Time
	TotalRevenueCents   int64
	TransactionCount    int64
	SuccessfulCount     int64
	FailedCount         int64
	RefundedCount       int64
	RefundedAmountCents int64
}

// StatTotals содержит сводные показатели за период отчёта.
type StatTotals struct {
	TotalRevenueCents   int64
	TransactionCount    int64
	SuccessfulCount     int64
	FailedCount         int64
	RefundedCount       int64
	RefundedAmountCents int64
	SuccessRate         float64
	AvgOrderCents       int64
}
