// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/VrumVrum/Gatespark/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrOrderNotFound возвращается, если заказ не найден.
var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrSettingNotFound возвращается, если настройка с указанным ключом отсутствует.
	ErrSettingNotFound = errors.New("setting not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраи полезны для Serialization Failure и Deadlocks.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateOrder создаёт новый заказ в статусе pending и возвращает его идентификатор.
func (r *PostgresRepository) CreateOrder(ctx context.Context, totalCents int64, currency, customerEmail string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO orders (status, total, currency, customer_email)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		string(model.OrderStatusPending), totalCents, currency, customerEmail,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create order: %w", err)
	}
	return id, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	var status string
	err := row.Scan(&o.ID, &status, &o.TotalCents, &o.Currency, &o.CustomerEmail,
		&o.RevolutOrderID, &o.RevolutPublicID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	return &o, nil
}

const orderColumns = `id, status, total, currency, customer_email,
	 revolut_order_id, revolut_public_id, created_at, updated_at`

// GetOrderByID возвращает заказ по локальному идентификатору.
func (r *PostgresRepository) GetOrderByID(ctx context.Context, id int64) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// FindOrdersByRevolutID возвращает заказы с указанным идентификатором заказа Revolut.
// Схема содержит уникальный индекс по revolut_order_id, но вызывающая сторона
// не полагается на это и сама решает, что делать при нескольких совпадениях.
func (r *PostgresRepository) FindOrdersByRevolutID(ctx context.Context, revolutID string, limit int) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE revolut_order_id = $1
		 ORDER BY id
		 LIMIT $2`,
		revolutID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders by revolut id: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// SetOrderRevolutRefs сохраняет идентификаторы заказа Revolut для локального заказа.
func (r *PostgresRepository) SetOrderRevolutRefs(ctx context.Context, orderID int64, revolutID, publicID string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE orders SET revolut_order_id = $2, revolut_public_id = $3, updated_at = now()
		 WHERE id = $1`,
		orderID, revolutID, publicID,
	)
	if err != nil {
		return fmt.Errorf("set revolut refs: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// UpdateOrderStatus переводит заказ в новый статус и добавляет запись в журнал заказа.
// Обновление и запись журнала выполняются в одной транзакции.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus, note string) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		cmdTag, err := tx.Exec(ctx,
			`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`,
			orderID, string(status),
		)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrOrderNotFound
		}

		if note != "" {
			_, err = tx.Exec(ctx,
				`INSERT INTO order_notes (order_id, note) VALUES ($1, $2)`,
				orderID, note,
			)
			if err != nil {
				return fmt.Errorf("insert order note: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

// AddOrderNote добавляет запись в журнал заказа без смены статуса.
func (r *PostgresRepository) AddOrderNote(ctx context.Context, orderID int64, note string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO order_notes (order_id, note) VALUES ($1, $2)`,
		orderID, note,
	)
	if err != nil {
		return fmt.Errorf("insert order note: %w", err)
	}
	return nil
}

// GetOrderNotes возвращает журнал заказа в порядке добавления записей.
func (r *PostgresRepository) GetOrderNotes(ctx context.Context, orderID int64) ([]model.OrderNote, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, note, created_at
		 FROM order_notes
		 WHERE order_id = $1
		 ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order notes: %w", err)
	}
	defer rows.Close()

	var notes []model.OrderNote
	for rows.Next() {
		var n model.OrderNote
		if err := rows.Scan(&n.ID, &n.OrderID, &n.Note, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order note: %w", err)
		}
		notes = append(notes, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return notes, nil
}

// MarkEventProcessed фиксирует идентификатор события вебхука для заказа.
// Возвращает false, если событие уже было записано ранее. Уникальное
// ограничение (order_id, event_id) гарантирует, что из двух конкурентных
// доставок одного события ровно одна получит true.
func (r *PostgresRepository) MarkEventProcessed(ctx context.Context, orderID int64, eventID string) (bool, error) {
	cmdTag, err := r.pool.Exec(ctx,
		`INSERT INTO processed_events (order_id, event_id) VALUES ($1, $2)
		 ON CONFLICT (order_id, event_id) DO NOTHING`,
		orderID, eventID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return false, nil
		}
		return false, fmt.Errorf("insert processed event: %w", err)
	}

	return cmdTag.RowsAffected() == 1, nil
}

// HasProcessedEvent сообщает, было ли событие уже применено к заказу.
func (r *PostgresRepository) HasProcessedEvent(ctx context.Context, orderID int64, eventID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM processed_events WHERE order_id = $1 AND event_id = $2)`,
		orderID, eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check processed event: %w", err)
	}
	return exists, nil
}
