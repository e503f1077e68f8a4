package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/VrumVrum/Gatespark/internal/model"
)

// IncrementStats увеличивает счётчики дневной статистики для указанной даты.
// Строка за дату создаётся при первом обращении. Статусы вне известного
// набора только создают строку, не меняя счётчиков.
func (r *PostgresRepository) IncrementStats(ctx context.Context, date time.Time, status model.OrderStatus, amountCents int64) error {
	day := date.Format("2006-01-02")

	_, err := r.pool.Exec(ctx,
		`INSERT INTO gateway_daily_stats (stat_date) VALUES ($1)
		 ON CONFLICT (stat_date) DO NOTHING`,
		day,
	)
	if err != nil {
		return fmt.Errorf("ensure stats row: %w", err)
	}

	switch status {
	case model.OrderStatusCompleted, model.OrderStatusProcessing:
		_, err = r.pool.Exec(ctx,
			`UPDATE gateway_daily_stats
			 SET total_revenue = total_revenue + $2,
			     transaction_count = transaction_count + 1,
			     successful_count = successful_count + 1
			 WHERE stat_date = $1`,
			day, amountCents,
		)
	case model.OrderStatusFailed:
		_, err = r.pool.Exec(ctx,
			`UPDATE gateway_daily_stats
			 SET transaction_count = transaction_count + 1,
			     failed_count = failed_count + 1
			 WHERE stat_date = $1`,
			day,
		)
	case model.OrderStatusRefunded:
		_, err = r.pool.Exec(ctx,
			`UPDATE gateway_daily_stats
			 SET refunded_count = refunded_count + 1,
			     refunded_amount = refunded_amount + $2
			 WHERE stat_date = $1`,
			day, amountCents,
		)
	}
	if err != nil {
		return fmt.Errorf("increment stats: %w", err)
	}

	return nil
}

// GetStatsRange возвращает дневную статистику за период включительно.
func (r *PostgresRepository) GetStatsRange(ctx context.Context, from, to time.Time) ([]model.DailyStat, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT stat_date, total_revenue, transaction_count, successful_count,
		        failed_count, refunded_count, refunded_amount
		 FROM gateway_daily_stats
		 WHERE stat_date >= $1 AND stat_date <= $2
		 ORDER BY stat_date`,
		from.Format("2006-01-02"), to.Format("2006-01-02"),
	)
	if err != nil {
		return nil, fmt.Errorf("select stats range: %w", err)
	}
	defer rows.Close()

	var stats []model.DailyStat
	for rows.Next() {
		var s model.DailyStat
		if err := rows.Scan(&s.Date, &s.TotalRevenueCents, &s.TransactionCount,
			&s.SuccessfulCount, &s.FailedCount, &s.RefundedCount, &s.RefundedAmountCents); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return stats, nil
}

// RebuildStatsForDate пересчитывает строку статистики за дату по таблице заказов.
// Используется ежедневной фоновой задачей для сверки счётчиков.
func (r *PostgresRepository) RebuildStatsForDate(ctx context.Context, date time.Time) error {
	day := date.Format("2006-01-02")

	_, err := r.pool.Exec(ctx,
		`INSERT INTO gateway_daily_stats (stat_date, total_revenue, transaction_count,
		        successful_count, failed_count, refunded_count, refunded_amount)
		 SELECT $1,
		        COALESCE(SUM(total) FILTER (WHERE status IN ('processing', 'completed')), 0),
		        COUNT(*),
		        COUNT(*) FILTER (WHERE status IN ('processing', 'completed')),
		        COUNT(*) FILTER (WHERE status = 'failed'),
		        COUNT(*) FILTER (WHERE status = 'refunded'),
		        COALESCE(SUM(total) FILTER (WHERE status = 'refunded'), 0)
		 FROM orders
		 WHERE created_at >= $1::date AND created_at < $1::date + INTERVAL '1 day'
		 ON CONFLICT (stat_date) DO UPDATE
		 SET total_revenue = EXCLUDED.total_revenue,
		     transaction_count = EXCLUDED.transaction_count,
		     successful_count = EXCLUDED.successful_count,
		     failed_count = EXCLUDED.failed_count,
		     refunded_count = EXCLUDED.refunded_count,
		     refunded_amount = EXCLUDED.refunded_amount`,
		day,
	)
	if err != nil {
		return fmt.Errorf("rebuild stats: %w", err)
	}

	return nil
}

// GetSetting возвращает значение настройки шлюза по ключу.
func (r *PostgresRepository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.pool.QueryRow(ctx,
		`SELECT value FROM gateway_settings WHERE key = $1`, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrSettingNotFound
		}
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// EnsureSetting сохраняет значение настройки, если ключ ещё не занят,
// и возвращает итоговое значение. При гонке двух экземпляров побеждает
// первая запись.
func (r *PostgresRepository) EnsureSetting(ctx context.Context, key, value string) (string, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO gateway_settings (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO NOTHING`,
		key, value,
	)
	if err != nil {
		return "", fmt.Errorf("ensure setting: %w", err)
	}

	return r.GetSetting(ctx, key)
}
