package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/cardspend-system/internal/model"
)

// UsedBonusPoints возвращает сумму движений журнала по способу оплаты за
// расчётный период, исключая движения операции excludeTxID (0 — не исключать).
func (r *PostgresRepository) UsedBonusPoints(ctx context.Context, methodID int64, period model.Period, excludeTxID int64) (int64, error) {
	var used int64
	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`SELECT COALESCE(SUM(delta), 0)
			 FROM bonus_movements
			 WHERE method_id = $1
			   AND occurred_at >= $2 AND occurred_at < $3
			   AND ($4 = 0 OR transaction_id <> $4)`,
			methodID, period.Start, period.End.AddDate(0, 0, 1), excludeTxID,
		).Scan(&used)
	})
	if err != nil {
		return 0, fmt.Errorf("used bonus points: %w", err)
	}
	return used, nil
}

// Reserve атомарно резервирует до requested бонусных баллов в пределах
// месячного лимита cap (cap <= 0 — без лимита) и добавляет запись в
// журнал. Строка способа оплаты блокируется FOR UPDATE, поэтому конкурентные
// резервирования по одному способу оплаты сериализуются и лимит не может
// быть превышен.
func (r *PostgresRepository) Reserve(ctx context.Context, txID, methodID int64, occurredAt time.Time, period model.Period, requested, cap int64) (int64, error) {
	if requested <= 0 {
		return 0, nil
	}

	var granted int64
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var locked int
		err = tx.QueryRow(ctx,
			`SELECT 1 FROM payment_methods WHERE id = $1 FOR UPDATE`, methodID,
		).Scan(&locked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrMethodNotFound
			}
			return fmt.Errorf("lock payment method: %w", err)
		}

		granted = requested
		if cap > 0 {
			var used int64
			err = tx.QueryRow(ctx,
				`SELECT COALESCE(SUM(delta), 0)
				 FROM bonus_movements
				 WHERE method_id = $1
				   AND occurred_at >= $2 AND occurred_at < $3
				   AND transaction_id <> $4`,
				methodID, period.Start, period.End.AddDate(0, 0, 1), txID,
			).Scan(&used)
			if err != nil {
				return fmt.Errorf("sum movements: %w", err)
			}

			remaining := cap - used
			if remaining < 0 {
				remaining = 0
			}
			if granted > remaining {
				granted = remaining
			}
		}

		if granted > 0 {
			_, err = tx.Exec(ctx,
				`INSERT INTO bonus_movements (transaction_id, method_id, delta, occurred_at)
				 VALUES ($1, $2, $3, $4)`,
				txID, methodID, granted, occurredAt,
			)
			if err != nil {
				return fmt.Errorf("insert movement: %w", err)
			}
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return 0, err
	}

	return granted, nil
}

// Reverse сторнирует бонусы операции компенсирующей записью журнала.
// Исторические записи не изменяются; если чистая сумма движений уже нулевая,
// ничего не происходит.
func (r *PostgresRepository) Reverse(ctx context.Context, txID int64) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var (
			methodID   int64
			occurredAt time.Time
		)
		err = tx.QueryRow(ctx,
			`SELECT method_id, occurred_at FROM bonus_movements
			 WHERE transaction_id = $1 ORDER BY id LIMIT 1`,
			txID,
		).Scan(&methodID, &occurredAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("find movements: %w", err)
		}

		var locked int
		err = tx.QueryRow(ctx,
			`SELECT 1 FROM payment_methods WHERE id = $1 FOR UPDATE`, methodID,
		).Scan(&locked)
		if err != nil {
			return fmt.Errorf("lock payment method: %w", err)
		}

		var net int64
		err = tx.QueryRow(ctx,
			`SELECT COALESCE(SUM(delta), 0) FROM bonus_movements WHERE transaction_id = $1`,
			txID,
		).Scan(&net)
		if err != nil {
			return fmt.Errorf("sum movements: %w", err)
		}

		if net != 0 {
			_, err = tx.Exec(ctx,
				`INSERT INTO bonus_movements (transaction_id, method_id, delta, occurred_at)
				 VALUES ($1, $2, $3, $4)`,
				txID, methodID, -net, occurredAt,
			)
			if err != nil {
				return fmt.Errorf("insert reversal: %w", err)
			}
		}

		return tx.Commit(ctx)
	})
}
