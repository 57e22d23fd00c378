package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/cardspend-system/internal/model"
)

// TransactionFilter задаёт фильтры выборки операций пользователя.
type TransactionFilter struct {
	MethodID *int64
	From     *time.Time
	To       *time.Time
}

// CategoryTotal — агрегат трат по эффективной категории и валюте.
type CategoryTotal struct {
	Category model.Category
	Currency string
	Amount   decimal.Decimal
}

// Суммы хранятся в минорных единицах (центах) как int64, decimal.Decimal
// используется только на границе модели.
func centsFromDecimal(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func decimalFromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

// CreateTransaction сохраняет новую операцию и возвращает её идентификатор.
func (r *PostgresRepository) CreateTransaction(ctx context.Context, t *model.Transaction) (int64, error) {
	suggested, err := json.Marshal(t.Suggested)
	if err != nil {
		return 0, fmt.Errorf("marshal suggested: %w", err)
	}

	var id int64
	err = r.pool.QueryRow(ctx,
		`INSERT INTO transactions
		   (user_id, method_id, merchant_id, merchant_name, mcc, amount_cents, currency,
		    occurred_at, online, contactless, category_override, category, confidence,
		    needs_review, suggested)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING id`,
		t.UserID, t.MethodID, t.MerchantID, t.MerchantName, t.MCC,
		centsFromDecimal(t.Amount), t.Currency, t.OccurredAt, t.Online, t.Contactless,
		t.CategoryOverride, string(t.Category), t.Confidence, t.NeedsReview, suggested,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create transaction: %w", err)
	}
	return id, nil
}

// UpdateTransaction обновляет редактируемые пользователем поля операции.
func (r *PostgresRepository) UpdateTransaction(ctx context.Context, t *model.Transaction) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE transactions
		 SET method_id = $1, merchant_id = $2, merchant_name = $3, mcc = $4,
		     amount_cents = $5, currency = $6, occurred_at = $7, online = $8,
		     contactless = $9, category_override = $10, updated_at = now()
		 WHERE id = $11 AND user_id = $12 AND NOT deleted`,
		t.MethodID, t.MerchantID, t.MerchantName, t.MCC,
		centsFromDecimal(t.Amount), t.Currency, t.OccurredAt, t.Online,
		t.Contactless, t.CategoryOverride, t.ID, t.UserID,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// UpdateTransactionDerived сохраняет результаты категоризации и расчёта
// баллов, не трогая пользовательские поля операции.
func (r *PostgresRepository) UpdateTransactionDerived(ctx context.Context, t *model.Transaction) error {
	suggested, err := json.Marshal(t.Suggested)
	if err != nil {
		return fmt.Errorf("marshal suggested: %w", err)
	}

	var base, bonus, total *int64
	provisional := false
	if t.Reward != nil {
		base, bonus, total = &t.Reward.Base, &t.Reward.Bonus, &t.Reward.Total
		provisional = t.Reward.Provisional
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE transactions
		 SET category = $1, confidence = $2, needs_review = $3, suggested = $4,
		     reward_base = $5, reward_bonus = $6, reward_total = $7,
		     reward_provisional = $8, updated_at = now()
		 WHERE id = $9 AND NOT deleted`,
		string(t.Category), t.Confidence, t.NeedsReview, suggested,
		base, bonus, total, provisional, t.ID,
	)
	if err != nil {
		return fmt.Errorf("update transaction derived: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// GetTransaction возвращает операцию пользователя по идентификатору.
func (r *PostgresRepository) GetTransaction(ctx context.Context, userID, id int64) (*model.Transaction, error) {
	row := r.pool.QueryRow(ctx,
		transactionSelect+` WHERE id = $1 AND user_id = $2 AND NOT deleted`,
		id, userID,
	)

	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}

	return t, nil
}

// ListTransactions возвращает операции пользователя по фильтру,
// отсортированные от новых к старым. Удалённые операции не возвращаются.
func (r *PostgresRepository) ListTransactions(ctx context.Context, userID int64, f TransactionFilter) ([]model.Transaction, error) {
	query := transactionSelect + ` WHERE user_id = $1 AND NOT deleted`
	args := []any{userID}

	if f.MethodID != nil {
		args = append(args, *f.MethodID)
		query += fmt.Sprintf(" AND method_id = $%d", len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		query += fmt.Sprintf(" AND occurred_at >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		query += fmt.Sprintf(" AND occurred_at < $%d", len(args))
	}

	query += " ORDER BY occurred_at DESC, id DESC"

	return r.queryTransactions(ctx, query, args...)
}

// ListMethodTransactions возвращает неудалённые операции способа оплаты в
// хронологическом порядке. Используется при пересчёте журнала.
func (r *PostgresRepository) ListMethodTransactions(ctx context.Context, methodID int64) ([]model.Transaction, error) {
	return r.queryTransactions(ctx,
		transactionSelect+` WHERE method_id = $1 AND NOT deleted ORDER BY occurred_at, id`,
		methodID,
	)
}

func (r *PostgresRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]model.Transaction, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		res = append(res, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// SoftDeleteTransaction помечает операцию удалённой. Сама строка остаётся в
// БД для аудита.
func (r *PostgresRepository) SoftDeleteTransaction(ctx context.Context, userID, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE transactions SET deleted = TRUE, updated_at = now()
		 WHERE id = $1 AND user_id = $2 AND NOT deleted`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// StatementSpend возвращает сумму неудалённых операций способа оплаты за
// расчётный период, исключая операцию excludeTxID (0 — не исключать).
func (r *PostgresRepository) StatementSpend(ctx context.Context, methodID int64, period model.Period, excludeTxID int64) (decimal.Decimal, error) {
	var cents int64
	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`SELECT COALESCE(SUM(amount_cents), 0)
			 FROM transactions
			 WHERE method_id = $1 AND NOT deleted
			   AND occurred_at >= $2 AND occurred_at < $3
			   AND ($4 = 0 OR id <> $4)`,
			methodID, period.Start, period.End.AddDate(0, 0, 1), excludeTxID,
		).Scan(&cents)
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("statement spend: %w", err)
	}
	return decimalFromCents(cents), nil
}

// CategoryTotals возвращает суммы трат пользователя по эффективным
// категориям за интервал [from, to).
func (r *PostgresRepository) CategoryTotals(ctx context.Context, userID int64, from, to time.Time) ([]CategoryTotal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT COALESCE(category_override, category), currency, SUM(amount_cents)
		 FROM transactions
		 WHERE user_id = $1 AND NOT deleted AND occurred_at >= $2 AND occurred_at < $3
		 GROUP BY 1, 2
		 ORDER BY 1, 2`,
		userID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("select category totals: %w", err)
	}
	defer rows.Close()

	var res []CategoryTotal
	for rows.Next() {
		var (
			ct    CategoryTotal
			cents int64
		)
		if err := rows.Scan(&ct.Category, &ct.Currency, &cents); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		ct.Amount = decimalFromCents(cents)
		res = append(res, ct)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

const transactionSelect = `
	SELECT id, user_id, method_id, merchant_id, merchant_name, mcc, amount_cents,
	       currency, occurred_at, online, contactless, category_override, category,
	       confidence, needs_review, suggested, reward_base, reward_bonus,
	       reward_total, reward_provisional, created_at, updated_at
	FROM transactions`

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var (
		t            model.Transaction
		cents        int64
		override     *string
		category     string
		suggestedRaw []byte
		base         *int64
		bonus        *int64
		total        *int64
		provisional  bool
	)

	err := row.Scan(&t.ID, &t.UserID, &t.MethodID, &t.MerchantID, &t.MerchantName,
		&t.MCC, &cents, &t.Currency, &t.OccurredAt, &t.Online, &t.Contactless,
		&override, &category, &t.Confidence, &t.NeedsReview, &suggestedRaw,
		&base, &bonus, &total, &provisional, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	t.Amount = decimalFromCents(cents)
	t.Category = model.Category(category)
	if override != nil {
		c := model.Category(*override)
		t.CategoryOverride = &c
	}
	if len(suggestedRaw) > 0 {
		if err := json.Unmarshal(suggestedRaw, &t.Suggested); err != nil {
			return nil, fmt.Errorf("unmarshal suggested: %w", err)
		}
	}
	if total != nil {
		t.Reward = &model.RewardBreakdown{
			Base:        *base,
			Bonus:       *bonus,
			Total:       *total,
			Provisional: provisional,
		}
	}

	return &t, nil
}
