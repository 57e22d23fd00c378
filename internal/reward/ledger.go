package reward

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/cardspend-system/internal/model"
)

// Ledger — журнал бонусных баллов. Журнал только пополняется; сторнирование
// выполняется отрицательной записью. Реализация обязана сериализовать
// чтение-и-запись по одному способу оплаты, чтобы параллельные расчёты не
// превысили месячный лимит.
type Ledger interface {
	// UsedBonusPoints возвращает сумму бонусных баллов способа оплаты за
	// период. Ненулевой excludeTxID исключает движения указанной операции —
	// используется при пересчёте этой же операции.
	UsedBonusPoints(ctx context.Context, methodID int64, period model.Period, excludeTxID int64) (int64, error)

	// Reserve атомарно начисляет до requested баллов в пределах остатка
	// лимита cap (cap <= 0 — без лимита) и записывает движение журнала.
	// Возвращает фактически начисленные баллы, всегда >= 0.
	Reserve(ctx context.Context, txID, methodID int64, occurredAt time.Time, period model.Period, requested, cap int64) (int64, error)

	// Reverse сторнирует движения операции одной отрицательной записью.
	// Повторный вызов для уже сторнированной операции ничего не делает.
	Reverse(ctx context.Context, txID int64) error
}

// SpendProvider возвращает накопленные траты способа оплаты за расчётный
// период в валюте способа оплаты.
type SpendProvider interface {
	StatementSpend(ctx context.Context, methodID int64, period model.Period, excludeTxID int64) (decimal.Decimal, error)
}
