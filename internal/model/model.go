// Package model содержит доменные сущности сервиса cardspend.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// User представляет зарегистрированного пользователя сервиса.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Category — метка категории расходов.
type Category string

// Известные категории расходов.
const (
	CategoryGroceries     Category = "groceries"
	CategoryDining        Category = "dining"
	CategoryFastFood      Category = "fastfood"
	CategoryConvenience   Category = "convenience"
	CategoryCoffee        Category = "coffee"
	CategoryFuel          Category = "fuel"
	CategoryTransport     Category = "transport"
	CategoryShopping      Category = "shopping"
	CategoryElectronics   Category = "electronics"
	CategoryEntertainment Category = "entertainment"
	CategoryTravel        Category = "travel"
	CategoryUtilities     Category = "utilities"
	CategoryHealth        Category = "health"
	CategoryServices      Category = "services"
	CategoryHousehold     Category = "household"
	CategoryUncategorized Category = "uncategorized"
)

// MethodType описывает тип способа оплаты.
type MethodType string

const (
	// MethodTypeCash — наличные: баллы никогда не начисляются.
	MethodTypeCash MethodType = "cash"
	// MethodTypeCard — банковская карта.
	MethodTypeCard MethodType = "card"
)

// ConditionKind задаёт вид условия правила начисления.
type ConditionKind string

const (
	// ConditionMCC — точное совпадение MCC-кода мерчанта.
	ConditionMCC ConditionKind = "mcc"
	// ConditionMerchant — подстрока в названии мерчанта (без учёта регистра,
	// достаточно совпадения любого из ключевых слов).
	ConditionMerchant ConditionKind = "merchant"
	// ConditionCurrency — точное совпадение валюты операции.
	ConditionCurrency ConditionKind = "currency"
	// ConditionSpendThreshold — накопленные траты расчётного периода
	// попадают в диапазон [min_spend, max_spend].
	ConditionSpendThreshold ConditionKind = "spend_threshold"
	// ConditionAll — логическое И вложенных условий.
	ConditionAll ConditionKind = "all"
	// ConditionAny — логическое ИЛИ вложенных условий.
	ConditionAny ConditionKind = "any"
)

// RuleCondition — тегированное условие правила начисления. Значимые поля
// определяются видом условия Kind; остальные игнорируются.
type RuleCondition struct {
	Kind       ConditionKind    `json:"kind"`
	MCC        string           `json:"mcc,omitempty"`
	Keywords   []string         `json:"keywords,omitempty"`
	Currency   string           `json:"currency,omitempty"`
	MinSpend   *decimal.Decimal `json:"min_spend,omitempty"`
	MaxSpend   *decimal.Decimal `json:"max_spend,omitempty"`
	Conditions []RuleCondition  `json:"conditions,omitempty"`
}

// RoundMode определяет способ округления.
type RoundMode string

const (
	// RoundHalf — арифметическое округление (половина — от нуля).
	RoundHalf RoundMode = "half"
	// RoundFloor — округление вниз.
	RoundFloor RoundMode = "floor"
	// RoundCeil — округление вверх.
	RoundCeil RoundMode = "ceil"
)

// Rounding описывает политику округления: способ и размер блока.
// Нулевой блок означает округление до целого.
type Rounding struct {
	Mode  RoundMode `json:"mode,omitempty"`
	Block int64     `json:"block,omitempty"`
}

// TierBasis задаёт величину, по которой выбирается бонусная ступень.
type TierBasis string

const (
	// TierBasisAmount — сумма текущей операции.
	TierBasisAmount TierBasis = "amount"
	// TierBasisSpend — накопленные траты расчётного периода.
	TierBasisSpend TierBasis = "spend"
)

// BonusTier — ступень правила с собственным множителем. Ступени проверяются
// в порядке объявления, применяется первая, чей диапазон содержит значение.
type BonusTier struct {
	Basis      TierBasis        `json:"basis,omitempty"`
	Min        *decimal.Decimal `json:"min,omitempty"`
	Max        *decimal.Decimal `json:"max,omitempty"`
	Multiplier decimal.Decimal  `json:"multiplier"`
}

// RewardRule — декларативное правило начисления баллов. Правила способа
// оплаты проверяются в порядке объявления, применяется первое совпавшее.
type RewardRule struct {
	Name           string           `json:"name,omitempty"`
	Condition      RuleCondition    `json:"condition"`
	Multiplier     decimal.Decimal  `json:"multiplier"`
	MinAmount      *decimal.Decimal `json:"min_amount,omitempty"`
	MaxAmount      *decimal.Decimal `json:"max_amount,omitempty"`
	Tiers          []BonusTier      `json:"tiers,omitempty"`
	MonthlyCap     int64            `json:"monthly_cap,omitempty"`
	AmountRounding Rounding         `json:"amount_rounding,omitempty"`
	PointsRounding Rounding         `json:"points_rounding,omitempty"`
}

// PaymentMethod описывает способ оплаты пользователя и его программу
// начисления баллов.
type PaymentMethod struct {
	ID           int64
	UserID       int64
	Type         MethodType
	Name         string
	Currency     string
	Issuer       string
	Product      string
	LastFour     string
	StatementDay int // день начала расчётного периода; 0 — календарный месяц
	Rules        []RewardRule
	CreatedAt    time.Time
}

// IsCash сообщает, является ли способ оплаты наличными.
func (m *PaymentMethod) IsCash() bool {
	return m.Type == MethodTypeCash
}

// Merchant описывает мерчанта. Один мерчант может использоваться многими
// операциями.
type Merchant struct {
	ID        int64
	UserID    int64
	Name      string
	MCC       string
	Online    bool
	CreatedAt time.Time
}

// RewardBreakdown — разбивка начисленных баллов по операции.
type RewardBreakdown struct {
	Base  int64 `json:"base"`
	Bonus int64 `json:"bonus"`
	Total int64 `json:"total"`
	// Provisional выставляется, если журнал бонусов был недоступен и
	// остаток месячного лимита принят равным нулю использованных баллов.
	Provisional bool `json:"provisional,omitempty"`
}

// Transaction — запись о покупке. Поля категоризации и баллов заполняются
// движками поверх снимка данных, остальное изменяется только явным
// редактированием пользователя.
type Transaction struct {
	ID               int64
	UserID           int64
	MethodID         int64
	MerchantID       *int64
	MerchantName     string
	MCC              string
	Amount           decimal.Decimal
	Currency         string
	OccurredAt       time.Time
	Online           bool
	Contactless      bool
	CategoryOverride *Category
	Category         Category
	Confidence       float64
	NeedsReview      bool
	Suggested        []Category
	Reward           *RewardBreakdown
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EffectiveCategory возвращает категорию операции с учётом пользовательского
// переопределения.
func (t *Transaction) EffectiveCategory() Category {
	if t.CategoryOverride != nil {
		return *t.CategoryOverride
	}
	return t.Category
}

// BonusMovement — запись журнала бонусных баллов. Журнал только пополняется:
// сторнирование выполняется отрицательной записью, исторические строки
// никогда не изменяются.
type BonusMovement struct {
	ID            int64
	TransactionID int64
	MethodID      int64
	Delta         int64
	OccurredAt    time.Time // дата операции, определяет расчётный период
	RecordedAt    time.Time
}

// Period — расчётный период, границы включительно.
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains сообщает, попадает ли момент времени в период. Сравнение ведётся
// по датам: End — последний день периода целиком.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End.AddDate(0, 0, 1))
}
