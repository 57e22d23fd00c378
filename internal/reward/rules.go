package reward

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/cardspend-system/internal/model"
)

var errEmptyCondition = errors.New("condition has no usable fields")

// RuleInput — снимок операции для сопоставления с правилами и формулами.
type RuleInput struct {
	Amount       decimal.Decimal
	Currency     string
	MCC          string
	MerchantName string
	Online       bool
	Contactless  bool
}

// StatementContext — агрегаты расчётного периода, доступные условиям правил.
type StatementContext struct {
	Period model.Period
	// Spend — накопленные траты периода в валюте способа оплаты.
	Spend decimal.Decimal
}

// MatchResult — результат сопоставления операции с правилами.
type MatchResult struct {
	Matched    bool
	Rule       *model.RewardRule
	Index      int
	Multiplier decimal.Decimal
	Tier       *model.BonusTier
}

// Matcher сопоставляет операцию с упорядоченным списком правил начисления.
// Правила проверяются в порядке объявления, выигрывает первое совпавшее,
// правила никогда не комбинируются.
type Matcher struct {
	logger *zap.Logger
}

// NewMatcher создаёт новый Matcher.
func NewMatcher(logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{logger: logger}
}

// Match возвращает множитель первого совпавшего правила либо базовый
// множитель 1, если ни одно правило не подошло. Некорректно описанное
// правило считается несовпавшим и фиксируется в логе.
func (m *Matcher) Match(in RuleInput, rules []model.RewardRule, stmt StatementContext) MatchResult {
	for i := range rules {
		rule := &rules[i]

		if rule.MinAmount != nil && in.Amount.LessThan(*rule.MinAmount) {
			continue
		}
		if rule.MaxAmount != nil && in.Amount.GreaterThan(*rule.MaxAmount) {
			continue
		}

		ok, err := m.eval(rule.Condition, in, stmt)
		if err != nil {
			m.logger.Warn("malformed reward rule",
				zap.String("rule", rule.Name),
				zap.Int("index", i),
				zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		res := MatchResult{
			Matched:    true,
			Rule:       rule,
			Index:      i,
			Multiplier: rule.Multiplier,
		}
		if tier := selectTier(rule.Tiers, in.Amount, stmt.Spend); tier != nil {
			res.Tier = tier
			res.Multiplier = tier.Multiplier
		}
		return res
	}

	return MatchResult{Index: -1, Multiplier: decimal.NewFromInt(1)}
}

func (m *Matcher) eval(c model.RuleCondition, in RuleInput, stmt StatementContext) (bool, error) {
	switch c.Kind {
	case model.ConditionMCC:
		if c.MCC == "" {
			return false, errEmptyCondition
		}
		return in.MCC == c.MCC, nil

	case model.ConditionMerchant:
		if len(c.Keywords) == 0 {
			return false, errEmptyCondition
		}
		name := strings.ToLower(in.MerchantName)
		for _, kw := range c.Keywords {
			if kw != "" && strings.Contains(name, strings.ToLower(kw)) {
				return true, nil
			}
		}
		return false, nil

	case model.ConditionCurrency:
		if c.Currency == "" {
			return false, errEmptyCondition
		}
		return strings.EqualFold(in.Currency, c.Currency), nil

	case model.ConditionSpendThreshold:
		if c.MinSpend == nil && c.MaxSpend == nil {
			return false, errEmptyCondition
		}
		if c.MinSpend != nil && stmt.Spend.LessThan(*c.MinSpend) {
			return false, nil
		}
		if c.MaxSpend != nil && stmt.Spend.GreaterThan(*c.MaxSpend) {
			return false, nil
		}
		return true, nil

	case model.ConditionAll:
		if len(c.Conditions) == 0 {
			return false, errEmptyCondition
		}
		for _, sub := range c.Conditions {
			ok, err := m.eval(sub, in, stmt)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil

	case model.ConditionAny:
		if len(c.Conditions) == 0 {
			return false, errEmptyCondition
		}
		for _, sub := range c.Conditions {
			ok, err := m.eval(sub, in, stmt)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	default:
		return false, fmt.Errorf("unknown condition kind %q", c.Kind)
	}
}

// selectTier возвращает первую ступень, диапазон которой содержит значение
// её базиса: сумму операции либо накопленные траты периода.
func selectTier(tiers []model.BonusTier, amount, spend decimal.Decimal) *model.BonusTier {
	for i := range tiers {
		tier := &tiers[i]

		value := amount
		if tier.Basis == model.TierBasisSpend {
			value = spend
		}

		if tier.Min != nil && value.LessThan(*tier.Min) {
			continue
		}
		if tier.Max != nil && value.GreaterThan(*tier.Max) {
			continue
		}
		return tier
	}
	return nil
}
