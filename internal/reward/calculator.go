package reward

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/cardspend-system/internal/model"
)

// Calculator — верхний уровень расчёта баллов: наличные, фирменные формулы
// карт, общий движок правил, округление и месячные лимиты через журнал.
// Расчёт всегда носит рекомендательный характер: некорректные входные данные
// и недоступность журнала деградируют до задокументированных значений и
// никогда не блокируют запись операции.
type Calculator struct {
	matcher    *Matcher
	strategies *StrategyRegistry
	ledger     Ledger
	spend      SpendProvider
	logger     *zap.Logger
}

// NewCalculator создаёт калькулятор с явно переданными зависимостями.
func NewCalculator(matcher *Matcher, strategies *StrategyRegistry, ledger Ledger, spend SpendProvider, logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{
		matcher:    matcher,
		strategies: strategies,
		ledger:     ledger,
		spend:      spend,
		logger:     logger,
	}
}

// SimulationInput — параметры гипотетической операции.
type SimulationInput struct {
	Amount       decimal.Decimal
	Currency     string
	MCC          string
	MerchantName string
	Online       bool
	Contactless  bool
	AsOf         time.Time
}

// SimulationResult — результат симуляции без записи в журнал.
type SimulationResult struct {
	Base  int64 `json:"base"`
	Bonus int64 `json:"bonus"`
	Total int64 `json:"total"`
	// RemainingMonthlyBonus — остаток месячного лимита бонуса после
	// гипотетической операции; nil, если лимит не действует.
	RemainingMonthlyBonus *int64 `json:"remaining_monthly_bonus,omitempty"`
	Provisional           bool   `json:"provisional,omitempty"`
}

// candidate — разбивка до применения месячного лимита журналом.
type candidate struct {
	base       int64
	bonus      int64
	monthlyCap int64
}

// Calculate вычисляет баллы реальной операции и фиксирует бонусное
// потребление в журнале. Перед пересчётом уже учтённой операции вызывающая
// сторона обязана сторнировать её прежнее движение журнала.
func (c *Calculator) Calculate(ctx context.Context, tx *model.Transaction, method *model.PaymentMethod) model.RewardBreakdown {
	if tx == nil {
		return model.RewardBreakdown{}
	}
	if method == nil {
		base := fallbackPoints(tx.Amount)
		return model.RewardBreakdown{Base: base, Total: base}
	}
	if method.IsCash() {
		return model.RewardBreakdown{}
	}

	period := StatementPeriod(method, tx.OccurredAt)
	stmt, provisional := c.statementContext(ctx, method.ID, period, tx.ID)

	cand := c.candidate(ruleInput(tx), method, stmt)

	var bonus int64
	if cand.bonus > 0 {
		granted, err := c.ledger.Reserve(ctx, tx.ID, method.ID, tx.OccurredAt, period, cand.bonus, cand.monthlyCap)
		if err != nil {
			// Журнал недоступен: начисляем рассчитанный бонус в пределах
			// лимита и помечаем результат как предварительный.
			c.logger.Warn("bonus ledger unavailable, provisional reward",
				zap.Int64("transaction", tx.ID), zap.Error(err))
			granted = clampToCap(cand.bonus, cand.monthlyCap)
			provisional = true
		}
		if granted < 0 {
			granted = 0
		}
		bonus = granted
	}

	return model.RewardBreakdown{
		Base:        cand.base,
		Bonus:       bonus,
		Total:       cand.base + bonus,
		Provisional: provisional,
	}
}

// Simulate вычисляет баллы гипотетической операции. В журнал ничего не
// записывается.
func (c *Calculator) Simulate(ctx context.Context, in SimulationInput, method *model.PaymentMethod) SimulationResult {
	if method == nil || method.IsCash() {
		return SimulationResult{}
	}

	period := StatementPeriod(method, in.AsOf)
	stmt, provisional := c.statementContext(ctx, method.ID, period, 0)

	cand := c.candidate(RuleInput{
		Amount:       in.Amount,
		Currency:     in.Currency,
		MCC:          in.MCC,
		MerchantName: in.MerchantName,
		Online:       in.Online,
		Contactless:  in.Contactless,
	}, method, stmt)

	res := SimulationResult{Base: cand.base}

	bonus := cand.bonus
	if cand.monthlyCap > 0 {
		used, err := c.ledger.UsedBonusPoints(ctx, method.ID, period, 0)
		if err != nil {
			c.logger.Warn("bonus ledger unavailable, provisional simulation", zap.Error(err))
			used = 0
			provisional = true
		}

		remaining := cand.monthlyCap - used
		if remaining < 0 {
			remaining = 0
		}
		if bonus > remaining {
			bonus = remaining
		}

		after := remaining - bonus
		res.RemainingMonthlyBonus = &after
	}

	res.Bonus = bonus
	res.Total = cand.base + bonus
	res.Provisional = provisional
	return res
}

// statementContext собирает агрегаты расчётного периода. Недоступность
// хранилища деградирует до нулевых трат с признаком предварительности.
func (c *Calculator) statementContext(ctx context.Context, methodID int64, period model.Period, excludeTxID int64) (StatementContext, bool) {
	stmt := StatementContext{Period: period, Spend: decimal.Zero}

	if c.spend == nil {
		return stmt, false
	}

	spend, err := c.spend.StatementSpend(ctx, methodID, period, excludeTxID)
	if err != nil {
		c.logger.Warn("statement spend unavailable",
			zap.Int64("method", methodID), zap.Error(err))
		return stmt, true
	}

	stmt.Spend = spend
	return stmt, false
}

// candidate считает разбивку до месячного лимита: фирменная формула карты,
// если она зарегистрирована, иначе общий движок правил.
func (c *Calculator) candidate(in RuleInput, method *model.PaymentMethod, stmt StatementContext) candidate {
	if in.Amount.IsNegative() {
		return candidate{}
	}

	if s, ok := c.strategies.Lookup(method.Issuer, method.Product); ok {
		res := s.Compute(in, stmt)
		return applyHardCap(candidate{
			base:       res.Base,
			bonus:      res.Bonus,
			monthlyCap: res.MonthlyCap,
		}, res.HardTotalCap)
	}

	match := c.matcher.Match(in, method.Rules, stmt)
	if !match.Matched {
		base := fallbackPoints(in.Amount)
		return candidate{base: base}
	}

	rule := match.Rule
	qualifying := roundAmount(in.Amount, rule.AmountRounding)
	total := roundPoints(qualifying.Mul(match.Multiplier), rule.PointsRounding)
	if total < 0 {
		total = 0
	}

	if rule.MonthlyCap <= 0 {
		return candidate{base: total}
	}

	// При месячном лимите базой считается ставка 1 балл за единицу, всё
	// сверх неё — бонус, подлежащий ограничению.
	base := roundPoints(qualifying, rule.PointsRounding)
	if base > total {
		base = total
	}
	return candidate{
		base:       base,
		bonus:      total - base,
		monthlyCap: rule.MonthlyCap,
	}
}

func applyHardCap(cand candidate, hardCap int64) candidate {
	if hardCap <= 0 {
		return cand
	}
	if cand.base > hardCap {
		cand.base = hardCap
	}
	if cand.base+cand.bonus > hardCap {
		cand.bonus = hardCap - cand.base
	}
	return cand
}

func clampToCap(bonus, cap int64) int64 {
	if cap > 0 && bonus > cap {
		return cap
	}
	return bonus
}

func fallbackPoints(amount decimal.Decimal) int64 {
	if amount.IsNegative() {
		return 0
	}
	return amount.Round(0).IntPart()
}

func ruleInput(tx *model.Transaction) RuleInput {
	return RuleInput{
		Amount:       tx.Amount,
		Currency:     tx.Currency,
		MCC:          tx.MCC,
		MerchantName: tx.MerchantName,
		Online:       tx.Online,
		Contactless:  tx.Contactless,
	}
}
