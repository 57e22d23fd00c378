package reward

import (
	"strings"

	"github.com/shopspring/decimal"
)

// StrategyKey — стабильный идентификатор фирменной формулы карты.
type StrategyKey struct {
	Issuer  string
	Product string
}

// StrategyResult — кандидатная разбивка баллов фирменной формулы до
// применения месячного лимита журналом.
type StrategyResult struct {
	Base int64
	// Bonus — кандидат бонуса; итоговое начисление ограничивается остатком
	// MonthlyCap по журналу.
	Bonus      int64
	MonthlyCap int64
	// HardTotalCap — абсолютный потолок суммарных баллов операции; 0 — нет.
	HardTotalCap int64
}

// CardStrategy — фирменная формула начисления конкретного карточного
// продукта. Формулы должны точь-в-точь повторять опубликованные правила
// эмитента: любое расхождение в округлении — ошибка корректности.
type CardStrategy interface {
	Key() StrategyKey
	Compute(in RuleInput, stmt StatementContext) StrategyResult
}

// StrategyRegistry хранит фирменные формулы по идентификатору
// (эмитент, продукт) без учёта регистра.
type StrategyRegistry struct {
	byKey map[StrategyKey]CardStrategy
}

// NewStrategyRegistry создаёт реестр из перечисленных формул.
func NewStrategyRegistry(strategies ...CardStrategy) *StrategyRegistry {
	r := &StrategyRegistry{byKey: make(map[StrategyKey]CardStrategy, len(strategies))}
	for _, s := range strategies {
		r.byKey[normalizeKey(s.Key())] = s
	}
	return r
}

// Lookup возвращает формулу для пары (эмитент, продукт).
func (r *StrategyRegistry) Lookup(issuer, product string) (CardStrategy, bool) {
	s, ok := r.byKey[normalizeKey(StrategyKey{Issuer: issuer, Product: product})]
	return s, ok
}

func normalizeKey(k StrategyKey) StrategyKey {
	return StrategyKey{
		Issuer:  strings.ToLower(strings.TrimSpace(k.Issuer)),
		Product: strings.ToLower(strings.TrimSpace(k.Product)),
	}
}

// DefaultStrategies возвращает встроенный набор фирменных формул.
func DefaultStrategies() []CardStrategy {
	return []CardStrategy{
		&uobPreferredPlatinum{},
		&uobVisaSignature{},
		&citiRewards{},
	}
}

// mccSet — множество MCC-кодов для предикатов допуска.
type mccSet map[string]struct{}

func newMCCSet(codes ...string) mccSet {
	s := make(mccSet, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}

func (s mccSet) contains(code string) bool {
	_, ok := s[code]
	return ok
}

// uobPreferredPlatinum — UNI$-формула UOB Preferred Platinum: сумма
// округляется вниз до блока S$5, база 0.4 балла за доллар блока, бонус 3.6
// за бесконтактную либо онлайновую покупку в допустимых MCC, месячный лимит
// бонуса 4000. Бонус начисляется только по операциям в SGD.
type uobPreferredPlatinum struct{}

var uobPPOnlineMCCs = newMCCSet(
	"5311", "5611", "5621", "5631", "5641", "5651", "5661", "5691",
	"5732", "5812", "5814", "5942",
)

func (s *uobPreferredPlatinum) Key() StrategyKey {
	return StrategyKey{Issuer: "UOB", Product: "Preferred Platinum"}
}

func (s *uobPreferredPlatinum) Compute(in RuleInput, _ StatementContext) StrategyResult {
	qualifying := floorToBlock(in.Amount, 5)
	base := qualifying.Mul(decimal.RequireFromString("0.4")).Round(0).IntPart()

	res := StrategyResult{Base: base, MonthlyCap: 4000}

	if !strings.EqualFold(in.Currency, "SGD") {
		return res
	}

	eligible := in.Contactless || (in.Online && uobPPOnlineMCCs.contains(in.MCC))
	if eligible {
		res.Bonus = qualifying.Mul(decimal.RequireFromString("3.6")).Round(0).IntPart()
	}

	return res
}

// uobVisaSignature — UOB Visa Signature: блок S$5, база 0.4, бонус 3.6 за
// бесконтактные либо валютные (не SGD) покупки при тратах периода от S$1000.
// Месячный лимит бонуса 8000 — лимит применяется только к бонусной части,
// не к сумме база+бонус.
type uobVisaSignature struct{}

const uobVSMinStatementSpend = 1000

func (s *uobVisaSignature) Key() StrategyKey {
	return StrategyKey{Issuer: "UOB", Product: "Visa Signature"}
}

func (s *uobVisaSignature) Compute(in RuleInput, stmt StatementContext) StrategyResult {
	qualifying := floorToBlock(in.Amount, 5)
	base := qualifying.Mul(decimal.RequireFromString("0.4")).Round(0).IntPart()

	res := StrategyResult{Base: base, MonthlyCap: 8000}

	minSpend := decimal.NewFromInt(uobVSMinStatementSpend)
	if stmt.Spend.LessThan(minSpend) {
		return res
	}

	eligible := in.Contactless || !strings.EqualFold(in.Currency, "SGD")
	if eligible {
		res.Bonus = qualifying.Mul(decimal.RequireFromString("3.6")).Round(0).IntPart()
	}

	return res
}

// citiRewards — Citibank Rewards: база 0.4 балла за доллар, бонус 3.6 (итого
// 10X) за онлайн-покупки и покупки одежды/универмагов, месячный лимит бонуса
// 9000 и абсолютный потолок 10000 баллов на операцию.
type citiRewards struct{}

var citiRewardsMCCs = newMCCSet(
	"5311", "5611", "5621", "5631", "5641", "5651", "5661", "5691", "5699",
)

func (s *citiRewards) Key() StrategyKey {
	return StrategyKey{Issuer: "Citibank", Product: "Rewards"}
}

func (s *citiRewards) Compute(in RuleInput, _ StatementContext) StrategyResult {
	base := in.Amount.Mul(decimal.RequireFromString("0.4")).Round(0).IntPart()

	res := StrategyResult{Base: base, MonthlyCap: 9000, HardTotalCap: 10000}

	eligible := in.Online || citiRewardsMCCs.contains(in.MCC)
	if eligible {
		res.Bonus = in.Amount.Mul(decimal.RequireFromString("3.6")).Round(0).IntPart()
	}

	return res
}
