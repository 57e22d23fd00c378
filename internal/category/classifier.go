package category

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/cardspend-system/internal/model"
	"github.com/mmeshcher/cardspend-system/internal/validation"
)

const (
	// fallbackConfidence — уверенность при определении категории только по
	// первой цифре MCC.
	fallbackConfidence = 0.5
	// multiCategoryCap — потолок уверенности для мультикатегорийного мерчанта.
	multiCategoryCap = 0.6
	// keywordConfidence — минимальная уверенность после совпадения по
	// ключевому слову названия мерчанта.
	keywordConfidence = 0.8
	// reviewThreshold — порог уверенности, ниже которого требуется
	// подтверждение пользователя.
	reviewThreshold = 0.75
	// multiReviewThreshold — порог для мультикатегорийных мерчантов.
	multiReviewThreshold = 0.85
)

// Input — снимок данных операции для классификации.
type Input struct {
	MCC          string
	MerchantName string
	Amount       decimal.Decimal
	OccurredAt   time.Time
	// UseTimeSignals включает эвристики по времени операции; используется
	// пакетным пересчётом.
	UseTimeSignals bool
}

// Result — результат классификации операции.
type Result struct {
	Category      model.Category
	Confidence    float64
	Reason        string
	NeedsReview   bool
	MultiCategory bool
	Suggested     []model.Category
}

// Classifier определяет категорию расходов по MCC-коду, названию мерчанта,
// сумме и времени операции. Классификатор не хранит состояния и безопасен
// для конкурентного использования.
type Classifier struct {
	catalog *Catalog
	logger  *zap.Logger
}

// NewClassifier создаёт классификатор поверх каталога категорий.
func NewClassifier(catalog *Catalog, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{catalog: catalog, logger: logger}
}

// Classify определяет категорию операции и уверенность в ней. Стадии строго
// упорядочены, каждая может переопределить результат предыдущей. Некорректные
// входные данные никогда не приводят к ошибке — только к менее уверенному
// результату.
func (c *Classifier) Classify(in Input) Result {
	var reasons []string

	res := c.lookupMCC(in.MCC, &reasons)
	c.applyMultiCategory(in.MerchantName, &res, &reasons)
	c.applyKeywords(in.MerchantName, &res, &reasons)
	c.applyAmount(in.Amount, &res, &reasons)
	if in.UseTimeSignals {
		c.applyTime(in.OccurredAt, &res, &reasons)
	}

	res.Confidence = clamp01(res.Confidence)
	res.NeedsReview = res.Confidence < reviewThreshold ||
		(res.MultiCategory && res.Confidence < multiReviewThreshold)
	res.Reason = strings.Join(reasons, ",")

	return res
}

// lookupMCC — стадия 1: справочник MCC, грубая категория по первой цифре
// либо uncategorized.
func (c *Classifier) lookupMCC(mcc string, reasons *[]string) Result {
	if mcc == "" || !validation.IsValidMCC(mcc) {
		if mcc != "" {
			c.logger.Debug("malformed mcc", zap.String("mcc", mcc))
		}
		*reasons = append(*reasons, "no_mcc")
		return Result{
			Category:    model.CategoryUncategorized,
			Confidence:  0,
			NeedsReview: true,
		}
	}

	if entry, ok := c.catalog.MCC[mcc]; ok {
		*reasons = append(*reasons, "mcc:"+mcc)
		return Result{
			Category:      entry.Category,
			Confidence:    entry.Confidence,
			NeedsReview:   entry.NeedsReview,
			MultiCategory: entry.MultiCategory,
		}
	}

	if cat, ok := c.catalog.Prefixes[mcc[:1]]; ok {
		*reasons = append(*reasons, "mcc_prefix:"+mcc[:1])
		return Result{
			Category:    cat,
			Confidence:  fallbackConfidence,
			NeedsReview: true,
		}
	}

	*reasons = append(*reasons, "unknown_mcc:"+mcc)
	return Result{
		Category:    model.CategoryUncategorized,
		Confidence:  0,
		NeedsReview: true,
	}
}

// applyMultiCategory — стадия 2: мерчант с несколькими вероятными
// категориями. Принудительно выставляет категорию по умолчанию и ограничивает
// уверенность.
func (c *Classifier) applyMultiCategory(name string, res *Result, reasons *[]string) {
	if name == "" {
		return
	}

	lower := strings.ToLower(name)
	for _, m := range c.catalog.MultiCategory {
		if kw, ok := matchKeyword(lower, m.Keywords); ok {
			res.Category = m.Category
			if res.Confidence > multiCategoryCap {
				res.Confidence = multiCategoryCap
			}
			res.MultiCategory = true
			res.Suggested = m.Suggested
			*reasons = append(*reasons, "multi:"+kw)
			return
		}
	}
}

// applyKeywords — стадия 3: совпадение по ключевому слову названия мерчанта.
// Сигнал по названию сильнее общего MCC-ведра, но не сбрасывает признак
// мультикатегорийности.
func (c *Classifier) applyKeywords(name string, res *Result, reasons *[]string) {
	if name == "" {
		return
	}

	lower := strings.ToLower(name)
	for _, p := range c.catalog.Merchants {
		kw, ok := matchKeyword(lower, p.Keywords)
		if !ok {
			continue
		}
		if p.Category == res.Category {
			return
		}
		res.Category = p.Category
		if res.Confidence < keywordConfidence {
			res.Confidence = keywordConfidence
		}
		*reasons = append(*reasons, "keyword:"+kw)
		return
	}
}

// applyAmount — стадия 4: эвристика по сумме. Переклассификация всегда
// ослабляет уверенность, подтверждение суммой слегка усиливает её.
func (c *Classifier) applyAmount(amount decimal.Decimal, res *Result, reasons *[]string) {
	if amount.IsZero() {
		return
	}

	for _, r := range c.catalog.AmountRules {
		if r.Category != res.Category {
			continue
		}
		if r.MinAmount != nil && amount.LessThan(decimal.NewFromFloat(*r.MinAmount)) {
			continue
		}
		if r.MaxAmount != nil && amount.GreaterThan(decimal.NewFromFloat(*r.MaxAmount)) {
			continue
		}

		if r.Reclassify != "" {
			res.Category = r.Reclassify
		}
		res.Confidence = clamp01(res.Confidence * r.Factor)
		*reasons = append(*reasons, "amount")
		return
	}
}

// applyTime — стадия 5: эвристика по времени. Корректирует только
// уверенность, категорию никогда не меняет.
func (c *Classifier) applyTime(at time.Time, res *Result, reasons *[]string) {
	if at.IsZero() {
		return
	}

	for _, r := range c.catalog.TimeRules {
		if r.Category != res.Category {
			continue
		}
		if !matchesDay(r.Days, at.Weekday()) {
			continue
		}
		hour := at.Hour()
		if hour < r.FromHour || hour >= r.ToHour {
			continue
		}

		res.Confidence = clamp01(res.Confidence * r.Factor)
		*reasons = append(*reasons, "time")
		return
	}
}

func matchKeyword(lowerName string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lowerName, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}
