package service

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/cardspend-system/internal/model"
)

// rateRefreshInterval — период фонового обновления закешированных курсов.
const rateRefreshInterval = 10 * time.Minute

// CategorySpend — траты по одной категории в базовой валюте.
type CategorySpend struct {
	Category model.Category  `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// MonthlySummary — итоги трат пользователя за календарный месяц, приведённые
// к базовой валюте.
type MonthlySummary struct {
	Currency   string          `json:"currency"`
	Total      decimal.Decimal `json:"total"`
	Categories []CategorySpend `json:"categories"`
	// Incomplete выставляется, если курс для части валют получить не
	// удалось и их суммы в итог не вошли.
	Incomplete bool `json:"incomplete,omitempty"`
}

// GetMonthlySummary возвращает траты пользователя за календарный месяц по
// эффективным категориям, сконвертированные в базовую валюту base.
func (s *Service) GetMonthlySummary(ctx context.Context, userID int64, year int, month time.Month, base string) (*MonthlySummary, error) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	totals, err := s.repo.CategoryTotals(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	summary := &MonthlySummary{Currency: base}
	byCategory := make(map[model.Category]decimal.Decimal)
	var order []model.Category

	for _, t := range totals {
		amount, ok := s.convert(ctx, t.Amount, t.Currency, base)
		if !ok {
			summary.Incomplete = true
			continue
		}
		if _, seen := byCategory[t.Category]; !seen {
			order = append(order, t.Category)
		}
		byCategory[t.Category] = byCategory[t.Category].Add(amount)
		summary.Total = summary.Total.Add(amount)
	}

	for _, c := range order {
		summary.Categories = append(summary.Categories, CategorySpend{
			Category: c,
			Amount:   byCategory[c],
		})
	}

	return summary, nil
}

// convert переводит сумму из валюты from в валюту to по закешированному
// курсу; при промахе кеша курс запрашивается у внешней системы.
func (s *Service) convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, bool) {
	if from == to || from == "" {
		return amount, true
	}

	key := from + "/" + to

	s.mu.RLock()
	rate, ok := s.rateCache[key]
	s.mu.RUnlock()

	if !ok {
		fetched, fetchOK := s.fetchRate(ctx, from, to)
		if !fetchOK {
			return decimal.Zero, false
		}
		rate = fetched
	}

	return amount.Mul(rate).Round(2), true
}

func (s *Service) fetchRate(ctx context.Context, from, to string) (decimal.Decimal, bool) {
	if s.ratesClient == nil {
		return decimal.Zero, false
	}

	res, code, _, err := s.ratesClient.GetRate(ctx, from, to)
	if err != nil || code != http.StatusOK || res == nil {
		s.logger.Warn("rate fetch failed",
			zap.String("base", from), zap.String("quote", to),
			zap.Int("status", code), zap.Error(err))
		return decimal.Zero, false
	}

	s.mu.Lock()
	s.rateCache[from+"/"+to] = res.Rate
	s.mu.Unlock()

	return res.Rate, true
}

// StartRateUpdates запускает фоновый процесс обновления закешированных курсов валют.
func (s *Service) StartRateUpdates(ctx context.Context) {
	if s.ratesClient == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(rateRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.refreshRates(ctx)
			}
		}
	}()
}

func (s *Service) refreshRates(ctx context.Context) {
	s.mu.RLock()
	pairs := make([]string, 0, len(s.rateCache))
	for key := range s.rateCache {
		pairs = append(pairs, key)
	}
	s.mu.RUnlock()

	for _, key := range pairs {
		var from, to string
		for i := 0; i < len(key); i++ {
			if key[i] == '/' {
				from, to = key[:i], key[i+1:]
				break
			}
		}
		if from == "" || to == "" {
			continue
		}

		res, code, retryAfter, err := s.ratesClient.GetRate(ctx, from, to)
		if err != nil {
			continue
		}

		if code == http.StatusTooManyRequests {
			if retryAfter > 0 {
				timer := time.NewTimer(retryAfter)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			continue
		}

		if res == nil {
			continue
		}

		s.mu.Lock()
		s.rateCache[key] = res.Rate
		s.mu.Unlock()
	}
}
