// Package category реализует определение категории расходов по операции.
package category

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mmeshcher/cardspend-system/internal/model"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// MCCEntry — запись справочника MCC-кодов.
type MCCEntry struct {
	Category      model.Category `yaml:"category"`
	Confidence    float64        `yaml:"confidence"`
	NeedsReview   bool           `yaml:"needs_review"`
	MultiCategory bool           `yaml:"multi_category"`
}

// MerchantPattern сопоставляет ключевые слова названия мерчанта с категорией.
type MerchantPattern struct {
	Keywords []string       `yaml:"keywords"`
	Category model.Category `yaml:"category"`
}

// MultiCategoryMerchant описывает мерчанта, покупки у которого могут
// относиться к нескольким категориям.
type MultiCategoryMerchant struct {
	Keywords  []string         `yaml:"keywords"`
	Category  model.Category   `yaml:"category"`
	Suggested []model.Category `yaml:"suggested"`
}

// AmountRule — эвристика по сумме операции. Применяется, когда текущая
// категория совпадает с Category и сумма попадает в [min_amount, max_amount].
// Непустое Reclassify меняет категорию, Factor корректирует уверенность.
type AmountRule struct {
	Category   model.Category `yaml:"category"`
	MinAmount  *float64       `yaml:"min_amount"`
	MaxAmount  *float64       `yaml:"max_amount"`
	Reclassify model.Category `yaml:"reclassify"`
	Factor     float64        `yaml:"factor"`
}

// TimeRule — эвристика по времени операции. Меняет только уверенность.
type TimeRule struct {
	Category model.Category `yaml:"category"`
	Days     []string       `yaml:"days"`
	FromHour int            `yaml:"from_hour"`
	ToHour   int            `yaml:"to_hour"`
	Factor   float64        `yaml:"factor"`
}

// Catalog — неизменяемые справочные данные классификатора. Загружается один
// раз при старте процесса.
type Catalog struct {
	MCC           map[string]MCCEntry       `yaml:"mcc"`
	Prefixes      map[string]model.Category `yaml:"prefixes"`
	Merchants     []MerchantPattern         `yaml:"merchants"`
	MultiCategory []MultiCategoryMerchant   `yaml:"multi_category"`
	AmountRules   []AmountRule              `yaml:"amount_rules"`
	TimeRules     []TimeRule                `yaml:"time_rules"`
}

// Default возвращает встроенный каталог категорий.
func Default() (*Catalog, error) {
	return parseCatalog(defaultCatalog)
}

// Load читает каталог категорий из файла. Пустой путь означает встроенный
// каталог.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	return parseCatalog(data)
}

func parseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal catalog: %w", err)
	}

	for code, e := range c.MCC {
		e.Confidence = clamp01(e.Confidence)
		c.MCC[code] = e
	}

	return &c, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// matchesDay проверяет, попадает ли день недели в перечень правила.
// Поддерживаются имена дней недели и сокращения weekdays/weekend;
// пустой перечень означает любой день.
func matchesDay(days []string, d time.Weekday) bool {
	if len(days) == 0 {
		return true
	}
	for _, name := range days {
		switch strings.ToLower(name) {
		case "weekdays":
			if d >= time.Monday && d <= time.Friday {
				return true
			}
		case "weekend":
			if d == time.Saturday || d == time.Sunday {
				return true
			}
		default:
			if strings.EqualFold(name, d.String()) {
				return true
			}
		}
	}
	return false
}
