// Package reward реализует движок расчёта бонусных баллов: сопоставление
// правил, расчётные периоды, фирменные формулы карт и учёт месячных лимитов.
package reward

import (
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/cardspend-system/internal/model"
)

// roundAmount приводит сумму к блоку согласно политике округления правила.
// Пустая политика оставляет сумму без изменений, по умолчанию блок
// округляется вниз.
func roundAmount(amount decimal.Decimal, r model.Rounding) decimal.Decimal {
	if r.Mode == "" && r.Block <= 0 {
		return amount
	}

	block := decimal.NewFromInt(1)
	if r.Block > 0 {
		block = decimal.NewFromInt(r.Block)
	}

	q := amount.Div(block)
	switch r.Mode {
	case model.RoundCeil:
		q = q.Ceil()
	case model.RoundHalf:
		q = q.Round(0)
	default:
		q = q.Floor()
	}

	return q.Mul(block)
}

// roundPoints переводит дробное значение баллов в целое. По умолчанию —
// арифметическое округление (половина — от нуля), как в выписках эмитентов.
func roundPoints(v decimal.Decimal, r model.Rounding) int64 {
	switch r.Mode {
	case model.RoundFloor:
		return v.Floor().IntPart()
	case model.RoundCeil:
		return v.Ceil().IntPart()
	default:
		return v.Round(0).IntPart()
	}
}

// floorToBlock округляет сумму вниз до ближайшего кратного блока.
func floorToBlock(amount decimal.Decimal, block int64) decimal.Decimal {
	if block <= 0 {
		return amount
	}
	b := decimal.NewFromInt(block)
	return amount.Div(b).Floor().Mul(b)
}
