package reward

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/cardspend-system/internal/model"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestMatch_FirstMatchingRuleWins(t *testing.T) {
	m := NewMatcher(nil)

	rules := []model.RewardRule{
		{
			Name:       "dining 3x",
			Condition:  model.RuleCondition{Kind: model.ConditionMCC, MCC: "5812"},
			Multiplier: dec("3"),
		},
		{
			Name:       "everything 5x",
			Condition:  model.RuleCondition{Kind: model.ConditionCurrency, Currency: "SGD"},
			Multiplier: dec("5"),
		},
	}

	in := RuleInput{Amount: dec("150"), Currency: "SGD", MCC: "5812"}

	res := m.Match(in, rules, StatementContext{})

	require.True(t, res.Matched)
	assert.Equal(t, 0, res.Index)
	assert.True(t, res.Multiplier.Equal(dec("3")), "должен применяться множитель первого правила")
}

func TestMatch_NoRuleMatched(t *testing.T) {
	m := NewMatcher(nil)

	rules := []model.RewardRule{
		{Condition: model.RuleCondition{Kind: model.ConditionMCC, MCC: "5812"}, Multiplier: dec("3")},
	}

	res := m.Match(RuleInput{MCC: "5411"}, rules, StatementContext{})

	assert.False(t, res.Matched)
	assert.True(t, res.Multiplier.Equal(dec("1")))
}

func TestMatch_ConditionKinds(t *testing.T) {
	m := NewMatcher(nil)

	in := RuleInput{
		Amount:       dec("90"),
		Currency:     "SGD",
		MCC:          "5411",
		MerchantName: "FairPrice Finest",
	}
	stmt := StatementContext{Spend: dec("650")}

	tests := []struct {
		name string
		cond model.RuleCondition
		want bool
	}{
		{
			name: "mcc match",
			cond: model.RuleCondition{Kind: model.ConditionMCC, MCC: "5411"},
			want: true,
		},
		{
			name: "mcc mismatch",
			cond: model.RuleCondition{Kind: model.ConditionMCC, MCC: "5812"},
			want: false,
		},
		{
			name: "merchant keyword case-insensitive",
			cond: model.RuleCondition{Kind: model.ConditionMerchant, Keywords: []string{"nowhere", "FAIRPRICE"}},
			want: true,
		},
		{
			name: "merchant keyword absent",
			cond: model.RuleCondition{Kind: model.ConditionMerchant, Keywords: []string{"starbucks"}},
			want: false,
		},
		{
			name: "currency match case-insensitive",
			cond: model.RuleCondition{Kind: model.ConditionCurrency, Currency: "sgd"},
			want: true,
		},
		{
			name: "spend threshold within range",
			cond: model.RuleCondition{Kind: model.ConditionSpendThreshold, MinSpend: decPtr("500"), MaxSpend: decPtr("1000")},
			want: true,
		},
		{
			name: "spend threshold below min",
			cond: model.RuleCondition{Kind: model.ConditionSpendThreshold, MinSpend: decPtr("700")},
			want: false,
		},
		{
			name: "spend threshold open upper bound",
			cond: model.RuleCondition{Kind: model.ConditionSpendThreshold, MinSpend: decPtr("100")},
			want: true,
		},
		{
			name: "all conditions",
			cond: model.RuleCondition{Kind: model.ConditionAll, Conditions: []model.RuleCondition{
				{Kind: model.ConditionMCC, MCC: "5411"},
				{Kind: model.ConditionCurrency, Currency: "SGD"},
			}},
			want: true,
		},
		{
			name: "all fails on one mismatch",
			cond: model.RuleCondition{Kind: model.ConditionAll, Conditions: []model.RuleCondition{
				{Kind: model.ConditionMCC, MCC: "5411"},
				{Kind: model.ConditionCurrency, Currency: "USD"},
			}},
			want: false,
		},
		{
			name: "any succeeds on one match",
			cond: model.RuleCondition{Kind: model.ConditionAny, Conditions: []model.RuleCondition{
				{Kind: model.ConditionMCC, MCC: "5812"},
				{Kind: model.ConditionCurrency, Currency: "SGD"},
			}},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := []model.RewardRule{{Condition: tt.cond, Multiplier: dec("2")}}

			res := m.Match(in, rules, stmt)

			assert.Equal(t, tt.want, res.Matched)
		})
	}
}

func TestMatch_MalformedRuleDoesNotApply(t *testing.T) {
	m := NewMatcher(nil)

	rules := []model.RewardRule{
		// правило без вида условия — не должно совпадать и не должно падать
		{Name: "broken", Multiplier: dec("10")},
		{Name: "no value", Condition: model.RuleCondition{Kind: model.ConditionMCC}, Multiplier: dec("10")},
		{Name: "fallback", Condition: model.RuleCondition{Kind: model.ConditionCurrency, Currency: "SGD"}, Multiplier: dec("2")},
	}

	res := m.Match(RuleInput{Currency: "SGD"}, rules, StatementContext{})

	require.True(t, res.Matched)
	assert.Equal(t, 2, res.Index)
	assert.True(t, res.Multiplier.Equal(dec("2")))
}

func TestMatch_QualifyingAmountBounds(t *testing.T) {
	m := NewMatcher(nil)

	rules := []model.RewardRule{
		{
			Name:       "big spend only",
			Condition:  model.RuleCondition{Kind: model.ConditionCurrency, Currency: "SGD"},
			Multiplier: dec("4"),
			MinAmount:  decPtr("100"),
			MaxAmount:  decPtr("1000"),
		},
	}

	assert.False(t, m.Match(RuleInput{Amount: dec("99.99"), Currency: "SGD"}, rules, StatementContext{}).Matched)
	assert.True(t, m.Match(RuleInput{Amount: dec("100"), Currency: "SGD"}, rules, StatementContext{}).Matched)
	assert.False(t, m.Match(RuleInput{Amount: dec("1000.01"), Currency: "SGD"}, rules, StatementContext{}).Matched)
}

func TestMatch_TierByAmount(t *testing.T) {
	m := NewMatcher(nil)

	rules := []model.RewardRule{
		{
			Name:       "tiered",
			Condition:  model.RuleCondition{Kind: model.ConditionCurrency, Currency: "SGD"},
			Multiplier: dec("1"),
			Tiers: []model.BonusTier{
				{Max: decPtr("99.99"), Multiplier: dec("1")},
				{Min: decPtr("100"), Max: decPtr("499.99"), Multiplier: dec("2")},
				{Min: decPtr("500"), Multiplier: dec("3")},
			},
		},
	}

	tests := []struct {
		amount string
		want   string
	}{
		{amount: "50", want: "1"},
		{amount: "100", want: "2"},
		{amount: "499.99", want: "2"},
		{amount: "500", want: "3"},
		{amount: "10000", want: "3"},
	}

	for _, tt := range tests {
		res := m.Match(RuleInput{Amount: dec(tt.amount), Currency: "SGD"}, rules, StatementContext{})
		require.True(t, res.Matched, "amount %s", tt.amount)
		require.NotNil(t, res.Tier, "amount %s", tt.amount)
		assert.True(t, res.Multiplier.Equal(dec(tt.want)), "amount %s: got %s", tt.amount, res.Multiplier)
	}
}

func TestMatch_TierByStatementSpend(t *testing.T) {
	m := NewMatcher(nil)

	rules := []model.RewardRule{
		{
			Name:       "spend tiers",
			Condition:  model.RuleCondition{Kind: model.ConditionCurrency, Currency: "SGD"},
			Multiplier: dec("1"),
			Tiers: []model.BonusTier{
				{Basis: model.TierBasisSpend, Min: decPtr("2000"), Multiplier: dec("4")},
				{Basis: model.TierBasisSpend, Min: decPtr("500"), Multiplier: dec("2")},
			},
		},
	}

	res := m.Match(RuleInput{Amount: dec("30"), Currency: "SGD"}, rules, StatementContext{Spend: dec("2500")})
	require.True(t, res.Matched)
	assert.True(t, res.Multiplier.Equal(dec("4")))

	res = m.Match(RuleInput{Amount: dec("30"), Currency: "SGD"}, rules, StatementContext{Spend: dec("800")})
	require.True(t, res.Matched)
	assert.True(t, res.Multiplier.Equal(dec("2")))

	res = m.Match(RuleInput{Amount: dec("30"), Currency: "SGD"}, rules, StatementContext{Spend: dec("100")})
	require.True(t, res.Matched)
	assert.Nil(t, res.Tier)
	assert.True(t, res.Multiplier.Equal(dec("1")), "без подходящей ступени действует множитель правила")
}
