package reward

import (
	"time"

	"github.com/mmeshcher/cardspend-system/internal/model"
)

// maxStatementDay — максимальный настраиваемый день начала периода; большие
// значения приводятся к нему, чтобы период существовал в любом месяце.
const maxStatementDay = 28

// StatementPeriod возвращает расчётный период способа оплаты, содержащий
// дату asOf. Без настроенного дня выписки период равен календарному месяцу;
// иначе период начинается в день D текущего либо предыдущего месяца и
// заканчивается за день до следующего дня D, корректно переходя границу года.
func StatementPeriod(m *model.PaymentMethod, asOf time.Time) model.Period {
	loc := asOf.Location()
	year, month, day := asOf.Date()

	start := 0
	if m != nil {
		start = m.StatementDay
	}
	if start > maxStatementDay {
		start = maxStatementDay
	}

	if start <= 0 {
		first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
		return model.Period{
			Start: first,
			End:   first.AddDate(0, 1, -1),
		}
	}

	periodStart := time.Date(year, month, start, 0, 0, 0, 0, loc)
	if day < start {
		periodStart = periodStart.AddDate(0, -1, 0)
	}

	return model.Period{
		Start: periodStart,
		End:   periodStart.AddDate(0, 1, -1),
	}
}
