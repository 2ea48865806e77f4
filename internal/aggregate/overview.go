package aggregate

import (
	"strings"

	"expensecal/internal/core"
)

// Overview assembles the month summary card data. current holds the month's
// expenses and previousTotal the total of the month before.
func Overview(year, month int, current []core.Expense, previousTotal core.Money, budget *core.BudgetProgress) core.MonthOverview {
	total := Total(current)
	ov := core.MonthOverview{
		Year:             year,
		Month:            month,
		Total:            total,
		PreviousTotal:    previousTotal,
		DaysWithExpenses: len(DailyTotals(current)),
		ByCategory:       TopCategories(CategoryTotals(current), total),
		Budget:           budget,
	}
	if previousTotal.Cents > 0 {
		ov.ChangePercent = core.Percent(total.Sub(previousTotal), previousTotal)
	}
	return ov
}

// Progress compares spent against budget for the window [start, end].
func Progress(budget core.Budget, start, end core.Date, spent core.Money) core.BudgetProgress {
	return core.BudgetProgress{
		Budget:      budget,
		PeriodStart: start,
		PeriodEnd:   end,
		Spent:       spent,
		Remaining:   budget.Amount.Sub(spent),
		Percent:     core.Percent(spent, budget.Amount),
		OverBudget:  spent.Cents > budget.Amount.Cents,
	}
}

// PreviousMonth returns the year and month before year/month.
func PreviousMonth(year, month int) (int, int) {
	if month == 1 {
		return year - 1, 12
	}
	return year, month - 1
}

// SpentIn sums expenses, restricted to category (case-insensitive) when one is set.
func SpentIn(expenses []core.Expense, category string) core.Money {
	if category == "" {
		return Total(expenses)
	}
	var sum core.Money
	for _, e := range expenses {
		if strings.EqualFold(e.Label, category) {
			sum = sum.Add(e.Amount)
		}
	}
	return sum
}
