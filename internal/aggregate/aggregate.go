// Package aggregate holds the pure grouping and summing functions behind the
// calendar views. Nothing here touches storage; callers pass the records in.
package aggregate

import (
	"sort"

	"expensecal/internal/core"
)

// GroupByDate maps each date to its expenses, keeping the order of the input
// within every date.
func GroupByDate(expenses []core.Expense) map[string][]core.Expense {
	out := make(map[string][]core.Expense)
	for _, e := range expenses {
		key := e.Date.String()
		out[key] = append(out[key], e)
	}
	return out
}

// DailyTotals sums amounts per date.
func DailyTotals(expenses []core.Expense) map[string]core.Money {
	out := make(map[string]core.Money)
	for _, e := range expenses {
		key := e.Date.String()
		out[key] = out[key].Add(e.Amount)
	}
	return out
}

// Total sums every amount.
func Total(expenses []core.Expense) core.Money {
	var sum core.Money
	for _, e := range expenses {
		sum = sum.Add(e.Amount)
	}
	return sum
}

// InRange keeps the expenses dated within [start, end], inclusive.
func InRange(expenses []core.Expense, start, end core.Date) []core.Expense {
	lo, hi := start.String(), end.String()
	var out []core.Expense
	for _, e := range expenses {
		if d := e.Date.String(); d >= lo && d <= hi {
			out = append(out, e)
		}
	}
	return out
}

// MonthTotals returns the total of each month 1..12 of year. Every month is
// present; a month without expenses maps to zero. Expenses outside the year
// are ignored.
func MonthTotals(year int, expenses []core.Expense) map[int]core.Money {
	out := make(map[int]core.Money, 12)
	for m := 1; m <= 12; m++ {
		first, last := core.MonthRange(year, m)
		out[m] = Total(InRange(expenses, first, last))
	}
	return out
}

// CategoryTotals sums amounts per label. Labels with no expenses are absent.
func CategoryTotals(expenses []core.Expense) map[string]core.Money {
	out := make(map[string]core.Money)
	for _, e := range expenses {
		out[e.Label] = out[e.Label].Add(e.Amount)
	}
	return out
}

// TopCategories orders category totals by amount, largest first, then by name.
// Share is the percentage of total.
func TopCategories(totals map[string]core.Money, total core.Money) []core.CategoryAmount {
	out := make([]core.CategoryAmount, 0, len(totals))
	for name, amount := range totals {
		out = append(out, core.CategoryAmount{
			Name:   name,
			Amount: amount,
			Share:  core.Percent(amount, total),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Name < out[j].Name
	})
	return out
}
