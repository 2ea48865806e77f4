// This file implements the Strategy Pattern for budget windows. Each budget
// type has a strategy that computes the period containing a given day.

package services

import (
	"fmt"

	"expensecal/internal/core"
)

// PeriodStrategy computes the active budget window for a day.
type PeriodStrategy interface {
	// Window returns the inclusive [start, end] period containing day for a
	// budget that began on startDate.
	Window(startDate, day core.Date) (core.Date, core.Date)
}

// WeeklyPeriod splits time into consecutive 7-day windows anchored at startDate.
type WeeklyPeriod struct{}

// Window returns the first window when day precedes startDate.
func (WeeklyPeriod) Window(startDate, day core.Date) (core.Date, core.Date) {
	days := int(day.Sub(startDate.Time).Hours() / 24)
	if days < 0 {
		days = 0
	}
	start := startDate.AddDays(days / 7 * 7)
	return start, start.AddDays(6)
}

// MonthlyPeriod uses the calendar month containing day.
type MonthlyPeriod struct{}

func (MonthlyPeriod) Window(_ core.Date, day core.Date) (core.Date, core.Date) {
	return core.MonthRange(day.Year(), day.Month())
}

var periodStrategies = map[core.BudgetType]PeriodStrategy{
	core.WeeklyBudget:  WeeklyPeriod{},
	core.MonthlyBudget: MonthlyPeriod{},
}

// GetPeriodStrategy returns the window strategy for a budget type.
func GetPeriodStrategy(t core.BudgetType) (PeriodStrategy, error) {
	s, ok := periodStrategies[t]
	if !ok {
		return nil, fmt.Errorf("unknown budget type: %s", t)
	}
	return s, nil
}
