package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string  `json:"name"`
	Amount Money   `json:"amount"`
	Share  float64 `json:"share"` // percent of the month total
}

// BudgetProgress compares spending in the active budget window with the budget.
type BudgetProgress struct {
	Budget      Budget  `json:"budget"`
	PeriodStart Date    `json:"periodStart"`
	PeriodEnd   Date    `json:"periodEnd"`
	Spent       Money   `json:"spent"`
	Remaining   Money   `json:"remaining"`
	Percent     float64 `json:"percent"`
	OverBudget  bool    `json:"overBudget"`
}

// MonthOverview is a compact summary for a specific year+month.
type MonthOverview struct {
	Year             int              `json:"year"`
	Month            int              `json:"month"` // 1-12
	Total            Money            `json:"total"`
	PreviousTotal    Money            `json:"previousTotal"`
	ChangePercent    float64          `json:"changePercent"`
	DaysWithExpenses int              `json:"daysWithExpenses"`
	ByCategory       []CategoryAmount `json:"byCategory"`
	Budget           *BudgetProgress  `json:"budget,omitempty"`
}
