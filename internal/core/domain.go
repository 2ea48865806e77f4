package core

import (
	"sort"
	"strings"
	"time"
)

const (
	WeeklyBudget  BudgetType = "weekly"
	MonthlyBudget BudgetType = "monthly"
)

const maxDescriptionLen = 500

type (
	BudgetType string

	// Expense is one dated spending entry.
	Expense struct {
		ID          string    `json:"id"`
		Date        Date      `json:"date"`
		Amount      Money     `json:"amount"`
		Description string    `json:"description"`
		Label       string    `json:"label"`
		CreatedAt   time.Time `json:"createdAt"`
		UpdatedAt   time.Time `json:"updatedAt"`
	}

	// ExpenseUpdate carries the fields of a partial update; nil means unchanged.
	ExpenseUpdate struct {
		Date        *Date
		Amount      *Money
		Description *string
		Label       *string
	}

	// Budget is a spending ceiling for a weekly or monthly period.
	Budget struct {
		ID        string     `json:"id"`
		Type      BudgetType `json:"type"`
		Amount    Money      `json:"amount"`
		StartDate Date       `json:"startDate"`
		Category  string     `json:"category,omitempty"`
		CreatedAt time.Time  `json:"createdAt"`
	}
)

func (t BudgetType) IsValid() bool {
	return t == WeeklyBudget || t == MonthlyBudget
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrNegativeAmount
	}
	return nil
}

func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return Invalid("date", err)
	}
	if err := e.Amount.Validate(); err != nil {
		return Invalid("amount", err)
	}
	if len(e.Description) > maxDescriptionLen {
		return Invalid("description", ErrDescriptionTooLong)
	}
	return nil
}

// IsEmpty reports whether no field would change.
func (u ExpenseUpdate) IsEmpty() bool {
	return u.Date == nil && u.Amount == nil && u.Description == nil && u.Label == nil
}

func (u ExpenseUpdate) Validate() error {
	if u.Date != nil {
		if err := u.Date.Validate(); err != nil {
			return Invalid("date", err)
		}
	}
	if u.Amount != nil {
		if err := u.Amount.Validate(); err != nil {
			return Invalid("amount", err)
		}
	}
	if u.Description != nil && len(*u.Description) > maxDescriptionLen {
		return Invalid("description", ErrDescriptionTooLong)
	}
	return nil
}

// Apply returns e with the supplied fields replaced.
func (u ExpenseUpdate) Apply(e Expense) Expense {
	if u.Date != nil {
		e.Date = *u.Date
	}
	if u.Amount != nil {
		e.Amount = *u.Amount
	}
	if u.Description != nil {
		e.Description = *u.Description
	}
	if u.Label != nil {
		e.Label = *u.Label
	}
	return e
}

func (b Budget) Validate() error {
	if !b.Type.IsValid() {
		return Invalid("type", ErrInvalidBudgetType)
	}
	if b.Amount.Cents <= 0 {
		return Invalid("amount", ErrNonPositiveAmount)
	}
	if err := b.StartDate.Validate(); err != nil {
		return Invalid("startDate", err)
	}
	return nil
}

// DefaultCategories is the enumerated label set of the richer client.
var DefaultCategories = []string{"food", "bills", "travel", "shopping", "entertainment", "other"}

// Categories is an optional allow-list for expense labels.
// An empty list accepts any label.
type Categories struct {
	allowed map[string]struct{}
}

func NewCategories(names []string) *Categories {
	c := &Categories{allowed: make(map[string]struct{})}
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			c.allowed[n] = struct{}{}
		}
	}
	return c
}

// Restricted reports whether an allow-list is in force.
func (c *Categories) Restricted() bool {
	return c != nil && len(c.allowed) > 0
}

// Canonical accepts the empty label and, when restricted, only listed labels,
// returned in their lower-case listed form. Free text labels pass unchanged.
func (c *Categories) Canonical(label string) (string, error) {
	if !c.Restricted() || label == "" {
		return label, nil
	}
	name := strings.ToLower(label)
	if _, ok := c.allowed[name]; !ok {
		return "", Invalid("label", ErrLabelNotAllowed)
	}
	return name, nil
}

// Names returns the sorted allow-list.
func (c *Categories) Names() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.allowed))
	for n := range c.allowed {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
