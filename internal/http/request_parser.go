// Package http provides HTTP server and handler implementations.
//
// This file implements parsing and validation of request bodies and query
// parameters. Bodies are decoded field by field so a wrongly typed field is
// reported by name and unknown fields are ignored.

package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"expensecal/internal/core"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 64 << 10

var errBodyTooLarge = errors.New("request body too large")

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// ParseMonthParams reads the required year and month query parameters.
func ParseMonthParams(query url.Values) (MonthParams, error) {
	year, err := requiredInt(query, "year")
	if err != nil {
		return MonthParams{}, err
	}
	month, err := requiredInt(query, "month")
	if err != nil {
		return MonthParams{}, err
	}
	if err := core.ValidateYearMonth(year, month); err != nil {
		return MonthParams{}, err
	}
	if month == 0 {
		return MonthParams{}, core.Invalid("month", core.ErrInvalidMonth)
	}
	return MonthParams{Year: year, Month: month}, nil
}

// ParseYearParam reads the required year query parameter.
func ParseYearParam(query url.Values) (int, error) {
	year, err := requiredInt(query, "year")
	if err != nil {
		return 0, err
	}
	if err := core.ValidateYearMonth(year, 0); err != nil {
		return 0, err
	}
	return year, nil
}

func requiredInt(query url.Values, name string) (int, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return 0, core.Invalid(name, errors.New("is required"))
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, core.Invalid(name, errors.New("must be an integer"))
	}
	return n, nil
}

// bodyFields reads a JSON object body into raw per-field values.
type bodyFields map[string]json.RawMessage

// readBodyFields reads at most maxBodyBytes and decodes a JSON object.
func readBodyFields(w http.ResponseWriter, r *http.Request) (bodyFields, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, core.Invalid("", errBodyTooLarge)
		}
		return nil, core.Invalid("", core.ErrMalformedBody)
	}
	var fields bodyFields
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return nil, core.Invalid("", core.ErrMalformedBody)
	}
	return fields, nil
}

// has reports whether name is present and not null.
func (f bodyFields) has(name string) bool {
	raw, ok := f[name]
	return ok && string(raw) != "null"
}

func (f bodyFields) date(name string) (core.Date, error) {
	var d core.Date
	if err := json.Unmarshal(f[name], &d); err != nil {
		if errors.Is(err, core.ErrMissingDate) {
			return core.Date{}, core.Invalid(name, core.ErrMissingDate)
		}
		return core.Date{}, core.Invalid(name, core.ErrInvalidDate)
	}
	return d, nil
}

func (f bodyFields) money(name string) (core.Money, error) {
	var m core.Money
	if err := json.Unmarshal(f[name], &m); err != nil {
		return core.Money{}, core.Invalid(name, core.ErrInvalidAmount)
	}
	return m, nil
}

func (f bodyFields) text(name string) (string, error) {
	var s string
	if err := json.Unmarshal(f[name], &s); err != nil {
		return "", core.Invalid(name, core.ErrInvalidFieldType)
	}
	return sanitizeInput(s), nil
}

// label reads "label", falling back to its "category" alias.
func (f bodyFields) label() (string, bool, error) {
	for _, name := range []string{"label", "category"} {
		if f.has(name) {
			s, err := f.text(name)
			return s, true, err
		}
	}
	return "", false, nil
}

// ParseExpenseBody decodes a create request. date and amount are required.
func ParseExpenseBody(w http.ResponseWriter, r *http.Request) (core.Expense, error) {
	f, err := readBodyFields(w, r)
	if err != nil {
		return core.Expense{}, err
	}

	var e core.Expense
	if !f.has("date") {
		return core.Expense{}, core.Invalid("date", core.ErrMissingDate)
	}
	if e.Date, err = f.date("date"); err != nil {
		return core.Expense{}, err
	}
	if !f.has("amount") {
		return core.Expense{}, core.Invalid("amount", core.ErrMissingAmount)
	}
	if e.Amount, err = f.money("amount"); err != nil {
		return core.Expense{}, err
	}
	if f.has("description") {
		if e.Description, err = f.text("description"); err != nil {
			return core.Expense{}, err
		}
	}
	if e.Label, _, err = f.label(); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

// ParseExpenseUpdate decodes a partial update. Absent or null fields stay unchanged.
func ParseExpenseUpdate(w http.ResponseWriter, r *http.Request) (core.ExpenseUpdate, error) {
	f, err := readBodyFields(w, r)
	if err != nil {
		return core.ExpenseUpdate{}, err
	}

	var u core.ExpenseUpdate
	if f.has("date") {
		d, err := f.date("date")
		if err != nil {
			return core.ExpenseUpdate{}, err
		}
		u.Date = &d
	}
	if f.has("amount") {
		m, err := f.money("amount")
		if err != nil {
			return core.ExpenseUpdate{}, err
		}
		u.Amount = &m
	}
	if f.has("description") {
		s, err := f.text("description")
		if err != nil {
			return core.ExpenseUpdate{}, err
		}
		u.Description = &s
	}
	label, ok, err := f.label()
	if err != nil {
		return core.ExpenseUpdate{}, err
	}
	if ok {
		u.Label = &label
	}
	return u, nil
}

// ParseBudgetBody decodes a budget create request. startDate is optional.
func ParseBudgetBody(w http.ResponseWriter, r *http.Request) (core.Budget, error) {
	f, err := readBodyFields(w, r)
	if err != nil {
		return core.Budget{}, err
	}

	var b core.Budget
	if !f.has("type") {
		return core.Budget{}, core.Invalid("type", core.ErrInvalidBudgetType)
	}
	t, err := f.text("type")
	if err != nil {
		return core.Budget{}, err
	}
	b.Type = core.BudgetType(strings.ToLower(t))

	if !f.has("amount") {
		return core.Budget{}, core.Invalid("amount", core.ErrMissingAmount)
	}
	if b.Amount, err = f.money("amount"); err != nil {
		return core.Budget{}, err
	}
	if f.has("startDate") {
		if b.StartDate, err = f.date("startDate"); err != nil {
			return core.Budget{}, err
		}
	}
	if f.has("category") {
		if b.Category, err = f.text("category"); err != nil {
			return core.Budget{}, err
		}
	}
	return b, nil
}

// sanitizeInput removes control characters other than tab and newlines and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
