package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"expensecal/internal/core"
)

func jsonRequest(body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/expenses", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func TestParseMonthParams(t *testing.T) {
	tests := []struct {
		name    string
		query   url.Values
		want    MonthParams
		wantErr bool
	}{
		{"valid", url.Values{"year": {"2025"}, "month": {"9"}}, MonthParams{2025, 9}, false},
		{"missing month", url.Values{"year": {"2025"}}, MonthParams{}, true},
		{"missing year", url.Values{"month": {"9"}}, MonthParams{}, true},
		{"month zero", url.Values{"year": {"2025"}, "month": {"0"}}, MonthParams{}, true},
		{"month 13", url.Values{"year": {"2025"}, "month": {"13"}}, MonthParams{}, true},
		{"not a number", url.Values{"year": {"abc"}, "month": {"1"}}, MonthParams{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMonthParams(tt.query)
			if tt.wantErr {
				if !core.IsValidation(err) {
					t.Fatalf("err = %v, want validation error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseYearParam(t *testing.T) {
	if y, err := ParseYearParam(url.Values{"year": {"2024"}}); err != nil || y != 2024 {
		t.Errorf("got %d, %v", y, err)
	}
	if _, err := ParseYearParam(url.Values{}); !core.IsValidation(err) {
		t.Errorf("missing year: err = %v", err)
	}
	if _, err := ParseYearParam(url.Values{"year": {"0"}}); !core.IsValidation(err) {
		t.Errorf("year 0: err = %v", err)
	}
}

func TestParseExpenseBody(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
		check     func(t *testing.T, e core.Expense)
	}{
		{
			name: "full body",
			body: `{"date":"2025-09-05","amount":250,"description":" lunch ","label":"food"}`,
			check: func(t *testing.T, e core.Expense) {
				if e.Date.String() != "2025-09-05" || e.Amount.Cents != 25000 || e.Description != "lunch" || e.Label != "food" {
					t.Errorf("got %+v", e)
				}
			},
		},
		{
			name: "category alias and unknown fields",
			body: `{"date":"2025-09-05","amount":12.5,"category":"bills","extra":true}`,
			check: func(t *testing.T, e core.Expense) {
				if e.Label != "bills" || e.Amount.Cents != 1250 {
					t.Errorf("got %+v", e)
				}
			},
		},
		{name: "missing date", body: `{"amount":1}`, wantField: "date"},
		{name: "bad date", body: `{"date":"2025-02-30","amount":1}`, wantField: "date"},
		{name: "numeric date", body: `{"date":20250905,"amount":1}`, wantField: "date"},
		{name: "missing amount", body: `{"date":"2025-09-05"}`, wantField: "amount"},
		{name: "string amount", body: `{"date":"2025-09-05","amount":"250"}`, wantField: "amount"},
		{name: "numeric label", body: `{"date":"2025-09-05","amount":1,"label":3}`, wantField: "label"},
		{name: "malformed", body: `{"date":`, wantField: ""},
		{name: "array body", body: `[]`, wantField: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := ParseExpenseBody(httptest.NewRecorder(), jsonRequest(tt.body))
			if tt.check != nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				tt.check(t, e)
				return
			}
			var ve *core.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want validation error", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("field = %q, want %q", ve.Field, tt.wantField)
			}
		})
	}
}

func TestParseExpenseBody_TooLarge(t *testing.T) {
	body := `{"date":"2025-09-05","amount":1,"description":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	_, err := ParseExpenseBody(httptest.NewRecorder(), jsonRequest(body))
	if !errors.Is(err, errBodyTooLarge) {
		t.Fatalf("err = %v, want body too large", err)
	}
}

func TestParseExpenseUpdate(t *testing.T) {
	u, err := ParseExpenseUpdate(httptest.NewRecorder(), jsonRequest(`{"amount":3,"description":null}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Amount == nil || u.Amount.Cents != 300 {
		t.Errorf("amount = %v", u.Amount)
	}
	if u.Date != nil || u.Description != nil || u.Label != nil {
		t.Errorf("unexpected fields set: %+v", u)
	}

	u, err = ParseExpenseUpdate(httptest.NewRecorder(), jsonRequest(`{}`))
	if err != nil || !u.IsEmpty() {
		t.Errorf("empty body: %+v, %v", u, err)
	}

	if _, err := ParseExpenseUpdate(httptest.NewRecorder(), jsonRequest(`{"date":"09/05/2025"}`)); !core.IsValidation(err) {
		t.Errorf("bad date: err = %v", err)
	}
}

func TestParseBudgetBody(t *testing.T) {
	b, err := ParseBudgetBody(httptest.NewRecorder(), jsonRequest(`{"type":"Monthly","amount":500,"category":"food"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Type != core.MonthlyBudget || b.Amount.Cents != 50000 || b.Category != "food" || !b.StartDate.IsZero() {
		t.Errorf("got %+v", b)
	}

	if _, err := ParseBudgetBody(httptest.NewRecorder(), jsonRequest(`{"amount":5}`)); !core.IsValidation(err) {
		t.Errorf("missing type: err = %v", err)
	}
	if _, err := ParseBudgetBody(httptest.NewRecorder(), jsonRequest(`{"type":"weekly","amount":5,"startDate":"tomorrow"}`)); !core.IsValidation(err) {
		t.Errorf("bad start date: err = %v", err)
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := sanitizeInput("  a\x00b\tc\n "); got != "ab\tc" {
		t.Errorf("sanitizeInput = %q", got)
	}
}
