// Package client talks to the expensecal REST API and keeps an optional
// in-memory mirror of one month for synchronous reads.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"expensecal/internal/core"
)

// APIError is returned for every non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client is a thin JSON client for the expensecal API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client (15s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type expenseBody struct {
	Date        *core.Date  `json:"date,omitempty"`
	Amount      *core.Money `json:"amount,omitempty"`
	Description *string     `json:"description,omitempty"`
	Label       *string     `json:"label,omitempty"`
}

type budgetBody struct {
	Type      core.BudgetType `json:"type"`
	Amount    core.Money      `json:"amount"`
	StartDate *core.Date      `json:"startDate,omitempty"`
	Category  string          `json:"category,omitempty"`
}

func (c *Client) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	body := expenseBody{Date: &e.Date, Amount: &e.Amount, Description: &e.Description, Label: &e.Label}
	var out core.Expense
	err := c.do(ctx, http.MethodPost, "/expenses", nil, body, &out)
	return out, err
}

func (c *Client) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	var out core.Expense
	err := c.do(ctx, http.MethodGet, "/expenses/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

func (c *Client) ExpensesOn(ctx context.Context, date core.Date) ([]core.Expense, error) {
	var out []core.Expense
	err := c.do(ctx, http.MethodGet, "/expenses/by-date/"+date.String(), nil, nil, &out)
	return out, err
}

// MonthExpenses returns the month grouped by YYYY-MM-DD.
func (c *Client) MonthExpenses(ctx context.Context, year, month int) (map[string][]core.Expense, error) {
	var out map[string][]core.Expense
	err := c.do(ctx, http.MethodGet, "/expenses", monthQuery(year, month), nil, &out)
	return out, err
}

func (c *Client) YearSummary(ctx context.Context, year int) (map[int]core.Money, error) {
	var out map[int]core.Money
	err := c.do(ctx, http.MethodGet, "/expenses/summary", url.Values{"year": {strconv.Itoa(year)}}, nil, &out)
	return out, err
}

func (c *Client) CategoryTotals(ctx context.Context, year, month int) (map[string]core.Money, error) {
	var out map[string]core.Money
	err := c.do(ctx, http.MethodGet, "/expenses/categories", monthQuery(year, month), nil, &out)
	return out, err
}

func (c *Client) DailyTotals(ctx context.Context, year, month int) (map[string]core.Money, error) {
	var out map[string]core.Money
	err := c.do(ctx, http.MethodGet, "/expenses/daily-totals", monthQuery(year, month), nil, &out)
	return out, err
}

func (c *Client) Overview(ctx context.Context, year, month int) (core.MonthOverview, error) {
	var out core.MonthOverview
	err := c.do(ctx, http.MethodGet, "/expenses/overview", monthQuery(year, month), nil, &out)
	return out, err
}

// UpdateExpense sends only the fields set in u.
func (c *Client) UpdateExpense(ctx context.Context, id string, u core.ExpenseUpdate) (core.Expense, error) {
	body := expenseBody{Date: u.Date, Amount: u.Amount, Description: u.Description, Label: u.Label}
	var out core.Expense
	err := c.do(ctx, http.MethodPut, "/expenses/"+url.PathEscape(id), nil, body, &out)
	return out, err
}

func (c *Client) DeleteExpense(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/expenses/"+url.PathEscape(id), nil, nil, nil)
}

// CreateBudget posts b; a zero StartDate lets the server pick today.
func (c *Client) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	body := budgetBody{Type: b.Type, Amount: b.Amount, Category: b.Category}
	if !b.StartDate.IsZero() {
		body.StartDate = &b.StartDate
	}
	var out core.Budget
	err := c.do(ctx, http.MethodPost, "/budgets", nil, body, &out)
	return out, err
}

func (c *Client) ListBudgets(ctx context.Context) ([]core.Budget, error) {
	var out []core.Budget
	err := c.do(ctx, http.MethodGet, "/budgets", nil, nil, &out)
	return out, err
}

func (c *Client) CurrentBudget(ctx context.Context, t core.BudgetType) (core.Budget, error) {
	var out core.Budget
	err := c.do(ctx, http.MethodGet, "/budgets/current", url.Values{"type": {string(t)}}, nil, &out)
	return out, err
}

func (c *Client) BudgetProgress(ctx context.Context, t core.BudgetType) (core.BudgetProgress, error) {
	var out core.BudgetProgress
	err := c.do(ctx, http.MethodGet, "/budgets/progress", url.Values{"type": {string(t)}}, nil, &out)
	return out, err
}

// Health checks GET /health.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func monthQuery(year, month int) url.Values {
	return url.Values{"year": {strconv.Itoa(year)}, "month": {strconv.Itoa(month)}}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(status int, data []byte) error {
	var body struct {
		Error string `json:"error"`
	}
	msg := http.StatusText(status)
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		msg = body.Error
	}
	return &APIError{Status: status, Message: msg}
}
