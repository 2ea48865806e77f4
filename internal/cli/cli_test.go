package cli

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensecal/internal/client"
	"expensecal/internal/config"
	"expensecal/internal/core"
	apihttp "expensecal/internal/http"
	applog "expensecal/internal/log"
	"expensecal/internal/services"
	"expensecal/internal/storage/memory"
	"expensecal/internal/storage/sqlstore"
)

func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	logger := applog.New(applog.Config{Output: io.Discard})
	svc := services.NewExpenseService(memory.New(), services.Options{Logger: logger.Slog()})
	srv := apihttp.NewServer(":0", svc, apihttp.Options{RateLimitPerMinute: 1000, Logger: logger})
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown(context.Background())
	})
	return ts
}

func mustDate(t *testing.T, s string) core.Date {
	t.Helper()
	d, err := core.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCommand()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "worker", "migrate", "calendar", "add", "budget"}, names)
}

func TestResolveMonth(t *testing.T) {
	now := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)

	y, m, err := resolveMonth(0, 0, now)
	require.NoError(t, err)
	assert.Equal(t, 2025, y)
	assert.Equal(t, 3, m)

	y, m, err = resolveMonth(2024, 2, now)
	require.NoError(t, err)
	assert.Equal(t, 2024, y)
	assert.Equal(t, 2, m)

	y, m, err = resolveMonth(0, 11, now)
	require.NoError(t, err)
	assert.Equal(t, 2025, y)
	assert.Equal(t, 11, m)

	_, _, err = resolveMonth(2024, 13, now)
	assert.Error(t, err)
}

func TestBackfillRange(t *testing.T) {
	_, _, ok, err := (&workerOptions{}).backfillRange()
	require.NoError(t, err)
	assert.False(t, ok)

	start, end, ok, err := (&workerOptions{backfillFrom: "2025-09-01"}).backfillRange()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, start, end)

	_, _, _, err = (&workerOptions{backfillTo: "2025-09-01"}).backfillRange()
	assert.Error(t, err)

	_, _, _, err = (&workerOptions{backfillFrom: "2025-09-10", backfillTo: "2025-09-01"}).backfillRange()
	assert.Error(t, err)

	_, _, _, err = (&workerOptions{backfillFrom: "09/01/2025"}).backfillRange()
	assert.Error(t, err)
}

func TestDialectFor(t *testing.T) {
	d, dsn, err := dialectFor(&config.Config{DataBackend: "postgres", PostgresURL: "postgres://localhost/db"})
	require.NoError(t, err)
	assert.Equal(t, sqlstore.Postgres, d)
	assert.Equal(t, "postgres://localhost/db", dsn)

	path := t.TempDir() + "/data/test.db"
	d, dsn, err = dialectFor(&config.Config{DataBackend: "sqlite", SQLiteDBPath: path})
	require.NoError(t, err)
	assert.Equal(t, sqlstore.SQLite, d)
	assert.True(t, strings.HasPrefix(dsn, path+"?"))

	_, _, err = dialectFor(&config.Config{DataBackend: "memory"})
	assert.Error(t, err)
}

func TestRenderMonth(t *testing.T) {
	ts := newAPI(t)
	c := client.New(ts.URL)
	ctx := context.Background()

	for _, e := range []core.Expense{
		{Date: mustDate(t, "2025-09-05"), Amount: core.Money{Cents: 25000}, Label: "food"},
		{Date: mustDate(t, "2025-09-20"), Amount: core.Money{Cents: 1050}, Label: "bills"},
	} {
		_, err := c.CreateExpense(ctx, e)
		require.NoError(t, err)
	}
	_, err := c.CreateBudget(ctx, core.Budget{Type: core.MonthlyBudget, Amount: core.Money{Cents: 20000}, StartDate: mustDate(t, "2025-01-01")})
	require.NoError(t, err)

	m := client.NewMirror(c, 2025, 9, client.MirrorOptions{})
	require.NoError(t, m.Refresh(ctx))

	var buf bytes.Buffer
	RenderMonth(&buf, m, mustDate(t, "2025-09-10"))
	out := buf.String()

	lines := strings.Split(out, "\n")
	assert.Equal(t, "September 2025", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "Mon"))
	// September 1st 2025 is a Monday, so the first week starts in column 0.
	assert.True(t, strings.HasPrefix(lines[2], " 1"))
	assert.Contains(t, lines[3], "250")
	assert.Contains(t, out, "10*")
	assert.Contains(t, out, "10.5")
	assert.Contains(t, out, "Total: 260.5")
	assert.Contains(t, out, "food")
	assert.Contains(t, out, "OVER BUDGET")
}

func TestRenderMonthOffsetAndNoBudget(t *testing.T) {
	ts := newAPI(t)
	m := client.NewMirror(client.New(ts.URL), 2025, 10, client.MirrorOptions{})
	require.NoError(t, m.Refresh(context.Background()))

	var buf bytes.Buffer
	RenderMonth(&buf, m, mustDate(t, "2025-09-10"))
	lines := strings.Split(buf.String(), "\n")

	// October 1st 2025 is a Wednesday.
	assert.Equal(t, strings.Repeat(" ", 2*cellWidth)+" 1", lines[2][:2*cellWidth+2])
	assert.Contains(t, buf.String(), "Total: 0")
	assert.NotContains(t, buf.String(), "Budget:")
}

func TestAddCommand(t *testing.T) {
	ts := newAPI(t)

	cmd := newAddCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--server", ts.URL, "--date", "2025-09-05", "--amount", "12.50", "--label", "food"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "Added 12.5 on 2025-09-05")
	assert.Contains(t, out.String(), "Day total: 12.5")

	list, err := client.New(ts.URL).ExpensesOn(context.Background(), mustDate(t, "2025-09-05"))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "food", list[0].Label)
}

func TestAddCommandRejectsBadAmount(t *testing.T) {
	ts := newAPI(t)
	cmd := newAddCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--server", ts.URL, "--amount", "lots"})
	assert.Error(t, cmd.ExecuteContext(context.Background()))
}

func TestBudgetCommand(t *testing.T) {
	ts := newAPI(t)

	cmd := newBudgetCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--server", ts.URL, "--amount", "500", "--start", "2025-01-01"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "Added monthly budget of 500 starting 2025-01-01")
	assert.Contains(t, out.String(), "500 remaining")

	current, err := client.New(ts.URL).CurrentBudget(context.Background(), core.MonthlyBudget)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), current.Amount.Cents)
}

func TestBudgetCommandRejectsUnknownType(t *testing.T) {
	ts := newAPI(t)
	cmd := newBudgetCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--server", ts.URL, "--amount", "500", "--type", "yearly"})
	err := cmd.ExecuteContext(context.Background())
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Status)
}
