package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"

	"expensecal/internal/core"
)

// fakeSheets serves the three values endpoints the client uses over an
// in-memory grid of rows.
type fakeSheets struct {
	mu    sync.Mutex
	rows  [][]any
	calls []string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	const prefix = "/v4/spreadsheets/sheet-id/values/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	rng := strings.TrimPrefix(r.URL.Path, prefix)
	var body struct {
		Values [][]any `json:"values"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	switch {
	case r.Method == http.MethodGet:
		f.calls = append(f.calls, "get "+rng)
		json.NewEncoder(w).Encode(map[string]any{"range": rng, "values": f.rows})
		return
	case strings.HasSuffix(rng, ":append"):
		f.calls = append(f.calls, "append")
		f.rows = append(f.rows, body.Values...)
	case strings.HasSuffix(rng, ":clear"):
		f.calls = append(f.calls, "clear "+strings.TrimSuffix(rng, ":clear"))
		f.rows[rowFromRange(rng)-1] = []any{}
	case r.Method == http.MethodPut:
		f.calls = append(f.calls, "update "+rng)
		f.rows[rowFromRange(rng)-1] = body.Values[0]
	}
	w.Write([]byte(`{}`))
}

// rowFromRange extracts N from "Sheet!AN:FN".
func rowFromRange(rng string) int {
	cell := strings.SplitN(strings.SplitN(rng, "!", 2)[1], ":", 2)[0]
	n := 0
	for _, ch := range cell[1:] {
		n = n*10 + int(ch-'0')
	}
	return n
}

func newFakeClient(t *testing.T) (*Client, *fakeSheets) {
	t.Helper()
	fake := &fakeSheets{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := newClient(context.Background(), Config{SpreadsheetID: "sheet-id", SheetName: "Expenses"},
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return c, fake
}

func sample(id string, cents int64) core.Expense {
	return core.Expense{
		ID:          id,
		Date:        core.NewDate(2025, 9, 5),
		Amount:      core.Money{Cents: cents},
		Label:       "food",
		Description: "lunch",
		UpdatedAt:   time.Date(2025, 9, 5, 12, 0, 0, 0, time.UTC),
	}
}

func TestUpsertAppendsThenUpdates(t *testing.T) {
	c, fake := newFakeClient(t)
	ctx := context.Background()

	require.NoError(t, c.Upsert(ctx, sample("a", 1250)))
	require.Len(t, fake.rows, 2, "header plus first row")
	assert.Equal(t, "ID", fake.rows[0][0])
	assert.Equal(t, "a", fake.rows[1][0])

	require.NoError(t, c.Upsert(ctx, sample("b", 100)))
	require.Len(t, fake.rows, 3)

	require.NoError(t, c.Upsert(ctx, sample("a", 9999)))
	require.Len(t, fake.rows, 3, "existing id must not append")
	assert.Equal(t, 99.99, fake.rows[1][2])
	assert.Contains(t, fake.calls, "update Expenses!A2:F2")
}

func TestRemoveClearsRow(t *testing.T) {
	c, fake := newFakeClient(t)
	ctx := context.Background()
	require.NoError(t, c.Upsert(ctx, sample("a", 1)))
	require.NoError(t, c.Upsert(ctx, sample("b", 2)))

	require.NoError(t, c.Remove(ctx, "b"))
	assert.Contains(t, fake.calls, "clear Expenses!A3:F3")
	assert.Empty(t, fake.rows[2])

	// unknown ids are ignored
	n := len(fake.calls)
	require.NoError(t, c.Remove(ctx, "zzz"))
	assert.Len(t, fake.calls, n+1, "only the lookup is issued")
}

func TestExpenseRow(t *testing.T) {
	row := expenseRow(sample("abc", 1250))
	assert.Equal(t, []any{"abc", "2025-09-05", 12.5, "food", "lunch", "2025-09-05T12:00:00Z"}, row)

	noTime := sample("x", 0)
	noTime.UpdatedAt = time.Time{}
	assert.Equal(t, "", expenseRow(noTime)[5])
}

func TestRowOf(t *testing.T) {
	ids := firstColumn([][]any{{"ID"}, {"a"}, {}, {" b "}})
	assert.Equal(t, 2, rowOf(ids, "a"))
	assert.Equal(t, 4, rowOf(ids, "b"))
	assert.Equal(t, 0, rowOf(ids, "ID"), "header is never a match")
	assert.Equal(t, 0, rowOf(ids, ""))
}

func TestNewRequiresSettings(t *testing.T) {
	ctx := context.Background()
	_, err := New(ctx, Config{})
	assert.ErrorContains(t, err, "missing spreadsheet id")

	_, err = New(ctx, Config{SpreadsheetID: "x"})
	assert.ErrorContains(t, err, "missing service account credentials")

	_, err = New(ctx, Config{SpreadsheetID: "x", CredentialsFile: filepath.Join(t.TempDir(), "none.json")})
	assert.ErrorContains(t, err, "read service account file")
}

func TestCredentialsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"service_account"}`), 0o600))
	data, err := credentials(Config{CredentialsFile: path})
	require.NoError(t, err)
	assert.Contains(t, string(data), "service_account")

	data, err = credentials(Config{CredentialsJSON: `{"inline":true}`, CredentialsFile: path})
	require.NoError(t, err)
	assert.Contains(t, string(data), "inline")
}
