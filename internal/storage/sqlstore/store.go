// Package sqlstore persists expenses and budgets in SQLite or PostgreSQL
// through database/sql. Both dialects share the same queries; placeholders
// are written as ? and rebound for PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"expensecal/internal/core"
	"expensecal/internal/storage"
)

// Dialect selects the SQL flavour and migration set.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

func (d Dialect) driverName() string { return string(d) }

var _ storage.Store = (*Store)(nil)

type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// OpenSQLite opens (creating if needed) the database file at path and migrates it.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	dsn, err := SQLiteDSN(path)
	if err != nil {
		return nil, err
	}
	s, err := open(ctx, SQLite, dsn)
	if err != nil {
		return nil, err
	}
	// One writer at a time; avoids SQLITE_BUSY under concurrent requests.
	s.db.SetMaxOpenConns(1)
	return s, nil
}

// SQLiteDSN creates the parent directory of path and returns the driver DSN.
func SQLiteDSN(path string) (string, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create db directory: %w", err)
		}
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", nil
}

// OpenPostgres connects to url and migrates the schema.
func OpenPostgres(ctx context.Context, url string) (*Store, error) {
	return open(ctx, Postgres, url)
}

func open(ctx context.Context, d Dialect, dsn string) (*Store, error) {
	if err := RunMigrations(d, dsn); err != nil {
		return nil, err
	}
	db, err := sql.Open(d.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", d, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	slog.InfoContext(ctx, "SQL store ready", "dialect", string(d))
	return &Store{db: db, dialect: d, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const expenseColumns = "id, date, amount_cents, description, label, created_at, updated_at"

// Create implements storage.ExpenseStore.
func (s *Store) Create(ctx context.Context, e core.Expense) (core.Expense, error) {
	now := s.timestamp()
	e.ID = uuid.NewString()
	e.CreatedAt, e.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx, s.rebind(
		"INSERT INTO expenses ("+expenseColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)"),
		e.ID, e.Date.String(), e.Amount.Cents, e.Description, e.Label, now.UnixMicro(), now.UnixMicro())
	if err != nil {
		return core.Expense{}, core.WrapStore("create expense", err)
	}
	return e, nil
}

func (s *Store) Get(ctx context.Context, id string) (core.Expense, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+expenseColumns+" FROM expenses WHERE id = ?"), id)
	e, err := scanExpense(row)
	if err != nil {
		return core.Expense{}, core.WrapStore("get expense", err)
	}
	return e, nil
}

func (s *Store) ListByDate(ctx context.Context, date core.Date) ([]core.Expense, error) {
	return s.queryExpenses(ctx, "list by date",
		"SELECT "+expenseColumns+" FROM expenses WHERE date = ? ORDER BY created_at DESC, seq DESC",
		date.String())
}

func (s *Store) ListRange(ctx context.Context, start, end core.Date) ([]core.Expense, error) {
	return s.queryExpenses(ctx, "list range",
		"SELECT "+expenseColumns+" FROM expenses WHERE date >= ? AND date <= ? ORDER BY date ASC, created_at DESC, seq DESC",
		start.String(), end.String())
}

// Update reads, merges and writes back inside one transaction.
func (s *Store) Update(ctx context.Context, id string, u core.ExpenseUpdate) (core.Expense, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Expense{}, core.WrapStore("begin update", err)
	}
	defer tx.Rollback()

	query := "SELECT " + expenseColumns + " FROM expenses WHERE id = ?"
	if s.dialect == Postgres {
		query += " FOR UPDATE"
	}
	current, err := scanExpense(tx.QueryRowContext(ctx, s.rebind(query), id))
	if err != nil {
		return core.Expense{}, core.WrapStore("update expense", err)
	}

	updated := u.Apply(current)
	updated.UpdatedAt = s.timestamp()
	_, err = tx.ExecContext(ctx, s.rebind(
		"UPDATE expenses SET date = ?, amount_cents = ?, description = ?, label = ?, updated_at = ? WHERE id = ?"),
		updated.Date.String(), updated.Amount.Cents, updated.Description, updated.Label, updated.UpdatedAt.UnixMicro(), id)
	if err != nil {
		return core.Expense{}, core.WrapStore("update expense", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Expense{}, core.WrapStore("commit update", err)
	}
	return updated, nil
}

func (s *Store) Delete(ctx context.Context, id string) (core.Expense, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		"DELETE FROM expenses WHERE id = ? RETURNING "+expenseColumns), id)
	e, err := scanExpense(row)
	if err != nil {
		return core.Expense{}, core.WrapStore("delete expense", err)
	}
	return e, nil
}

func (s *Store) SumAmount(ctx context.Context, start, end core.Date) (core.Money, error) {
	var sum int64
	err := s.db.QueryRowContext(ctx, s.rebind(
		"SELECT COALESCE(SUM(amount_cents), 0) FROM expenses WHERE date >= ? AND date <= ?"),
		start.String(), end.String()).Scan(&sum)
	if err != nil {
		return core.Money{}, core.WrapStore("sum amount", err)
	}
	return core.Money{Cents: sum}, nil
}

const budgetColumns = "id, type, amount_cents, start_date, category, created_at"

func (s *Store) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	b.ID = uuid.NewString()
	b.CreatedAt = s.timestamp()
	_, err := s.db.ExecContext(ctx, s.rebind(
		"INSERT INTO budgets ("+budgetColumns+") VALUES (?, ?, ?, ?, ?, ?)"),
		b.ID, string(b.Type), b.Amount.Cents, b.StartDate.String(), b.Category, b.CreatedAt.UnixMicro())
	if err != nil {
		return core.Budget{}, core.WrapStore("create budget", err)
	}
	return b, nil
}

func (s *Store) ListBudgets(ctx context.Context) ([]core.Budget, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+budgetColumns+" FROM budgets ORDER BY created_at DESC, seq DESC")
	if err != nil {
		return nil, core.WrapStore("list budgets", err)
	}
	defer rows.Close()

	budgets := make([]core.Budget, 0)
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, core.WrapStore("list budgets", err)
		}
		budgets = append(budgets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, core.WrapStore("list budgets", err)
	}
	return budgets, nil
}

func (s *Store) LatestBudget(ctx context.Context, t core.BudgetType) (core.Budget, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		"SELECT "+budgetColumns+" FROM budgets WHERE type = ? ORDER BY created_at DESC, seq DESC LIMIT 1"), string(t))
	b, err := scanBudget(row)
	if err != nil {
		return core.Budget{}, core.WrapStore("latest budget", err)
	}
	return b, nil
}

func (s *Store) queryExpenses(ctx context.Context, op, query string, args ...any) ([]core.Expense, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, core.WrapStore(op, err)
	}
	defer rows.Close()

	expenses := make([]core.Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, core.WrapStore(op, err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, core.WrapStore(op, err)
	}
	return expenses, nil
}

// timestamp matches the microsecond precision of the stored columns.
func (s *Store) timestamp() time.Time {
	return s.now().Truncate(time.Microsecond)
}

// rebind rewrites ? placeholders to $1, $2, ... for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(sc scanner) (core.Expense, error) {
	var (
		e                core.Expense
		date             string
		created, updated int64
	)
	if err := sc.Scan(&e.ID, &date, &e.Amount.Cents, &e.Description, &e.Label, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Expense{}, core.ErrNotFound
		}
		return core.Expense{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("stored date %q: %w", date, err)
	}
	e.Date = d
	e.CreatedAt = time.UnixMicro(created).UTC()
	e.UpdatedAt = time.UnixMicro(updated).UTC()
	return e, nil
}

func scanBudget(sc scanner) (core.Budget, error) {
	var (
		b       core.Budget
		typ     string
		start   string
		created int64
	)
	if err := sc.Scan(&b.ID, &typ, &b.Amount.Cents, &start, &b.Category, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Budget{}, core.ErrNotFound
		}
		return core.Budget{}, err
	}
	d, err := core.ParseDate(start)
	if err != nil {
		return core.Budget{}, fmt.Errorf("stored start date %q: %w", start, err)
	}
	b.Type = core.BudgetType(typ)
	b.StartDate = d
	b.CreatedAt = time.UnixMicro(created).UTC()
	return b, nil
}
