package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"expensecal/internal/client"
	"expensecal/internal/core"
)

const defaultServer = "http://localhost:10001"

const cellWidth = 9

func newCalendarCommand() *cobra.Command {
	var (
		server      string
		year, month int
	)
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Print a month grid with daily totals and budget progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			y, mon, err := resolveMonth(year, month, time.Now())
			if err != nil {
				return err
			}
			m := client.NewMirror(client.New(server), y, mon, client.MirrorOptions{})
			if err := m.Refresh(cmd.Context()); err != nil {
				return err
			}
			RenderMonth(cmd.OutOrStdout(), m, core.Today())
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", defaultServer, "API base URL")
	cmd.Flags().IntVar(&year, "year", 0, "year to show (default current year)")
	cmd.Flags().IntVar(&month, "month", 0, "month to show, 1-12 (default current month)")
	return cmd
}

// resolveMonth fills zero year or month from now and validates the result.
func resolveMonth(year, month int, now time.Time) (int, int, error) {
	now = now.UTC()
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = int(now.Month())
	}
	if err := core.ValidateYearMonth(year, month); err != nil {
		return 0, 0, err
	}
	return year, month, nil
}

// RenderMonth writes the mirrored month as a Monday-first grid. Each week is
// a line of day numbers followed by a line of daily totals; today is marked
// with an asterisk. Month total, category totals and monthly budget progress
// follow the grid.
func RenderMonth(w io.Writer, m *client.Mirror, today core.Date) {
	year, month := m.Month()
	first, last := core.MonthRange(year, month)
	totals := m.DailyTotals()

	fmt.Fprintf(w, "%s %d\n", time.Month(month), year)
	for _, name := range []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"} {
		fmt.Fprintf(w, "%-*s", cellWidth, name)
	}
	fmt.Fprintln(w)

	// Monday is column 0.
	offset := (int(first.Weekday()) + 6) % 7
	var days, amounts strings.Builder
	for i := 0; i < offset; i++ {
		days.WriteString(strings.Repeat(" ", cellWidth))
		amounts.WriteString(strings.Repeat(" ", cellWidth))
	}
	col := offset
	for d := first; !d.After(last); d = d.AddDays(1) {
		label := fmt.Sprintf("%2d", d.Day())
		if d.Equal(today.Time) {
			label += "*"
		}
		fmt.Fprintf(&days, "%-*s", cellWidth, label)

		amount := ""
		if total, ok := totals[d.String()]; ok && !total.IsZero() {
			amount = total.String()
		}
		fmt.Fprintf(&amounts, "%-*s", cellWidth, amount)

		col++
		if col == 7 || d.Equal(last.Time) {
			fmt.Fprintln(w, strings.TrimRight(days.String(), " "))
			fmt.Fprintln(w, strings.TrimRight(amounts.String(), " "))
			days.Reset()
			amounts.Reset()
			col = 0
		}
	}

	fmt.Fprintf(w, "\nTotal: %s\n", m.MonthTotal())

	cats := m.CategoryTotals()
	if len(cats) > 0 {
		names := make([]string, 0, len(cats))
		for name := range cats {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			display := name
			if display == "" {
				display = "(none)"
			}
			fmt.Fprintf(w, "  %-16s %s\n", display, cats[name])
		}
	}

	if p, ok := m.BudgetProgress(); ok {
		fmt.Fprintf(w, "Budget: %s of %s spent (%.1f%%), %s remaining",
			p.Spent, p.Budget.Amount, p.Percent, p.Remaining)
		if p.OverBudget {
			fmt.Fprint(w, " OVER BUDGET")
		}
		fmt.Fprintln(w)
	}
}

// refreshMirror loads the month of date into a new mirror.
func refreshMirror(ctx context.Context, server string, date core.Date) (*client.Mirror, error) {
	m := client.NewMirror(client.New(server), date.Year(), date.Month(), client.MirrorOptions{})
	if err := m.Refresh(ctx); err != nil {
		return nil, err
	}
	return m, nil
}
