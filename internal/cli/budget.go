package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"expensecal/internal/core"
)

func newBudgetCommand() *cobra.Command {
	var (
		server     string
		budgetType string
		amount     string
		startDate  string
		category   string
	)
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Declare a weekly or monthly budget and show its progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			money, err := core.ParseMoney(amount)
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}
			b := core.Budget{
				Type:     core.BudgetType(strings.ToLower(budgetType)),
				Amount:   money,
				Category: category,
			}
			if startDate != "" {
				if b.StartDate, err = core.ParseDate(startDate); err != nil {
					return fmt.Errorf("--start: %w", err)
				}
			}

			m, err := refreshMirror(cmd.Context(), server, core.Today())
			if err != nil {
				return err
			}
			created, err := m.AddBudget(cmd.Context(), b)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Added %s budget of %s starting %s (id %s)\n",
				created.Type, created.Amount, created.StartDate, created.ID)
			if p, ok := m.BudgetProgress(); ok && created.Type == core.MonthlyBudget {
				fmt.Fprintf(out, "This month: %s spent, %s remaining\n", p.Spent, p.Remaining)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", defaultServer, "API base URL")
	cmd.Flags().StringVar(&budgetType, "type", string(core.MonthlyBudget), "weekly or monthly")
	cmd.Flags().StringVar(&amount, "amount", "", "budget amount, e.g. 500")
	cmd.Flags().StringVar(&startDate, "start", "", "first day of the budget as YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&category, "category", "", "limit the budget to one label")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
