package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"expensecal/internal/core"
)

func newAddCommand() *cobra.Command {
	var (
		server      string
		date        string
		amount      string
		label       string
		description string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record an expense through the API",
		Example: `  expensecal add --amount 12.50 --label food
  expensecal add --date 2025-09-05 --amount 250 --label bills --description "electricity"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day := core.Today()
			if date != "" {
				var err error
				if day, err = core.ParseDate(date); err != nil {
					return fmt.Errorf("--date: %w", err)
				}
			}
			money, err := core.ParseMoney(amount)
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}

			m, err := refreshMirror(cmd.Context(), server, day)
			if err != nil {
				return err
			}
			created, err := m.AddExpense(cmd.Context(), core.Expense{
				Date:        day,
				Amount:      money,
				Label:       label,
				Description: description,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s on %s (id %s). Day total: %s\n",
				created.Amount, created.Date, created.ID, m.TotalFor(day))
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", defaultServer, "API base URL")
	cmd.Flags().StringVar(&date, "date", "", "expense date as YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&amount, "amount", "", "amount, e.g. 12.50")
	cmd.Flags().StringVar(&label, "label", "", "category label")
	cmd.Flags().StringVar(&description, "description", "", "free text description")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
