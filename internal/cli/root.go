package cli

import (
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:     "expensecal",
		Short:   "Expense tracking calendar: API server, Sheets mirror worker and CLI client",
		Version: Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if envFile != "" {
				LoadEnvFile(envFile)
				return
			}
			LoadEnvFile()
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default .env)")

	rootCmd.AddCommand(
		newServeCommand(),
		newWorkerCommand(),
		newMigrateCommand(),
		newCalendarCommand(),
		newAddCommand(),
		newBudgetCommand(),
	)
	return rootCmd
}
