package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/steveyegge/fintrack/internal/model"
	"github.com/steveyegge/fintrack/internal/summary"
	"github.com/steveyegge/fintrack/internal/ui"
)

var summaryCmd = &cobra.Command{
	Use:     "summary",
	GroupID: "records",
	Short:   "Show monthly totals and goal progress",
	Long: `Show income, expenses and net savings per month with progress toward
each month's goal. Reads local records only; run 'fintrack sync' first to
include records from other devices.`,
	Run: func(cmd *cobra.Command, args []string) {
		byCategory, _ := cmd.Flags().GetBool("categories")
		kindFlag, _ := cmd.Flags().GetString("kind")

		ctx := cmd.Context()
		a := mustOpenApp(ctx, appOptions{})
		defer a.Close()
		userID := a.requireUser()

		txs, err := a.db.ListTransactionsContext(ctx, userID)
		if err != nil {
			a.fatalf("%v", err)
		}

		if byCategory {
			kind, err := model.ParseKind(kindFlag)
			if err != nil {
				a.fatalf("%v", err)
			}
			if err := summary.RenderCategories(os.Stdout, summary.ByCategory(txs, kind)); err != nil {
				a.fatalf("%v", err)
			}
			return
		}

		goals, err := a.db.ListGoalsContext(ctx, userID)
		if err != nil {
			a.fatalf("%v", err)
		}

		months := summary.Monthly(txs, goals)
		if len(months) == 0 {
			fmt.Println("No records yet")
			return
		}
		if err := summary.Render(os.Stdout, months); err != nil {
			a.fatalf("%v", err)
		}
		fmt.Printf("\n%s %s\n", ui.RenderAccent("Balance:"), summary.FormatAmount(summary.Balance(txs)))
	},
}

func init() {
	summaryCmd.Flags().Bool("categories", false, "Totals per category instead of per month")
	summaryCmd.Flags().String("kind", string(model.KindExpense), "Kind to total with --categories")

	rootCmd.AddCommand(summaryCmd)
}
