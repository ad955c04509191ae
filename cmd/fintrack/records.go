package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/steveyegge/fintrack/internal/model"
	"github.com/steveyegge/fintrack/internal/remote"
	"github.com/steveyegge/fintrack/internal/summary"
	engine "github.com/steveyegge/fintrack/internal/sync"
	"github.com/steveyegge/fintrack/internal/ui"
)

var addCmd = &cobra.Command{
	Use:     "add <amount> <description>",
	GroupID: "records",
	Short:   "Record an income or expense",
	Long: `Record an income or expense transaction.

The transaction is saved locally first. If you are logged in and the server
is reachable it is uploaded right away; otherwise it stays pending until the
next 'fintrack sync'.

Examples:
  fintrack add 12.50 "Lunch" --category food
  fintrack add 2500 "Salary" --kind income --category salary --date 2024-05-01
  fintrack add 40 "Taxi" --category transport --date yesterday`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		amount, err := decimal.NewFromString(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid amount %q\n", args[0])
			os.Exit(1)
		}

		kindFlag, _ := cmd.Flags().GetString("kind")
		kind, err := model.ParseKind(kindFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		category, _ := cmd.Flags().GetString("category")
		dateFlag, _ := cmd.Flags().GetString("date")
		date, err := parseDate(dateFlag, time.Now())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		tx := &model.Transaction{
			Amount:      amount,
			Description: args[1],
			Kind:        kind,
			Category:    category,
			OccurredAt:  date,
		}
		if err := tx.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx := cmd.Context()
		a := mustOpenApp(ctx, appOptions{})
		defer a.Close()

		outcome, err := a.engine.AddTransaction(ctx, tx, addOptions(ctx, a))
		if err != nil {
			a.exitAddError(err)
		}

		printOutcome(fmt.Sprintf("Added %s %s (%s)", kind, summary.FormatAmount(amount), date), outcome)
	},
}

var goalCmd = &cobra.Command{
	Use:     "goal <amount>",
	GroupID: "records",
	Short:   "Set a savings goal for a month",
	Long: `Set a savings goal for a calendar month.

The server allows one goal per month. A second goal for the same month is
kept locally but is rejected on upload and stays pending.

Examples:
  fintrack goal 500                     # this month
  fintrack goal 800 --month 2024-06
  fintrack goal 300 --month "in 1 month"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		amount, err := decimal.NewFromString(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid amount %q\n", args[0])
			os.Exit(1)
		}

		monthFlag, _ := cmd.Flags().GetString("month")
		year, month, err := parseMonth(monthFlag, time.Now())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		g := &model.Goal{
			TargetAmount: amount,
			TargetMonth:  int(month),
			TargetYear:   year,
			CreatedAt:    time.Now().UTC(),
		}
		if err := g.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx := cmd.Context()
		a := mustOpenApp(ctx, appOptions{})
		defer a.Close()

		outcome, err := a.engine.AddGoal(ctx, g, addOptions(ctx, a))
		if err != nil {
			a.exitAddError(err)
		}

		printOutcome(fmt.Sprintf("Set goal %s for %s", summary.FormatAmount(amount), g.Period()), outcome)
	},
}

var listCmd = &cobra.Command{
	Use:     "list [transactions|goals]",
	GroupID: "records",
	Short:   "List local records",
	Args:    cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		what := "transactions"
		if len(args) == 1 {
			what = args[0]
		}

		ctx := cmd.Context()
		a := mustOpenApp(ctx, appOptions{})
		defer a.Close()
		userID := a.requireUser()

		switch what {
		case "transactions", "tx":
			txs, err := a.db.ListTransactionsContext(ctx, userID)
			if err != nil {
				a.fatalf("%v", err)
			}
			if len(txs) == 0 {
				fmt.Println("No transactions")
				return
			}
			for _, tx := range txs {
				fmt.Printf("%5d  %s  %-7s %12s  %-15s %s  %s\n",
					tx.LocalID, tx.OccurredAt, tx.Kind, summary.FormatAmount(tx.Amount),
					tx.Category, tx.Description, syncMarker(tx.Synced))
			}
		case "goals":
			goals, err := a.db.ListGoalsContext(ctx, userID)
			if err != nil {
				a.fatalf("%v", err)
			}
			if len(goals) == 0 {
				fmt.Println("No goals")
				return
			}
			for _, g := range goals {
				fmt.Printf("%5d  %s  %12s  %s\n",
					g.LocalID, g.Period(), summary.FormatAmount(g.TargetAmount), syncMarker(g.Synced))
			}
		default:
			a.fatalf("unknown record type %q (want transactions or goals)", what)
		}
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <transaction|goal> <id>",
	GroupID: "records",
	Short:   "Delete a record locally and, when synced, on the server",
	Long: `Delete a record by its local id (see 'fintrack list').

The local row is always removed. If the record was synced, the server copy
is deleted too; a failure there is reported but does not restore the row.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		localID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid id %q\n", args[1])
			os.Exit(1)
		}

		ctx := cmd.Context()
		a := mustOpenApp(ctx, appOptions{})
		defer a.Close()
		a.requireUser()

		var res engine.DeleteResult
		switch args[0] {
		case "transaction", "tx":
			res, err = a.engine.DeleteTransaction(ctx, localID)
		case "goal":
			res, err = a.engine.DeleteGoal(ctx, localID)
		default:
			a.fatalf("unknown record type %q (want transaction or goal)", args[0])
		}
		if err != nil {
			a.fatalf("%v", err)
		}

		switch {
		case !res.Found:
			fmt.Printf("%s No %s with id %d\n", ui.RenderWarn("⚠"), args[0], localID)
		case res.RemoteErr != nil:
			fmt.Printf("%s Deleted %s %d locally (server copy kept: %v)\n", ui.RenderWarn("⚠"), args[0], localID, res.RemoteErr)
		case res.RemoteDeleted:
			fmt.Printf("%s Deleted %s %d locally and on the server\n", ui.RenderPass("✓"), args[0], localID)
		default:
			fmt.Printf("%s Deleted %s %d\n", ui.RenderPass("✓"), args[0], localID)
		}
	},
}

// addOptions checks the server once so an offline add does not wait on a
// doomed upload.
func addOptions(ctx context.Context, a *app) engine.AddOptions {
	return engine.AddOptions{Eligible: a.engine.Eligibility(ctx).Eligible()}
}

func (a *app) exitAddError(err error) {
	if errors.Is(err, engine.ErrNoUser) {
		a.fatalf("not logged in (run 'fintrack login')")
	} else {
		a.fatalf("%v", err)
	}
}

func printOutcome(msg string, o engine.Outcome) {
	if o.IsSynced() {
		fmt.Printf("%s %s %s\n", ui.RenderPass("✓"), msg, ui.RenderMuted(fmt.Sprintf("[#%d, synced]", o.LocalID)))
		return
	}
	if errors.Is(o.Reason, remote.ErrConflict) {
		fmt.Printf("%s %s %s\n", ui.RenderWarn("⚠"), msg, ui.RenderMuted(fmt.Sprintf("[#%d, saved locally]", o.LocalID)))
		fmt.Printf("  The server already has a %s for this period; this one will not sync.\n", o.Entity)
		return
	}
	fmt.Printf("%s %s %s\n", ui.RenderWarn("⚠"), msg, ui.RenderMuted(fmt.Sprintf("[#%d, saved locally, will sync later]", o.LocalID)))
}

func syncMarker(synced bool) string {
	if synced {
		return ui.RenderPass("synced")
	}
	return ui.RenderWarn("pending")
}

func init() {
	addCmd.Flags().StringP("kind", "k", string(model.KindExpense), "income or expense")
	addCmd.Flags().StringP("category", "c", "general", "Category")
	addCmd.Flags().StringP("date", "d", "", "Date (YYYY-MM-DD or e.g. \"yesterday\"; default today)")

	goalCmd.Flags().StringP("month", "m", "", "Month (YYYY-MM or e.g. \"in 1 month\"; default this month)")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(goalCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
}
