package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/steveyegge/fintrack/internal/migrate"
	"github.com/steveyegge/fintrack/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export <file>",
	GroupID: "maint",
	Short:   "Export local records to JSONL or YAML",
	Long: `Write every local transaction and goal of the logged-in user to a file.

The format follows the file extension (.yaml/.yml for YAML, anything else
for JSONL) unless --format is given. An existing non-empty export is never
replaced by an empty one.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		format := migrate.FormatForPath(args[0])
		if f, _ := cmd.Flags().GetString("format"); f != "" {
			parsed, err := migrate.ParseFormat(f)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			format = parsed
		}

		ctx := cmd.Context()
		a := mustOpenApp(ctx, appOptions{})
		defer a.Close()
		userID := a.requireUser()

		res, err := migrate.Export(ctx, a.db, userID, args[0], format)
		if err != nil {
			if errors.Is(err, migrate.ErrEmptyExport) {
				a.fatalf("%v\nNothing to export; %s was left unchanged", err, args[0])
			} else {
				a.fatalf("%v", err)
			}
		}

		fmt.Printf("%s Exported %d transactions and %d goals to %s\n",
			ui.RenderPass("✓"), res.Transactions, res.Goals, res.Path)
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "maint",
	Short:   "Import records from a JSONL or YAML export",
	Long: `Import records as new local rows owned by the logged-in user.

Imported rows are pending: any server ids in the file are discarded and the
next sync uploads them. Invalid records are skipped and listed.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		ctx := cmd.Context()
		a := mustOpenApp(ctx, appOptions{})
		defer a.Close()
		userID := a.requireUser()

		res, err := migrate.Import(ctx, a.db, userID, args[0], migrate.Options{DryRun: dryRun})
		if err != nil {
			a.fatalf("%v", err)
		}

		verb := "Imported"
		if dryRun {
			verb = "Would import"
		}
		fmt.Printf("%s %s %d transactions and %d goals\n", ui.RenderPass("✓"), verb, res.Transactions, res.Goals)
		for _, msg := range res.Errors {
			fmt.Printf("  %s %s\n", ui.RenderWarn("skipped:"), msg)
		}
		if !dryRun && res.Transactions+res.Goals > 0 {
			fmt.Println("Run 'fintrack sync' to upload them.")
		}
	},
}

var clearCmd = &cobra.Command{
	Use:     "clear",
	GroupID: "maint",
	Short:   "Delete all local records of the logged-in user",
	Long: `Delete every local transaction and goal of the logged-in user.

Server copies are not touched; a later sync downloads the synced ones again.
Pending records are lost unless exported first.`,
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")

		ctx := cmd.Context()
		a := mustOpenApp(ctx, appOptions{})
		defer a.Close()
		userID := a.requireUser()

		if !force {
			_, _, pending, err := a.counts(ctx, userID)
			if err != nil {
				a.fatalf("%v", err)
			}
			if pending > 0 {
				a.fatalf("%d records are not synced yet; export them or use --force", pending)
			}
		}

		txs, goals, err := a.engine.ClearLocal(ctx)
		if err != nil {
			a.fatalf("%v", err)
		}
		fmt.Printf("%s Removed %d transactions and %d goals\n", ui.RenderPass("✓"), txs, goals)
	},
}

func init() {
	exportCmd.Flags().String("format", "", "jsonl or yaml (default from extension)")
	importCmd.Flags().Bool("dry-run", false, "Validate without writing")
	clearCmd.Flags().BoolP("force", "f", false, "Also delete records that are not synced")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(clearCmd)
}
