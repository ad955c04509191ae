package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/steveyegge/fintrack/internal/loadtest"
	"github.com/steveyegge/fintrack/internal/ui"
)

var loadtestCmd = &cobra.Command{
	Use:     "loadtest",
	GroupID: "maint",
	Short:   "Simulate several devices syncing against a server",
	Long: `Simulate several devices of one user: each device gets its own local
database, creates records offline and then all devices sync concurrently.
The run passes when every device ends up with every record exactly once.

A fresh account is registered unless --token and --user-id are given.
Do not point this at a server holding real data.

Example usage:
  fintrack loadtest --devices 8 --records 50
  fintrack loadtest --api-url http://staging:8080`,
	Run: func(cmd *cobra.Command, args []string) {
		devices, _ := cmd.Flags().GetInt("devices")
		records, _ := cmd.Flags().GetInt("records")
		token, _ := cmd.Flags().GetString("token")
		userID, _ := cmd.Flags().GetInt64("user-id")
		keep, _ := cmd.Flags().GetString("keep")

		if (token == "") != (userID == 0) {
			fmt.Fprintf(os.Stderr, "Error: --token and --user-id must be given together\n")
			os.Exit(1)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		fmt.Printf("%s Running %d devices x %d records against %s\n",
			ui.RenderAccent("🔄"), devices, records, cfg.APIURL)

		report, err := loadtest.Run(ctx, loadtest.Config{
			Devices:          devices,
			RecordsPerDevice: records,
			BaseURL:          cfg.APIURL,
			Token:            token,
			UserID:           userID,
			DataDir:          keep,
			RateLimit:        cfg.RateLimit,
			Logger:           log.New(os.Stderr, "[loadtest] ", log.LstdFlags),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		report.Print(os.Stdout)

		if err := report.Err(); err != nil {
			fmt.Printf("%s %v\n", ui.RenderFail("✗"), err)
			os.Exit(1)
		}
		fmt.Printf("%s All devices converged\n", ui.RenderPass("✓"))
	},
}

func init() {
	loadtestCmd.Flags().Int("devices", 4, "Number of simulated devices")
	loadtestCmd.Flags().Int("records", 25, "Records created offline per device")
	loadtestCmd.Flags().String("token", "", "Existing session token")
	loadtestCmd.Flags().Int64("user-id", 0, "User id of --token")
	loadtestCmd.Flags().String("keep", "", "Keep device databases in this directory")

	rootCmd.AddCommand(loadtestCmd)
}
