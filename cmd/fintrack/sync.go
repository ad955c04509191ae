package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	engine "github.com/steveyegge/fintrack/internal/sync"
	"github.com/steveyegge/fintrack/internal/ui"
	"golang.org/x/mod/semver"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Synchronize local records with the server",
	Long: `Upload pending records and download records created on other devices.

By default both directions run for transactions and then goals. Use --push
or --pull to run one direction only. Records that fail to upload stay
pending and are retried on the next sync.`,
	Run: func(cmd *cobra.Command, args []string) {
		pushOnly, _ := cmd.Flags().GetBool("push")
		pullOnly, _ := cmd.Flags().GetBool("pull")
		if pushOnly && pullOnly {
			fmt.Fprintf(os.Stderr, "Error: --push and --pull are mutually exclusive\n")
			os.Exit(1)
		}

		ctx := cmd.Context()
		a := mustOpenApp(ctx, appOptions{})
		defer a.Close()
		a.requireUser()

		if elig := a.engine.Eligibility(ctx); !elig.Eligible() {
			a.fatalf("cannot sync: %s", ineligibleReason(elig))
		}

		fmt.Printf("%s Syncing with %s...\n", ui.RenderAccent("🔄"), cfg.APIURL)

		switch {
		case pushOnly:
			pushed, failed := runPush(ctx, a)
			printSyncResult(fmt.Sprintf("%d synced", pushed), failed)
		case pullOnly:
			pulled, failed := runPull(ctx, a)
			printSyncResult(fmt.Sprintf("%d downloaded", pulled), failed)
		default:
			tally := a.engine.FullSync(ctx)
			printSyncResult(tally.Message(), tally.Failed)
		}
	},
}

func runPush(ctx context.Context, a *app) (pushed, failed int) {
	for _, push := range []func(context.Context) (*engine.BatchResult, error){
		a.engine.PushPendingTransactions,
		a.engine.PushPendingGoals,
	} {
		res, err := push(ctx)
		if err != nil {
			a.fatalf("%v", err)
			return pushed, failed
		}
		pushed += res.Count
		failed += res.Failed
	}
	return pushed, failed
}

func runPull(ctx context.Context, a *app) (pulled, failed int) {
	for _, res := range []*engine.BatchResult{
		a.engine.PullTransactions(ctx),
		a.engine.PullGoals(ctx),
	} {
		pulled += res.Count
		failed += res.Failed
	}
	return pulled, failed
}

func printSyncResult(msg string, failed int) {
	if failed > 0 {
		fmt.Printf("%s %s, %d still pending\n", ui.RenderWarn("⚠"), msg, failed)
		return
	}
	fmt.Printf("%s %s\n", ui.RenderPass("✓"), msg)
}

func ineligibleReason(e engine.Eligibility) string {
	var reasons []string
	if !e.Authenticated {
		reasons = append(reasons, "not logged in")
	}
	if !e.BackendAvailable {
		reasons = append(reasons, "server unreachable")
	}
	return strings.Join(reasons, ", ")
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show login, server and pending record status",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := mustOpenApp(ctx, appOptions{})
		defer a.Close()

		st, err := a.session.Load()
		if err != nil {
			a.fatalf("%v", err)
		}

		fmt.Println(ui.RenderHeader("fintrack status"))
		fmt.Printf("  Data dir:  %s\n", cfg.DataDir)
		if cfg.File != "" {
			fmt.Printf("  Config:    %s\n", cfg.File)
		}

		if st.UserID == 0 {
			fmt.Printf("  Account:   %s\n", ui.RenderWarn("not logged in"))
		} else {
			fmt.Printf("  Account:   %s (user %d)\n", st.Email, st.UserID)
		}

		info, err := a.client.ServerInfo(ctx)
		switch {
		case err != nil:
			fmt.Printf("  Server:    %s %s\n", cfg.APIURL, ui.RenderWarn("unreachable"))
		default:
			line := fmt.Sprintf("%s %s (v%s)", cfg.APIURL, ui.RenderPass(info.Status), info.Version)
			if err := checkServerVersion(Version, info.Version); err != nil {
				line += " " + ui.RenderFail(err.Error())
			}
			fmt.Printf("  Server:    %s\n", line)
		}

		if st.UserID == 0 {
			return
		}
		txs, goals, pending, err := a.counts(ctx, st.UserID)
		if err != nil {
			a.fatalf("%v", err)
		}
		fmt.Printf("  Records:   %d transactions, %d goals\n", txs, goals)
		if pending > 0 {
			fmt.Printf("  Pending:   %s\n", ui.RenderWarn(fmt.Sprintf("%d not yet synced", pending)))
		} else {
			fmt.Printf("  Pending:   %s\n", ui.RenderPass("none"))
		}
	},
}

// checkServerVersion rejects servers with a different major version.
// An unparseable server version is reported, not rejected.
func checkServerVersion(client, server string) error {
	cv, sv := canonicalVersion(client), canonicalVersion(server)
	if !semver.IsValid(sv) {
		return fmt.Errorf("unknown server version %q", server)
	}
	if semver.Major(cv) != semver.Major(sv) {
		return fmt.Errorf("incompatible server version %s (client %s)", sv, cv)
	}
	return nil
}

func canonicalVersion(s string) string {
	if !strings.HasPrefix(s, "v") {
		s = "v" + s
	}
	return s
}

func init() {
	syncCmd.Flags().Bool("push", false, "Only upload pending records")
	syncCmd.Flags().Bool("pull", false, "Only download new records")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
}
