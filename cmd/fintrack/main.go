// Command fintrack records income, expenses and monthly savings goals in a
// local database and keeps it in sync with the fintrack API server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/steveyegge/fintrack/internal/config"
	"github.com/steveyegge/fintrack/internal/ui"
)

// Version is the client version. Its major component must match the
// server's.
const Version = "1.0.0"

var (
	v   = config.New()
	cfg *config.Config

	configFile string
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:           "fintrack",
	Short:         "Offline-first personal finance tracker",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `fintrack records income, expenses and monthly savings goals.

Every change is written to the local database first. When you are logged in
and the server is reachable, records are pushed right away; otherwise they
stay pending until the next sync.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			ui.DisableColor()
		}

		loaded, err := config.Load(v, configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "records", Title: "Records:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "account", Title: "Account:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
		&cobra.Group{ID: "maint", Title: "Maintenance:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (default <data-dir>/config.yaml)")
	flags.String("data-dir", config.DefaultDataDir(), "Directory for the local database and session")
	flags.String("api-url", "http://localhost:8080", "API server URL")
	flags.Duration("timeout", 0, "HTTP timeout per request (default from config)")
	flags.BoolVar(&noColor, "no-color", false, "Disable colored output")

	bindFlag(v, config.KeyDataDir, "data-dir")
	bindFlag(v, config.KeyAPIURL, "api-url")
	bindFlag(v, config.KeyTimeout, "timeout")
}

// bindFlag lets an explicitly set flag override the file and environment.
func bindFlag(v *viper.Viper, key, name string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(name)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", name, err))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
