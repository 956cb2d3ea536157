package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/pioneerstudio/patternshop/cmd/internal"
	"github.com/pioneerstudio/patternshop/cmd/shop/credits"
	"github.com/pioneerstudio/patternshop/cmd/shop/patterns"
	"github.com/pioneerstudio/patternshop/cmd/shop/serve"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "shop",
	Short: "shop runs the pattern store API and its maintenance jobs.",
	Long: `shop serves the pattern store HTTP API and runs the jobs around it:
schema migration, credit expiry and catalog seeding. Settings come from
application.yml and SHOP_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return internal.Attach(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		internal.From(cmd).Close()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the schema for the configured datasource.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt := internal.From(cmd)
		if err := rt.Store.Migrate(cmd.Context()); err != nil {
			return err
		}
		internal.Done(cmd, "schema applied (%s)", rt.Store.Dialect())
		return nil
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(serve.ServeCmd)
	rootCmd.AddCommand(credits.CreditsCmd)
	rootCmd.AddCommand(patterns.PatternsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		stop()
		os.Exit(1)
	}
}
