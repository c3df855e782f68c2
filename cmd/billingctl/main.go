// Command billingctl administers the billing engine's stores: schema
// migrations, the plan catalog, and support lookups.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/michelrosettaa/FlowAi-sub000/internal/app"
	"github.com/michelrosettaa/FlowAi-sub000/internal/config"
)

var (
	configFile string
	jsonOut    bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "billingctl",
	Short: "Administer the subscription and entitlement engine",
	Long: `billingctl works directly against the configured stores.

Examples:
  billingctl migrate up
  billingctl plans seed --file config/plans.yaml
  billingctl plans list
  billingctl entitlement check user_123 ai_messages
  billingctl subscription show user_123 --history
  billingctl ledger prune --older-than 720h`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default: ./config.yaml, ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print JSON instead of tables")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log store activity to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openApp loads configuration and opens the stores for one command.
func openApp(cmd *cobra.Command) (*app.App, error) {
	var (
		cfg *config.Config
		err error
	)
	if configFile != "" {
		cfg, err = config.LoadFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	a, err := app.Open(commandContext(cmd), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open stores: %w", err)
	}
	return a, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
