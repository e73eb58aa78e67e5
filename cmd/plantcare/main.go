// Plant Care - greenhouse device automation service
//
// plantcare ingests sensor feeds from MQTT into the field store, reconciles
// every fan, LED and pump against its configured mode once per tick, and
// serves the ops API and event stream.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// defaultConfigPath is used when neither --config nor PLANTCARE_CONFIG is set.
	defaultConfigPath = "configs/config.yaml"

	configEnvVar = "PLANTCARE_CONFIG"
)

func main() {
	// Cancel on Ctrl+C or SIGTERM so every subcommand shuts down cleanly.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1) //nolint:gocritic // cancel is a no-op at exit
	}
}

// cliOptions holds flags shared by every subcommand.
type cliOptions struct {
	configPath string
}

// newRootCmd builds the command tree. Running plantcare with no subcommand
// starts the service.
func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:           "plantcare",
		Short:         "Greenhouse device automation service",
		Long:          "Ingests greenhouse sensor feeds and keeps fans, LEDs and pumps in line with their configured modes.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts.resolveConfigPath())
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"Configuration file path (default $"+configEnvVar+" or "+defaultConfigPath+")")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newMigrateCmd(opts))
	root.AddCommand(newReconcileCmd(opts))
	root.AddCommand(newTokenCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

// resolveConfigPath returns --config, then PLANTCARE_CONFIG, then the default.
func (o *cliOptions) resolveConfigPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}

func newServeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run ingestion, the reconciliation loop and the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts.resolveConfigPath())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "plantcare %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
