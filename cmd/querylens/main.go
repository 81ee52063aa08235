package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the CLI. Without a subcommand it behaves like serve.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "querylens",
		Short: "Heuristic SQL analysis over MCP",
		Long: `querylens inspects SQL text for anti-patterns, complexity and index
opportunities, and serves those tools to AI agents over the Model Context
Protocol. The database dialect follows the DATABASE_URL scheme
(mysql://, postgres:// or sqlite://).`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootFlags := addServeFlags(root.Flags())
	root.RunE = func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context(), rootFlags.overrides(cmd.Flags()))
	}

	root.AddCommand(newServeCmd(), newAnalyzeCmd(), newValidateCmd())
	return root
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis tools over MCP (stdio or HTTP)",
		Args:  cobra.NoArgs,
	}
	f := addServeFlags(cmd.Flags())
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context(), f.overrides(cmd.Flags()))
	}
	return cmd
}
