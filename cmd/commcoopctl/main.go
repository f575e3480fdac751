package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "commcoopctl",
		Short: "Evolve negotiating automata playing a prisoner's dilemma",
		Long: `commcoopctl runs populations of finite-state negotiators that chat
before choosing to cooperate or defect, evolves them by tournament
selection and records how cooperation and chat length change.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "YAML or JSON run configuration")
	rootCmd.PersistentFlags().String("store", "", "Store backend: memory or sqlite")
	rootCmd.PersistentFlags().String("db-path", "", "SQLite database path")
	rootCmd.PersistentFlags().String("artifacts-dir", "", "Directory for run artifacts")
	rootCmd.PersistentFlags().String("log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "", "text or json (default text on a terminal, json otherwise)")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newRunCmd(),
		newSweepCmd(),
		newRunsCmd(),
		newGenerationsCmd(),
		newLineageCmd(),
		newExportCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput(cmd) {
				return writeJSON(cmd, map[string]string{"version": version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "commcoopctl version %s\n", version)
			return nil
		},
	}
}
