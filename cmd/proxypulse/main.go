package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/proxypulse/proxypulse/internal/interfaces/cli/server"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "proxypulse",
		Short: "Proxypulse - proxy fleet evaluator",
		Long:  `Proxypulse fetches proxy subscription feeds, measures real end-to-end latency through the xray engine, and republishes the fastest servers.`,
	}

	rootCmd.AddCommand(
		server.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
