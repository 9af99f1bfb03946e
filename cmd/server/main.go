package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edgerelay",
		Short: "Realtime presence and direct message relay",
		Example: `  edgerelay serve
  edgerelay migrate`,
		SilenceUsage: true,
	}

	cmd.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
	)

	return cmd
}

func main() {
	// A missing .env is fine; the environment may already be set
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
