package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/noah-isme/demandes-api/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "demandesctl",
		Short: "Operator tooling for the demandes API",
		Long: `demandesctl applies schema migrations and provisions user accounts
against the database configured for the API (same environment variables).`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cli.MigrateCmd())
	rootCmd.AddCommand(cli.UserCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
