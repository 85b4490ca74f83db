package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/noah-isme/demandes-api/pkg/database"
)

// MigrateCmd returns the migrate command group.
func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
	}
	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateStatusCmd())
	return cmd
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			migrator, err := database.NewMigrator(db)
			if err != nil {
				return err
			}
			applied, err := migrator.Up(cmd.Context())
			printApplied(cmd.OutOrStdout(), applied)
			if err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
			return nil
		},
	}
}

func migrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			migrator, err := database.NewMigrator(db)
			if err != nil {
				return err
			}
			statuses, err := migrator.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("migrate status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
}

func printApplied(w io.Writer, applied []database.Migration) {
	if len(applied) == 0 {
		fmt.Fprintln(w, color.New(color.FgBlue).Sprint("schema is up to date"))
		return
	}
	for _, mig := range applied {
		fmt.Fprintf(w, "%s %04d_%s\n", color.New(color.FgGreen).Sprint("APPLIED"), mig.Version, mig.Name)
	}
}

func printStatus(w io.Writer, statuses []database.MigrationStatus) {
	for _, status := range statuses {
		marker := color.New(color.FgYellow).Sprint("PENDING")
		when := ""
		if status.AppliedAt != nil {
			marker = color.New(color.FgGreen).Sprint("APPLIED")
			when = status.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s %04d_%-28s %s\n", marker, status.Version, status.Name, when)
	}
}
