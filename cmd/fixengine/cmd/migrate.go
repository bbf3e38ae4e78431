package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/fixengine/internal/core/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply session store schema migrations",
	Long: `Applies pending migrations to a SQL session store. The database is taken
from --db-url or FIXENGINE_STORE_URL. Only sqlite:// and postgres:// URLs
carry a schema.`,
	RunE: runMigrate,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and whether they are applied",
	RunE:  runMigrateStatus,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

func migrateURL() (string, error) {
	u := dbURL
	if u == "" {
		u = os.Getenv("FIXENGINE_STORE_URL")
	}
	if u == "" {
		return "", fmt.Errorf("database URL required (--db-url or FIXENGINE_STORE_URL)")
	}
	if !strings.HasPrefix(u, "sqlite://") && !strings.HasPrefix(u, "postgres://") && !strings.HasPrefix(u, "postgresql://") {
		return "", fmt.Errorf("store %q has no SQL schema to migrate", u)
	}
	return u, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	u, err := migrateURL()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	conn, err := db.Open(ctx, u)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	if err := db.MigrateUp(ctx, conn); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	u, err := migrateURL()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	conn, err := db.Open(ctx, u)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	statuses, err := db.MigrateStatus(ctx, conn)
	if err != nil {
		return fmt.Errorf("failed to read migration status: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tAPPLIED\tAT\tCHECKSUM")
	for _, s := range statuses {
		at := "-"
		if s.AppliedAt != nil {
			at = s.AppliedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", s.ID, s.Applied, at, s.Checksum[:12])
	}
	return w.Flush()
}
