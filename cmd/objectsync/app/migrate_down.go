package app

import (
	"github.com/spf13/cobra"

	"github.com/openbridge/objectsync/database"
)

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back database migrations",
	Long: `Roll back the database migrations. This drops the schema including all
synchronization state and audit logs, so use with care.`,
	RunE: runMigrateDown,
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	return runMigration(cmd, "roll back migrations on", database.MigrateDown)
}
