package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx := context.Background()
	if err := pool.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	versions, err := pool.MigrationsApplied(ctx)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(versions))
	for i, v := range versions {
		rows = append(rows, []string{fmt.Sprintf("%d", i+1), v})
	}
	fmt.Println(renderTable([]string{"#", "Migration"}, rows, []columnAlignment{alignRight, alignLeft}))
	return nil
}
