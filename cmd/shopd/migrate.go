package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Zhima-Mochi/storefront/internal/config"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"
)

const versionTimeFormat = "20060102150405"

func createMigrationCommand() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate-create [name]",
		Short: "create sql migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = migrationDir()
			}
			version := time.Now().UTC().Format(versionTimeFormat)
			up := filepath.Join(dir, fmt.Sprintf("%s_%s.up.sql", version, args[0]))
			down := filepath.Join(dir, fmt.Sprintf("%s_%s.down.sql", version, args[0]))

			if err := os.WriteFile(up, []byte{}, 0o644); err != nil {
				return err
			}
			if err := os.WriteFile(down, []byte{}, 0o644); err != nil {
				return err
			}

			cmd.Println("Created SQL up script:", up)
			cmd.Println("Created SQL down script:", down)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "migration directory (overrides MIGRATION_DIR)")
	return cmd
}

func migrateCommand() *cobra.Command {
	var dir, dsn string
	cmd := &cobra.Command{
		Use:   "migrate-up",
		Short: "migrate all the way up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir != "" {
				cfg.MigrationDir = dir
			}
			if dsn != "" {
				cfg.DatabaseDSN = dsn
			}

			m, err := migrate.New(
				fmt.Sprintf("file://%s", cfg.MigrationDir),
				fmt.Sprintf("mysql://%s", cfg.DatabaseDSN),
			)
			if err != nil {
				return err
			}
			defer m.Close()

			err = m.Up()
			if errors.Is(err, migrate.ErrNoChange) {
				cmd.Println("No change in migration")
				return nil
			}
			if err != nil {
				return err
			}
			cmd.Println("Migrated up")
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "migration directory (overrides MIGRATION_DIR)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "MySQL DSN (overrides DATABASE_DSN)")
	return cmd
}

// migrationDir reads MIGRATION_DIR without validating the rest of the config,
// so migrations can be authored offline.
func migrationDir() string {
	if v := os.Getenv("MIGRATION_DIR"); v != "" {
		return v
	}
	return "migrations"
}
