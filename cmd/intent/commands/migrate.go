package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/intent/pkg/config"
	"github.com/wonny/intent/pkg/database"
)

// migrateCmd manages the PostgreSQL schema
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "DB 스키마 마이그레이션",
	Long: `내장된 SQL 마이그레이션을 DATABASE_URL에 적용합니다.

Example:
  go run ./cmd/intent migrate up
  go run ./cmd/intent migrate version`,
}

var (
	migrateUpCmd = &cobra.Command{
		Use:   "up",
		Short: "모든 마이그레이션 적용",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := databaseURL()
			if err != nil {
				return err
			}
			if err := database.MigrateUp(dsn); err != nil {
				return err
			}
			PrintSuccess("Migrations applied")
			return printVersion(dsn)
		},
	}

	migrateDownCmd = &cobra.Command{
		Use:   "down",
		Short: "모든 마이그레이션 되돌리기 (데이터 삭제)",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := databaseURL()
			if err != nil {
				return err
			}
			if err := database.MigrateDown(dsn); err != nil {
				return err
			}
			PrintSuccess("Migrations reverted")
			return nil
		},
	}

	migrateVersionCmd = &cobra.Command{
		Use:   "version",
		Short: "현재 스키마 버전",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := databaseURL()
			if err != nil {
				return err
			}
			return printVersion(dsn)
		},
	}
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
}

func databaseURL() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.URL == "" {
		return "", fmt.Errorf("DATABASE_URL is not set")
	}
	return cfg.Database.URL, nil
}

func printVersion(dsn string) error {
	v, err := database.Version(dsn)
	if err != nil {
		return err
	}
	PrintKeyValue("Version", fmt.Sprint(v.Version), 8)
	PrintKeyValue("Dirty", fmt.Sprint(v.Dirty), 8)
	return nil
}
