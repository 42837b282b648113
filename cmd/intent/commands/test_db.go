package commands

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/intent/pkg/config"
	"github.com/wonny/intent/pkg/database"
)

// testDBCmd represents the test-db command
var testDBCmd = &cobra.Command{
	Use:   "test-db",
	Short: "PostgreSQL 연결 테스트",
	Long: `데이터베이스 연결을 테스트하고 풀 통계를 표시합니다.

이 명령어는:
- config에서 DATABASE_URL 로드
- 데이터베이스 연결 생성
- Health Check 실행
- 스키마 버전 확인

Example:
  go run ./cmd/intent test-db`,
	RunE: runTestDB,
}

func init() {
	rootCmd.AddCommand(testDBCmd)
}

func runTestDB(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Intent Database Connection Test ===")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	fmt.Printf("✅ Config loaded (ENV: %s)\n", cfg.Env)
	fmt.Printf("   Database URL: %s\n\n", maskPassword(cfg.Database.URL))

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	db, err := database.New(ctx, cfg)
	if err != nil {
		PrintError(err.Error())
		return err
	}
	defer db.Close()
	PrintSuccess("Database connection established")

	status, err := db.HealthCheck(ctx)
	if err != nil {
		PrintError("Health check failed: " + err.Error())
		return err
	}

	fmt.Println("✅ Health Check Results:")
	PrintKeyValue("Response Time", status.ResponseTime.String(), 18)
	PrintKeyValue("Max Connections", fmt.Sprint(status.Stats.MaxConns), 18)
	PrintKeyValue("Total Connections", fmt.Sprint(status.Stats.TotalConns), 18)
	PrintKeyValue("Idle Connections", fmt.Sprint(status.Stats.IdleConns), 18)

	version, err := database.Version(cfg.Database.URL)
	if err != nil {
		PrintWarning("Schema version unavailable: " + err.Error())
		return nil
	}
	PrintKeyValue("Schema Version", fmt.Sprintf("%d (dirty=%v)", version.Version, version.Dirty), 18)
	return nil
}

func maskPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
