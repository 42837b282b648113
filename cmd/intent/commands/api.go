package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/intent/internal/api"
	"github.com/wonny/intent/internal/api/handlers"
	"github.com/wonny/intent/internal/scheduler"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

Endpoints:
  GET    /health                          - Health check
  GET    /api/companies                   - 회사 목록
  POST   /api/companies                   - 회사 등록
  GET    /api/companies/{id}              - 회사 조회
  DELETE /api/companies/{id}              - 회사 삭제
  GET    /api/companies/{id}/score        - Intent score
  GET    /api/companies/{id}/signals      - 최근 signal (?since=RFC3339&limit=N)
  POST   /api/companies/{id}/collect      - 즉시 수집
  GET    /api/sources                     - Source 상태 (circuit breaker)
  POST   /api/sources/{source}/reset      - Source 재활성화
  GET    /api/poller                      - Poller 상태
  GET    /ws/scores                       - 실시간 score (?company=id)

Example:
  go run ./cmd/intent api
  go run ./cmd/intent api --port 8080`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(false)
	},
}

// startCmd runs the API together with the scheduler and poller
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "API 서버 + 스케줄러 시작",
	Long: `API 서버와 스케줄러(poller 포함)를 한 프로세스에서 시작합니다.

Example:
  go run ./cmd/intent start`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(true)
	},
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(startCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (default: PORT)")
	startCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (default: PORT)")
}

func runServer(withScheduler bool) error {
	fmt.Println("=== Intent API Server ===")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, appOptions{withHub: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	var sched *scheduler.Scheduler
	var poller *scheduler.Poller
	if withScheduler {
		sched, poller, err = a.newScheduler()
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		if err := syncCompanies(ctx, a, poller); err != nil {
			return err
		}
		poller.Start(ctx)
		sched.Start()
	}

	router := api.NewRouter(api.Handlers{
		Companies: handlers.NewCompanyHandler(a.engine, a.log),
		Sources:   handlers.NewSourceHandler(a.engine, poller, a.log),
		Feed:      a.hub,
	}, a.log)
	server := api.New(a.cfg, a.log, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	if withScheduler {
		fmt.Println("✅ Scheduler running")
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	a.log.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if withScheduler {
		sched.Stop()
		poller.Stop()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.log.Info("Server stopped")
	return nil
}

func syncCompanies(ctx context.Context, a *app, poller *scheduler.Poller) error {
	list, err := a.engine.Companies().List(ctx)
	if err != nil {
		return fmt.Errorf("list companies: %w", err)
	}
	poller.Sync(list)
	return nil
}
