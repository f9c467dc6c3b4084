package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/riskcore/internal/api"
	"github.com/wonny/riskcore/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

이 명령어는:
- HTTP API 서버 시작
- 최신/히스토리 지표 조회 엔드포인트 제공
- 온디맨드 알림 평가 제공

Endpoints:
  GET /health                              - Health check
  GET /api/portfolios                      - 포트폴리오 목록
  GET /api/metrics/{portfolio}             - 최신 지표 (cache → store fallback)
  GET /api/metrics/{portfolio}/history     - 지표 히스토리 (?days=N)
  GET /api/alerts/{portfolio}              - 알림 평가

Example:
  go run ./cmd/risk api
  go run ./cmd/risk api --port 8090`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: 설정값)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== riskcore API Server ===")

	d, err := buildDeps()
	if err != nil {
		return err
	}
	defer d.close()

	// Override port if flag is set
	if apiPort != "" {
		d.cfg.Port = apiPort
	}

	d.log.WithFields(map[string]interface{}{
		"port": d.cfg.Port,
		"env":  d.cfg.Env,
	}).Info("Initializing API server")

	// Create handlers and router
	metricsHandler := handlers.NewMetricsHandler(d.metricsRepo, d.cache, d.db, d.log)
	alertsHandler := handlers.NewAlertsHandler(d.metricsRepo, d.cache, d.evaluator, d.log)
	router := api.NewRouter(metricsHandler, alertsHandler, d.cfg.RateLimitRPS, d.log)

	// Create server
	server := api.New(d.cfg, d.log, router)

	// Start server with graceful shutdown
	go func() {
		if err := server.Start(); err != nil {
			d.log.WithError(err).Fatal("Failed to start server")
		}
	}()

	d.log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", d.cfg.Port)
	fmt.Println("\nAvailable endpoints:")
	fmt.Println("  GET /health")
	fmt.Println("  GET /api/portfolios")
	fmt.Println("  GET /api/metrics/{portfolio}")
	fmt.Println("  GET /api/metrics/{portfolio}/history?days=N")
	fmt.Println("  GET /api/alerts/{portfolio}")
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	d.log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	d.log.Info("Server stopped")
	return nil
}
