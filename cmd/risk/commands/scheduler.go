package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/riskcore/internal/scheduler"
	"github.com/wonny/riskcore/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "일일 백필 스케줄러 시작",
	Long: `장 마감 후 일일 백필을 실행하는 스케줄러를 시작합니다.

스케줄은 BACKFILL_CRON(초 필드 포함 cron expression)으로 설정합니다.
기본: "0 30 16 * * 1-5" (평일 16:30)

Example:
  go run ./cmd/risk scheduler
  go run ./cmd/risk scheduler --run-now`,
	RunE: runScheduler,
}

var schedulerRunNow bool

func init() {
	schedulerCmd.Flags().BoolVar(&schedulerRunNow, "run-now", false, "스케줄과 별개로 백필을 즉시 1회 실행")
	rootCmd.AddCommand(schedulerCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== riskcore Scheduler ===")

	d, err := buildDeps()
	if err != nil {
		return err
	}
	defer d.close()

	sched := scheduler.New(d.log)

	backfillJob := jobs.NewBackfillJob(d.orchestrator, d.cfg.Backfill.Cron, d.log)
	if err := sched.AddJob(backfillJob); err != nil {
		return fmt.Errorf("add backfill job: %w", err)
	}

	sched.Start()

	fmt.Printf("\n✅ Scheduler running (backfill: %s)\n", d.cfg.Backfill.Cron)
	fmt.Println("Press Ctrl+C to stop")

	if schedulerRunNow {
		if err := sched.RunJob(backfillJob.Name()); err != nil {
			return fmt.Errorf("run job now: %w", err)
		}
		fmt.Printf("▶ Triggered %s immediately\n", backfillJob.Name())
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	sched.Stop()

	// 종료 전 실행 이력 요약
	if history, err := sched.GetJobHistory(backfillJob.Name()); err == nil && len(history.Results) > 0 {
		fmt.Printf("\nRuns: %d, success rate: %.0f%%\n",
			len(history.Results), history.GetSuccessRate()*100)
	}
	return nil
}
