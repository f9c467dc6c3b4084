package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/riskcore/internal/backfill"
	"github.com/wonny/riskcore/pkg/logger"
)

// BackfillJob recomputes metrics for every portfolio after market close.
// 매 실행은 멱등 - 같은 (portfolio_id, date) 행을 덮어쓸 뿐이다.
type BackfillJob struct {
	orchestrator *backfill.Orchestrator
	schedule     string
	logger       *logger.Logger
}

// NewBackfillJob creates the daily backfill job
func NewBackfillJob(orchestrator *backfill.Orchestrator, schedule string, log *logger.Logger) *BackfillJob {
	return &BackfillJob{
		orchestrator: orchestrator,
		schedule:     schedule,
		logger:       log,
	}
}

// Name returns the job name
func (j *BackfillJob) Name() string {
	return "daily_metric_backfill"
}

// Schedule returns the cron expression
func (j *BackfillJob) Schedule() string {
	return j.schedule
}

// Run executes one full backfill pass with cache priming
func (j *BackfillJob) Run(ctx context.Context) error {
	stats, err := j.orchestrator.Run(ctx, backfill.Options{PrimeCache: true})
	if err != nil {
		return fmt.Errorf("backfill run: %w", err)
	}

	// 전량 실패는 데이터 파이프라인 문제 - 재시도 대상
	if stats.TotalProcessed > 0 && stats.Successful == 0 {
		return fmt.Errorf("backfill produced no snapshots (%d failed)", stats.Failed)
	}

	j.logger.WithFields(map[string]interface{}{
		"run_id":     stats.RunID,
		"successful": stats.Successful,
		"failed":     stats.Failed,
	}).Info("Daily backfill finished")

	return nil
}
