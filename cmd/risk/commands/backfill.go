package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/riskcore/internal/backfill"
)

// backfillCmd represents the backfill command
var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "히스토리 전체의 리스크 지표 계산/저장",
	Long: `저장된 모든 (portfolio, date) 보유 스냅샷에 대해 리스크 지표를 계산하고
배치 upsert로 저장합니다. 같은 입력으로 재실행해도 안전합니다 (멱등).

이 명령어는:
- Monte Carlo VaR/ES 계산
- 롤링 Sharpe/Beta/변동성 계산
- 배치 단위 bulk upsert
- 성공한 포트폴리오의 최신 지표 캐시 적재

Example:
  go run ./cmd/risk backfill
  go run ./cmd/risk backfill --portfolio growth_60_40
  go run ./cmd/risk backfill --workers 8 --batch-size 100 --no-cache`,
	RunE: runBackfill,
}

var (
	backfillPortfolio string
	backfillBatchSize int
	backfillWorkers   int
	backfillSeed      int64
	backfillNoCache   bool
)

func init() {
	rootCmd.AddCommand(backfillCmd)

	// Flags
	backfillCmd.Flags().StringVar(&backfillPortfolio, "portfolio", "", "특정 포트폴리오만 처리 (기본: 전체)")
	backfillCmd.Flags().IntVar(&backfillBatchSize, "batch-size", 0, "bulk upsert 배치 크기 (기본: 설정값)")
	backfillCmd.Flags().IntVar(&backfillWorkers, "workers", 0, "계산 워커 수 (기본: 설정값)")
	backfillCmd.Flags().Int64Var(&backfillSeed, "seed", 0, "시뮬레이션 시드 (0 = random)")
	backfillCmd.Flags().BoolVar(&backfillNoCache, "no-cache", false, "캐시 적재 생략")
}

func runBackfill(cmd *cobra.Command, args []string) error {
	fmt.Println("=== riskcore Backfill ===")

	d, err := buildDeps()
	if err != nil {
		return err
	}
	defer d.close()

	stats, err := d.orchestrator.Run(context.Background(), backfill.Options{
		PortfolioID: backfillPortfolio,
		BatchSize:   backfillBatchSize,
		Workers:     backfillWorkers,
		Seed:        backfillSeed,
		PrimeCache:  !backfillNoCache,
	})
	if err != nil {
		return fmt.Errorf("backfill run: %w", err)
	}

	fmt.Printf("\n✅ Backfill complete (run %s)\n", stats.RunID)
	fmt.Printf("  Processed: %d\n", stats.TotalProcessed)
	fmt.Printf("  Successful: %d\n", stats.Successful)
	fmt.Printf("  Failed: %d\n", stats.Failed)
	fmt.Printf("  Flush failures: %d\n", stats.FlushFailures)
	fmt.Printf("  Cached portfolios: %d\n", stats.CachedPortfolios)
	fmt.Printf("  Elapsed: %.1fs\n", stats.ElapsedSeconds)

	return nil
}
