package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// alertsCmd represents the alerts command
var alertsCmd = &cobra.Command{
	Use:   "alerts [portfolio]",
	Short: "포트폴리오 알림 평가",
	Long: `한 포트폴리오의 최신 지표와 최근 히스토리로 알림 조건을 평가합니다.

평가 항목:
- VaR / Beta / 변동성 임계값
- 음수 Sharpe 지속
- VaR 급등 (전일 대비)
- Beta 상승 추세 (최소자승 기울기)

Example:
  go run ./cmd/risk alerts growth_60_40
  go run ./cmd/risk alerts growth_60_40 --days 60`,
	Args: cobra.ExactArgs(1),
	RunE: runAlerts,
}

var alertsDays int

func init() {
	rootCmd.AddCommand(alertsCmd)

	// Flags
	alertsCmd.Flags().IntVar(&alertsDays, "days", 30, "히스토리 조회 일수")
}

func runAlerts(cmd *cobra.Command, args []string) error {
	portfolioID := args[0]

	d, err := buildDeps()
	if err != nil {
		return err
	}
	defer d.close()

	ctx := context.Background()

	latest := d.cache.FetchLatestMetrics(ctx, portfolioID)

	end := time.Now()
	history, err := d.metricsRepo.QueryRange(ctx, portfolioID, end.AddDate(0, 0, -alertsDays), end)
	if err != nil {
		d.log.WithError(err).Warn("History query failed - evaluating thresholds only")
		history = nil
	}

	evaluated := d.evaluator.EvaluateAll(latest, history)

	fmt.Printf("=== Alerts: %s (source: %s) ===\n", portfolioID, latest.Source)
	if len(evaluated) == 0 {
		fmt.Println("✅ No active alerts")
		return nil
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(evaluated)
}
