package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	env        string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "risk",
	Short: "riskcore - 포트폴리오 리스크 지표 파이프라인",
	Long: `riskcore Unified CLI

포트폴리오 리스크 지표 계산/서빙 파이프라인.
Monte Carlo VaR/ES, 롤링 Sharpe/Beta/변동성, 캐시 서빙, 알림.

Usage:
  go run ./cmd/risk [command]

Examples:
  go run ./cmd/risk backfill
  go run ./cmd/risk backfill --portfolio growth_60_40
  go run ./cmd/risk api
  go run ./cmd/risk alerts growth_60_40
  go run ./cmd/risk cache health`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "development", "environment (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
