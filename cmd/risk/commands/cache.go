package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// cacheCmd represents the cache command group
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "캐시 관리",
	Long: `Redis 캐시 상태 점검 및 관리.

Example:
  go run ./cmd/risk cache health
  go run ./cmd/risk cache clear growth_60_40`,
}

// cacheHealthCmd checks fast store liveness
var cacheHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "캐시 연결 상태 확인",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps()
		if err != nil {
			return err
		}
		defer d.close()

		if !d.cache.Enabled() {
			fmt.Println("⚠️  Fast store disabled (REDIS_ENABLED=false)")
			return nil
		}

		if d.cache.HealthCheck(context.Background()) {
			fmt.Println("✅ Fast store healthy")
		} else {
			fmt.Println("❌ Fast store unreachable")
		}
		return nil
	},
}

// cacheClearCmd removes all cached entries for one portfolio
var cacheClearCmd = &cobra.Command{
	Use:   "clear [portfolio]",
	Short: "포트폴리오 캐시 키 삭제",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps()
		if err != nil {
			return err
		}
		defer d.close()

		deleted, err := d.cache.ClearPortfolioCache(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}

		fmt.Printf("✅ Deleted %d cache keys for %s\n", deleted, args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheHealthCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
