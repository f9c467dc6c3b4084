package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Risk engine defaults
	Risk RiskConfig

	// Backfill
	Backfill BackfillConfig

	// Alert thresholds
	Alerts AlertConfig

	// API
	RateLimitRPS float64

	// Logging
	LogLevel  string
	LogFormat string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host       string
	Port       string
	Password   string
	DB         int
	Enabled    bool
	TTLSeconds int // default TTL for cached metric entries
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Name string
	URL  string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RiskConfig holds default simulation and rolling-window parameters
type RiskConfig struct {
	ConfidenceLevel float64 // VaR/ES 신뢰수준 (기본: 0.95)
	NumSimulations  int     // Monte Carlo 시뮬레이션 횟수 (기본: 1000)
	WindowDays      int     // 롤링 윈도우 (기본: 20일)
	BenchmarkTicker string  // Beta 벤치마크 (기본: SPY)
	RiskFreeRate    float64 // 일별 무위험 수익률 (기본: 0.0)
}

// BackfillConfig holds historical backfill parameters
type BackfillConfig struct {
	BatchSize     int    // bulk upsert 배치 크기
	Workers       int    // 스냅샷 계산 워커 수
	LookbackExtra int    // 윈도우에 더해지는 조회 버퍼 (일)
	Cron          string // 스케줄러 주기 (cron expression, seconds 포함)
}

// AlertConfig holds alert threshold configuration
// ⭐ SSOT: 임계값은 여기서 한 번 읽어 alerts.Thresholds로 불변 전달
type AlertConfig struct {
	VarCritical        float64 // VaR가 이 값보다 낮으면 critical (예: -0.02)
	VarWarning         float64 // VaR warning 임계값 (예: -0.015)
	BetaHigh           float64 // Beta critical 임계값 (예: 1.5)
	BetaWarning        float64 // Beta warning 임계값 (예: 1.3)
	VolatilityHigh     float64 // 연환산 변동성 warning 임계값 (예: 0.30)
	SharpeNegativeDays int     // 음수 Sharpe 지속 판정 일수 (예: 10)
	VarSpikeCritical   float64 // VaR 급등 critical 비율 (예: 0.20)
	VarSpikeWarning    float64 // VaR 급등 warning 비율 (예: 0.10)
	BetaTrendDays      int     // Beta 추세 회귀 일수 (예: 5)
	BetaSlopeMin       float64 // Rising Beta 판정 최소 기울기
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8090"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			Name:            getEnv("DB_NAME", "portfolio_risk"),
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:       getEnv("REDIS_HOST", "localhost"),
			Port:       getEnv("REDIS_PORT", "6379"),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         getEnvAsInt("REDIS_DB", 0),
			Enabled:    getEnvAsBool("REDIS_ENABLED", true),
			TTLSeconds: getEnvAsInt("CACHE_TTL_SECONDS", 60),
		},

		// Risk engine
		Risk: RiskConfig{
			ConfidenceLevel: getEnvAsFloat("RISK_CONFIDENCE_LEVEL", 0.95),
			NumSimulations:  getEnvAsInt("RISK_NUM_SIMULATIONS", 1000),
			WindowDays:      getEnvAsInt("RISK_WINDOW_DAYS", 20),
			BenchmarkTicker: getEnv("RISK_BENCHMARK_TICKER", "SPY"),
			RiskFreeRate:    getEnvAsFloat("RISK_FREE_RATE", 0.0),
		},

		// Backfill
		Backfill: BackfillConfig{
			BatchSize:     getEnvAsInt("BACKFILL_BATCH_SIZE", 50),
			Workers:       getEnvAsInt("BACKFILL_WORKERS", 4),
			LookbackExtra: getEnvAsInt("BACKFILL_LOOKBACK_EXTRA", 30),
			Cron:          getEnv("BACKFILL_CRON", "0 30 16 * * 1-5"),
		},

		// Alerts
		Alerts: AlertConfig{
			VarCritical:        getEnvAsFloat("ALERT_VAR_CRITICAL", -0.02),
			VarWarning:         getEnvAsFloat("ALERT_VAR_WARNING", -0.015),
			BetaHigh:           getEnvAsFloat("ALERT_BETA_HIGH", 1.5),
			BetaWarning:        getEnvAsFloat("ALERT_BETA_WARNING", 1.3),
			VolatilityHigh:     getEnvAsFloat("ALERT_VOLATILITY_HIGH", 0.30),
			SharpeNegativeDays: getEnvAsInt("ALERT_SHARPE_NEGATIVE_DAYS", 10),
			VarSpikeCritical:   getEnvAsFloat("ALERT_VAR_SPIKE_CRITICAL", 0.20),
			VarSpikeWarning:    getEnvAsFloat("ALERT_VAR_SPIKE_WARNING", 0.10),
			BetaTrendDays:      getEnvAsInt("ALERT_BETA_TREND_DAYS", 5),
			BetaSlopeMin:       getEnvAsFloat("ALERT_BETA_SLOPE_MIN", 0.02),
		},

		// API
		RateLimitRPS: getEnvAsFloat("API_RATE_LIMIT_RPS", 20),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Risk.ConfidenceLevel <= 0 || c.Risk.ConfidenceLevel >= 1 {
		return fmt.Errorf("RISK_CONFIDENCE_LEVEL must be in (0, 1)")
	}

	if c.Risk.WindowDays < 2 {
		return fmt.Errorf("RISK_WINDOW_DAYS must be at least 2")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env", // Current directory
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
