package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/riskcore/internal/alerts"
	"github.com/wonny/riskcore/internal/backfill"
	"github.com/wonny/riskcore/internal/cache"
	"github.com/wonny/riskcore/internal/engine"
	"github.com/wonny/riskcore/internal/store"
	"github.com/wonny/riskcore/pkg/config"
	"github.com/wonny/riskcore/pkg/database"
	"github.com/wonny/riskcore/pkg/logger"
	"github.com/wonny/riskcore/pkg/redis"
)

// deps bundles the wired application stack shared by the commands
type deps struct {
	cfg          *config.Config
	log          *logger.Logger
	db           *database.DB
	redis        *redis.Client
	returnsRepo  *store.ReturnsRepository
	holdingsRepo *store.HoldingsRepository
	metricsRepo  *store.MetricsRepository
	cache        *cache.TieredCache
	engine       *engine.Engine
	evaluator    *alerts.Evaluator
	orchestrator *backfill.Orchestrator
}

// buildDeps wires the full stack in dependency order
// ⭐ SSOT: 컴포넌트 조립은 이 함수에서만
func buildDeps() (*deps, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	// 3. Connect to database
	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// 4. Connect to Redis (optional - disabled면 no-op 클라이언트)
	rdb, err := redis.New(cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable - running without fast store")
		rdb = disabledRedis()
	}

	// 5. Create repositories
	returnsRepo := store.NewReturnsRepository(db.Pool)
	holdingsRepo := store.NewHoldingsRepository(db.Pool)
	metricsRepo := store.NewMetricsRepository(db.Pool)

	// 6. Ensure schema exists (idempotent)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsRepo.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	// 7. Create tiered cache over Redis + durable store
	ttl := time.Duration(cfg.Redis.TTLSeconds) * time.Second
	tiered := cache.New(rdb, metricsRepo, ttl, log)

	// 8. Create engine, evaluator, orchestrator
	eng := engine.NewEngine()
	evaluator := alerts.NewEvaluator(alerts.ThresholdsFromConfig(cfg.Alerts), log)
	orchestrator := backfill.New(returnsRepo, holdingsRepo, metricsRepo, tiered, eng, cfg.Risk, cfg.Backfill, log)

	return &deps{
		cfg:          cfg,
		log:          log,
		db:           db,
		redis:        rdb,
		returnsRepo:  returnsRepo,
		holdingsRepo: holdingsRepo,
		metricsRepo:  metricsRepo,
		cache:        tiered,
		engine:       eng,
		evaluator:    evaluator,
		orchestrator: orchestrator,
	}, nil
}

// close releases all connections
func (d *deps) close() {
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.db != nil {
		d.db.Close()
	}
}

// disabledRedis returns a no-op client so callers never nil-check
func disabledRedis() *redis.Client {
	client, _ := redis.New(&config.Config{})
	return client
}
