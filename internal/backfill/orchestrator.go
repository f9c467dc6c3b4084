package backfill

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/riskcore/internal/cache"
	"github.com/wonny/riskcore/internal/contracts"
	"github.com/wonny/riskcore/internal/engine"
	"github.com/wonny/riskcore/pkg/config"
	"github.com/wonny/riskcore/pkg/logger"
)

// progressInterval is how often (in processed snapshots) progress is logged
const progressInterval = 50

// storeTimeout bounds every durable-store round trip.
// run 전체 컨텍스트와 별개로 개별 쿼리가 행을 막지 못하게 한다
const storeTimeout = 5 * time.Second

// Options configures one backfill run
type Options struct {
	PortfolioID string // 비어 있으면 전체 포트폴리오
	BatchSize   int    // bulk upsert 배치 크기 (<=0이면 설정값)
	Workers     int    // 계산 워커 수 (<=0이면 설정값)
	Seed        int64  // 시뮬레이션 시드 (0 = random)
	PrimeCache  bool   // 성공한 포트폴리오의 최신 지표를 캐시에 적재
}

// Stats summarizes a completed backfill run
type Stats struct {
	RunID            string  `json:"run_id"`
	TotalProcessed   int     `json:"total_processed"`
	Successful       int     `json:"successful"`
	Failed           int     `json:"failed"`
	FlushFailures    int     `json:"flush_failures"`
	CachedPortfolios int     `json:"cached_portfolios"`
	ElapsedSeconds   float64 `json:"elapsed_seconds"`
}

// Orchestrator drives historical metric computation over all known
// (portfolio, date) holdings snapshots.
// ⭐ SSOT: 배치 흐름 제어는 여기서만 - 계산은 engine, 저장은 MetricsStore에 위임.
// 개별 스냅샷 실패는 카운트만 하고 실행을 계속한다 (run 전체는 항상 완주).
type Orchestrator struct {
	returns  contracts.ReturnsRepository
	holdings contracts.HoldingsRepository
	store    contracts.MetricsStore
	cache    *cache.TieredCache
	engine   *engine.Engine
	riskCfg  config.RiskConfig
	fillCfg  config.BackfillConfig
	log      *logger.Logger
}

// New creates a backfill orchestrator. cache may be nil when priming is
// disabled for the whole process.
func New(
	returns contracts.ReturnsRepository,
	holdings contracts.HoldingsRepository,
	store contracts.MetricsStore,
	tiered *cache.TieredCache,
	eng *engine.Engine,
	riskCfg config.RiskConfig,
	fillCfg config.BackfillConfig,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		returns:  returns,
		holdings: holdings,
		store:    store,
		cache:    tiered,
		engine:   eng,
		riskCfg:  riskCfg,
		fillCfg:  fillCfg,
		log:      log,
	}
}

// result is one worker outcome handed to the collector
type result struct {
	task     contracts.PortfolioDate
	snapshot *contracts.RiskMetricSnapshot
	err      error
}

// Run executes the full backfill: enumerate holdings snapshots, compute
// metrics in a worker pool, and upsert in batches.
// 같은 입력으로 재실행하면 같은 (portfolio_id, date) 행을 덮어쓴다 (멱등).
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Stats, error) {
	runID := uuid.NewString()
	start := time.Now()

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = o.fillCfg.BatchSize
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = o.fillCfg.Workers
	}

	log := o.log.WithField("run_id", runID)

	lctx, lcancel := context.WithTimeout(ctx, storeTimeout)
	tasks, err := o.store.ListPortfolioDates(lctx, opts.PortfolioID)
	lcancel()
	if err != nil {
		return nil, fmt.Errorf("list portfolio dates: %w", err)
	}

	log.WithFields(map[string]interface{}{
		"portfolio_filter": opts.PortfolioID,
		"total_tasks":      len(tasks),
		"batch_size":       batchSize,
		"workers":          workers,
	}).Info("Backfill run started")

	stats := &Stats{RunID: runID}
	if len(tasks) == 0 {
		log.Warn("No holdings snapshots to process")
		stats.ElapsedSeconds = time.Since(start).Seconds()
		return stats, nil
	}

	jobs := make(chan contracts.PortfolioDate)
	results := make(chan result)

	// === 계산 워커 풀 ===
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range jobs {
				snapshot, err := o.computeSnapshot(ctx, task, opts.Seed)
				results <- result{task: task, snapshot: snapshot, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, task := range tasks {
			select {
			case jobs <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// === Collector: 버퍼와 카운터의 단독 소유자 ===
	// 성공한 포트폴리오만 캐시 프라이밍 대상으로 기록
	succeeded := make(map[string]bool)
	buffer := make([]*contracts.RiskMetricSnapshot, 0, batchSize)

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		fctx, fcancel := context.WithTimeout(ctx, storeTimeout)
		written, err := o.store.BulkUpsert(fctx, buffer)
		fcancel()
		if err != nil {
			// Flush 실패는 run을 멈추지 않는다 - 카운트 후 다음 배치로
			stats.FlushFailures++
			stats.Failed += len(buffer) - written
			stats.Successful += written
			log.WithError(err).WithFields(map[string]interface{}{
				"batch_len": len(buffer),
				"written":   written,
			}).Error("Batch flush failed")
		} else {
			stats.Successful += written
			for _, s := range buffer {
				succeeded[s.PortfolioID] = true
			}
		}
		buffer = buffer[:0]
	}

	for res := range results {
		stats.TotalProcessed++

		if res.err != nil {
			stats.Failed++
			log.WithError(res.err).WithFields(map[string]interface{}{
				"portfolio_id": res.task.PortfolioID,
				"date":         res.task.Date.Format("2006-01-02"),
			}).Warn("Snapshot computation failed")
		} else {
			buffer = append(buffer, res.snapshot)
			if len(buffer) >= batchSize {
				flush()
			}
		}

		if stats.TotalProcessed%progressInterval == 0 {
			elapsed := time.Since(start).Seconds()
			rate := float64(stats.TotalProcessed) / elapsed
			remaining := float64(len(tasks)-stats.TotalProcessed) / rate
			log.WithFields(map[string]interface{}{
				"processed":    stats.TotalProcessed,
				"total":        len(tasks),
				"failed":       stats.Failed,
				"rate_per_sec": fmt.Sprintf("%.1f", rate),
				"eta_sec":      fmt.Sprintf("%.0f", remaining),
			}).Info("Backfill progress")
		}
	}
	flush()

	if opts.PrimeCache {
		stats.CachedPortfolios = o.primeCache(ctx, log, succeeded)
	}

	stats.ElapsedSeconds = time.Since(start).Seconds()
	log.WithFields(map[string]interface{}{
		"total_processed":   stats.TotalProcessed,
		"successful":        stats.Successful,
		"failed":            stats.Failed,
		"flush_failures":    stats.FlushFailures,
		"cached_portfolios": stats.CachedPortfolios,
		"elapsed_sec":       fmt.Sprintf("%.1f", stats.ElapsedSeconds),
	}).Info("Backfill run complete")

	return stats, ctx.Err()
}

// computeSnapshot computes the full metric set for one (portfolio, date)
func (o *Orchestrator) computeSnapshot(ctx context.Context, task contracts.PortfolioDate, seed int64) (*contracts.RiskMetricSnapshot, error) {
	hctx, hcancel := context.WithTimeout(ctx, storeTimeout)
	weights, err := o.holdings.GetWeightVector(hctx, task.PortfolioID, task.Date)
	hcancel()
	if err != nil {
		if errors.Is(err, contracts.ErrNotFound) {
			return nil, fmt.Errorf("no holdings for %s on %s: %w",
				task.PortfolioID, task.Date.Format("2006-01-02"), err)
		}
		return nil, fmt.Errorf("load holdings: %w", err)
	}

	lookback := o.riskCfg.WindowDays + o.fillCfg.LookbackExtra
	rctx, rcancel := context.WithTimeout(ctx, storeTimeout)
	matrix, err := o.returns.GetReturnMatrix(rctx, task.Date, lookback)
	rcancel()
	if err != nil {
		return nil, fmt.Errorf("load return matrix: %w", err)
	}

	simOpts := engine.SimOptions{
		ConfidenceLevel: o.riskCfg.ConfidenceLevel,
		NumSimulations:  o.riskCfg.NumSimulations,
		Seed:            seed,
	}

	varES, err := o.engine.VaRES(matrix, weights, simOpts)
	if err != nil {
		return nil, fmt.Errorf("var/es: %w", err)
	}

	sharpe, err := o.engine.SharpeRatio(matrix, weights, o.riskCfg.RiskFreeRate, o.riskCfg.WindowDays)
	if err != nil {
		return nil, fmt.Errorf("sharpe: %w", err)
	}

	beta, err := o.engine.BetaVsBenchmark(matrix, weights, o.riskCfg.BenchmarkTicker, o.riskCfg.WindowDays)
	if err != nil {
		return nil, fmt.Errorf("beta: %w", err)
	}

	vol, err := o.engine.Volatility(matrix, weights, o.riskCfg.WindowDays)
	if err != nil {
		return nil, fmt.Errorf("volatility: %w", err)
	}

	// 롤링 지표 중 하나라도 판정 불가면 스냅샷을 기록하지 않는다
	// (부분 스냅샷은 서빙 계약의 5-metric 형태를 깨뜨림)
	if !sharpe.Valid || !beta.Valid || !vol.Valid {
		return nil, fmt.Errorf("insufficient history for rolling metrics (window %d)", o.riskCfg.WindowDays)
	}

	return &contracts.RiskMetricSnapshot{
		PortfolioID:       task.PortfolioID,
		Date:              task.Date,
		VaR95:             varES.VaR,
		ExpectedShortfall: varES.ES,
		SharpeRatio20D:    sharpe.Float,
		Beta20D:           beta.Float,
		Volatility20D:     vol.Float,
		SimParams: contracts.SimulationParams{
			Method:          engine.MethodHistoricalMonteCarlo,
			NumSimulations:  simOpts.NumSimulations,
			ConfidenceLevel: simOpts.ConfidenceLevel,
			WindowDays:      o.riskCfg.WindowDays,
		},
		ComputedAt: time.Now().UTC(),
	}, nil
}

// primeCache loads each successful portfolio's latest snapshot into the fast
// store. 프라이밍 실패는 카운트에서 빠질 뿐 run을 실패시키지 않는다.
func (o *Orchestrator) primeCache(ctx context.Context, log *logger.Logger, portfolios map[string]bool) int {
	if o.cache == nil || !o.cache.HealthCheck(ctx) {
		log.Warn("Fast store unavailable - skipping cache priming")
		return 0
	}

	cached := 0
	for portfolioID := range portfolios {
		qctx, qcancel := context.WithTimeout(ctx, storeTimeout)
		snapshot, err := o.store.QueryLatest(qctx, portfolioID)
		qcancel()
		if err != nil {
			log.WithError(err).WithField("portfolio_id", portfolioID).
				Warn("Cache priming query failed")
			continue
		}

		err = o.cache.SetAllMetrics(ctx, portfolioID, cache.SnapshotMetrics{
			VaR95:             snapshot.VaR95,
			ExpectedShortfall: snapshot.ExpectedShortfall,
			Sharpe:            snapshot.SharpeRatio20D,
			Beta:              snapshot.Beta20D,
			Volatility:        snapshot.Volatility20D,
		}, 0)
		if err != nil {
			log.WithError(err).WithField("portfolio_id", portfolioID).
				Warn("Cache priming write failed")
			continue
		}
		cached++
	}

	log.WithField("cached_portfolios", cached).Info("Cache priming complete")
	return cached
}
