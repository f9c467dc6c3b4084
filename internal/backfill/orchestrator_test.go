package backfill

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/riskcore/internal/contracts"
	"github.com/wonny/riskcore/internal/engine"
	"github.com/wonny/riskcore/pkg/config"
	"github.com/wonny/riskcore/pkg/logger"
)

// =============================================================================
// In-memory fakes
// =============================================================================

// deadlineRecorder tracks whether every repository call arrived with a
// bounded context. 하나라도 deadline 없는 호출이 있으면 false로 남는다.
type deadlineRecorder struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (r *deadlineRecorder) record(name string, ctx context.Context) {
	if r == nil {
		return
	}
	_, bounded := ctx.Deadline()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen == nil {
		r.seen = make(map[string]bool)
	}
	if prev, ok := r.seen[name]; !ok || prev {
		r.seen[name] = bounded
	}
}

func (r *deadlineRecorder) bounded(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen[name]
}

type fakeReturns struct {
	matrix *contracts.ReturnMatrix
	rec    *deadlineRecorder
}

func (f *fakeReturns) GetReturnMatrix(ctx context.Context, _ time.Time, _ int) (*contracts.ReturnMatrix, error) {
	f.rec.record("GetReturnMatrix", ctx)
	return f.matrix, nil
}

type fakeHoldings struct {
	weights map[string]contracts.WeightVector // portfolioID → weights
	rec     *deadlineRecorder
}

func (f *fakeHoldings) GetWeightVector(ctx context.Context, portfolioID string, _ time.Time) (contracts.WeightVector, error) {
	f.rec.record("GetWeightVector", ctx)
	w, ok := f.weights[portfolioID]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	return w, nil
}

type fakeStore struct {
	mu        sync.Mutex
	rows      map[string]*contracts.RiskMetricSnapshot // "pid|date" → snapshot
	tasks     []contracts.PortfolioDate
	flushFail bool // 다음 BulkUpsert를 실패시킴
	rec       *deadlineRecorder
}

func newFakeStore(tasks []contracts.PortfolioDate) *fakeStore {
	return &fakeStore{
		rows:  make(map[string]*contracts.RiskMetricSnapshot),
		tasks: tasks,
	}
}

func rowKey(pid string, date time.Time) string {
	return pid + "|" + date.Format("2006-01-02")
}

func (f *fakeStore) UpsertSnapshot(_ context.Context, s *contracts.RiskMetricSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[rowKey(s.PortfolioID, s.Date)] = s
	return nil
}

func (f *fakeStore) BulkUpsert(ctx context.Context, snapshots []*contracts.RiskMetricSnapshot) (int, error) {
	f.rec.record("BulkUpsert", ctx)
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.flushFail {
		f.flushFail = false
		return 0, fmt.Errorf("simulated flush failure")
	}

	for _, s := range snapshots {
		f.rows[rowKey(s.PortfolioID, s.Date)] = s
	}
	return len(snapshots), nil
}

func (f *fakeStore) QueryLatest(ctx context.Context, portfolioID string) (*contracts.RiskMetricSnapshot, error) {
	f.rec.record("QueryLatest", ctx)
	f.mu.Lock()
	defer f.mu.Unlock()

	var latest *contracts.RiskMetricSnapshot
	for _, s := range f.rows {
		if s.PortfolioID != portfolioID {
			continue
		}
		if latest == nil || s.Date.After(latest.Date) {
			latest = s
		}
	}
	if latest == nil {
		return nil, contracts.ErrNotFound
	}
	return latest, nil
}

func (f *fakeStore) QueryRange(_ context.Context, _ string, _, _ time.Time) ([]*contracts.RiskMetricSnapshot, error) {
	return nil, nil
}

func (f *fakeStore) ListPortfolioIDs(_ context.Context) ([]string, error) {
	return nil, nil
}

func (f *fakeStore) ListPortfolioDates(ctx context.Context, portfolioID string) ([]contracts.PortfolioDate, error) {
	f.rec.record("ListPortfolioDates", ctx)
	if portfolioID == "" {
		return f.tasks, nil
	}
	var filtered []contracts.PortfolioDate
	for _, t := range f.tasks {
		if t.PortfolioID == portfolioID {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

func (f *fakeStore) rowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

// =============================================================================
// Fixtures
// =============================================================================

func testMatrix(days int) *contracts.ReturnMatrix {
	rng := rand.New(rand.NewSource(31))
	tickers := []string{"AAA", "BBB", "SPY"}

	dates := make([]time.Time, days)
	data := make([][]float64, days)
	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	for i := range dates {
		dates[i] = base.AddDate(0, 0, i)
		data[i] = make([]float64, len(tickers))
		for c := range tickers {
			data[i][c] = 0.001 + 0.015*rng.NormFloat64()
		}
	}
	return &contracts.ReturnMatrix{Dates: dates, Tickers: tickers, Data: data}
}

func testTasks(pids []string, datesPerPID int) []contracts.PortfolioDate {
	base := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	var tasks []contracts.PortfolioDate
	for _, pid := range pids {
		for i := 0; i < datesPerPID; i++ {
			tasks = append(tasks, contracts.PortfolioDate{
				PortfolioID: pid,
				Date:        base.AddDate(0, 0, i),
			})
		}
	}
	return tasks
}

func newTestOrchestrator(returns contracts.ReturnsRepository, holdings contracts.HoldingsRepository, store contracts.MetricsStore) *Orchestrator {
	riskCfg := config.RiskConfig{
		ConfidenceLevel: 0.95,
		NumSimulations:  200,
		WindowDays:      20,
		BenchmarkTicker: "SPY",
	}
	fillCfg := config.BackfillConfig{BatchSize: 5, Workers: 2, LookbackExtra: 30}
	log := logger.New(&config.Config{Env: "development", LogLevel: "error", LogFormat: "json"})

	return New(returns, holdings, store, nil, engine.NewEngine(), riskCfg, fillCfg, log)
}

// =============================================================================
// Tests
// =============================================================================

func TestOrchestrator_Run(t *testing.T) {
	store := newFakeStore(testTasks([]string{"pf_a", "pf_b"}, 7))
	holdings := &fakeHoldings{weights: map[string]contracts.WeightVector{
		"pf_a": {"AAA": 0.6, "BBB": 0.4},
		"pf_b": {"AAA": 0.3, "BBB": 0.7},
	}}
	o := newTestOrchestrator(&fakeReturns{matrix: testMatrix(60)}, holdings, store)

	stats, err := o.Run(context.Background(), Options{Seed: 42})
	require.NoError(t, err)

	assert.Equal(t, 14, stats.TotalProcessed)
	assert.Equal(t, 14, stats.Successful)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 0, stats.FlushFailures)
	assert.Equal(t, 14, store.rowCount())

	// 스냅샷 내용 검증
	latest, err := store.QueryLatest(context.Background(), "pf_a")
	require.NoError(t, err)
	assert.Less(t, latest.ExpectedShortfall, 0.0)
	assert.LessOrEqual(t, latest.ExpectedShortfall, latest.VaR95)
	assert.Greater(t, latest.Volatility20D, 0.0)
	assert.Equal(t, engine.MethodHistoricalMonteCarlo, latest.SimParams.Method)
}

func TestOrchestrator_Idempotent(t *testing.T) {
	store := newFakeStore(testTasks([]string{"pf_a"}, 6))
	holdings := &fakeHoldings{weights: map[string]contracts.WeightVector{
		"pf_a": {"AAA": 0.6, "BBB": 0.4},
	}}
	o := newTestOrchestrator(&fakeReturns{matrix: testMatrix(60)}, holdings, store)

	_, err := o.Run(context.Background(), Options{Seed: 42})
	require.NoError(t, err)
	firstCount := store.rowCount()

	// 재실행해도 행 수는 불변 (같은 키를 덮어씀)
	_, err = o.Run(context.Background(), Options{Seed: 42})
	require.NoError(t, err)
	assert.Equal(t, firstCount, store.rowCount())
}

func TestOrchestrator_MissingHoldingsCounted(t *testing.T) {
	store := newFakeStore(testTasks([]string{"pf_a", "pf_ghost"}, 4))
	holdings := &fakeHoldings{weights: map[string]contracts.WeightVector{
		"pf_a": {"AAA": 0.6, "BBB": 0.4},
	}}
	o := newTestOrchestrator(&fakeReturns{matrix: testMatrix(60)}, holdings, store)

	stats, err := o.Run(context.Background(), Options{Seed: 42})
	require.NoError(t, err)

	// pf_ghost 4건은 실패로 집계되고 run은 완주
	assert.Equal(t, 8, stats.TotalProcessed)
	assert.Equal(t, 4, stats.Successful)
	assert.Equal(t, 4, stats.Failed)
	assert.Equal(t, 4, store.rowCount())
}

func TestOrchestrator_ShortHistoryCounted(t *testing.T) {
	store := newFakeStore(testTasks([]string{"pf_a"}, 3))
	holdings := &fakeHoldings{weights: map[string]contracts.WeightVector{
		"pf_a": {"AAA": 0.6, "BBB": 0.4},
	}}

	// 10일 히스토리 < 20일 윈도우 - 롤링 지표 판정 불가
	o := newTestOrchestrator(&fakeReturns{matrix: testMatrix(10)}, holdings, store)

	stats, err := o.Run(context.Background(), Options{Seed: 42})
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalProcessed)
	assert.Equal(t, 0, stats.Successful)
	assert.Equal(t, 3, stats.Failed)
	assert.Equal(t, 0, store.rowCount())
}

func TestOrchestrator_FlushFailureContinues(t *testing.T) {
	store := newFakeStore(testTasks([]string{"pf_a"}, 12))
	store.flushFail = true // 첫 배치 실패
	holdings := &fakeHoldings{weights: map[string]contracts.WeightVector{
		"pf_a": {"AAA": 0.6, "BBB": 0.4},
	}}
	o := newTestOrchestrator(&fakeReturns{matrix: testMatrix(60)}, holdings, store)

	stats, err := o.Run(context.Background(), Options{Seed: 42})
	require.NoError(t, err)

	// 첫 배치(5건)는 유실, 나머지는 저장
	assert.Equal(t, 12, stats.TotalProcessed)
	assert.Equal(t, 1, stats.FlushFailures)
	assert.Equal(t, 5, stats.Failed)
	assert.Equal(t, 7, stats.Successful)
	assert.Equal(t, 7, store.rowCount())
}

func TestOrchestrator_PortfolioFilter(t *testing.T) {
	store := newFakeStore(testTasks([]string{"pf_a", "pf_b"}, 5))
	holdings := &fakeHoldings{weights: map[string]contracts.WeightVector{
		"pf_a": {"AAA": 0.6, "BBB": 0.4},
		"pf_b": {"AAA": 0.3, "BBB": 0.7},
	}}
	o := newTestOrchestrator(&fakeReturns{matrix: testMatrix(60)}, holdings, store)

	stats, err := o.Run(context.Background(), Options{PortfolioID: "pf_b", Seed: 42})
	require.NoError(t, err)

	assert.Equal(t, 5, stats.TotalProcessed)
	assert.Equal(t, 5, store.rowCount())
}

func TestOrchestrator_BoundedStoreCalls(t *testing.T) {
	rec := &deadlineRecorder{}
	store := newFakeStore(testTasks([]string{"pf_a"}, 6))
	store.rec = rec
	holdings := &fakeHoldings{
		weights: map[string]contracts.WeightVector{"pf_a": {"AAA": 0.6, "BBB": 0.4}},
		rec:     rec,
	}
	returns := &fakeReturns{matrix: testMatrix(60), rec: rec}
	o := newTestOrchestrator(returns, holdings, store)

	// run 컨텍스트 자체에는 deadline이 없어도 저장소 호출은 전부 bounded
	_, err := o.Run(context.Background(), Options{Seed: 42})
	require.NoError(t, err)

	for _, call := range []string{"ListPortfolioDates", "GetWeightVector", "GetReturnMatrix", "BulkUpsert"} {
		assert.True(t, rec.bounded(call), "%s must run under a bounded context", call)
	}
}

func TestOrchestrator_EmptyTaskList(t *testing.T) {
	store := newFakeStore(nil)
	o := newTestOrchestrator(&fakeReturns{matrix: testMatrix(60)}, &fakeHoldings{}, store)

	stats, err := o.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalProcessed)
}
