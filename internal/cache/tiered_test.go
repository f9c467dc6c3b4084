package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/riskcore/internal/contracts"
	"github.com/wonny/riskcore/pkg/config"
	"github.com/wonny/riskcore/pkg/logger"
	"github.com/wonny/riskcore/pkg/redis"
)

// fakeMetricsStore serves canned snapshots for fallback-path tests
type fakeMetricsStore struct {
	snapshot *contracts.RiskMetricSnapshot
	err      error
}

func (f *fakeMetricsStore) UpsertSnapshot(context.Context, *contracts.RiskMetricSnapshot) error {
	return nil
}

func (f *fakeMetricsStore) BulkUpsert(context.Context, []*contracts.RiskMetricSnapshot) (int, error) {
	return 0, nil
}

func (f *fakeMetricsStore) QueryLatest(context.Context, string) (*contracts.RiskMetricSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshot, nil
}

func (f *fakeMetricsStore) QueryRange(context.Context, string, time.Time, time.Time) ([]*contracts.RiskMetricSnapshot, error) {
	return nil, nil
}

func (f *fakeMetricsStore) ListPortfolioIDs(context.Context) ([]string, error) {
	return nil, nil
}

func (f *fakeMetricsStore) ListPortfolioDates(context.Context, string) ([]contracts.PortfolioDate, error) {
	return nil, nil
}

func testLogger() *logger.Logger {
	return logger.New(&config.Config{Env: "development", LogLevel: "error", LogFormat: "json"})
}

// disabledClient returns a Redis client with the fast store turned off
func disabledClient(t *testing.T) *redis.Client {
	t.Helper()
	client, err := redis.New(&config.Config{})
	require.NoError(t, err)
	return client
}

func TestFetchLatestMetrics_StoreFallback(t *testing.T) {
	snapshot := &contracts.RiskMetricSnapshot{
		PortfolioID:       "pf_a",
		Date:              time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		VaR95:             -0.021,
		ExpectedShortfall: -0.028,
		SharpeRatio20D:    1.1,
		Beta20D:           0.95,
		Volatility20D:     0.18,
	}
	c := New(disabledClient(t), &fakeMetricsStore{snapshot: snapshot}, time.Minute, testLogger())

	got := c.FetchLatestMetrics(context.Background(), "pf_a")

	assert.Equal(t, "store", got.Source)
	require.Len(t, got.Metrics, 5)
	require.NotNil(t, got.Metrics[contracts.MetricKeyVaR].Value)
	assert.Equal(t, -0.021, *got.Metrics[contracts.MetricKeyVaR].Value)
	assert.Equal(t, -0.028, *got.Metrics[contracts.MetricKeyES].Value)
	assert.True(t, got.Metrics[contracts.MetricKeyBeta].TS.Equal(snapshot.Date))
}

func TestFetchLatestMetrics_NoData(t *testing.T) {
	c := New(disabledClient(t), &fakeMetricsStore{err: contracts.ErrNotFound}, time.Minute, testLogger())

	got := c.FetchLatestMetrics(context.Background(), "unknown_pf")

	// "no data"는 에러가 아니라 nil 값들의 canonical 형태
	assert.Equal(t, "none", got.Source)
	require.Len(t, got.Metrics, 5)
	for name, point := range got.Metrics {
		assert.Nil(t, point.Value, "metric %s should be nil", name)
		assert.Nil(t, point.TS)
	}
}

func TestFetchLatestMetrics_StoreErrorServesNoData(t *testing.T) {
	c := New(disabledClient(t), &fakeMetricsStore{err: fmt.Errorf("connection refused")}, time.Minute, testLogger())

	// 저장소 장애도 읽기 경로에서는 에러로 새지 않는다
	got := c.FetchLatestMetrics(context.Background(), "pf_a")
	assert.Equal(t, "none", got.Source)
}

func TestDisabledFastStore(t *testing.T) {
	c := New(disabledClient(t), &fakeMetricsStore{}, time.Minute, testLogger())

	assert.False(t, c.Enabled())
	assert.False(t, c.HealthCheck(context.Background()))
	assert.Nil(t, c.GetAllAlerts(context.Background(), "pf_a"))

	deleted, err := c.ClearPortfolioCache(context.Background(), "pf_a")
	assert.NoError(t, err)
	assert.Zero(t, deleted)

	assert.Error(t, c.SetAllMetrics(context.Background(), "pf_a", SnapshotMetrics{}, 0))
}

// =============================================================================
// Integration (requires local Redis)
// =============================================================================

func newIntegrationCache(t *testing.T, store contracts.MetricsStore) *TieredCache {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	cfg := &config.Config{
		Env:       "development",
		LogLevel:  "error",
		LogFormat: "json",
		Redis: config.RedisConfig{
			Host:    "localhost",
			Port:    "6379",
			DB:      1, // 테스트 전용 DB
			Enabled: true,
		},
	}

	client, err := redis.New(cfg)
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return New(client, store, time.Minute, logger.New(cfg))
}

func TestIntegration_SetAndFetch(t *testing.T) {
	c := newIntegrationCache(t, &fakeMetricsStore{err: contracts.ErrNotFound})
	ctx := context.Background()
	pid := fmt.Sprintf("it_pf_%d", time.Now().UnixNano())
	t.Cleanup(func() { _, _ = c.ClearPortfolioCache(ctx, pid) })

	metrics := SnapshotMetrics{
		VaR95:             -0.0215,
		ExpectedShortfall: -0.0272,
		Sharpe:            1.3,
		Beta:              1.05,
		Volatility:        0.22,
	}
	require.NoError(t, c.SetAllMetrics(ctx, pid, metrics, time.Minute))

	got := c.FetchLatestMetrics(ctx, pid)
	assert.Equal(t, "cache", got.Source)
	require.NotNil(t, got.Metrics[contracts.MetricKeyVaR].Value)
	assert.Equal(t, -0.0215, *got.Metrics[contracts.MetricKeyVaR].Value)
	assert.Equal(t, 1.05, *got.Metrics[contracts.MetricKeyBeta].Value)
}

func TestIntegration_PartialSetFallsBack(t *testing.T) {
	c := newIntegrationCache(t, &fakeMetricsStore{err: contracts.ErrNotFound})
	ctx := context.Background()
	pid := fmt.Sprintf("it_pf_%d", time.Now().UnixNano())
	t.Cleanup(func() { _, _ = c.ClearPortfolioCache(ctx, pid) })

	// 5개 중 1개만 존재 - 혼합 금지, 전체 fallback
	require.NoError(t, c.SetMetric(ctx, pid, MetricVaR95, -0.02, time.Minute, nil))

	got := c.FetchLatestMetrics(ctx, pid)
	assert.Equal(t, "none", got.Source)
}

func TestIntegration_GetMetricStaleness(t *testing.T) {
	c := newIntegrationCache(t, &fakeMetricsStore{err: contracts.ErrNotFound})
	ctx := context.Background()
	pid := fmt.Sprintf("it_pf_%d", time.Now().UnixNano())
	t.Cleanup(func() { _, _ = c.ClearPortfolioCache(ctx, pid) })

	require.NoError(t, c.SetMetric(ctx, pid, MetricVaR95, -0.02, time.Minute, nil))

	// 신선한 엔트리는 hit
	value, ts, ok := c.GetMetric(ctx, pid, MetricVaR95, time.Minute)
	require.True(t, ok)
	assert.Equal(t, -0.02, value)
	assert.WithinDuration(t, time.Now(), ts, 5*time.Second)

	// Redis TTL이 남아 있어도 maxAge를 넘긴 엔트리는 miss
	time.Sleep(30 * time.Millisecond)
	_, _, ok = c.GetMetric(ctx, pid, MetricVaR95, 10*time.Millisecond)
	assert.False(t, ok)

	// 없는 키도 miss
	_, _, ok = c.GetMetric(ctx, pid, MetricSharpe, time.Minute)
	assert.False(t, ok)
}

func TestIntegration_AlertFlags(t *testing.T) {
	c := newIntegrationCache(t, &fakeMetricsStore{err: contracts.ErrNotFound})
	ctx := context.Background()
	pid := fmt.Sprintf("it_pf_%d", time.Now().UnixNano())
	t.Cleanup(func() { _, _ = c.ClearPortfolioCache(ctx, pid) })

	require.NoError(t, c.SetAlert(ctx, pid, "VaR Critical", true, time.Minute))
	require.NoError(t, c.SetAlert(ctx, pid, "High Beta", false, time.Minute))

	flags := c.GetAllAlerts(ctx, pid)
	require.NotNil(t, flags)
	assert.True(t, flags["VaR Critical"])
	assert.False(t, flags["High Beta"])
}

func TestIntegration_ClearPortfolioCache(t *testing.T) {
	c := newIntegrationCache(t, &fakeMetricsStore{err: contracts.ErrNotFound})
	ctx := context.Background()
	pid := fmt.Sprintf("it_pf_%d", time.Now().UnixNano())

	require.NoError(t, c.SetAllMetrics(ctx, pid, SnapshotMetrics{VaR95: -0.02}, time.Minute))

	deleted, err := c.ClearPortfolioCache(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)

	got := c.FetchLatestMetrics(ctx, pid)
	assert.Equal(t, "none", got.Source)
}
