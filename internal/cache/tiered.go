package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/wonny/riskcore/internal/contracts"
	"github.com/wonny/riskcore/pkg/logger"
	"github.com/wonny/riskcore/pkg/redis"
)

// opTimeout bounds every fast-store round trip (connect/read)
const opTimeout = 5 * time.Second

// TieredCache serves the latest metrics from Redis with fallback to the
// durable store.
// ⭐ SSOT: 캐시 키 규약과 staleness 정책은 여기서만.
// Redis는 최적화일 뿐 - MetricsStore가 source of truth.
// 읽기 경로의 StoreError는 이 경계를 넘지 않는다 (타이밍과 함께 로깅 후 "no data")
type TieredCache struct {
	client     *redis.Client
	store      contracts.MetricsStore
	defaultTTL time.Duration
	log        *logger.Logger
}

// New creates a tiered cache over a Redis client and a durable store
func New(client *redis.Client, store contracts.MetricsStore, defaultTTL time.Duration, log *logger.Logger) *TieredCache {
	return &TieredCache{
		client:     client,
		store:      store,
		defaultTTL: defaultTTL,
		log:        log,
	}
}

// Enabled reports whether the fast store is available
func (c *TieredCache) Enabled() bool {
	return c.client.Enabled()
}

// SnapshotMetrics carries the five metric values written per portfolio
type SnapshotMetrics struct {
	VaR95             float64
	ExpectedShortfall float64
	Sharpe            float64
	Beta              float64
	Volatility        float64
}

func (m SnapshotMetrics) byType() map[MetricType]float64 {
	return map[MetricType]float64{
		MetricVaR95:      m.VaR95,
		MetricES:         m.ExpectedShortfall,
		MetricSharpe:     m.Sharpe,
		MetricBeta:       m.Beta,
		MetricVolatility: m.Volatility,
	}
}

// SetAllMetrics writes the five metric entries for a portfolio in one
// pipelined operation, each with its own TTL (ttl<=0은 기본 TTL).
// 파이프라인의 부분 성공 가능성은 호출 경계에서 전체 실패로 취급 -
// 어느 한 엔트리라도 실패하면 에러를 로깅하고 반환한다.
func (c *TieredCache) SetAllMetrics(ctx context.Context, portfolioID string, metrics SnapshotMetrics, ttl time.Duration) error {
	if !c.client.Enabled() {
		return fmt.Errorf("fast store disabled")
	}

	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now()
	pipe := c.client.Redis().Pipeline()
	for mt, value := range metrics.byType() {
		data, err := encodeEntry(mt, value, now, nil)
		if err != nil {
			return fmt.Errorf("encode %s entry: %w", mt, err)
		}
		pipe.SetEx(ctx, BuildKey(mt, portfolioID), data, ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		c.log.WithError(err).WithField("portfolio_id", portfolioID).
			Error("Failed to cache metrics batch")
		return fmt.Errorf("cache pipeline write failed: %w", err)
	}

	c.log.WithFields(map[string]interface{}{
		"portfolio_id": portfolioID,
		"ttl_seconds":  ttl.Seconds(),
	}).Debug("Cached all metrics")

	return nil
}

// SetMetric writes a single metric entry with optional metadata
func (c *TieredCache) SetMetric(ctx context.Context, portfolioID string, mt MetricType, value float64, ttl time.Duration, metadata map[string]interface{}) error {
	if !c.client.Enabled() {
		return fmt.Errorf("fast store disabled")
	}

	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	data, err := encodeEntry(mt, value, time.Now(), metadata)
	if err != nil {
		return fmt.Errorf("encode %s entry: %w", mt, err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return c.client.Redis().SetEx(ctx, BuildKey(mt, portfolioID), data, ttl).Err()
}

// GetMetric retrieves one cached entry with a semantic freshness bound.
// maxAge를 초과한 엔트리는 존재하더라도 miss로 취급한다.
// Returns (value, entry timestamp, hit).
func (c *TieredCache) GetMetric(ctx context.Context, portfolioID string, mt MetricType, maxAge time.Duration) (float64, time.Time, bool) {
	if !c.client.Enabled() {
		return 0, time.Time{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	start := time.Now()
	raw, err := c.client.Redis().Get(ctx, BuildKey(mt, portfolioID)).Bytes()
	elapsed := time.Since(start)

	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.log.WithError(err).WithFields(map[string]interface{}{
				"key":        BuildKey(mt, portfolioID),
				"latency_ms": elapsed.Seconds() * 1000,
			}).Error("Fast store read failed")
		}
		return 0, time.Time{}, false
	}

	value, ts, err := decodeEntry(mt, raw)
	if err != nil {
		c.log.WithError(err).WithField("key", BuildKey(mt, portfolioID)).Error("Corrupt cache entry")
		return 0, time.Time{}, false
	}

	if isStale(ts, time.Now(), maxAge) {
		c.log.WithFields(map[string]interface{}{
			"key":     BuildKey(mt, portfolioID),
			"age_sec": time.Since(ts).Seconds(),
			"max_age": maxAge.Seconds(),
		}).Warn("Cached entry is stale - treating as miss")
		return 0, time.Time{}, false
	}

	return value, ts, true
}

// FetchLatestMetrics returns the freshest metrics for a portfolio in the
// canonical served shape. Fast path: 5개 키가 전부 있으면 캐시에서 즉시 반환.
// 하나라도 miss면 결과 전체를 durable store fallback에서 가져온다 (tier 혼합 금지).
// "no data"는 에러가 아니라 nil 필드로 표현된다.
func (c *TieredCache) FetchLatestMetrics(ctx context.Context, portfolioID string) *contracts.LatestMetrics {
	if metrics, ok := c.fetchFromFastStore(ctx, portfolioID); ok {
		return metrics
	}
	return c.fetchFromStore(ctx, portfolioID)
}

// fetchFromFastStore attempts the all-keys-present cache read
func (c *TieredCache) fetchFromFastStore(ctx context.Context, portfolioID string) (*contracts.LatestMetrics, bool) {
	if !c.client.Enabled() {
		return nil, false
	}

	rctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	start := time.Now()
	pipe := c.client.Redis().Pipeline()
	cmds := make(map[MetricType]*goredis.StringCmd, len(metricTypes))
	for _, mt := range metricTypes {
		cmds[mt] = pipe.Get(rctx, BuildKey(mt, portfolioID))
	}
	_, err := pipe.Exec(rctx)
	latency := time.Since(start)

	if err != nil && !errors.Is(err, goredis.Nil) {
		c.log.WithError(err).WithFields(map[string]interface{}{
			"portfolio_id": portfolioID,
			"latency_ms":   latency.Seconds() * 1000,
		}).Error("Fast store pipeline read failed - falling back")
		return nil, false
	}

	points := make(map[string]contracts.MetricPoint, len(metricTypes))
	for _, mt := range metricTypes {
		raw, err := cmds[mt].Bytes()
		if err != nil {
			// Any missing key means the whole set comes from the durable store
			c.log.WithFields(map[string]interface{}{
				"portfolio_id": portfolioID,
				"missing_key":  BuildKey(mt, portfolioID),
				"latency_ms":   latency.Seconds() * 1000,
			}).Debug("Cache miss - falling back to durable store")
			return nil, false
		}

		value, ts, err := decodeEntry(mt, raw)
		if err != nil {
			c.log.WithError(err).WithField("key", BuildKey(mt, portfolioID)).Error("Corrupt cache entry - falling back")
			return nil, false
		}

		v := value
		t := ts
		points[servedKey(mt)] = contracts.MetricPoint{Value: &v, TS: &t}
	}

	c.log.WithFields(map[string]interface{}{
		"portfolio_id": portfolioID,
		"latency_ms":   latency.Seconds() * 1000,
	}).Debug("Cache hit for all metrics")

	return &contracts.LatestMetrics{
		PortfolioID: portfolioID,
		Metrics:     points,
		Source:      "cache",
		LatencyMS:   latency.Seconds() * 1000,
	}, true
}

// fetchFromStore serves the fallback path from the durable store
func (c *TieredCache) fetchFromStore(ctx context.Context, portfolioID string) *contracts.LatestMetrics {
	rctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	start := time.Now()
	snapshot, err := c.store.QueryLatest(rctx, portfolioID)
	latency := time.Since(start)

	if err != nil {
		if !errors.Is(err, contracts.ErrNotFound) {
			c.log.WithError(err).WithFields(map[string]interface{}{
				"portfolio_id": portfolioID,
				"latency_ms":   latency.Seconds() * 1000,
			}).Error("Durable store query failed - serving no data")
		}
		return &contracts.LatestMetrics{
			PortfolioID: portfolioID,
			Metrics:     emptyMetricPoints(),
			Source:      "none",
			LatencyMS:   latency.Seconds() * 1000,
		}
	}

	return &contracts.LatestMetrics{
		PortfolioID: portfolioID,
		Metrics:     contracts.FromSnapshot(snapshot),
		Source:      "store",
		LatencyMS:   latency.Seconds() * 1000,
	}
}

// emptyMetricPoints is the canonical "no data" shape (nil values, never an error)
func emptyMetricPoints() map[string]contracts.MetricPoint {
	points := make(map[string]contracts.MetricPoint, len(metricTypes))
	for _, mt := range metricTypes {
		points[servedKey(mt)] = contracts.MetricPoint{}
	}
	return points
}

// =============================================================================
// Alert flags
// =============================================================================

// SetAlert stores one alert flag in the per-portfolio alert hash.
// 메트릭 키와 독립적으로 기록되며 서로 일관성이 요구되지 않음
func (c *TieredCache) SetAlert(ctx context.Context, portfolioID, alertName string, triggered bool, ttl time.Duration) error {
	if !c.client.Enabled() {
		return fmt.Errorf("fast store disabled")
	}

	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := BuildKey(MetricAlert, portfolioID)
	rdb := c.client.Redis()

	if err := rdb.HSet(ctx, key, alertName, strconv.FormatBool(triggered)).Err(); err != nil {
		c.log.WithError(err).WithField("key", key).Error("Failed to set alert flag")
		return err
	}
	return rdb.Expire(ctx, key, ttl).Err()
}

// GetAllAlerts retrieves all alert flags for a portfolio (nil when none)
func (c *TieredCache) GetAllAlerts(ctx context.Context, portfolioID string) map[string]bool {
	if !c.client.Enabled() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := BuildKey(MetricAlert, portfolioID)
	raw, err := c.client.Redis().HGetAll(ctx, key).Result()
	if err != nil {
		c.log.WithError(err).WithField("key", key).Error("Failed to read alert flags")
		return nil
	}
	if len(raw) == 0 {
		return nil
	}

	alerts := make(map[string]bool, len(raw))
	for name, v := range raw {
		alerts[name] = v == "true"
	}
	return alerts
}

// =============================================================================
// Maintenance
// =============================================================================

// ClearPortfolioCache deletes every cached key for a portfolio.
// Returns the number of keys removed.
func (c *TieredCache) ClearPortfolioCache(ctx context.Context, portfolioID string) (int64, error) {
	if !c.client.Enabled() {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	keys := make([]string, 0, len(metricTypes)+1)
	for _, mt := range metricTypes {
		keys = append(keys, BuildKey(mt, portfolioID))
	}
	keys = append(keys, BuildKey(MetricAlert, portfolioID))

	deleted, err := c.client.Redis().Del(ctx, keys...).Result()
	if err != nil {
		c.log.WithError(err).WithField("portfolio_id", portfolioID).Error("Failed to clear portfolio cache")
		return 0, err
	}

	c.log.WithFields(map[string]interface{}{
		"portfolio_id": portfolioID,
		"deleted":      deleted,
	}).Info("Cleared portfolio cache")

	return deleted, nil
}

// HealthCheck verifies fast store liveness (ping).
// backfill은 이 결과로 캐시 프라이밍을 배치 실패 없이 비활성화한다.
func (c *TieredCache) HealthCheck(ctx context.Context) bool {
	if !c.client.Enabled() {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.client.Redis().Ping(ctx).Err(); err != nil {
		c.log.WithError(err).Error("Fast store health check failed")
		return false
	}
	return true
}
