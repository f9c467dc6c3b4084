package contracts

import "time"

// =============================================================================
// Risk Metric Snapshot
// =============================================================================

// SimulationParams records how a snapshot's VaR/ES were computed
// ⭐ SSOT: 재현성을 위해 모든 시뮬레이션 설정을 스냅샷에 기록
type SimulationParams struct {
	Method          string  `json:"method"` // "historical_monte_carlo"
	NumSimulations  int     `json:"n_simulations"`
	ConfidenceLevel float64 `json:"confidence_level"`
	WindowDays      int     `json:"window"`
}

// RiskMetricSnapshot is one computed metrics record per (portfolio_id, date).
// (portfolio_id, date)가 natural key - upsert는 같은 키를 덮어씀 (멱등)
type RiskMetricSnapshot struct {
	PortfolioID       string           `json:"portfolio_id"`
	Date              time.Time        `json:"date"`
	VaR95             float64          `json:"var_95"`
	ExpectedShortfall float64          `json:"expected_shortfall"`
	SharpeRatio20D    float64          `json:"sharpe_ratio_20d"`
	Beta20D           float64          `json:"beta_vs_benchmark_20d"`
	Volatility20D     float64          `json:"portfolio_volatility_20d"`
	SimParams         SimulationParams `json:"simulation_params"`
	ComputedAt        time.Time        `json:"computed_at"`
}

// PortfolioDate identifies one holdings snapshot to process
type PortfolioDate struct {
	PortfolioID string
	Date        time.Time
}

// =============================================================================
// Served metric shape
// =============================================================================

// Canonical metric keys served by the cache and the durable store
const (
	MetricKeyVaR        = "var"
	MetricKeyES         = "es"
	MetricKeySharpe     = "sharpe"
	MetricKeyBeta       = "beta"
	MetricKeyVolatility = "volatility"
)

// MetricPoint is one served metric value with its origin timestamp.
// 값이 없으면 둘 다 nil - serving 레이어는 "no data"로 null을 반환할 뿐 에러를 내지 않음
type MetricPoint struct {
	Value *float64   `json:"value"`
	TS    *time.Time `json:"ts"`
}

// LatestMetrics is the canonical served shape for one portfolio:
// metric name (var, es, sharpe, beta, volatility) → {value, ts}
type LatestMetrics struct {
	PortfolioID string                 `json:"portfolio_id"`
	Metrics     map[string]MetricPoint `json:"metrics"`
	Source      string                 `json:"source"` // "cache" | "store" | "none"
	LatencyMS   float64                `json:"latency_ms"`
}

// FromSnapshot reshapes a stored snapshot into the canonical served map
func FromSnapshot(s *RiskMetricSnapshot) map[string]MetricPoint {
	ts := s.Date
	point := func(v float64) MetricPoint {
		value := v
		t := ts
		return MetricPoint{Value: &value, TS: &t}
	}
	return map[string]MetricPoint{
		MetricKeyVaR:        point(s.VaR95),
		MetricKeyES:         point(s.ExpectedShortfall),
		MetricKeySharpe:     point(s.SharpeRatio20D),
		MetricKeyBeta:       point(s.Beta20D),
		MetricKeyVolatility: point(s.Volatility20D),
	}
}
