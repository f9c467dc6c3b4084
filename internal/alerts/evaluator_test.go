package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/riskcore/internal/contracts"
	"github.com/wonny/riskcore/pkg/config"
	"github.com/wonny/riskcore/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&config.Config{Env: "development", LogLevel: "error", LogFormat: "json"})
}

func newTestEvaluator() *Evaluator {
	return NewEvaluator(DefaultThresholds(), testLogger())
}

func floatPtr(v float64) *float64 { return &v }

func snapshotHistory(vars, sharpes, betas []float64) []*contracts.RiskMetricSnapshot {
	n := len(vars)
	if len(sharpes) > n {
		n = len(sharpes)
	}
	if len(betas) > n {
		n = len(betas)
	}

	history := make([]*contracts.RiskMetricSnapshot, n)
	base := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	for i := range history {
		s := &contracts.RiskMetricSnapshot{
			PortfolioID: "test_pf",
			Date:        base.AddDate(0, 0, i),
		}
		if i < len(vars) {
			s.VaR95 = vars[i]
		}
		if i < len(sharpes) {
			s.SharpeRatio20D = sharpes[i]
		}
		if i < len(betas) {
			s.Beta20D = betas[i]
		}
		history[i] = s
	}
	return history
}

func TestCheckVaR(t *testing.T) {
	e := newTestEvaluator()

	tests := []struct {
		name  string
		value *float64
		want  Severity
	}{
		{"critical breach", floatPtr(-0.025), SeverityCritical},
		{"warning breach", floatPtr(-0.017), SeverityWarning},
		{"exactly at critical threshold", floatPtr(-0.02), SeverityWarning},
		{"healthy", floatPtr(-0.01), SeverityHealthy},
		{"positive var", floatPtr(0.005), SeverityHealthy},
		{"no data", nil, SeverityNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert := e.CheckVaR(tt.value)
			assert.Equal(t, tt.want, alert.Severity)
		})
	}
}

func TestCheckBeta(t *testing.T) {
	e := newTestEvaluator()

	assert.Equal(t, SeverityCritical, e.CheckBeta(floatPtr(1.6)).Severity)
	assert.Equal(t, SeverityWarning, e.CheckBeta(floatPtr(1.4)).Severity)
	assert.Equal(t, SeverityHealthy, e.CheckBeta(floatPtr(1.0)).Severity)
	assert.Equal(t, SeverityNone, e.CheckBeta(nil).Severity)
}

func TestCheckVolatility(t *testing.T) {
	e := newTestEvaluator()

	assert.Equal(t, SeverityWarning, e.CheckVolatility(floatPtr(0.35)).Severity)
	assert.Equal(t, SeverityHealthy, e.CheckVolatility(floatPtr(0.25)).Severity)
	assert.Equal(t, SeverityNone, e.CheckVolatility(nil).Severity)
}

func TestCheckVaRSpike(t *testing.T) {
	e := newTestEvaluator()

	tests := []struct {
		name string
		vars []float64
		want Severity
	}{
		// (0.023-0.018)/0.018 ≈ +27.8% - critical
		{"critical spike", []float64{-0.018, -0.023}, SeverityCritical},
		// (0.0225-0.020)/0.020 = +12.5% - warning
		{"warning spike", []float64{-0.020, -0.0225}, SeverityWarning},
		// +5% - 정상 변동
		{"small change", []float64{-0.020, -0.021}, SeverityHealthy},
		{"improving var", []float64{-0.020, -0.015}, SeverityHealthy},
		{"single point", []float64{-0.02}, SeverityNone},
		{"zero prior", []float64{0, -0.02}, SeverityNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert := e.CheckVaRSpike(snapshotHistory(tt.vars, nil, nil))
			assert.Equal(t, tt.want, alert.Severity)
		})
	}
}

func TestCheckSharpePersistence(t *testing.T) {
	e := newTestEvaluator()

	negative := make([]float64, 10)
	for i := range negative {
		negative[i] = -0.5
	}

	t.Run("all negative", func(t *testing.T) {
		alert := e.CheckSharpePersistence(snapshotHistory(nil, negative, nil))
		require.Equal(t, SeverityWarning, alert.Severity)
		assert.Equal(t, "Persistent Negative Sharpe", alert.Type)
	})

	t.Run("mostly negative", func(t *testing.T) {
		mixed := append([]float64{}, negative...)
		mixed[0], mixed[1], mixed[2] = 0.3, 0.3, 0.3 // 7/10 negative
		alert := e.CheckSharpePersistence(snapshotHistory(nil, mixed, nil))
		require.Equal(t, SeverityWarning, alert.Severity)
		assert.Equal(t, "Declining Sharpe", alert.Type)
	})

	t.Run("healthy", func(t *testing.T) {
		positive := make([]float64, 10)
		for i := range positive {
			positive[i] = 0.8
		}
		alert := e.CheckSharpePersistence(snapshotHistory(nil, positive, nil))
		assert.Equal(t, SeverityHealthy, alert.Severity)
	})

	t.Run("short history", func(t *testing.T) {
		alert := e.CheckSharpePersistence(snapshotHistory(nil, []float64{-1, -1, -1}, nil))
		assert.Equal(t, SeverityNone, alert.Severity)
	})
}

func TestCheckBetaTrend(t *testing.T) {
	e := newTestEvaluator()

	t.Run("rising above warning", func(t *testing.T) {
		// slope 0.05/day, latest 1.40 > 1.3
		alert := e.CheckBetaTrend(snapshotHistory(nil, nil, []float64{1.20, 1.25, 1.30, 1.35, 1.40}))
		require.Equal(t, SeverityWarning, alert.Severity)
		assert.Equal(t, "Rising Beta", alert.Type)
	})

	t.Run("rising above high", func(t *testing.T) {
		alert := e.CheckBetaTrend(snapshotHistory(nil, nil, []float64{1.30, 1.38, 1.46, 1.54, 1.62}))
		assert.Equal(t, SeverityCritical, alert.Severity)
	})

	t.Run("high but flat", func(t *testing.T) {
		alert := e.CheckBetaTrend(snapshotHistory(nil, nil, []float64{1.40, 1.40, 1.40, 1.40, 1.40}))
		assert.Equal(t, SeverityHealthy, alert.Severity)
	})

	t.Run("rising but below warning", func(t *testing.T) {
		alert := e.CheckBetaTrend(snapshotHistory(nil, nil, []float64{0.9, 0.95, 1.0, 1.05, 1.1}))
		assert.Equal(t, SeverityHealthy, alert.Severity)
	})

	t.Run("short history", func(t *testing.T) {
		alert := e.CheckBetaTrend(snapshotHistory(nil, nil, []float64{1.4, 1.5}))
		assert.Equal(t, SeverityNone, alert.Severity)
	})
}

func TestLeastSquaresSlope(t *testing.T) {
	assert.InDelta(t, 0.05, leastSquaresSlope([]float64{1.0, 1.05, 1.10, 1.15, 1.20}), 1e-12)
	assert.InDelta(t, 0.0, leastSquaresSlope([]float64{2, 2, 2}), 1e-12)
	assert.Equal(t, 0.0, leastSquaresSlope([]float64{1}))
}

func TestEvaluateAll_CriticalFirst(t *testing.T) {
	e := newTestEvaluator()

	latest := &contracts.LatestMetrics{
		PortfolioID: "test_pf",
		Metrics: map[string]contracts.MetricPoint{
			contracts.MetricKeyVaR:        {Value: floatPtr(-0.025)}, // critical
			contracts.MetricKeyBeta:       {Value: floatPtr(1.4)},    // warning
			contracts.MetricKeyVolatility: {Value: floatPtr(0.35)},   // warning
		},
		Source: "store",
	}

	alerts := e.EvaluateAll(latest, nil)
	require.Len(t, alerts, 3)

	assert.Equal(t, SeverityCritical, alerts[0].Severity)
	assert.Equal(t, "VaR Critical", alerts[0].Type)

	// 동일 severity는 평가 순서 유지 (beta 체크가 volatility보다 먼저)
	assert.Equal(t, "Elevated Beta", alerts[1].Type)
	assert.Equal(t, "High Volatility", alerts[2].Type)
}

func TestEvaluateAll_NoData(t *testing.T) {
	e := newTestEvaluator()

	latest := &contracts.LatestMetrics{
		PortfolioID: "test_pf",
		Metrics:     map[string]contracts.MetricPoint{},
		Source:      "none",
	}

	assert.Empty(t, e.EvaluateAll(latest, nil))
	assert.Empty(t, e.EvaluateAll(nil, nil))
}
