package alerts

import (
	"fmt"
	"math"
	"sort"

	"github.com/wonny/riskcore/internal/contracts"
	"github.com/wonny/riskcore/pkg/logger"
)

// Evaluator classifies the latest metrics and recent history into severities.
// ⭐ SSOT: 알림 판정 로직은 여기서만 - 임계값은 생성 시 불변 주입
type Evaluator struct {
	thresholds Thresholds
	log        *logger.Logger
}

// NewEvaluator creates an alert evaluator with immutable thresholds
func NewEvaluator(thresholds Thresholds, log *logger.Logger) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
		log:        log,
	}
}

// Thresholds returns the configured threshold values (for display)
func (e *Evaluator) Thresholds() Thresholds {
	return e.thresholds
}

// =============================================================================
// Static threshold checks
// =============================================================================

// CheckVaR classifies the current VaR against static thresholds
func (e *Evaluator) CheckVaR(value *float64) Alert {
	if value == nil {
		return Alert{Severity: SeverityNone}
	}

	switch {
	case *value < e.thresholds.VarCritical:
		return Alert{
			Severity: SeverityCritical,
			Type:     "VaR Critical",
			Message: fmt.Sprintf("VaR at %.2f%% exceeds critical threshold (%.2f%%)",
				*value*100, e.thresholds.VarCritical*100),
		}
	case *value < e.thresholds.VarWarning:
		return Alert{
			Severity: SeverityWarning,
			Type:     "VaR Elevated",
			Message: fmt.Sprintf("VaR at %.2f%% exceeds warning threshold (%.2f%%)",
				*value*100, e.thresholds.VarWarning*100),
		}
	default:
		return Alert{Severity: SeverityHealthy}
	}
}

// CheckBeta classifies the current beta against static thresholds
func (e *Evaluator) CheckBeta(value *float64) Alert {
	if value == nil {
		return Alert{Severity: SeverityNone}
	}

	switch {
	case *value > e.thresholds.BetaHigh:
		return Alert{
			Severity: SeverityCritical,
			Type:     "High Beta",
			Message: fmt.Sprintf("Beta at %.2f exceeds high threshold (%.2f)",
				*value, e.thresholds.BetaHigh),
		}
	case *value > e.thresholds.BetaWarning:
		return Alert{
			Severity: SeverityWarning,
			Type:     "Elevated Beta",
			Message: fmt.Sprintf("Beta at %.2f exceeds warning threshold (%.2f)",
				*value, e.thresholds.BetaWarning),
		}
	default:
		return Alert{Severity: SeverityHealthy}
	}
}

// CheckVolatility classifies annualized volatility against its threshold
func (e *Evaluator) CheckVolatility(value *float64) Alert {
	if value == nil {
		return Alert{Severity: SeverityNone}
	}

	if *value > e.thresholds.VolatilityHigh {
		return Alert{
			Severity: SeverityWarning,
			Type:     "High Volatility",
			Message: fmt.Sprintf("Portfolio volatility at %.2f%% exceeds threshold (%.2f%%)",
				*value*100, e.thresholds.VolatilityHigh*100),
		}
	}
	return Alert{Severity: SeverityHealthy}
}

// =============================================================================
// Persistence / trend checks over history
// =============================================================================

// CheckSharpePersistence flags extended runs of negative Sharpe over the
// last N days. N일 미만의 히스토리는 판정 불가 → none.
func (e *Evaluator) CheckSharpePersistence(history []*contracts.RiskMetricSnapshot) Alert {
	n := e.thresholds.SharpeNegativeDays
	if n <= 0 || len(history) < n {
		return Alert{Severity: SeverityNone}
	}

	recent := history[len(history)-n:]
	negativeDays := 0
	for _, s := range recent {
		if s.SharpeRatio20D < 0 {
			negativeDays++
		}
	}

	switch {
	case negativeDays >= n:
		return Alert{
			Severity: SeverityWarning,
			Type:     "Persistent Negative Sharpe",
			Message:  fmt.Sprintf("Sharpe ratio negative for %d of last %d days", negativeDays, n),
		}
	case float64(negativeDays) >= float64(n)*0.7:
		return Alert{
			Severity: SeverityWarning,
			Type:     "Declining Sharpe",
			Message:  fmt.Sprintf("Sharpe ratio negative for %d of last %d days", negativeDays, n),
		}
	default:
		return Alert{Severity: SeverityHealthy}
	}
}

// CheckVaRSpike compares the magnitude of the latest VaR to the prior day's.
// change_pct = (|curr| - |prev|) / |prev|
func (e *Evaluator) CheckVaRSpike(history []*contracts.RiskMetricSnapshot) Alert {
	if len(history) < 2 {
		return Alert{Severity: SeverityNone}
	}

	curr := math.Abs(history[len(history)-1].VaR95)
	prev := math.Abs(history[len(history)-2].VaR95)

	if prev == 0 {
		return Alert{Severity: SeverityNone}
	}

	changePct := (curr - prev) / prev

	switch {
	case changePct >= e.thresholds.VarSpikeCritical:
		return Alert{
			Severity: SeverityCritical,
			Type:     "VaR Spike",
			Message: fmt.Sprintf("VaR magnitude jumped %.1f%% vs prior day (threshold %.0f%%)",
				changePct*100, e.thresholds.VarSpikeCritical*100),
		}
	case changePct >= e.thresholds.VarSpikeWarning:
		return Alert{
			Severity: SeverityWarning,
			Type:     "VaR Spike",
			Message: fmt.Sprintf("VaR magnitude jumped %.1f%% vs prior day (threshold %.0f%%)",
				changePct*100, e.thresholds.VarSpikeWarning*100),
		}
	default:
		return Alert{Severity: SeverityHealthy}
	}
}

// CheckBetaTrend fits a least-squares line to the last N betas and flags a
// rising trend when the latest beta already breaches the warning threshold.
func (e *Evaluator) CheckBetaTrend(history []*contracts.RiskMetricSnapshot) Alert {
	n := e.thresholds.BetaTrendDays
	if n < 2 || len(history) < n {
		return Alert{Severity: SeverityNone}
	}

	recent := history[len(history)-n:]
	betas := make([]float64, n)
	for i, s := range recent {
		betas[i] = s.Beta20D
	}

	latest := betas[n-1]
	slope := leastSquaresSlope(betas)

	if latest > e.thresholds.BetaWarning && slope >= e.thresholds.BetaSlopeMin {
		severity := SeverityWarning
		if latest > e.thresholds.BetaHigh {
			severity = SeverityCritical
		}
		return Alert{
			Severity: severity,
			Type:     "Rising Beta",
			Message: fmt.Sprintf("Beta at %.2f rising %.3f/day over last %d days",
				latest, slope, n),
		}
	}
	return Alert{Severity: SeverityHealthy}
}

// leastSquaresSlope fits y = a + b*x over x = 0..n-1 and returns b
func leastSquaresSlope(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}

	xMean := (n - 1) / 2
	var yMean float64
	for _, v := range values {
		yMean += v
	}
	yMean /= n

	var num, den float64
	for i, v := range values {
		dx := float64(i) - xMean
		num += dx * (v - yMean)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// =============================================================================
// Evaluation
// =============================================================================

// EvaluateAll runs every check, keeps critical/warning results, and sorts
// them critical-first (동일 severity는 평가 순서 유지).
// 개별 체크의 panic은 복구해 로깅하고 "no signal"로 취급 - 나머지 체크는 계속 평가
func (e *Evaluator) EvaluateAll(latest *contracts.LatestMetrics, history []*contracts.RiskMetricSnapshot) []Alert {
	if latest == nil {
		return []Alert{}
	}

	var varValue, betaValue, volValue *float64
	if p, ok := latest.Metrics[contracts.MetricKeyVaR]; ok {
		varValue = p.Value
	}
	if p, ok := latest.Metrics[contracts.MetricKeyBeta]; ok {
		betaValue = p.Value
	}
	if p, ok := latest.Metrics[contracts.MetricKeyVolatility]; ok {
		volValue = p.Value
	}

	checks := []struct {
		name string
		fn   func() Alert
	}{
		{"var_threshold", func() Alert { return e.CheckVaR(varValue) }},
		{"beta_threshold", func() Alert { return e.CheckBeta(betaValue) }},
		{"volatility_threshold", func() Alert { return e.CheckVolatility(volValue) }},
		{"sharpe_persistence", func() Alert { return e.CheckSharpePersistence(history) }},
		{"var_spike", func() Alert { return e.CheckVaRSpike(history) }},
		{"beta_trend", func() Alert { return e.CheckBetaTrend(history) }},
	}

	alerts := make([]Alert, 0, len(checks))
	for _, check := range checks {
		if alert := e.runCheck(check.name, check.fn); alert.Active() {
			alerts = append(alerts, alert)
		}
	}

	// Stable sort: critical before warning, ties keep evaluation order
	sort.SliceStable(alerts, func(i, j int) bool {
		return severityRank(alerts[i].Severity) < severityRank(alerts[j].Severity)
	})

	e.log.WithFields(map[string]interface{}{
		"portfolio_id":  latest.PortfolioID,
		"active_alerts": len(alerts),
	}).Debug("Alert evaluation complete")

	return alerts
}

// runCheck isolates one check so a panic cannot abort the others
func (e *Evaluator) runCheck(name string, fn func() Alert) (alert Alert) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("check", name).Errorf("Alert check panicked: %v", r)
			alert = Alert{Severity: SeverityNone}
		}
	}()
	return fn()
}

func severityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}
