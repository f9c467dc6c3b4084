package alerts

import "github.com/wonny/riskcore/pkg/config"

// =============================================================================
// Alert Types
// =============================================================================

// Severity classifies an alert outcome
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityHealthy  Severity = "healthy"
	SeverityNone     Severity = "none" // 신호 없음 (데이터 부족 포함)
)

// Alert is one evaluated alert condition.
// 요청 시점에 계산되고 버려짐 - 이력으로 영속화하지 않음 (alert-flag 캐시 제외)
type Alert struct {
	Severity Severity `json:"severity"`
	Type     string   `json:"type"`
	Message  string   `json:"message"`
}

// Active reports whether the alert should surface to the consumer
func (a Alert) Active() bool {
	return a.Severity == SeverityCritical || a.Severity == SeverityWarning
}

// =============================================================================
// Thresholds
// =============================================================================

// Thresholds is the immutable alert configuration passed to the evaluator
// at construction.
// ⭐ SSOT: 전역 가변 테이블 금지 - 생성 시 한 번 주입되고 이후 변경되지 않음
type Thresholds struct {
	VarCritical        float64 // VaR가 이보다 낮으면 critical
	VarWarning         float64 // VaR warning 하한
	BetaHigh           float64 // Beta critical 상한
	BetaWarning        float64 // Beta warning 상한
	VolatilityHigh     float64 // 연환산 변동성 warning 상한
	SharpeNegativeDays int     // Sharpe 지속성 판정 일수
	VarSpikeCritical   float64 // |VaR| 전일 대비 critical 급등 비율
	VarSpikeWarning    float64 // |VaR| 전일 대비 warning 급등 비율
	BetaTrendDays      int     // Beta 추세 회귀 구간 (일)
	BetaSlopeMin       float64 // Rising Beta 판정 최소 기울기 (일당)
}

// DefaultThresholds returns the tuned production thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{
		VarCritical:        -0.02,  // VaR worse than -2%
		VarWarning:         -0.015, // VaR worse than -1.5%
		BetaHigh:           1.5,
		BetaWarning:        1.3,
		VolatilityHigh:     0.30, // 연환산 30%
		SharpeNegativeDays: 10,
		VarSpikeCritical:   0.20,
		VarSpikeWarning:    0.10,
		BetaTrendDays:      5,
		BetaSlopeMin:       0.02,
	}
}

// ThresholdsFromConfig builds evaluator thresholds from loaded configuration
func ThresholdsFromConfig(c config.AlertConfig) Thresholds {
	return Thresholds{
		VarCritical:        c.VarCritical,
		VarWarning:         c.VarWarning,
		BetaHigh:           c.BetaHigh,
		BetaWarning:        c.BetaWarning,
		VolatilityHigh:     c.VolatilityHigh,
		SharpeNegativeDays: c.SharpeNegativeDays,
		VarSpikeCritical:   c.VarSpikeCritical,
		VarSpikeWarning:    c.VarSpikeWarning,
		BetaTrendDays:      c.BetaTrendDays,
		BetaSlopeMin:       c.BetaSlopeMin,
	}
}
