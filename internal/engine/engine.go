package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/wonny/riskcore/internal/contracts"
)

// =============================================================================
// RiskMetricsEngine - 순수 계산기
// =============================================================================

// Engine computes portfolio risk and performance metrics.
// ⭐ SSOT: 순수 계산만 담당 - 데이터 조회/저장은 상위 레이어(backfill/serving)에서 조립
// 상태가 없으므로 (portfolio, date) 단위 병렬 실행에 안전
type Engine struct{}

// NewEngine creates a new risk metrics engine
func NewEngine() *Engine {
	return &Engine{}
}

// WeightSumTolerance is the accepted deviation of a weight vector from 1.0
const WeightSumTolerance = 1e-4

// TradingDaysPerYear is the annualization base for daily metrics
const TradingDaysPerYear = 252

// MethodHistoricalMonteCarlo identifies the VaR/ES simulation method
const MethodHistoricalMonteCarlo = "historical_monte_carlo"

// =============================================================================
// Result types
// =============================================================================

// Value is a tri-state metric outcome: a valid float, or insufficient data.
// ⭐ "데이터 부족"은 에러가 아님 - Valid=false로 표현 (zero variance 포함)
// ValidationError와 구분됨: 그쪽은 입력 자체가 계약 위반
type Value struct {
	Float float64
	Valid bool
}

// Of wraps a computed float as a valid Value
func Of(f float64) Value {
	return Value{Float: f, Valid: true}
}

// None is the insufficient-data outcome
func None() Value {
	return Value{}
}

// =============================================================================
// Validation
// =============================================================================

// ValidationError marks malformed or out-of-contract input.
// 호출 단위로 치명적 - 재시도하지 않으며 호출자가 입력을 고쳐야 함
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// validatePortfolioInputs checks the shared precondition for VaR/ES/Volatility:
// non-empty matrix and weights, weighted tickers present in the matrix,
// weight sum ≈ 1.0, no negative weights (long-only)
func validatePortfolioInputs(m *contracts.ReturnMatrix, weights contracts.WeightVector) error {
	if m == nil || m.Empty() {
		return validationErrorf("return matrix is empty")
	}

	if len(weights) == 0 {
		return validationErrorf("weight vector is empty")
	}

	for ticker, w := range weights {
		if !m.HasTicker(ticker) {
			return validationErrorf("weight ticker %q not present in return matrix", ticker)
		}
		if w < 0 {
			return validationErrorf("negative weight %.6f for %q - long-only portfolios required", w, ticker)
		}
	}

	if sum := weights.Sum(); math.Abs(sum-1.0) > WeightSumTolerance {
		return validationErrorf("weights sum to %.6f, expected 1.0 (tolerance %.0e)", sum, WeightSumTolerance)
	}

	return nil
}
