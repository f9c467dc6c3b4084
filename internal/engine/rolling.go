package engine

import (
	"math"

	"github.com/wonny/riskcore/internal/contracts"
)

// =============================================================================
// Rolling Performance Metrics - Sharpe / Beta / Volatility
// =============================================================================
// 모든 롤링 지표는 최신 시점의 trailing window 통계를 사용한다.
// 히스토리 부족 또는 분산 0 → Value{Valid:false} (soft), 입력 위반 → ValidationError

// SharpeRatio computes the annualized rolling Sharpe ratio at the latest point.
// Sharpe = (rolling_mean - riskFreeRate) / rolling_std * sqrt(252)
func (e *Engine) SharpeRatio(m *contracts.ReturnMatrix, weights contracts.WeightVector, riskFreeRate float64, window int) (Value, error) {
	if err := validatePortfolioInputs(m, weights); err != nil {
		return None(), err
	}

	if window < 2 {
		return None(), validationErrorf("window must be at least 2 days, got %d", window)
	}

	if m.NumDates() < window {
		return None(), nil
	}

	portfolio := m.Filled().PortfolioSeries(weights)
	tail := portfolio.Values[portfolio.Len()-window:]

	rollingMean := mean(tail)
	rollingStd := sampleStdDev(tail)

	if rollingStd == 0 {
		// 분산이 0이면 나눗셈이 정의되지 않음 - 무한대가 아니라 "no result"
		return None(), nil
	}

	sharpe := (rollingMean - riskFreeRate) / rollingStd * math.Sqrt(TradingDaysPerYear)
	return Of(sharpe), nil
}

// Beta computes the rolling beta of a portfolio series versus a benchmark
// series: cov(p, b) / var(b) over the trailing window after an inner join
// on dates.
func (e *Engine) Beta(portfolio, benchmark contracts.Series, window int) (Value, error) {
	if portfolio.Len() == 0 {
		return None(), validationErrorf("portfolio return series is empty")
	}

	if benchmark.Len() == 0 {
		return None(), validationErrorf("benchmark return series is empty")
	}

	if window < 2 {
		return None(), validationErrorf("window must be at least 2 days, got %d", window)
	}

	alignedP, alignedB := contracts.AlignInner(portfolio, benchmark)
	if alignedP.Len() < window {
		return None(), nil
	}

	pv := fillSeries(alignedP.Values)
	bv := fillSeries(alignedB.Values)

	pTail := pv[len(pv)-window:]
	bTail := bv[len(bv)-window:]

	benchVar := sampleVariance(bTail)
	if benchVar == 0 {
		return None(), nil
	}

	return Of(sampleCovariance(pTail, bTail) / benchVar), nil
}

// BetaVsBenchmark builds portfolio returns from a return matrix and computes
// beta against one of its columns. The benchmark ticker is excluded from the
// weight vector; 남은 가중치 합이 1이 아니면 재정규화 후 위임한다.
func (e *Engine) BetaVsBenchmark(m *contracts.ReturnMatrix, weights contracts.WeightVector, benchmarkTicker string, window int) (Value, error) {
	if m == nil || m.Empty() {
		return None(), validationErrorf("return matrix is empty")
	}

	if !m.HasTicker(benchmarkTicker) {
		return None(), validationErrorf("benchmark ticker %q not found in return matrix", benchmarkTicker)
	}

	portfolioWeights := weights.Without(benchmarkTicker)
	if len(portfolioWeights) == 0 {
		return None(), validationErrorf("no portfolio tickers remain after excluding benchmark %q", benchmarkTicker)
	}

	if math.Abs(portfolioWeights.Sum()-1.0) > WeightSumTolerance {
		portfolioWeights = portfolioWeights.Renormalized()
	}

	filled := m.Filled()
	portfolio := filled.PortfolioSeries(portfolioWeights)
	benchmark, _ := filled.ColumnSeries(benchmarkTicker)

	return e.Beta(portfolio, benchmark, window)
}

// Volatility computes the annualized trailing-window standard deviation of
// weighted portfolio returns: rolling_std * sqrt(252)
func (e *Engine) Volatility(m *contracts.ReturnMatrix, weights contracts.WeightVector, window int) (Value, error) {
	if err := validatePortfolioInputs(m, weights); err != nil {
		return None(), err
	}

	if window < 2 {
		return None(), validationErrorf("window must be at least 2 days, got %d", window)
	}

	if m.NumDates() < window {
		return None(), nil
	}

	portfolio := m.Filled().PortfolioSeries(weights)
	tail := portfolio.Values[portfolio.Len()-window:]

	rollingStd := sampleStdDev(tail)
	if rollingStd == 0 {
		return None(), nil
	}

	return Of(rollingStd * math.Sqrt(TradingDaysPerYear)), nil
}

// fillSeries forward fills NaN values then zero fills leading NaNs
func fillSeries(values []float64) []float64 {
	out := make([]float64, len(values))
	last := math.NaN()
	for i, v := range values {
		if math.IsNaN(v) {
			if math.IsNaN(last) {
				out[i] = 0
			} else {
				out[i] = last
			}
		} else {
			out[i] = v
			last = v
		}
	}
	return out
}
