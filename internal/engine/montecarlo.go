package engine

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/wonny/riskcore/internal/contracts"
)

// =============================================================================
// VaR / Expected Shortfall - Historical Monte Carlo
// =============================================================================

// SimOptions configures a Monte Carlo VaR/ES run
// ⭐ Seed != 0이면 비트 단위로 재현 가능 (테스트/감사용), 0이면 시간 시드
type SimOptions struct {
	ConfidenceLevel float64 // 신뢰수준 (0, 1), 예: 0.95
	NumSimulations  int     // 시뮬레이션 횟수, 최소 100
	Seed            int64   // 0 = random
}

// VaRESResult holds both tail metrics from a single simulation run
type VaRESResult struct {
	VaR float64 `json:"var"` // (1-confidence) 백분위수, 손실이면 음수
	ES  float64 `json:"es"`  // VaR 이하 시나리오의 평균, 항상 ES ≤ VaR
}

// VaRES computes Value-at-Risk and Expected Shortfall from one simulated
// distribution. Historical Monte Carlo: 과거 수익률 행을 복원추출로 재샘플링해
// 가중 포트폴리오 수익률 분포를 만든다.
//
// VaR is the (1-confidence)*100 percentile of the simulated distribution
// (negative = loss). ES is the mean of all draws at or below VaR; when the
// tail is empty (degenerate distribution) ES equals VaR.
func (e *Engine) VaRES(m *contracts.ReturnMatrix, weights contracts.WeightVector, opts SimOptions) (VaRESResult, error) {
	if err := validatePortfolioInputs(m, weights); err != nil {
		return VaRESResult{}, err
	}

	if opts.ConfidenceLevel <= 0 || opts.ConfidenceLevel >= 1 {
		return VaRESResult{}, validationErrorf("confidence level must be in (0, 1), got %v", opts.ConfidenceLevel)
	}

	if opts.NumSimulations < 100 {
		return VaRESResult{}, validationErrorf("minimum 100 simulations required, got %d", opts.NumSimulations)
	}

	// Forward fill then zero fill, weighted dot product per date.
	// 행 샘플링 후 가중합 = 가중합 시계열 샘플링 (내적은 선형)
	portfolio := m.Filled().PortfolioSeries(weights)
	n := portfolio.Len()

	rng := newRNG(opts.Seed)
	simulated := make([]float64, opts.NumSimulations)
	for i := range simulated {
		simulated[i] = portfolio.Values[rng.Intn(n)]
	}

	sort.Float64s(simulated)

	varValue := percentile(simulated, (1-opts.ConfidenceLevel)*100)

	// ES: VaR 이하 tail의 평균
	var tailSum float64
	var tailCount int
	for _, v := range simulated {
		if v > varValue {
			break // sorted ascending
		}
		tailSum += v
		tailCount++
	}

	es := varValue
	if tailCount > 0 {
		es = tailSum / float64(tailCount)
	}

	return VaRESResult{VaR: varValue, ES: es}, nil
}

// VaR computes portfolio Value-at-Risk via historical Monte Carlo simulation
func (e *Engine) VaR(m *contracts.ReturnMatrix, weights contracts.WeightVector, opts SimOptions) (float64, error) {
	res, err := e.VaRES(m, weights, opts)
	if err != nil {
		return 0, err
	}
	return res.VaR, nil
}

// ExpectedShortfall computes the average loss in the worst (1-confidence)
// fraction of simulated outcomes. Always at least as severe as VaR.
func (e *Engine) ExpectedShortfall(m *contracts.ReturnMatrix, weights contracts.WeightVector, opts SimOptions) (float64, error) {
	res, err := e.VaRES(m, weights, opts)
	if err != nil {
		return 0, err
	}
	return res.ES, nil
}

// newRNG builds the simulation source. Seed 0 keeps the run non-deterministic.
func newRNG(seed int64) *rand.Rand {
	if seed != 0 {
		return rand.New(rand.NewSource(seed))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// =============================================================================
// 통계 유틸리티
// =============================================================================

// percentile computes the p-th percentile of a sorted slice (선형 보간)
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	idx := p / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := lower + 1

	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := idx - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// mean computes the arithmetic mean
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStdDev computes the sample standard deviation (n-1)
func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sumSq float64
	for _, v := range values {
		diff := v - m
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}

// sampleCovariance computes the sample covariance of two equal-length slices (n-1)
func sampleCovariance(a, b []float64) float64 {
	if len(a) < 2 || len(a) != len(b) {
		return 0
	}
	ma := mean(a)
	mb := mean(b)
	var sum float64
	for i := range a {
		sum += (a[i] - ma) * (b[i] - mb)
	}
	return sum / float64(len(a)-1)
}

// sampleVariance computes the sample variance (n-1)
func sampleVariance(values []float64) float64 {
	sd := sampleStdDev(values)
	return sd * sd
}
