package contracts

import (
	"math"
	"testing"
	"time"
)

func day(n int) time.Time {
	return time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestReturnMatrix_Filled(t *testing.T) {
	nan := math.NaN()
	m := &ReturnMatrix{
		Dates:   []time.Time{day(0), day(1), day(2), day(3)},
		Tickers: []string{"AAA", "BBB"},
		Data: [][]float64{
			{nan, 0.01},
			{0.02, nan},
			{nan, nan},
			{0.03, 0.04},
		},
	}

	filled := m.Filled()

	// 컬럼별 forward fill, 선행 NaN은 0
	want := [][]float64{
		{0, 0.01},
		{0.02, 0.01},
		{0.02, 0.01},
		{0.03, 0.04},
	}
	for row := range want {
		for col := range want[row] {
			if filled.Data[row][col] != want[row][col] {
				t.Errorf("Filled()[%d][%d] = %v, want %v", row, col, filled.Data[row][col], want[row][col])
			}
		}
	}

	// 원본은 변경되지 않음
	if !math.IsNaN(m.Data[0][0]) {
		t.Error("Filled() must not mutate the original matrix")
	}
}

func TestReturnMatrix_PortfolioSeries(t *testing.T) {
	m := &ReturnMatrix{
		Dates:   []time.Time{day(0), day(1)},
		Tickers: []string{"AAA", "BBB"},
		Data: [][]float64{
			{0.01, 0.02},
			{-0.01, 0.04},
		},
	}

	series := m.PortfolioSeries(WeightVector{"AAA": 0.5, "BBB": 0.5})

	if series.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", series.Len())
	}
	if math.Abs(series.Values[0]-0.015) > 1e-12 {
		t.Errorf("Values[0] = %v, want 0.015", series.Values[0])
	}
	if math.Abs(series.Values[1]-0.015) > 1e-12 {
		t.Errorf("Values[1] = %v, want 0.015", series.Values[1])
	}
}

func TestAlignInner(t *testing.T) {
	a := Series{
		Dates:  []time.Time{day(0), day(1), day(2)},
		Values: []float64{1, 2, 3},
	}
	b := Series{
		Dates:  []time.Time{day(1), day(2), day(3)},
		Values: []float64{20, 30, 40},
	}

	alignedA, alignedB := AlignInner(a, b)

	if alignedA.Len() != 2 || alignedB.Len() != 2 {
		t.Fatalf("aligned lengths = %d, %d; want 2, 2", alignedA.Len(), alignedB.Len())
	}
	if alignedA.Values[0] != 2 || alignedB.Values[0] != 20 {
		t.Errorf("first aligned pair = (%v, %v), want (2, 20)", alignedA.Values[0], alignedB.Values[0])
	}
	if alignedA.Values[1] != 3 || alignedB.Values[1] != 30 {
		t.Errorf("second aligned pair = (%v, %v), want (3, 30)", alignedA.Values[1], alignedB.Values[1])
	}
}

func TestAlignInner_NoOverlap(t *testing.T) {
	a := Series{Dates: []time.Time{day(0)}, Values: []float64{1}}
	b := Series{Dates: []time.Time{day(5)}, Values: []float64{2}}

	alignedA, alignedB := AlignInner(a, b)
	if alignedA.Len() != 0 || alignedB.Len() != 0 {
		t.Errorf("expected empty alignment, got %d, %d", alignedA.Len(), alignedB.Len())
	}
}

func TestWeightVector_WithoutAndRenormalized(t *testing.T) {
	w := WeightVector{"AAA": 0.5, "BBB": 0.3, "SPY": 0.2}

	reduced := w.Without("SPY")
	if len(reduced) != 2 {
		t.Fatalf("Without() len = %d, want 2", len(reduced))
	}
	if _, ok := reduced["SPY"]; ok {
		t.Error("SPY should be removed")
	}

	renormed := reduced.Renormalized()
	if math.Abs(renormed.Sum()-1.0) > 1e-12 {
		t.Errorf("Renormalized().Sum() = %v, want 1.0", renormed.Sum())
	}
	if math.Abs(renormed["AAA"]-0.625) > 1e-12 {
		t.Errorf("AAA weight = %v, want 0.625", renormed["AAA"])
	}
}

func TestFromSnapshot(t *testing.T) {
	s := &RiskMetricSnapshot{
		PortfolioID:       "pf_a",
		Date:              day(10),
		VaR95:             -0.02,
		ExpectedShortfall: -0.027,
		SharpeRatio20D:    1.2,
		Beta20D:           0.9,
		Volatility20D:     0.19,
	}

	points := FromSnapshot(s)

	if len(points) != 5 {
		t.Fatalf("FromSnapshot() len = %d, want 5", len(points))
	}
	if *points[MetricKeyVaR].Value != -0.02 {
		t.Errorf("var = %v, want -0.02", *points[MetricKeyVaR].Value)
	}
	if !points[MetricKeyES].TS.Equal(s.Date) {
		t.Errorf("es ts = %v, want %v", points[MetricKeyES].TS, s.Date)
	}
}
