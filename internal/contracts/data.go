package contracts

import (
	"math"
	"time"
)

// =============================================================================
// Return Matrix
// =============================================================================

// ReturnMatrix holds periodic returns for a set of tickers over a date range.
// Rows are dates (ascending, no duplicates), columns are tickers.
// Missing observations are math.NaN() until Filled() is applied.
type ReturnMatrix struct {
	Dates   []time.Time `json:"dates"`
	Tickers []string    `json:"tickers"`
	Data    [][]float64 `json:"data"` // Data[row][col], row=date, col=ticker
}

// NumDates returns the number of date rows
func (m *ReturnMatrix) NumDates() int {
	return len(m.Dates)
}

// Empty reports whether the matrix has no observations
func (m *ReturnMatrix) Empty() bool {
	return len(m.Dates) == 0 || len(m.Tickers) == 0
}

// ColumnIndex returns the column position of a ticker
func (m *ReturnMatrix) ColumnIndex(ticker string) (int, bool) {
	for i, t := range m.Tickers {
		if t == ticker {
			return i, true
		}
	}
	return 0, false
}

// HasTicker reports whether the ticker exists in the matrix
func (m *ReturnMatrix) HasTicker(ticker string) bool {
	_, ok := m.ColumnIndex(ticker)
	return ok
}

// Filled returns a copy with NaN 처리: 컬럼별 forward fill 후 잔여 NaN은 0
func (m *ReturnMatrix) Filled() *ReturnMatrix {
	filled := &ReturnMatrix{
		Dates:   m.Dates,
		Tickers: m.Tickers,
		Data:    make([][]float64, len(m.Data)),
	}
	for i, row := range m.Data {
		filled.Data[i] = make([]float64, len(row))
		copy(filled.Data[i], row)
	}

	for col := range m.Tickers {
		last := math.NaN()
		for row := range filled.Data {
			v := filled.Data[row][col]
			if math.IsNaN(v) {
				if math.IsNaN(last) {
					filled.Data[row][col] = 0
				} else {
					filled.Data[row][col] = last
				}
			} else {
				last = v
			}
		}
	}
	return filled
}

// ColumnSeries extracts one ticker as a dated series
func (m *ReturnMatrix) ColumnSeries(ticker string) (Series, bool) {
	col, ok := m.ColumnIndex(ticker)
	if !ok {
		return Series{}, false
	}
	values := make([]float64, len(m.Dates))
	for row := range m.Data {
		values[row] = m.Data[row][col]
	}
	return Series{Dates: m.Dates, Values: values}, true
}

// PortfolioSeries computes the weighted portfolio return per date.
// Caller는 Filled() 이후 호출해야 함 (NaN이 가중합을 오염시키지 않도록).
func (m *ReturnMatrix) PortfolioSeries(weights WeightVector) Series {
	cols := make(map[int]float64, len(weights))
	for ticker, w := range weights {
		if col, ok := m.ColumnIndex(ticker); ok {
			cols[col] = w
		}
	}

	values := make([]float64, len(m.Dates))
	for row := range m.Data {
		var sum float64
		for col, w := range cols {
			sum += w * m.Data[row][col]
		}
		values[row] = sum
	}
	return Series{Dates: m.Dates, Values: values}
}

// =============================================================================
// Series
// =============================================================================

// Series is a date-indexed value sequence (date-ascending)
type Series struct {
	Dates  []time.Time `json:"dates"`
	Values []float64   `json:"values"`
}

// Len returns the number of observations
func (s Series) Len() int {
	return len(s.Values)
}

// AlignInner joins two series on common dates (inner join), preserving order
func AlignInner(a, b Series) (Series, Series) {
	bIdx := make(map[int64]int, len(b.Dates))
	for i, d := range b.Dates {
		bIdx[d.Unix()] = i
	}

	var dates []time.Time
	var avs, bvs []float64
	for i, d := range a.Dates {
		if j, ok := bIdx[d.Unix()]; ok {
			dates = append(dates, d)
			avs = append(avs, a.Values[i])
			bvs = append(bvs, b.Values[j])
		}
	}

	return Series{Dates: dates, Values: avs}, Series{Dates: dates, Values: bvs}
}

// =============================================================================
// Weight Vector
// =============================================================================

// WeightVector maps ticker to portfolio weight for one portfolio at one date.
// Invariants (enforced by the engine): 합계 ≈ 1.0 (tol 1e-4), 전부 ≥ 0 (long-only)
type WeightVector map[string]float64

// Sum returns the total weight
func (w WeightVector) Sum() float64 {
	var sum float64
	for _, v := range w {
		sum += v
	}
	return sum
}

// Without returns a copy with one ticker removed
func (w WeightVector) Without(ticker string) WeightVector {
	out := make(WeightVector, len(w))
	for t, v := range w {
		if t != ticker {
			out[t] = v
		}
	}
	return out
}

// Renormalized returns a copy scaled so weights sum to 1.0
func (w WeightVector) Renormalized() WeightVector {
	sum := w.Sum()
	if sum == 0 {
		return w
	}
	out := make(WeightVector, len(w))
	for t, v := range w {
		out[t] = v / sum
	}
	return out
}
