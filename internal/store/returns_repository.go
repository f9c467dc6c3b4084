package store

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/riskcore/internal/contracts"
)

// ReturnsRepository implements contracts.ReturnsRepository on top of the
// daily close price table.
// ⭐ SSOT: 수익률 매트릭스 조립은 여기서만
type ReturnsRepository struct {
	pool *pgxpool.Pool
}

// NewReturnsRepository creates a new returns repository
func NewReturnsRepository(pool *pgxpool.Pool) *ReturnsRepository {
	return &ReturnsRepository{pool: pool}
}

// GetReturnMatrix loads close prices for the lookback window ending at end
// (inclusive) and pivots them into a date-ascending daily return matrix.
// 가격이 빠진 칸은 NaN - 채움(ffill/0)은 엔진이 담당
func (r *ReturnsRepository) GetReturnMatrix(ctx context.Context, end time.Time, lookbackDays int) (*contracts.ReturnMatrix, error) {
	start := end.AddDate(0, 0, -lookbackDays)

	query := `
		SELECT ticker, trade_date, close_price
		FROM data.daily_prices
		WHERE trade_date >= $1 AND trade_date <= $2
		ORDER BY trade_date ASC
	`

	rows, err := r.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type priceRow struct {
		ticker string
		date   time.Time
		close  float64
	}

	var prices []priceRow
	tickerSet := make(map[string]struct{})
	dateSet := make(map[int64]time.Time)

	for rows.Next() {
		var p priceRow
		if err := rows.Scan(&p.ticker, &p.date, &p.close); err != nil {
			return nil, err
		}
		prices = append(prices, p)
		tickerSet[p.ticker] = struct{}{}
		dateSet[p.date.Unix()] = p.date
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(prices) == 0 {
		return &contracts.ReturnMatrix{}, nil
	}

	tickers := make([]string, 0, len(tickerSet))
	for t := range tickerSet {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	dates := make([]time.Time, 0, len(dateSet))
	for _, d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	tickerIdx := make(map[string]int, len(tickers))
	for i, t := range tickers {
		tickerIdx[t] = i
	}
	dateIdx := make(map[int64]int, len(dates))
	for i, d := range dates {
		dateIdx[d.Unix()] = i
	}

	// Pivot closes: rows=dates, cols=tickers, missing=NaN
	closes := make([][]float64, len(dates))
	for i := range closes {
		closes[i] = make([]float64, len(tickers))
		for j := range closes[i] {
			closes[i][j] = math.NaN()
		}
	}
	for _, p := range prices {
		closes[dateIdx[p.date.Unix()]][tickerIdx[p.ticker]] = p.close
	}

	// Daily pct change: 연속 이틀 종가가 모두 있어야 수익률, 아니면 NaN.
	// 첫 행은 기준일이 없으므로 버린다.
	returns := make([][]float64, len(dates)-1)
	for i := 1; i < len(dates); i++ {
		row := make([]float64, len(tickers))
		for j := range tickers {
			prev := closes[i-1][j]
			curr := closes[i][j]
			if math.IsNaN(prev) || math.IsNaN(curr) || prev == 0 {
				row[j] = math.NaN()
			} else {
				row[j] = curr/prev - 1
			}
		}
		returns[i-1] = row
	}

	return &contracts.ReturnMatrix{
		Dates:   dates[1:],
		Tickers: tickers,
		Data:    returns,
	}, nil
}
