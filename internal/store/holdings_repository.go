package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/riskcore/internal/contracts"
)

// HoldingsRepository implements contracts.HoldingsRepository
// ⭐ SSOT: 포트폴리오 비중 스냅샷 조회는 여기서만
type HoldingsRepository struct {
	pool *pgxpool.Pool
}

// NewHoldingsRepository creates a new holdings repository
func NewHoldingsRepository(pool *pgxpool.Pool) *HoldingsRepository {
	return &HoldingsRepository{pool: pool}
}

// GetWeightVector returns the recorded weights for a portfolio on a date.
// Returns contracts.ErrNotFound when no holdings snapshot exists.
func (r *HoldingsRepository) GetWeightVector(ctx context.Context, portfolioID string, date time.Time) (contracts.WeightVector, error) {
	query := `
		SELECT ticker, weight
		FROM risk.portfolio_holdings
		WHERE portfolio_id = $1 AND snapshot_date = $2
	`

	rows, err := r.pool.Query(ctx, query, portfolioID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	weights := make(contracts.WeightVector)
	for rows.Next() {
		var ticker string
		var weight float64
		if err := rows.Scan(&ticker, &weight); err != nil {
			return nil, err
		}
		weights[ticker] = weight
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(weights) == 0 {
		return nil, contracts.ErrNotFound
	}

	return weights, nil
}
