package contracts

import (
	"context"
	"errors"
	"time"
)

// ⭐ SSOT: Repository 인터페이스 정의는 여기서만

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// ReturnsRepository provides date-aligned return matrices from price history
type ReturnsRepository interface {
	// GetReturnMatrix returns daily returns for all tickers over the lookback
	// window ending at end (inclusive)
	GetReturnMatrix(ctx context.Context, end time.Time, lookbackDays int) (*ReturnMatrix, error)
}

// HoldingsRepository provides portfolio weight snapshots
type HoldingsRepository interface {
	// GetWeightVector returns the weights recorded for a portfolio on a date.
	// Returns ErrNotFound if no holdings snapshot exists.
	GetWeightVector(ctx context.Context, portfolioID string, date time.Time) (WeightVector, error)
}

// MetricsStore is the durable, queryable record of all computed snapshots.
// 저장소가 source of truth - 캐시는 최적화일 뿐
type MetricsStore interface {
	UpsertSnapshot(ctx context.Context, snapshot *RiskMetricSnapshot) error
	BulkUpsert(ctx context.Context, snapshots []*RiskMetricSnapshot) (int, error)
	QueryLatest(ctx context.Context, portfolioID string) (*RiskMetricSnapshot, error)
	QueryRange(ctx context.Context, portfolioID string, start, end time.Time) ([]*RiskMetricSnapshot, error)
	ListPortfolioIDs(ctx context.Context) ([]string, error)
	ListPortfolioDates(ctx context.Context, portfolioID string) ([]PortfolioDate, error)
}
