package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/riskcore/internal/contracts"
)

// MetricsRepository implements contracts.MetricsStore on PostgreSQL.
// ⭐ SSOT: 스냅샷 영속화는 여기서만 - (portfolio_id, snapshot_date)가 natural key,
// upsert는 같은 키를 제자리에서 덮어쓰므로 전체 backfill 재실행에 안전(멱등)
type MetricsRepository struct {
	pool *pgxpool.Pool
}

// NewMetricsRepository creates a new metrics repository
func NewMetricsRepository(pool *pgxpool.Pool) *MetricsRepository {
	return &MetricsRepository{pool: pool}
}

const upsertSnapshotSQL = `
	INSERT INTO risk.metric_snapshots (
		portfolio_id, snapshot_date,
		var_95, expected_shortfall, sharpe_20d, beta_20d, volatility_20d,
		sim_method, n_simulations, confidence_level, window_days, computed_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (portfolio_id, snapshot_date) DO UPDATE SET
		var_95 = EXCLUDED.var_95,
		expected_shortfall = EXCLUDED.expected_shortfall,
		sharpe_20d = EXCLUDED.sharpe_20d,
		beta_20d = EXCLUDED.beta_20d,
		volatility_20d = EXCLUDED.volatility_20d,
		sim_method = EXCLUDED.sim_method,
		n_simulations = EXCLUDED.n_simulations,
		confidence_level = EXCLUDED.confidence_level,
		window_days = EXCLUDED.window_days,
		computed_at = EXCLUDED.computed_at
`

const selectSnapshotSQL = `
	SELECT portfolio_id, snapshot_date,
		var_95, expected_shortfall, sharpe_20d, beta_20d, volatility_20d,
		sim_method, n_simulations, confidence_level, window_days, computed_at
	FROM risk.metric_snapshots
`

// EnsureSchema creates the pipeline tables and indexes if missing
func (r *MetricsRepository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE SCHEMA IF NOT EXISTS data`,
		`CREATE SCHEMA IF NOT EXISTS risk`,
		`CREATE TABLE IF NOT EXISTS data.daily_prices (
			ticker        TEXT NOT NULL,
			trade_date    DATE NOT NULL,
			close_price   DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (ticker, trade_date)
		)`,
		`CREATE TABLE IF NOT EXISTS risk.portfolio_holdings (
			portfolio_id  TEXT NOT NULL,
			snapshot_date DATE NOT NULL,
			ticker        TEXT NOT NULL,
			weight        DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (portfolio_id, snapshot_date, ticker)
		)`,
		`CREATE TABLE IF NOT EXISTS risk.metric_snapshots (
			portfolio_id     TEXT NOT NULL,
			snapshot_date    DATE NOT NULL,
			var_95           DOUBLE PRECISION NOT NULL,
			expected_shortfall DOUBLE PRECISION NOT NULL,
			sharpe_20d       DOUBLE PRECISION NOT NULL,
			beta_20d         DOUBLE PRECISION NOT NULL,
			volatility_20d   DOUBLE PRECISION NOT NULL,
			sim_method       TEXT NOT NULL,
			n_simulations    INTEGER NOT NULL,
			confidence_level DOUBLE PRECISION NOT NULL,
			window_days      INTEGER NOT NULL,
			computed_at      TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (portfolio_id, snapshot_date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_metric_snapshots_portfolio_date
			ON risk.metric_snapshots (portfolio_id, snapshot_date DESC)`,
	}

	for _, stmt := range statements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// UpsertSnapshot inserts or overwrites a single snapshot
func (r *MetricsRepository) UpsertSnapshot(ctx context.Context, s *contracts.RiskMetricSnapshot) error {
	_, err := r.pool.Exec(ctx, upsertSnapshotSQL,
		s.PortfolioID, s.Date,
		s.VaR95, s.ExpectedShortfall, s.SharpeRatio20D, s.Beta20D, s.Volatility20D,
		s.SimParams.Method, s.SimParams.NumSimulations, s.SimParams.ConfidenceLevel,
		s.SimParams.WindowDays, s.ComputedAt,
	)
	return err
}

// BulkUpsert writes a batch of snapshots in one round trip (pgx.Batch).
// Returns the number of rows written. 부분 실패는 에러로 표면화 -
// 호출자(backfill)는 해당 flush를 실패로 집계하고 다음 배치로 넘어간다.
func (r *MetricsRepository) BulkUpsert(ctx context.Context, snapshots []*contracts.RiskMetricSnapshot) (int, error) {
	if len(snapshots) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, s := range snapshots {
		batch.Queue(upsertSnapshotSQL,
			s.PortfolioID, s.Date,
			s.VaR95, s.ExpectedShortfall, s.SharpeRatio20D, s.Beta20D, s.Volatility20D,
			s.SimParams.Method, s.SimParams.NumSimulations, s.SimParams.ConfidenceLevel,
			s.SimParams.WindowDays, s.ComputedAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	written := 0
	for i := range snapshots {
		if _, err := results.Exec(); err != nil {
			return written, fmt.Errorf("bulk upsert failed at %s/%s (%d of %d written): %w",
				snapshots[i].PortfolioID, snapshots[i].Date.Format("2006-01-02"),
				written, len(snapshots), err)
		}
		written++
	}

	return written, nil
}

// QueryLatest returns the most recent snapshot for a portfolio
func (r *MetricsRepository) QueryLatest(ctx context.Context, portfolioID string) (*contracts.RiskMetricSnapshot, error) {
	query := selectSnapshotSQL + `
		WHERE portfolio_id = $1
		ORDER BY snapshot_date DESC
		LIMIT 1
	`

	s, err := scanSnapshot(r.pool.QueryRow(ctx, query, portfolioID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contracts.ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

// QueryRange returns snapshots for a portfolio within [start, end], date-ascending
func (r *MetricsRepository) QueryRange(ctx context.Context, portfolioID string, start, end time.Time) ([]*contracts.RiskMetricSnapshot, error) {
	query := selectSnapshotSQL + `
		WHERE portfolio_id = $1 AND snapshot_date BETWEEN $2 AND $3
		ORDER BY snapshot_date ASC
	`

	rows, err := r.pool.Query(ctx, query, portfolioID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []*contracts.RiskMetricSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// ListPortfolioIDs returns all portfolio ids with a recorded holdings snapshot
func (r *MetricsRepository) ListPortfolioIDs(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT portfolio_id
		FROM risk.portfolio_holdings
		ORDER BY portfolio_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListPortfolioDates enumerates every (portfolio_id, date) holdings snapshot,
// optionally filtered to one portfolio, sorted by portfolio then date
func (r *MetricsRepository) ListPortfolioDates(ctx context.Context, portfolioID string) ([]contracts.PortfolioDate, error) {
	query := `
		SELECT DISTINCT portfolio_id, snapshot_date
		FROM risk.portfolio_holdings
		WHERE ($1 = '' OR portfolio_id = $1)
		ORDER BY portfolio_id, snapshot_date
	`

	rows, err := r.pool.Query(ctx, query, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []contracts.PortfolioDate
	for rows.Next() {
		var pd contracts.PortfolioDate
		if err := rows.Scan(&pd.PortfolioID, &pd.Date); err != nil {
			return nil, err
		}
		out = append(out, pd)
	}
	return out, rows.Err()
}

// scanSnapshot reads one snapshot row
func scanSnapshot(row pgx.Row) (*contracts.RiskMetricSnapshot, error) {
	var s contracts.RiskMetricSnapshot
	err := row.Scan(
		&s.PortfolioID, &s.Date,
		&s.VaR95, &s.ExpectedShortfall, &s.SharpeRatio20D, &s.Beta20D, &s.Volatility20D,
		&s.SimParams.Method, &s.SimParams.NumSimulations, &s.SimParams.ConfidenceLevel,
		&s.SimParams.WindowDays, &s.ComputedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
