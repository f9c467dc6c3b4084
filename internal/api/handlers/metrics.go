package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/riskcore/internal/cache"
	"github.com/wonny/riskcore/internal/contracts"
	"github.com/wonny/riskcore/pkg/database"
	"github.com/wonny/riskcore/pkg/logger"
)

// defaultHistoryDays is the lookback for history queries without ?days=
const defaultHistoryDays = 30

// MetricsHandler handles metric-serving API endpoints
// ⭐ SSOT: 메트릭 API 핸들러는 이 구조체에서만
type MetricsHandler struct {
	store  contracts.MetricsStore
	cache  *cache.TieredCache
	db     *database.DB
	logger *logger.Logger
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(store contracts.MetricsStore, tiered *cache.TieredCache, db *database.DB, log *logger.Logger) *MetricsHandler {
	return &MetricsHandler{
		store:  store,
		cache:  tiered,
		db:     db,
		logger: log,
	}
}

// Health returns server and dependency health
// GET /health
func (h *MetricsHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbStatus, _ := h.db.HealthCheck(ctx)
	cacheHealthy := h.cache.HealthCheck(ctx)

	status := "ok"
	if !dbStatus.Healthy {
		status = "degraded"
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  status,
		"service": "riskcore-api",
		"components": map[string]interface{}{
			"database":   dbStatus,
			"fast_store": cacheHealthy,
		},
	})
}

// ListPortfolios returns every portfolio known to the holdings store
// GET /api/portfolios
func (h *MetricsHandler) ListPortfolios(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ids, err := h.store.ListPortfolioIDs(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list portfolios")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve portfolios")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"portfolios": ids,
		"count":      len(ids),
	})
}

// GetLatest returns the freshest metrics for one portfolio.
// 데이터가 없어도 200 - 값이 전부 null인 canonical 형태로 응답한다.
// GET /api/metrics/{portfolio}
func (h *MetricsHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	portfolioID := mux.Vars(r)["portfolio"]

	metrics := h.cache.FetchLatestMetrics(ctx, portfolioID)
	respondJSON(w, http.StatusOK, metrics)
}

// GetHistory returns stored snapshots over a trailing day range
// GET /api/metrics/{portfolio}/history?days=N
func (h *MetricsHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	portfolioID := mux.Vars(r)["portfolio"]

	days := defaultHistoryDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, "Invalid 'days' parameter (expected positive integer)")
			return
		}
		days = parsed
	}

	end := time.Now()
	start := end.AddDate(0, 0, -days)

	snapshots, err := h.store.QueryRange(ctx, portfolioID, start, end)
	if err != nil {
		h.logger.WithError(err).WithField("portfolio_id", portfolioID).
			Error("Failed to query metric history")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve metric history")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"portfolio_id": portfolioID,
		"days":         days,
		"count":        len(snapshots),
		"snapshots":    snapshots,
	})
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
