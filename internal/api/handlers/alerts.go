package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/riskcore/internal/alerts"
	"github.com/wonny/riskcore/internal/cache"
	"github.com/wonny/riskcore/internal/contracts"
	"github.com/wonny/riskcore/pkg/logger"
)

// alertHistoryDays is the trailing window fed to persistence/trend checks
const alertHistoryDays = 30

// AlertsHandler handles alert evaluation endpoints
type AlertsHandler struct {
	store     contracts.MetricsStore
	cache     *cache.TieredCache
	evaluator *alerts.Evaluator
	logger    *logger.Logger
}

// NewAlertsHandler creates a new alerts handler
func NewAlertsHandler(store contracts.MetricsStore, tiered *cache.TieredCache, evaluator *alerts.Evaluator, log *logger.Logger) *AlertsHandler {
	return &AlertsHandler{
		store:     store,
		cache:     tiered,
		evaluator: evaluator,
		logger:    log,
	}
}

// GetAlerts evaluates all alert conditions for one portfolio on demand.
// 평가 결과는 응답으로만 나가고, 플래그만 캐시에 best-effort로 기록된다.
// GET /api/alerts/{portfolio}
func (h *AlertsHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	portfolioID := mux.Vars(r)["portfolio"]

	latest := h.cache.FetchLatestMetrics(ctx, portfolioID)

	end := time.Now()
	history, err := h.store.QueryRange(ctx, portfolioID, end.AddDate(0, 0, -alertHistoryDays), end)
	if err != nil {
		// History만 없는 경우에도 임계값 체크는 가능 - 빈 히스토리로 진행
		h.logger.WithError(err).WithField("portfolio_id", portfolioID).
			Warn("Alert history query failed - evaluating thresholds only")
		history = nil
	}

	evaluated := h.evaluator.EvaluateAll(latest, history)

	// Best-effort flag caching (실패해도 응답에는 영향 없음)
	if h.cache.Enabled() {
		for _, a := range evaluated {
			if err := h.cache.SetAlert(ctx, portfolioID, a.Type, true, 0); err != nil {
				h.logger.WithError(err).WithField("portfolio_id", portfolioID).
					Debug("Alert flag cache write failed")
				break
			}
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"portfolio_id": portfolioID,
		"source":       latest.Source,
		"count":        len(evaluated),
		"alerts":       evaluated,
	})
}
