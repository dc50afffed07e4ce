package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/campusevent/internal/model"
)

// StatsServiceInterface は統計ハンドラーが必要とするサービスインターフェース。
type StatsServiceInterface interface {
	Get(ctx context.Context) (*model.Stats, error)
}

// StatsHandler は管理者向け統計のHTTPハンドラー。
type StatsHandler struct {
	service StatsServiceInterface
}

// NewStatsHandler はStatsHandlerを生成する。
func NewStatsHandler(service StatsServiceInterface) *StatsHandler {
	return &StatsHandler{service: service}
}

type rankingResponse struct {
	EventID           string `json:"eventId"`
	Title             string `json:"title"`
	RegistrationCount int    `json:"registrationCount"`
}

type statsResponse struct {
	UsersByRole        map[string]int    `json:"usersByRole"`
	EventsTotal        int               `json:"eventsTotal"`
	EventsUpcoming     int               `json:"eventsUpcoming"`
	RegistrationsTotal int               `json:"registrationsTotal"`
	FeedbackCount      int               `json:"feedbackCount"`
	AverageRating      float64           `json:"averageRating"`
	TopEvents          []rankingResponse `json:"topEvents"`
	GeneratedAt        time.Time         `json:"generatedAt"`
}

// Get は集計統計を返す。
// GET /api/admin/stats
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.Get(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := statsResponse{
		UsersByRole:        make(map[string]int, len(st.UsersByRole)),
		EventsTotal:        st.EventsTotal,
		EventsUpcoming:     st.EventsUpcoming,
		RegistrationsTotal: st.RegistrationsTotal,
		FeedbackCount:      st.FeedbackCount,
		AverageRating:      st.AverageRating,
		TopEvents:          make([]rankingResponse, len(st.TopEvents)),
		GeneratedAt:        st.GeneratedAt,
	}
	for role, n := range st.UsersByRole {
		resp.UsersByRole[role.String()] = n
	}
	for i, e := range st.TopEvents {
		resp.TopEvents[i] = rankingResponse{EventID: e.EventID, Title: e.Title, RegistrationCount: e.RegistrationCount}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HealthChecker はDB疎通確認のインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// healthHandler はDBへの疎通を確認し、結果を返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
