package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/campusevent/internal/feedback"
	"github.com/hitoshi/campusevent/internal/middleware"
	"github.com/hitoshi/campusevent/internal/model"
)

// FeedbackServiceInterface はフィードバックハンドラーが必要とするサービスインターフェース。
type FeedbackServiceInterface interface {
	Submit(ctx context.Context, eventID, userID string, rating int, comment string) (*model.Feedback, error)
	List(ctx context.Context, eventID string) (*feedback.EventFeedback, error)
}

// FeedbackHandler はフィードバックのHTTPハンドラー。
type FeedbackHandler struct {
	service FeedbackServiceInterface
}

// NewFeedbackHandler はFeedbackHandlerを生成する。
func NewFeedbackHandler(service FeedbackServiceInterface) *FeedbackHandler {
	return &FeedbackHandler{service: service}
}

type feedbackRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type feedbackResponse struct {
	ID        string    `json:"id"`
	EventID   string    `json:"eventId"`
	UserName  string    `json:"userName,omitempty"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

type feedbackListResponse struct {
	Count         int                `json:"count"`
	AverageRating float64            `json:"averageRating"`
	Items         []feedbackResponse `json:"items"`
}

func toFeedbackResponse(fb *model.Feedback) feedbackResponse {
	return feedbackResponse{
		ID:        fb.ID,
		EventID:   fb.EventID,
		UserName:  fb.UserName,
		Rating:    fb.Rating,
		Comment:   fb.Comment,
		CreatedAt: fb.CreatedAt,
	}
}

// Submit はフィードバックを投稿する。
// POST /api/events/{id}/feedback
func (h *FeedbackHandler) Submit(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	var req feedbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	requester := middleware.RequesterFromContext(r.Context())
	fb, err := h.service.Submit(r.Context(), eventID, requester.SubjectID, req.Rating, req.Comment)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFeedbackResponse(fb))
}

// List はイベントのフィードバック一覧と平均評価を返す。
// GET /api/events/{id}/feedback
func (h *FeedbackHandler) List(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	result, err := h.service.List(r.Context(), eventID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	items := make([]feedbackResponse, len(result.Items))
	for i := range result.Items {
		items[i] = toFeedbackResponse(&result.Items[i])
	}
	writeJSON(w, http.StatusOK, feedbackListResponse{
		Count:         result.Summary.Count,
		AverageRating: result.Summary.AverageRating,
		Items:         items,
	})
}
