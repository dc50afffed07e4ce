package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/campusevent/internal/event"
	"github.com/hitoshi/campusevent/internal/middleware"
	"github.com/hitoshi/campusevent/internal/model"
)

// EventServiceInterface はイベントハンドラーが必要とするサービスインターフェース。
type EventServiceInterface interface {
	List(ctx context.Context, opts event.ListOptions) ([]model.EventWithCount, error)
	Get(ctx context.Context, id string) (*model.EventWithCount, error)
	Create(ctx context.Context, organizerEmail string, in event.Input) (*model.Event, error)
	Update(ctx context.Context, id string, in event.Input) (*model.Event, error)
	Delete(ctx context.Context, id string) error
}

// EventHandler はイベント管理のHTTPハンドラー。
type EventHandler struct {
	service EventServiceInterface
}

// NewEventHandler はEventHandlerを生成する。
func NewEventHandler(service EventServiceInterface) *EventHandler {
	return &EventHandler{service: service}
}

// eventResponse はイベント情報のAPIレスポンス。
type eventResponse struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Location          string    `json:"location"`
	Category          string    `json:"category"`
	StartsAt          time.Time `json:"startsAt"`
	EndsAt            time.Time `json:"endsAt"`
	Capacity          int       `json:"capacity"`
	Organizer         string    `json:"organizer"`
	RegistrationCount *int      `json:"registrationCount,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func toEventResponse(e *model.Event) eventResponse {
	return eventResponse{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		Category:    e.Category,
		StartsAt:    e.StartsAt,
		EndsAt:      e.EndsAt,
		Capacity:    e.Capacity,
		Organizer:   e.Organizer,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func toEventWithCountResponse(e *model.EventWithCount) eventResponse {
	resp := toEventResponse(&e.Event)
	count := e.RegistrationCount
	resp.RegistrationCount = &count
	return resp
}

type eventRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Category    string    `json:"category"`
	StartsAt    time.Time `json:"startsAt"`
	EndsAt      time.Time `json:"endsAt"`
	Capacity    int       `json:"capacity"`
}

func (req eventRequest) toInput() event.Input {
	return event.Input{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Category:    req.Category,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		Capacity:    req.Capacity,
	}
}

// List はイベント一覧を返す。
// GET /api/events?category=xxx&upcoming=true&organizer=xxx
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	events, err := h.service.List(r.Context(), event.ListOptions{
		Category:  q.Get("category"),
		Organizer: q.Get("organizer"),
		Upcoming:  q.Get("upcoming") == "true",
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]eventResponse, len(events))
	for i := range events {
		resp[i] = toEventWithCountResponse(&events[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get はイベント詳細を返す。
// GET /api/events/{id}
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	ev, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventWithCountResponse(ev))
}

// Create はイベントを作成する。主催者はリクエスト主体になる。
// POST /api/events
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	requester := middleware.RequesterFromContext(r.Context())
	ev, err := h.service.Create(r.Context(), requester.Email, req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventResponse(ev))
}

// Update はイベントを更新する。
// PUT /api/events/{id}
func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	var req eventRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ev, err := h.service.Update(r.Context(), id, req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(ev))
}

// Delete はイベントを削除する。
// DELETE /api/events/{id}
func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
