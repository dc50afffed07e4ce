package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/campusevent/internal/middleware"
	"github.com/hitoshi/campusevent/internal/model"
	"github.com/hitoshi/campusevent/internal/registration"
)

// RegistrationServiceInterface は参加登録ハンドラーが必要とするサービスインターフェース。
type RegistrationServiceInterface interface {
	Register(ctx context.Context, eventID, userID, email string) (*model.Registration, error)
	Cancel(ctx context.Context, eventID, userID string) error
	ListMine(ctx context.Context, userID string) ([]model.RegistrationWithEvent, error)
	ListRegistrants(ctx context.Context, eventID string) ([]model.Registrant, error)
	ExportCSV(ctx context.Context, eventID string, w io.Writer) error
}

// RegistrationHandler は参加登録のHTTPハンドラー。
type RegistrationHandler struct {
	service RegistrationServiceInterface
}

// NewRegistrationHandler はRegistrationHandlerを生成する。
func NewRegistrationHandler(service RegistrationServiceInterface) *RegistrationHandler {
	return &RegistrationHandler{service: service}
}

type registrationResponse struct {
	ID        string    `json:"id"`
	EventID   string    `json:"eventId"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

type myRegistrationResponse struct {
	registrationResponse
	EventTitle    string    `json:"eventTitle"`
	EventStartsAt time.Time `json:"eventStartsAt"`
	EventLocation string    `json:"eventLocation"`
}

type registrantResponse struct {
	RegistrationID string    `json:"registrationId"`
	UserID         string    `json:"userId"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	StudentID      string    `json:"studentId"`
	RegisteredAt   time.Time `json:"registeredAt"`
}

func toRegistrationResponse(reg *model.Registration) registrationResponse {
	return registrationResponse{
		ID:        reg.ID,
		EventID:   reg.EventID,
		UserID:    reg.UserID,
		CreatedAt: reg.CreatedAt,
	}
}

// Register はリクエスト主体をイベントに参加登録する。
// POST /api/events/{id}/registrations
func (h *RegistrationHandler) Register(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	requester := middleware.RequesterFromContext(r.Context())

	reg, err := h.service.Register(r.Context(), eventID, requester.SubjectID, requester.Email)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRegistrationResponse(reg))
}

// Cancel はリクエスト主体の参加登録を取り消す。
// DELETE /api/events/{id}/registrations/me
func (h *RegistrationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	requester := middleware.RequesterFromContext(r.Context())

	if err := h.service.Cancel(r.Context(), eventID, requester.SubjectID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMine はリクエスト主体の参加登録一覧を返す。
// GET /api/registrations/me
func (h *RegistrationHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	requester := middleware.RequesterFromContext(r.Context())

	regs, err := h.service.ListMine(r.Context(), requester.SubjectID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]myRegistrationResponse, len(regs))
	for i, reg := range regs {
		resp[i] = myRegistrationResponse{
			registrationResponse: toRegistrationResponse(&reg.Registration),
			EventTitle:           reg.EventTitle,
			EventStartsAt:        reg.EventStartsAt,
			EventLocation:        reg.EventLocation,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListRegistrants はイベントの参加者一覧を返す。
// GET /api/events/{id}/registrations
func (h *RegistrationHandler) ListRegistrants(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	registrants, err := h.service.ListRegistrants(r.Context(), eventID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]registrantResponse, len(registrants))
	for i, p := range registrants {
		resp[i] = registrantResponse{
			RegistrationID: p.RegistrationID,
			UserID:         p.UserID,
			Name:           p.Name,
			Email:          p.Email,
			StudentID:      p.StudentID,
			RegisteredAt:   p.RegisteredAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Export は参加者一覧をCSVでダウンロードさせる。
// 途中で失敗した場合にJSONエラーを返せるよう、一度バッファに書き出してから送信する。
// GET /api/events/{id}/registrations/export
func (h *RegistrationHandler) Export(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.service.ExportCSV(r.Context(), eventID, &buf); err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, registration.ExportFilename(eventID)))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("failed to write csv export", slog.String("event_id", eventID), slog.String("error", err.Error()))
	}
}
