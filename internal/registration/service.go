// Package registration はイベントへの参加登録を扱う。
package registration

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/campusevent/internal/cache"
	"github.com/hitoshi/campusevent/internal/event"
	"github.com/hitoshi/campusevent/internal/model"
	"github.com/hitoshi/campusevent/internal/notify"
	"github.com/hitoshi/campusevent/internal/repository"
)

// csvHeader はエクスポートCSVの見出し行。
var csvHeader = []string{"registration_id", "name", "email", "student_id", "registered_at"}

// Service は参加登録のサービス層。
type Service struct {
	eventRepo repository.EventRepository
	regRepo   repository.RegistrationRepository
	notifier  notify.Notifier
	cache     cache.Store
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	eventRepo repository.EventRepository,
	regRepo repository.RegistrationRepository,
	notifier notify.Notifier,
	store cache.Store,
) *Service {
	return &Service{
		eventRepo: eventRepo,
		regRepo:   regRepo,
		notifier:  notifier,
		cache:     store,
		now:       time.Now,
	}
}

// Register は学生をイベントに参加登録し、確認メールを送る。
// 定員判定と登録の間はロックを取らないため、同時登録で定員をわずかに超えることがある。
func (s *Service) Register(ctx context.Context, eventID, userID, email string) (*model.Registration, error) {
	ev, err := s.eventRepo.FindWithCount(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	if ev == nil {
		return nil, model.NewEventNotFoundError(eventID)
	}
	if ev.HasStarted(s.now()) {
		return nil, model.NewEventStartedError()
	}
	if ev.IsFull() {
		return nil, model.NewEventFullError()
	}

	reg := &model.Registration{
		ID:        uuid.New().String(),
		EventID:   eventID,
		UserID:    userID,
		CreatedAt: s.now(),
	}
	created, err := s.regRepo.CreateIfAbsent(ctx, reg)
	if err != nil {
		return nil, fmt.Errorf("参加登録に失敗しました: %w", err)
	}
	if !created {
		return nil, model.NewAlreadyRegisteredError()
	}
	s.invalidate(ctx)

	s.notifier.Notify(ctx, notify.RegistrationConfirmed(&ev.Event, email))
	return reg, nil
}

// Cancel は自身の参加登録を取り消す。
func (s *Service) Cancel(ctx context.Context, eventID, userID string) error {
	deleted, err := s.regRepo.Delete(ctx, eventID, userID)
	if err != nil {
		return fmt.Errorf("参加登録の取り消しに失敗しました: %w", err)
	}
	if !deleted {
		return model.NewRegistrationNotFoundError()
	}
	s.invalidate(ctx)
	return nil
}

// ListMine は学生自身の参加登録一覧を返す。
func (s *Service) ListMine(ctx context.Context, userID string) ([]model.RegistrationWithEvent, error) {
	regs, err := s.regRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("参加登録一覧の取得に失敗しました: %w", err)
	}
	if regs == nil {
		regs = []model.RegistrationWithEvent{}
	}
	return regs, nil
}

// ListRegistrants はイベントの参加者一覧を返す。
func (s *Service) ListRegistrants(ctx context.Context, eventID string) ([]model.Registrant, error) {
	if err := s.ensureEvent(ctx, eventID); err != nil {
		return nil, err
	}
	registrants, err := s.regRepo.ListRegistrants(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("参加者一覧の取得に失敗しました: %w", err)
	}
	if registrants == nil {
		registrants = []model.Registrant{}
	}
	return registrants, nil
}

// ExportCSV は参加者一覧をCSVでwに書き出す。
// 書き出し前にイベントの存在を確認するため、エラー時にwへは何も書かれない。
func (s *Service) ExportCSV(ctx context.Context, eventID string, w io.Writer) error {
	registrants, err := s.ListRegistrants(ctx, eventID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("CSVの書き出しに失敗しました: %w", err)
	}
	for _, r := range registrants {
		record := []string{
			r.RegistrationID,
			escapeFormula(r.Name),
			escapeFormula(r.Email),
			escapeFormula(r.StudentID),
			r.RegisteredAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("CSVの書き出しに失敗しました: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("CSVの書き出しに失敗しました: %w", err)
	}

	slog.Info("registrants exported",
		slog.String("event_id", eventID),
		slog.Int("rows", len(registrants)),
	)
	return nil
}

// ExportFilename はCSVダウンロード時のファイル名を返す。
func ExportFilename(eventID string) string {
	return fmt.Sprintf("registrants-%s.csv", eventID)
}

func (s *Service) ensureEvent(ctx context.Context, eventID string) error {
	ev, err := s.eventRepo.FindByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	if ev == nil {
		return model.NewEventNotFoundError(eventID)
	}
	return nil
}

// invalidate は参加登録数を含むイベントのキャッシュを破棄する。
func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePrefix(ctx, event.CacheKeyPrefix); err != nil {
		slog.Warn("cache invalidation failed", slog.String("error", err.Error()))
	}
}

// escapeFormula は表計算ソフトで数式として解釈される値の先頭に ' を付ける。
func escapeFormula(v string) string {
	if v != "" && strings.ContainsRune("=+-@\t\r", rune(v[0])) {
		return "'" + v
	}
	return v
}
