// Package event はイベント管理のドメインロジックを提供する。
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/campusevent/internal/access"
	"github.com/hitoshi/campusevent/internal/cache"
	"github.com/hitoshi/campusevent/internal/model"
	"github.com/hitoshi/campusevent/internal/notify"
	"github.com/hitoshi/campusevent/internal/repository"
	"github.com/hitoshi/campusevent/internal/security"
)

const (
	maxTitleLength       = 200
	maxLocationLength    = 200
	maxCategoryLength    = 50
	maxDescriptionLength = 10000

	// CacheKeyPrefix はイベント関連のキャッシュキーの接頭辞。
	// 参加登録数も含むため、参加登録の変更時にもこの接頭辞で無効化する。
	CacheKeyPrefix = "events:"
)

// Input はイベント作成・更新の入力値。
type Input struct {
	Title       string
	Description string
	Location    string
	Category    string
	StartsAt    time.Time
	EndsAt      time.Time
	Capacity    int
}

// ListOptions はイベント一覧の絞り込み条件。
type ListOptions struct {
	Category  string
	Organizer string
	Upcoming  bool
}

func (o ListOptions) cacheKey() string {
	return fmt.Sprintf("%slist:%s|%s|%t", CacheKeyPrefix, o.Category, o.Organizer, o.Upcoming)
}

// Service はイベント管理のサービス層。
type Service struct {
	eventRepo repository.EventRepository
	regRepo   repository.RegistrationRepository
	sanitizer security.ContentSanitizerService
	notifier  notify.Notifier
	cache     cache.Store
	cacheTTL  time.Duration
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	eventRepo repository.EventRepository,
	regRepo repository.RegistrationRepository,
	sanitizer security.ContentSanitizerService,
	notifier notify.Notifier,
	store cache.Store,
	cacheTTL time.Duration,
) *Service {
	return &Service{
		eventRepo: eventRepo,
		regRepo:   regRepo,
		sanitizer: sanitizer,
		notifier:  notifier,
		cache:     store,
		cacheTTL:  cacheTTL,
		now:       time.Now,
	}
}

// List は条件に一致するイベントを参加登録数付きで返す。結果はキャッシュする。
func (s *Service) List(ctx context.Context, opts ListOptions) ([]model.EventWithCount, error) {
	key := opts.cacheKey()
	var events []model.EventWithCount
	if s.getCached(ctx, key, &events) {
		return events, nil
	}

	filter := model.EventFilter{
		Category:  opts.Category,
		Organizer: opts.Organizer,
	}
	if opts.Upcoming {
		filter.UpcomingAfter = s.now()
	}

	events, err := s.eventRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("イベント一覧の取得に失敗しました: %w", err)
	}
	if events == nil {
		events = []model.EventWithCount{}
	}
	s.setCached(ctx, key, events)
	return events, nil
}

// Get は指定IDのイベントを参加登録数付きで返す。
func (s *Service) Get(ctx context.Context, id string) (*model.EventWithCount, error) {
	key := CacheKeyPrefix + "item:" + id
	var cached model.EventWithCount
	if s.getCached(ctx, key, &cached) {
		return &cached, nil
	}

	event, err := s.eventRepo.FindWithCount(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	if event == nil {
		return nil, model.NewEventNotFoundError(id)
	}
	s.setCached(ctx, key, event)
	return event, nil
}

// Create はイベントを作成する。主催者にはリクエスト主体のメールアドレスを記録する。
func (s *Service) Create(ctx context.Context, organizerEmail string, in Input) (*model.Event, error) {
	if err := validateInput(&in); err != nil {
		return nil, err
	}

	now := s.now()
	event := &model.Event{
		ID:          uuid.New().String(),
		Title:       in.Title,
		Description: s.sanitizer.Sanitize(in.Description),
		Location:    in.Location,
		Category:    in.Category,
		StartsAt:    in.StartsAt,
		EndsAt:      in.EndsAt,
		Capacity:    in.Capacity,
		Organizer:   organizerEmail,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.eventRepo.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("イベントの作成に失敗しました: %w", err)
	}
	s.invalidate(ctx)

	slog.Info("event created",
		slog.String("event_id", event.ID),
		slog.String("organizer", organizerEmail),
	)
	return event, nil
}

// Update はイベント内容を更新し、参加者に変更を通知する。
// 主催者と作成日時は変更しない。
func (s *Service) Update(ctx context.Context, id string, in Input) (*model.Event, error) {
	if err := validateInput(&in); err != nil {
		return nil, err
	}

	event, err := s.eventRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	if event == nil {
		return nil, model.NewEventNotFoundError(id)
	}

	event.Title = in.Title
	event.Description = s.sanitizer.Sanitize(in.Description)
	event.Location = in.Location
	event.Category = in.Category
	event.StartsAt = in.StartsAt
	event.EndsAt = in.EndsAt
	event.Capacity = in.Capacity
	event.UpdatedAt = s.now()

	if err := s.eventRepo.Update(ctx, event); err != nil {
		return nil, fmt.Errorf("イベントの更新に失敗しました: %w", err)
	}
	s.invalidate(ctx)

	if to := s.registrantEmails(ctx, id); len(to) > 0 {
		s.notifier.Notify(ctx, notify.EventUpdated(event, to))
	}
	return event, nil
}

// Delete はイベントを削除し、参加者に中止を通知する。
// 参加登録はCASCADE削除されるため、宛先は削除前に取得する。
func (s *Service) Delete(ctx context.Context, id string) error {
	event, err := s.eventRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	if event == nil {
		return model.NewEventNotFoundError(id)
	}

	to := s.registrantEmails(ctx, id)

	deleted, err := s.eventRepo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("イベントの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewEventNotFoundError(id)
	}
	s.invalidate(ctx)

	if len(to) > 0 {
		s.notifier.Notify(ctx, notify.EventCancelled(event, to))
	}
	slog.Info("event deleted",
		slog.String("event_id", id),
		slog.Int("notified", len(to)),
	)
	return nil
}

// OwnerEmail はイベントの主催者メールアドレスを返す。所有者判定に使用するためキャッシュしない。
// イベントが存在しない場合はaccess.ErrResourceNotFoundを返す。
func (s *Service) OwnerEmail(ctx context.Context, id string) (string, error) {
	event, err := s.eventRepo.FindByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	if event == nil {
		return "", access.ErrResourceNotFound
	}
	return event.Organizer, nil
}

// registrantEmails は通知の宛先を返す。取得に失敗した場合は通知を諦める。
func (s *Service) registrantEmails(ctx context.Context, eventID string) []string {
	registrants, err := s.regRepo.ListRegistrants(ctx, eventID)
	if err != nil {
		slog.Warn("failed to list registrants for notification",
			slog.String("event_id", eventID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return notify.Emails(registrants)
}

func (s *Service) getCached(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil || !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		slog.Warn("discarding broken cache entry", slog.String("key", key), slog.String("error", err.Error()))
		return false
	}
	return true
}

func (s *Service) setCached(ctx context.Context, key string, v any) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cacheTTL); err != nil {
		slog.Warn("cache set failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePrefix(ctx, CacheKeyPrefix); err != nil {
		slog.Warn("cache invalidation failed", slog.String("error", err.Error()))
	}
}

// validateInput は入力値を検証し、文字列の前後の空白を取り除く。
func validateInput(in *Input) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Location = strings.TrimSpace(in.Location)
	in.Category = strings.TrimSpace(in.Category)

	switch {
	case in.Title == "":
		return model.NewValidationError("タイトルは必須です。")
	case utf8.RuneCountInString(in.Title) > maxTitleLength:
		return model.NewValidationError(fmt.Sprintf("タイトルは%d文字以内で入力してください。", maxTitleLength))
	case utf8.RuneCountInString(in.Location) > maxLocationLength:
		return model.NewValidationError(fmt.Sprintf("場所は%d文字以内で入力してください。", maxLocationLength))
	case utf8.RuneCountInString(in.Category) > maxCategoryLength:
		return model.NewValidationError(fmt.Sprintf("カテゴリは%d文字以内で入力してください。", maxCategoryLength))
	case utf8.RuneCountInString(in.Description) > maxDescriptionLength:
		return model.NewValidationError(fmt.Sprintf("説明は%d文字以内で入力してください。", maxDescriptionLength))
	case in.StartsAt.IsZero() || in.EndsAt.IsZero():
		return model.NewValidationError("開始日時と終了日時は必須です。")
	case !in.EndsAt.After(in.StartsAt):
		return model.NewValidationError("終了日時は開始日時より後にしてください。")
	case in.Capacity < 0:
		return model.NewValidationError("定員は0以上で指定してください。")
	}
	return nil
}
