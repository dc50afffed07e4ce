// Package feedback はイベント参加者のフィードバックを扱う。
package feedback

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/campusevent/internal/model"
	"github.com/hitoshi/campusevent/internal/repository"
	"github.com/hitoshi/campusevent/internal/security"
)

const (
	minRating        = 1
	maxRating        = 5
	maxCommentLength = 1000
)

// EventFeedback はイベントのフィードバック一覧と集計。
type EventFeedback struct {
	Summary model.FeedbackSummary
	Items   []model.Feedback
}

// Service はフィードバックのサービス層。
type Service struct {
	eventRepo    repository.EventRepository
	regRepo      repository.RegistrationRepository
	feedbackRepo repository.FeedbackRepository
	sanitizer    security.ContentSanitizerService
	now          func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	eventRepo repository.EventRepository,
	regRepo repository.RegistrationRepository,
	feedbackRepo repository.FeedbackRepository,
	sanitizer security.ContentSanitizerService,
) *Service {
	return &Service{
		eventRepo:    eventRepo,
		regRepo:      regRepo,
		feedbackRepo: feedbackRepo,
		sanitizer:    sanitizer,
		now:          time.Now,
	}
}

// Submit はフィードバックを投稿する。
// 参加登録済みで、イベントが開始済みの場合のみ投稿でき、1イベントにつき1回まで。
func (s *Service) Submit(ctx context.Context, eventID, userID string, rating int, comment string) (*model.Feedback, error) {
	if rating < minRating || rating > maxRating {
		return nil, model.NewValidationError(fmt.Sprintf("評価は%dから%dの整数で指定してください。", minRating, maxRating))
	}
	comment = s.sanitizer.SanitizeText(comment)
	if utf8.RuneCountInString(comment) > maxCommentLength {
		return nil, model.NewValidationError(fmt.Sprintf("コメントは%d文字以内で入力してください。", maxCommentLength))
	}

	event, err := s.eventRepo.FindByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	if event == nil {
		return nil, model.NewEventNotFoundError(eventID)
	}

	registered, err := s.regRepo.Exists(ctx, eventID, userID)
	if err != nil {
		return nil, fmt.Errorf("参加登録の確認に失敗しました: %w", err)
	}
	if !registered {
		return nil, model.NewNotRegisteredError()
	}
	if !event.HasStarted(s.now()) {
		return nil, model.NewEventNotStartedError()
	}

	fb := &model.Feedback{
		ID:        uuid.New().String(),
		EventID:   eventID,
		UserID:    userID,
		Rating:    rating,
		Comment:   comment,
		CreatedAt: s.now(),
	}
	created, err := s.feedbackRepo.CreateIfAbsent(ctx, fb)
	if err != nil {
		return nil, fmt.Errorf("フィードバックの保存に失敗しました: %w", err)
	}
	if !created {
		return nil, model.NewFeedbackAlreadySubmittedError()
	}
	return fb, nil
}

// List はイベントのフィードバック一覧と平均評価を返す。
func (s *Service) List(ctx context.Context, eventID string) (*EventFeedback, error) {
	event, err := s.eventRepo.FindByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	if event == nil {
		return nil, model.NewEventNotFoundError(eventID)
	}

	items, err := s.feedbackRepo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("フィードバック一覧の取得に失敗しました: %w", err)
	}
	summary, err := s.feedbackRepo.SummaryByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("フィードバック集計の取得に失敗しました: %w", err)
	}
	if items == nil {
		items = []model.Feedback{}
	}
	return &EventFeedback{Summary: summary, Items: items}, nil
}
