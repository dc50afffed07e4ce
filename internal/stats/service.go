// Package stats は管理者向けの集計統計を提供する。
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/campusevent/internal/cache"
	"github.com/hitoshi/campusevent/internal/model"
	"github.com/hitoshi/campusevent/internal/repository"
)

const (
	cacheKey = "stats:admin"
	topLimit = 5
)

// Service は統計集計のサービス層。
type Service struct {
	userRepo     repository.UserRepository
	eventRepo    repository.EventRepository
	regRepo      repository.RegistrationRepository
	feedbackRepo repository.FeedbackRepository
	cache        cache.Store
	cacheTTL     time.Duration
	now          func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	eventRepo repository.EventRepository,
	regRepo repository.RegistrationRepository,
	feedbackRepo repository.FeedbackRepository,
	store cache.Store,
	cacheTTL time.Duration,
) *Service {
	return &Service{
		userRepo:     userRepo,
		eventRepo:    eventRepo,
		regRepo:      regRepo,
		feedbackRepo: feedbackRepo,
		cache:        store,
		cacheTTL:     cacheTTL,
		now:          time.Now,
	}
}

// Get は集計統計を返す。集計結果はcacheTTLの間キャッシュする。
func (s *Service) Get(ctx context.Context) (*model.Stats, error) {
	if st, ok := s.cached(ctx); ok {
		return st, nil
	}

	now := s.now()
	st := &model.Stats{GeneratedAt: now}

	var err error
	if st.UsersByRole, err = s.userRepo.CountByRole(ctx); err != nil {
		return nil, fmt.Errorf("ユーザー数の集計に失敗しました: %w", err)
	}
	if st.EventsTotal, st.EventsUpcoming, err = s.eventRepo.Count(ctx, now); err != nil {
		return nil, fmt.Errorf("イベント数の集計に失敗しました: %w", err)
	}
	if st.RegistrationsTotal, err = s.regRepo.CountAll(ctx); err != nil {
		return nil, fmt.Errorf("参加登録数の集計に失敗しました: %w", err)
	}
	summary, err := s.feedbackRepo.Summary(ctx)
	if err != nil {
		return nil, fmt.Errorf("フィードバックの集計に失敗しました: %w", err)
	}
	st.FeedbackCount = summary.Count
	st.AverageRating = summary.AverageRating
	if st.TopEvents, err = s.eventRepo.TopByRegistrations(ctx, topLimit); err != nil {
		return nil, fmt.Errorf("参加登録ランキングの取得に失敗しました: %w", err)
	}

	if st.UsersByRole == nil {
		st.UsersByRole = map[model.Role]int{}
	}
	if st.TopEvents == nil {
		st.TopEvents = []model.EventRanking{}
	}

	s.store(ctx, st)
	return st, nil
}

func (s *Service) cached(ctx context.Context) (*model.Stats, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, ok, err := s.cache.Get(ctx, cacheKey)
	if err != nil || !ok {
		return nil, false
	}
	var st model.Stats
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, false
	}
	return &st, true
}

func (s *Service) store(ctx context.Context, st *model.Stats) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey, raw, s.cacheTTL); err != nil {
		slog.Warn("cache set failed", slog.String("key", cacheKey), slog.String("error", err.Error()))
	}
}
