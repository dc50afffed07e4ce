// Package user はログイン中ユーザーのプロフィール管理を提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/campusevent/internal/model"
	"github.com/hitoshi/campusevent/internal/repository"
)

const (
	maxNameLength      = 100
	maxStudentIDLength = 32
)

// ProfileUpdate はプロフィール更新の入力値。nilのフィールドは変更しない。
type ProfileUpdate struct {
	Name      *string
	StudentID *string
}

// Service はプロフィール管理のサービス層。
type Service struct {
	userRepo repository.UserRepository
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository) *Service {
	return &Service{
		userRepo: userRepo,
		now:      time.Now,
	}
}

// Me は指定IDのユーザーを返す。
// トークン発行後にユーザーが削除されている場合はUSER_NOT_FOUNDを返す。
func (s *Service) Me(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// UpdateProfile は名前と学籍番号を更新する。
// 学籍番号はstudentのみ変更でき、空にはできない。
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*model.User, error) {
	user, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, model.NewValidationError("名前は必須です。")
		}
		if len([]rune(name)) > maxNameLength {
			return nil, model.NewValidationError(fmt.Sprintf("名前は%d文字以内で入力してください。", maxNameLength))
		}
		user.Name = name
	}

	if in.StudentID != nil {
		studentID := strings.TrimSpace(*in.StudentID)
		if user.Role != model.RoleStudent {
			return nil, model.NewValidationError("学籍番号は学生のみ指定できます。")
		}
		if studentID == "" {
			return nil, model.NewValidationError("学籍番号は空にできません。")
		}
		if len(studentID) > maxStudentIDLength {
			return nil, model.NewValidationError(fmt.Sprintf("学籍番号は%d文字以内で入力してください。", maxStudentIDLength))
		}
		user.StudentID = studentID
	}

	user.UpdatedAt = s.now()
	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}

	slog.Info("profile updated",
		slog.String("user_id", user.ID),
	)
	return user, nil
}
