// Package auth はアカウント登録、ログイン、署名付きトークンの発行と検証を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/campusevent/internal/model"
	"github.com/hitoshi/campusevent/internal/repository"
)

const (
	maxNameLength      = 100
	maxPasswordLength  = 72 // bcryptが扱える上限バイト数
	maxStudentIDLength = 32
)

// RegisterInput はアカウント登録の入力値。
type RegisterInput struct {
	Name      string
	Email     string
	Password  string
	Role      string
	StudentID string
}

// LoginResult はログイン成功時の結果。
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *model.User
}

// Service はアカウント登録とログインのビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	codec    *TokenCodec
	now      func() time.Time
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, codec *TokenCodec) *Service {
	return &Service{
		userRepo: userRepo,
		codec:    codec,
		now:      time.Now,
	}
}

// Register は新しいアカウントを作成する。
// 自己登録できるロールはstudentとorganizerのみ。学籍番号はstudentの場合に必須で、それ以外では指定できない。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)
	studentID := strings.TrimSpace(in.StudentID)

	role, err := model.ParseRole(in.Role)
	if err != nil || role == model.RoleAdmin {
		return nil, model.NewInvalidRoleError(in.Role)
	}

	if name == "" {
		return nil, model.NewValidationError("名前は必須です。")
	}
	if len([]rune(name)) > maxNameLength {
		return nil, model.NewValidationError(fmt.Sprintf("名前は%d文字以内で入力してください。", maxNameLength))
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, model.NewValidationError("メールアドレスの形式が正しくありません。")
	}
	if len(in.Password) < MinPasswordLength {
		return nil, model.NewValidationError(fmt.Sprintf("パスワードは%d文字以上で入力してください。", MinPasswordLength))
	}
	if len(in.Password) > maxPasswordLength {
		return nil, model.NewValidationError(fmt.Sprintf("パスワードは%dバイト以内で入力してください。", maxPasswordLength))
	}
	if err := validateStudentID(role, studentID); err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		StudentID:    studentID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := s.userRepo.CreateIfAbsent(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}
	if !created {
		return nil, model.NewEmailAlreadyRegisteredError()
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("role", user.Role.String()),
	)
	return user, nil
}

// Login はメールアドレスとパスワードを検証し、トークンを発行する。
// 失敗理由は区別せずINVALID_CREDENTIALSを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, model.NewInvalidCredentialsError()
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewInvalidCredentialsError()
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		slog.Warn("login failed",
			slog.String("user_id", user.ID),
		)
		return nil, model.NewInvalidCredentialsError()
	}

	token, expiresAt, err := s.codec.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("トークンの発行に失敗しました: %w", err)
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("role", user.Role.String()),
	)
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func validateStudentID(role model.Role, studentID string) error {
	if role == model.RoleStudent {
		if studentID == "" {
			return model.NewValidationError("学生として登録する場合は学籍番号が必須です。")
		}
		if len(studentID) > maxStudentIDLength {
			return model.NewValidationError(fmt.Sprintf("学籍番号は%d文字以内で入力してください。", maxStudentIDLength))
		}
		return nil
	}
	if studentID != "" {
		return model.NewValidationError("学籍番号は学生のみ指定できます。")
	}
	return nil
}
