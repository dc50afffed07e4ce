package user

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/campusevent/internal/model"
)

// --- モック ---

type mockUserRepo struct {
	findByIDFn      func(ctx context.Context, id string) (*model.User, error)
	updateProfileFn func(ctx context.Context, user *model.User) error
}

func (m *mockUserRepo) CreateIfAbsent(ctx context.Context, user *model.User) (bool, error) {
	return true, nil
}
func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, nil
}
func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, user)
	}
	return nil
}
func (m *mockUserRepo) CountByRole(ctx context.Context) (map[model.Role]int, error) {
	return nil, nil
}

func strPtr(s string) *string { return &s }

func errorCode(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// --- テスト ---

func TestService_Me(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "aiko@example.com", Role: model.RoleStudent}, nil
		},
	}
	svc := NewService(repo)

	user, err := svc.Me(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Me() error = %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("ID = %q, want user-1", user.ID)
	}
}

// TestService_Me_UserDeleted はトークン発行後に削除されたユーザーでUSER_NOT_FOUNDになることを検証する。
func TestService_Me_UserDeleted(t *testing.T) {
	svc := NewService(&mockUserRepo{})

	_, err := svc.Me(context.Background(), "deleted-user")
	if got := errorCode(err); got != model.ErrCodeUserNotFound {
		t.Errorf("error code = %q, want %q", got, model.ErrCodeUserNotFound)
	}
}

func TestService_UpdateProfile_Student(t *testing.T) {
	var saved *model.User
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Name: "Aiko", Role: model.RoleStudent, StudentID: "S1"}, nil
		},
		updateProfileFn: func(ctx context.Context, user *model.User) error {
			saved = user
			return nil
		},
	}
	svc := NewService(repo)

	user, err := svc.UpdateProfile(context.Background(), "user-1", ProfileUpdate{
		Name:      strPtr(" Aiko Tanaka "),
		StudentID: strPtr("S2"),
	})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if saved == nil {
		t.Fatal("expected UpdateProfile on repository")
	}
	if user.Name != "Aiko Tanaka" || user.StudentID != "S2" {
		t.Errorf("user = %+v", user)
	}
	if user.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set")
	}
}

func TestService_UpdateProfile_NilFieldsUnchanged(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Name: "Ken", Role: model.RoleOrganizer}, nil
		},
	}
	svc := NewService(repo)

	user, err := svc.UpdateProfile(context.Background(), "user-2", ProfileUpdate{})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if user.Name != "Ken" {
		t.Errorf("Name = %q, want Ken", user.Name)
	}
}

func TestService_UpdateProfile_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		role model.Role
		in   ProfileUpdate
	}{
		{"blank name", model.RoleStudent, ProfileUpdate{Name: strPtr("  ")}},
		{"organizer sets student id", model.RoleOrganizer, ProfileUpdate{StudentID: strPtr("S1")}},
		{"student clears student id", model.RoleStudent, ProfileUpdate{StudentID: strPtr("")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockUserRepo{
				findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
					return &model.User{ID: id, Name: "X", Role: tt.role, StudentID: "S0"}, nil
				},
				updateProfileFn: func(ctx context.Context, user *model.User) error {
					t.Fatal("UpdateProfile should not be called")
					return nil
				},
			}
			svc := NewService(repo)

			_, err := svc.UpdateProfile(context.Background(), "user-1", tt.in)
			if got := errorCode(err); got != model.ErrCodeValidation {
				t.Errorf("error code = %q, want %q", got, model.ErrCodeValidation)
			}
		})
	}
}
