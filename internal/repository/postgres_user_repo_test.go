package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hitoshi/campusevent/internal/model"
)

var userRowColumns = []string{"id", "name", "email", "password_hash", "role", "student_id", "created_at", "updated_at"}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func assertExpectations(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresUserRepo_CreateIfAbsent_Inserted(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	user := &model.User{
		ID: "user-1", Name: "Aiko", Email: "aiko@example.com", PasswordHash: "hash",
		Role: model.RoleStudent, StudentID: "S-001", CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectExec("INSERT INTO users .* ON CONFLICT \\(email\\) DO NOTHING").
		WithArgs("user-1", "Aiko", "aiko@example.com", "hash", "student", "S-001", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := repo.CreateIfAbsent(context.Background(), user)
	if err != nil {
		t.Fatalf("CreateIfAbsent() error = %v", err)
	}
	if !created {
		t.Error("created = false, want true")
	}
	assertExpectations(t, mock)
}

func TestPostgresUserRepo_CreateIfAbsent_Duplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	user := &model.User{ID: "user-2", Name: "Ken", Email: "ken@example.com", PasswordHash: "hash", Role: model.RoleOrganizer}

	// organizerはstudent_idを持たないためNULLで渡される
	mock.ExpectExec("INSERT INTO users").
		WithArgs("user-2", "Ken", "ken@example.com", "hash", "organizer", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := repo.CreateIfAbsent(context.Background(), user)
	if err != nil {
		t.Fatalf("CreateIfAbsent() error = %v", err)
	}
	if created {
		t.Error("created = true, want false")
	}
	assertExpectations(t, mock)
}

func TestPostgresUserRepo_FindByEmail_Found(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	now := time.Now()
	mock.ExpectQuery("SELECT .* FROM users WHERE email = \\$1").
		WithArgs("aiko@example.com").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("user-1", "Aiko", "aiko@example.com", "hash", "student", "S-001", now, now))

	user, err := repo.FindByEmail(context.Background(), "aiko@example.com")
	if err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if user == nil {
		t.Fatal("user = nil, want non-nil")
	}
	if user.Role != model.RoleStudent {
		t.Errorf("Role = %q, want %q", user.Role, model.RoleStudent)
	}
	if user.StudentID != "S-001" {
		t.Errorf("StudentID = %q, want %q", user.StudentID, "S-001")
	}
	if user.PasswordHash != "hash" {
		t.Errorf("PasswordHash = %q, want %q", user.PasswordHash, "hash")
	}
	assertExpectations(t, mock)
}

func TestPostgresUserRepo_FindByEmail_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectQuery("SELECT .* FROM users WHERE email").
		WithArgs("missing@example.com").
		WillReturnRows(sqlmock.NewRows(userRowColumns))

	user, err := repo.FindByEmail(context.Background(), "missing@example.com")
	if err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if user != nil {
		t.Errorf("user = %+v, want nil", user)
	}
	assertExpectations(t, mock)
}

func TestPostgresUserRepo_FindByID_NullStudentID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	now := time.Now()
	mock.ExpectQuery("SELECT .* FROM users WHERE id = \\$1").
		WithArgs("user-9").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("user-9", "Admin", "admin@example.com", "hash", "admin", nil, now, now))

	user, err := repo.FindByID(context.Background(), "user-9")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if user == nil || user.StudentID != "" || user.Role != model.RoleAdmin {
		t.Errorf("FindByID() = %+v", user)
	}
	assertExpectations(t, mock)
}

func TestPostgresUserRepo_FindByID_DBError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectQuery("SELECT .* FROM users WHERE id").
		WillReturnError(errors.New("connection refused"))

	if _, err := repo.FindByID(context.Background(), "user-1"); err == nil {
		t.Error("FindByID() should return an error")
	}
	assertExpectations(t, mock)
}

func TestPostgresUserRepo_UpdateProfile_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectExec("UPDATE users SET name").
		WithArgs("user-x", "New", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateProfile(context.Background(), &model.User{ID: "user-x", Name: "New"})
	if err == nil {
		t.Error("UpdateProfile() should return an error when no rows are affected")
	}
	assertExpectations(t, mock)
}

func TestPostgresUserRepo_CountByRole(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectQuery("SELECT role, count\\(\\*\\) FROM users GROUP BY role").
		WillReturnRows(sqlmock.NewRows([]string{"role", "count"}).
			AddRow("student", 12).
			AddRow("organizer", 3).
			AddRow("admin", 1))

	counts, err := repo.CountByRole(context.Background())
	if err != nil {
		t.Fatalf("CountByRole() error = %v", err)
	}
	if counts[model.RoleStudent] != 12 || counts[model.RoleOrganizer] != 3 || counts[model.RoleAdmin] != 1 {
		t.Errorf("CountByRole() = %v", counts)
	}
	assertExpectations(t, mock)
}
