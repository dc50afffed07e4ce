package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/campusevent/internal/model"
)

// PostgresRegistrationRepo はPostgreSQLを使用した参加登録リポジトリ。
type PostgresRegistrationRepo struct {
	db *sql.DB
}

// NewPostgresRegistrationRepo はPostgresRegistrationRepoを生成する。
func NewPostgresRegistrationRepo(db *sql.DB) *PostgresRegistrationRepo {
	return &PostgresRegistrationRepo{db: db}
}

// CreateIfAbsent は参加登録を作成する。既に登録済みの場合は created=false を返す。
func (r *PostgresRegistrationRepo) CreateIfAbsent(ctx context.Context, reg *model.Registration) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO registrations (id, event_id, user_id, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (event_id, user_id) DO NOTHING`,
		reg.ID, reg.EventID, reg.UserID, reg.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("参加登録の作成に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// Delete はイベントとユーザーの組の参加登録を削除する。
func (r *PostgresRegistrationRepo) Delete(ctx context.Context, eventID, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM registrations WHERE event_id = $1 AND user_id = $2`,
		eventID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("参加登録の削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Exists は参加登録が存在するかを返す。
func (r *PostgresRegistrationRepo) Exists(ctx context.Context, eventID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM registrations WHERE event_id = $1 AND user_id = $2)`,
		eventID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("参加登録の確認に失敗しました: %w", err)
	}
	return exists, nil
}

// ListRegistrants はイベントの参加者一覧を登録日時の昇順で返す。
func (r *PostgresRegistrationRepo) ListRegistrants(ctx context.Context, eventID string) ([]model.Registrant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT reg.id, u.id, u.name, u.email, u.student_id, reg.created_at
		 FROM registrations reg
		 INNER JOIN users u ON u.id = reg.user_id
		 WHERE reg.event_id = $1
		 ORDER BY reg.created_at ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("参加者一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var registrants []model.Registrant
	for rows.Next() {
		var rg model.Registrant
		var studentID sql.NullString
		if err := rows.Scan(&rg.RegistrationID, &rg.UserID, &rg.Name, &rg.Email, &studentID, &rg.RegisteredAt); err != nil {
			return nil, fmt.Errorf("参加者のスキャンに失敗しました: %w", err)
		}
		rg.StudentID = nullStringValue(studentID)
		registrants = append(registrants, rg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("参加者一覧の走査に失敗しました: %w", err)
	}
	return registrants, nil
}

// ListByUser はユーザーの参加登録一覧をイベント開始日時の昇順で返す。
func (r *PostgresRegistrationRepo) ListByUser(ctx context.Context, userID string) ([]model.RegistrationWithEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT reg.id, reg.event_id, reg.user_id, reg.created_at, e.title, e.starts_at, e.location
		 FROM registrations reg
		 INNER JOIN events e ON e.id = reg.event_id
		 WHERE reg.user_id = $1
		 ORDER BY e.starts_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("参加登録一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var regs []model.RegistrationWithEvent
	for rows.Next() {
		var rw model.RegistrationWithEvent
		if err := rows.Scan(&rw.ID, &rw.EventID, &rw.UserID, &rw.CreatedAt,
			&rw.EventTitle, &rw.EventStartsAt, &rw.EventLocation); err != nil {
			return nil, fmt.Errorf("参加登録のスキャンに失敗しました: %w", err)
		}
		regs = append(regs, rw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("参加登録一覧の走査に失敗しました: %w", err)
	}
	return regs, nil
}

// CountAll は参加登録の総数を返す。
func (r *PostgresRegistrationRepo) CountAll(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM registrations`).Scan(&count); err != nil {
		return 0, fmt.Errorf("参加登録数の集計に失敗しました: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ RegistrationRepository = (*PostgresRegistrationRepo)(nil)
