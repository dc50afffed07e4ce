package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/campusevent/internal/model"
)

// PostgresFeedbackRepo はPostgreSQLを使用したフィードバックリポジトリ。
type PostgresFeedbackRepo struct {
	db *sql.DB
}

// NewPostgresFeedbackRepo はPostgresFeedbackRepoを生成する。
func NewPostgresFeedbackRepo(db *sql.DB) *PostgresFeedbackRepo {
	return &PostgresFeedbackRepo{db: db}
}

// CreateIfAbsent はフィードバックを作成する。同じ学生が投稿済みの場合は created=false を返す。
func (r *PostgresFeedbackRepo) CreateIfAbsent(ctx context.Context, fb *model.Feedback) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO feedback (id, event_id, user_id, rating, comment, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (event_id, user_id) DO NOTHING`,
		fb.ID, fb.EventID, fb.UserID, fb.Rating, fb.Comment, fb.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("フィードバックの作成に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// ListByEvent はイベントのフィードバックを新しい順に返す。
func (r *PostgresFeedbackRepo) ListByEvent(ctx context.Context, eventID string) ([]model.Feedback, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT f.id, f.event_id, f.user_id, u.name, f.rating, f.comment, f.created_at
		 FROM feedback f
		 INNER JOIN users u ON u.id = f.user_id
		 WHERE f.event_id = $1
		 ORDER BY f.created_at DESC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("フィードバック一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var list []model.Feedback
	for rows.Next() {
		var fb model.Feedback
		if err := rows.Scan(&fb.ID, &fb.EventID, &fb.UserID, &fb.UserName, &fb.Rating, &fb.Comment, &fb.CreatedAt); err != nil {
			return nil, fmt.Errorf("フィードバックのスキャンに失敗しました: %w", err)
		}
		list = append(list, fb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フィードバック一覧の走査に失敗しました: %w", err)
	}
	return list, nil
}

// SummaryByEvent はイベントのフィードバック件数と平均評価を返す。
func (r *PostgresFeedbackRepo) SummaryByEvent(ctx context.Context, eventID string) (model.FeedbackSummary, error) {
	return r.summary(ctx,
		`SELECT count(*), COALESCE(avg(rating), 0) FROM feedback WHERE event_id = $1`,
		eventID,
	)
}

// Summary は全イベントのフィードバック件数と平均評価を返す。
func (r *PostgresFeedbackRepo) Summary(ctx context.Context) (model.FeedbackSummary, error) {
	return r.summary(ctx, `SELECT count(*), COALESCE(avg(rating), 0) FROM feedback`)
}

func (r *PostgresFeedbackRepo) summary(ctx context.Context, query string, args ...any) (model.FeedbackSummary, error) {
	var s model.FeedbackSummary
	var avg sql.NullFloat64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&s.Count, &avg); err != nil {
		return model.FeedbackSummary{}, fmt.Errorf("フィードバックの集計に失敗しました: %w", err)
	}
	s.AverageRating = avg.Float64
	return s, nil
}

// compile-time interface check
var _ FeedbackRepository = (*PostgresFeedbackRepo)(nil)
