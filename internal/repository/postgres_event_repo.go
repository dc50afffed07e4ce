package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/campusevent/internal/model"
)

// PostgresEventRepo はPostgreSQLを使用したイベントリポジトリ。
type PostgresEventRepo struct {
	db *sql.DB
}

// NewPostgresEventRepo はPostgresEventRepoを生成する。
func NewPostgresEventRepo(db *sql.DB) *PostgresEventRepo {
	return &PostgresEventRepo{db: db}
}

const eventColumns = `e.id, e.title, e.description, e.location, e.category, e.starts_at, e.ends_at,
		        e.capacity, e.organizer, e.reminder_sent_at, e.created_at, e.updated_at`

// registrationCountJoin は参加登録数を集計するサブクエリ。
const registrationCountJoin = `LEFT JOIN (
		     SELECT event_id, count(*) AS cnt FROM registrations GROUP BY event_id
		 ) rc ON rc.event_id = e.id`

// Create はイベントを作成する。
func (r *PostgresEventRepo) Create(ctx context.Context, event *model.Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO events (id, title, description, location, category, starts_at, ends_at,
		                     capacity, organizer, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		event.ID, event.Title, event.Description, event.Location, event.Category,
		event.StartsAt, event.EndsAt, event.Capacity, event.Organizer,
		event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("イベントの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのイベントを取得する。見つからない場合はnilを返す。
func (r *PostgresEventRepo) FindByID(ctx context.Context, id string) (*model.Event, error) {
	event := &model.Event{}
	var reminderSentAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events e WHERE e.id = $1`,
		id,
	).Scan(eventScanDest(event, &reminderSentAt)...)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	if reminderSentAt.Valid {
		event.ReminderSentAt = &reminderSentAt.Time
	}
	return event, nil
}

// FindWithCount は指定IDのイベントを参加登録数付きで取得する。見つからない場合はnilを返す。
func (r *PostgresEventRepo) FindWithCount(ctx context.Context, id string) (*model.EventWithCount, error) {
	ewc := &model.EventWithCount{}
	var reminderSentAt sql.NullTime

	dest := append(eventScanDest(&ewc.Event, &reminderSentAt), &ewc.RegistrationCount)
	err := r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+`, COALESCE(rc.cnt, 0)
		 FROM events e
		 `+registrationCountJoin+`
		 WHERE e.id = $1`,
		id,
	).Scan(dest...)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	if reminderSentAt.Valid {
		ewc.ReminderSentAt = &reminderSentAt.Time
	}
	return ewc, nil
}

// List は条件に一致するイベントを開始日時の昇順で返す。
func (r *PostgresEventRepo) List(ctx context.Context, filter model.EventFilter) ([]model.EventWithCount, error) {
	var conds []string
	var args []any

	if filter.Category != "" {
		args = append(args, filter.Category)
		conds = append(conds, fmt.Sprintf("e.category = $%d", len(args)))
	}
	if filter.Organizer != "" {
		args = append(args, filter.Organizer)
		conds = append(conds, fmt.Sprintf("e.organizer = $%d", len(args)))
	}
	if !filter.UpcomingAfter.IsZero() {
		args = append(args, filter.UpcomingAfter)
		conds = append(conds, fmt.Sprintf("e.starts_at >= $%d", len(args)))
	}

	query := `SELECT ` + eventColumns + `, COALESCE(rc.cnt, 0)
		 FROM events e
		 ` + registrationCountJoin
	if len(conds) > 0 {
		query += "\n\t\t WHERE " + strings.Join(conds, " AND ")
	}
	query += "\n\t\t ORDER BY e.starts_at ASC, e.id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("イベント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var events []model.EventWithCount
	for rows.Next() {
		var ewc model.EventWithCount
		var reminderSentAt sql.NullTime
		dest := append(eventScanDest(&ewc.Event, &reminderSentAt), &ewc.RegistrationCount)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("イベントのスキャンに失敗しました: %w", err)
		}
		if reminderSentAt.Valid {
			ewc.ReminderSentAt = &reminderSentAt.Time
		}
		events = append(events, ewc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("イベント一覧の走査に失敗しました: %w", err)
	}
	return events, nil
}

// Update はイベント情報を更新する。主催者とリマインダー送信日時は変更しない。
func (r *PostgresEventRepo) Update(ctx context.Context, event *model.Event) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE events
		 SET title = $2, description = $3, location = $4, category = $5,
		     starts_at = $6, ends_at = $7, capacity = $8, updated_at = $9
		 WHERE id = $1`,
		event.ID, event.Title, event.Description, event.Location, event.Category,
		event.StartsAt, event.EndsAt, event.Capacity, event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("イベントの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("event not found: %s", event.ID)
	}
	return nil
}

// Delete は指定IDのイベントを削除する。
func (r *PostgresEventRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("イベントの削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// ListNeedingReminder はfrom以降until以前に開始し、リマインダー未送信のイベントを返す。
func (r *PostgresEventRepo) ListNeedingReminder(ctx context.Context, from, until time.Time) ([]*model.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventColumns+`
		 FROM events e
		 WHERE e.reminder_sent_at IS NULL
		   AND e.starts_at >= $1
		   AND e.starts_at <= $2
		 ORDER BY e.starts_at ASC`,
		from, until,
	)
	if err != nil {
		return nil, fmt.Errorf("リマインダー対象イベントの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		event := &model.Event{}
		var reminderSentAt sql.NullTime
		if err := rows.Scan(eventScanDest(event, &reminderSentAt)...); err != nil {
			return nil, fmt.Errorf("イベントのスキャンに失敗しました: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("リマインダー対象イベントの走査に失敗しました: %w", err)
	}
	return events, nil
}

// MarkReminderSent はリマインダー送信日時を記録する。
func (r *PostgresEventRepo) MarkReminderSent(ctx context.Context, id string, sentAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE events SET reminder_sent_at = $2 WHERE id = $1`,
		id, sentAt,
	)
	if err != nil {
		return fmt.Errorf("リマインダー送信日時の更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteEndedBefore はcutoffより前に終了したイベントを削除し、削除件数を返す。
func (r *PostgresEventRepo) DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM events WHERE ends_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("終了済みイベントの削除に失敗しました: %w", err)
	}
	return result.RowsAffected()
}

// Count はイベント総数と、now以降に開始するイベント数を返す。
func (r *PostgresEventRepo) Count(ctx context.Context, now time.Time) (int, int, error) {
	var total, upcoming int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*), count(*) FILTER (WHERE starts_at >= $1) FROM events`,
		now,
	).Scan(&total, &upcoming)
	if err != nil {
		return 0, 0, fmt.Errorf("イベント数の集計に失敗しました: %w", err)
	}
	return total, upcoming, nil
}

// TopByRegistrations は参加登録数の多い順にイベントを返す。
func (r *PostgresEventRepo) TopByRegistrations(ctx context.Context, limit int) ([]model.EventRanking, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT e.id, e.title, count(reg.id) AS cnt
		 FROM events e
		 LEFT JOIN registrations reg ON reg.event_id = e.id
		 GROUP BY e.id, e.title
		 ORDER BY cnt DESC, e.starts_at ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("参加登録数ランキングの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var rankings []model.EventRanking
	for rows.Next() {
		var rk model.EventRanking
		if err := rows.Scan(&rk.EventID, &rk.Title, &rk.RegistrationCount); err != nil {
			return nil, fmt.Errorf("ランキングのスキャンに失敗しました: %w", err)
		}
		rankings = append(rankings, rk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ランキングの走査に失敗しました: %w", err)
	}
	return rankings, nil
}

// eventScanDest はeventColumnsの順序に対応するScan先を返す。
func eventScanDest(event *model.Event, reminderSentAt *sql.NullTime) []any {
	return []any{
		&event.ID, &event.Title, &event.Description, &event.Location, &event.Category,
		&event.StartsAt, &event.EndsAt, &event.Capacity, &event.Organizer,
		reminderSentAt, &event.CreatedAt, &event.UpdatedAt,
	}
}

// compile-time interface check
var _ EventRepository = (*PostgresEventRepo)(nil)
