// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/campusevent/internal/model"
)

// UserRepository は利用者のIdentityの永続化インターフェース。
type UserRepository interface {
	// CreateIfAbsent は同じメールアドレスのユーザーが存在しない場合のみ作成する。
	// 既に存在する場合は created=false を返し、エラーにはしない。
	CreateIfAbsent(ctx context.Context, user *model.User) (created bool, err error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	// 比較は保存時の大文字小文字をそのまま用いる。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// UpdateProfile は名前と学籍番号を更新する。
	UpdateProfile(ctx context.Context, user *model.User) error

	// CountByRole はロールごとのユーザー数を返す。
	CountByRole(ctx context.Context) (map[model.Role]int, error)
}

// EventRepository はイベントの永続化インターフェース。
type EventRepository interface {
	// Create はイベントを作成する。
	Create(ctx context.Context, event *model.Event) error

	// FindByID は指定IDのイベントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Event, error)

	// FindWithCount は指定IDのイベントを参加登録数付きで取得する。見つからない場合はnilを返す。
	FindWithCount(ctx context.Context, id string) (*model.EventWithCount, error)

	// List は条件に一致するイベントを開始日時の昇順で返す。
	List(ctx context.Context, filter model.EventFilter) ([]model.EventWithCount, error)

	// Update はイベント情報を更新する。主催者は変更しない。
	Update(ctx context.Context, event *model.Event) error

	// Delete は指定IDのイベントを削除する。参加登録とフィードバックはCASCADE削除される。
	// 対象が存在しない場合はfalseを返す。
	Delete(ctx context.Context, id string) (bool, error)

	// ListNeedingReminder はfrom以降until以前に開始し、リマインダー未送信のイベントを返す。
	ListNeedingReminder(ctx context.Context, from, until time.Time) ([]*model.Event, error)

	// MarkReminderSent はリマインダー送信日時を記録する。
	MarkReminderSent(ctx context.Context, id string, sentAt time.Time) error

	// DeleteEndedBefore はcutoffより前に終了したイベントを削除し、削除件数を返す。
	DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Count はイベント総数と、now以降に開始するイベント数を返す。
	Count(ctx context.Context, now time.Time) (total int, upcoming int, err error)

	// TopByRegistrations は参加登録数の多い順にイベントを返す。
	TopByRegistrations(ctx context.Context, limit int) ([]model.EventRanking, error)
}

// RegistrationRepository は参加登録の永続化インターフェース。
type RegistrationRepository interface {
	// CreateIfAbsent は参加登録を作成する。既に登録済みの場合は created=false を返す。
	CreateIfAbsent(ctx context.Context, registration *model.Registration) (created bool, err error)

	// Delete はイベントとユーザーの組の参加登録を削除する。存在しない場合はfalseを返す。
	Delete(ctx context.Context, eventID, userID string) (bool, error)

	// Exists は参加登録が存在するかを返す。
	Exists(ctx context.Context, eventID, userID string) (bool, error)

	// ListRegistrants はイベントの参加者一覧を登録日時の昇順で返す。
	ListRegistrants(ctx context.Context, eventID string) ([]model.Registrant, error)

	// ListByUser はユーザーの参加登録一覧をイベント開始日時の昇順で返す。
	ListByUser(ctx context.Context, userID string) ([]model.RegistrationWithEvent, error)

	// CountAll は参加登録の総数を返す。
	CountAll(ctx context.Context) (int, error)
}

// FeedbackRepository はフィードバックの永続化インターフェース。
type FeedbackRepository interface {
	// CreateIfAbsent はフィードバックを作成する。同じ学生が投稿済みの場合は created=false を返す。
	CreateIfAbsent(ctx context.Context, feedback *model.Feedback) (created bool, err error)

	// ListByEvent はイベントのフィードバックを新しい順に返す。
	ListByEvent(ctx context.Context, eventID string) ([]model.Feedback, error)

	// SummaryByEvent はイベントのフィードバック件数と平均評価を返す。
	SummaryByEvent(ctx context.Context, eventID string) (model.FeedbackSummary, error)

	// Summary は全イベントのフィードバック件数と平均評価を返す。
	Summary(ctx context.Context) (model.FeedbackSummary, error)
}
