package model

import "time"

// Event は主催者が作成するキャンパスイベントを表す。
// Organizerには作成した主催者のメールアドレスを保持し、所有者判定に使用する。
type Event struct {
	ID             string
	Title          string
	Description    string // サニタイズ済みHTML
	Location       string
	Category       string
	StartsAt       time.Time
	EndsAt         time.Time
	Capacity       int // 0は定員なし
	Organizer      string
	ReminderSentAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasStarted は指定時刻にイベントが開始済みかを返す。
func (e *Event) HasStarted(now time.Time) bool {
	return !now.Before(e.StartsAt)
}

// EventWithCount はイベントと参加登録数を結合したモデル。
type EventWithCount struct {
	Event
	RegistrationCount int
}

// IsFull は定員に達しているかを返す。定員0は無制限。
func (e *EventWithCount) IsFull() bool {
	return e.Capacity > 0 && e.RegistrationCount >= e.Capacity
}

// EventFilter はイベント一覧の絞り込み条件。
type EventFilter struct {
	Category  string
	Organizer string
	// UpcomingAfter がゼロ値でない場合、その時刻以降に開始するイベントのみを返す。
	UpcomingAfter time.Time
}

// Registration は学生のイベント参加登録を表す。
type Registration struct {
	ID        string
	EventID   string
	UserID    string
	CreatedAt time.Time
}

// Registrant は参加登録と学生情報を結合したモデル。
// 主催者向けの参加者一覧とCSVエクスポートで使用する。
type Registrant struct {
	RegistrationID string
	UserID         string
	Name           string
	Email          string
	StudentID      string
	RegisteredAt   time.Time
}

// RegistrationWithEvent は学生自身の参加登録一覧の1行を表す。
type RegistrationWithEvent struct {
	Registration
	EventTitle    string
	EventStartsAt time.Time
	EventLocation string
}

// Feedback はイベント参加者が投稿する評価を表す。
type Feedback struct {
	ID        string
	EventID   string
	UserID    string
	UserName  string
	Rating    int    // 1〜5
	Comment   string // サニタイズ済み
	CreatedAt time.Time
}

// FeedbackSummary はイベントのフィードバック集計。
type FeedbackSummary struct {
	Count         int
	AverageRating float64
}

// EventRanking は統計画面の参加登録数ランキングの1行。
type EventRanking struct {
	EventID           string
	Title             string
	RegistrationCount int
}

// Stats は管理者向けの集計統計。
type Stats struct {
	UsersByRole        map[Role]int
	EventsTotal        int
	EventsUpcoming     int
	RegistrationsTotal int
	FeedbackCount      int
	AverageRating      float64
	TopEvents          []EventRanking
	GeneratedAt        time.Time
}
