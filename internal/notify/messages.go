package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/campusevent/internal/model"
)

const timeLayout = "2006-01-02 15:04 MST"

// RegistrationConfirmed は参加登録完了の通知を組み立てる。
func RegistrationConfirmed(event *model.Event, to string) Message {
	return Message{
		Kind:    KindRegistrationConfirmed,
		EventID: event.ID,
		To:      []string{to},
		Subject: fmt.Sprintf("【参加登録完了】%s", event.Title),
		Body: "以下のイベントへの参加登録が完了しました。\n\n" +
			eventSummary(event),
	}
}

// EventUpdated はイベント内容変更の通知を組み立てる。
func EventUpdated(event *model.Event, to []string) Message {
	return Message{
		Kind:    KindEventUpdated,
		EventID: event.ID,
		To:      to,
		Subject: fmt.Sprintf("【内容変更】%s", event.Title),
		Body: "参加登録中のイベントの内容が変更されました。最新の情報は以下のとおりです。\n\n" +
			eventSummary(event),
	}
}

// EventCancelled はイベント中止の通知を組み立てる。
func EventCancelled(event *model.Event, to []string) Message {
	return Message{
		Kind:    KindEventCancelled,
		EventID: event.ID,
		To:      to,
		Subject: fmt.Sprintf("【中止】%s", event.Title),
		Body: fmt.Sprintf("参加登録中のイベント「%s」（%s開始予定）は中止になりました。\n",
			event.Title, formatTime(event.StartsAt)),
	}
}

// EventReminder は開催前リマインダーの通知を組み立てる。
func EventReminder(event *model.Event, to []string) Message {
	return Message{
		Kind:    KindEventReminder,
		EventID: event.ID,
		To:      to,
		Subject: fmt.Sprintf("【リマインダー】%s", event.Title),
		Body: "参加登録中のイベントがまもなく開催されます。\n\n" +
			eventSummary(event),
	}
}

func eventSummary(event *model.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "イベント: %s\n", event.Title)
	fmt.Fprintf(&b, "日時: %s 〜 %s\n", formatTime(event.StartsAt), formatTime(event.EndsAt))
	if event.Location != "" {
		fmt.Fprintf(&b, "場所: %s\n", event.Location)
	}
	fmt.Fprintf(&b, "主催者: %s\n", event.Organizer)
	if desc := PlainText(event.Description); desc != "" {
		b.WriteString("\n")
		b.WriteString(desc)
		b.WriteString("\n")
	}
	return b.String()
}

func formatTime(t time.Time) string {
	return t.In(time.Local).Format(timeLayout)
}

// Emails は参加者一覧から宛先を取り出す。
func Emails(registrants []model.Registrant) []string {
	to := make([]string, 0, len(registrants))
	for _, r := range registrants {
		if r.Email != "" {
			to = append(to, r.Email)
		}
	}
	return to
}
