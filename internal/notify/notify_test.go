package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/campusevent/internal/model"
)

// --- テスト用Sender ---

type fakeSender struct {
	mu       sync.Mutex
	channel  string
	err      error
	messages []Message
	ctxErrs  []error
	block    chan struct{}
}

func (s *fakeSender) Channel() string { return s.channel }

func (s *fakeSender) Send(ctx context.Context, msg Message) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	return s.err
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

type fakeRecorder struct {
	mu      sync.Mutex
	results map[string][]bool
}

func (r *fakeRecorder) RecordNotification(channel string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results == nil {
		r.results = make(map[string][]bool)
	}
	r.results[channel] = append(r.results[channel], ok)
}

func testEvent() *model.Event {
	return &model.Event{
		ID:          "event-1",
		Title:       "新入生歓迎会",
		Description: `<p>軽食あり</p><ul><li>学生証</li></ul>`,
		Location:    "学生会館",
		StartsAt:    time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC),
		EndsAt:      time.Date(2026, 4, 10, 11, 0, 0, 0, time.UTC),
		Organizer:   "org@example.ac.jp",
	}
}

// --- Dispatcher ---

func TestDispatcher_DeliversToAllSendersAndRecords(t *testing.T) {
	email := &fakeSender{channel: "email"}
	webhook := &fakeSender{channel: "webhook", err: errors.New("503")}
	rec := &fakeRecorder{}

	d := NewDispatcher([]Sender{email, webhook}, WithRecorder(rec), WithSynchronousDelivery())
	d.Notify(context.Background(), RegistrationConfirmed(testEvent(), "s@example.ac.jp"))

	if email.count() != 1 || webhook.count() != 1 {
		t.Fatalf("deliveries = %d/%d, want 1/1", email.count(), webhook.count())
	}
	if got := rec.results["email"]; len(got) != 1 || !got[0] {
		t.Errorf("email results = %v, want [true]", got)
	}
	if got := rec.results["webhook"]; len(got) != 1 || got[0] {
		t.Errorf("webhook results = %v, want [false]", got)
	}
}

// TestDispatcher_DetachedFromRequestCancellation は呼び出し元のcontextがキャンセルされても
// 配信が継続されることを検証する。
func TestDispatcher_DetachedFromRequestCancellation(t *testing.T) {
	sender := &fakeSender{channel: "email", block: make(chan struct{})}
	d := NewDispatcher([]Sender{sender})

	ctx, cancel := context.WithCancel(context.Background())
	d.Notify(ctx, EventUpdated(testEvent(), []string{"a@example.ac.jp"}))
	cancel()
	close(sender.block)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	if !d.Wait(waitCtx) {
		t.Fatal("delivery did not finish")
	}

	if sender.count() != 1 {
		t.Fatalf("deliveries = %d, want 1", sender.count())
	}
	if sender.ctxErrs[0] != nil {
		t.Errorf("sender ctx err = %v, want nil", sender.ctxErrs[0])
	}
}

func TestDispatcher_TimeoutApplied(t *testing.T) {
	var deadline time.Time
	var hasDeadline bool
	sender := &ctxSender{fn: func(ctx context.Context) {
		deadline, hasDeadline = ctx.Deadline()
	}}
	d := NewDispatcher([]Sender{sender}, WithTimeout(2*time.Second), WithSynchronousDelivery())

	before := time.Now()
	d.Notify(context.Background(), EventReminder(testEvent(), []string{"a@example.ac.jp"}))

	if !hasDeadline {
		t.Fatal("expected deadline on delivery context")
	}
	if d := deadline.Sub(before); d <= 0 || d > 2*time.Second+100*time.Millisecond {
		t.Errorf("deadline in %v, want about 2s", d)
	}
}

type ctxSender struct {
	fn func(ctx context.Context)
}

func (s *ctxSender) Channel() string { return "test" }
func (s *ctxSender) Send(ctx context.Context, _ Message) error {
	s.fn(ctx)
	return nil
}

func TestDispatcher_NoRecipientsOrSenders_Noop(t *testing.T) {
	sender := &fakeSender{channel: "email"}
	d := NewDispatcher([]Sender{sender}, WithSynchronousDelivery())
	d.Notify(context.Background(), EventCancelled(testEvent(), nil))
	if sender.count() != 0 {
		t.Errorf("deliveries = %d, want 0", sender.count())
	}

	NewDispatcher(nil).Notify(context.Background(), EventCancelled(testEvent(), []string{"a@example.ac.jp"}))
}

// --- SMTPSender ---

type capturedMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func TestSMTPSender_SendsOnePerRecipient(t *testing.T) {
	var mails []capturedMail
	s := NewSMTPSender(SMTPConfig{Host: "smtp.example.ac.jp", Port: 587, From: "no-reply@example.ac.jp"})
	s.now = func() time.Time { return time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC) }
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		mails = append(mails, capturedMail{addr: addr, from: from, to: to, msg: string(msg)})
		return nil
	}

	msg := EventUpdated(testEvent(), []string{"a@example.ac.jp", "b@example.ac.jp"})
	if err := s.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if len(mails) != 2 {
		t.Fatalf("mails = %d, want 2", len(mails))
	}
	if mails[0].addr != "smtp.example.ac.jp:587" {
		t.Errorf("addr = %q", mails[0].addr)
	}
	if len(mails[1].to) != 1 || mails[1].to[0] != "b@example.ac.jp" {
		t.Errorf("to = %v", mails[1].to)
	}
	body := mails[0].msg
	for _, want := range []string{
		"From: no-reply@example.ac.jp\r\n",
		"To: a@example.ac.jp\r\n",
		"Subject: =?utf-8?q?",
		"Content-Type: text/plain; charset=UTF-8\r\n",
		"場所: 学生会館\r\n",
		"・学生証",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("message should contain %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "b@example.ac.jp") {
		t.Error("message must not disclose other recipients")
	}
}

func TestSMTPSender_PartialFailureReturnsError(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.example.ac.jp", Port: 25, From: "x@example.ac.jp"})
	calls := 0
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		calls++
		if to[0] == "bad@example.ac.jp" {
			return errors.New("550 mailbox unavailable")
		}
		return nil
	}

	err := s.Send(context.Background(), EventCancelled(testEvent(), []string{"bad@example.ac.jp", "ok@example.ac.jp"}))
	if err == nil || !strings.Contains(err.Error(), "1/2") {
		t.Errorf("error = %v, want partial failure", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

// --- WebhookSender ---

func TestWebhookSender_PostsJSONWithoutAddresses(t *testing.T) {
	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("method=%s content-type=%s", r.Method, r.Header.Get("Content-Type"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	s := NewWebhookSender(ts.URL, ts.Client())
	if err := s.Send(context.Background(), EventCancelled(testEvent(), []string{"a@example.ac.jp", "b@example.ac.jp"})); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if got["kind"] != "event_cancelled" || got["eventId"] != "event-1" {
		t.Errorf("payload = %v", got)
	}
	if got["recipientCount"] != float64(2) {
		t.Errorf("recipientCount = %v, want 2", got["recipientCount"])
	}
	raw, _ := json.Marshal(got)
	if strings.Contains(string(raw), "a@example.ac.jp") {
		t.Error("payload must not contain recipient addresses")
	}
}

func TestWebhookSender_Non2xxIsError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	s := NewWebhookSender(ts.URL, ts.Client())
	if err := s.Send(context.Background(), EventReminder(testEvent(), []string{"a@example.ac.jp"})); err == nil {
		t.Error("expected error for 502 response")
	}
}

// --- PlainText ---

func TestPlainText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"paragraphs", "<p>一行目</p><p>二行目</p>", "一行目\n\n二行目"},
		{"br", "受付<br>開始", "受付\n開始"},
		{"list", "<ul><li>学生証</li><li>筆記用具</li></ul>", "・学生証\n・筆記用具"},
		{"link", `<a href="https://example.ac.jp/map" target="_blank">地図</a>`, "地図 (https://example.ac.jp/map)"},
		{"entities", "<p>Q&amp;A &lt;質疑&gt;</p>", "Q&A <質疑>"},
		{"plain text", "説明のみ", "説明のみ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlainText(tt.input); got != tt.want {
				t.Errorf("PlainText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEmails_SkipsEmpty(t *testing.T) {
	got := Emails([]model.Registrant{{Email: "a@example.ac.jp"}, {Email: ""}, {Email: "b@example.ac.jp"}})
	if len(got) != 2 || got[0] != "a@example.ac.jp" || got[1] != "b@example.ac.jp" {
		t.Errorf("Emails() = %v", got)
	}
}
