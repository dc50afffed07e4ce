// Package notify はイベントに関するベストエフォートの通知送信を提供する。
//
// 送信失敗はログとメトリクスに記録するだけで呼び出し元には返さない。
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// Kind は通知の種類。
type Kind string

const (
	KindRegistrationConfirmed Kind = "registration_confirmed"
	KindEventUpdated          Kind = "event_updated"
	KindEventCancelled        Kind = "event_cancelled"
	KindEventReminder         Kind = "event_reminder"
)

// Message は送信する通知の内容。
type Message struct {
	Kind    Kind
	EventID string
	To      []string
	Subject string
	Body    string
}

// Sender は1つの通知チャネル。
type Sender interface {
	// Channel はメトリクスとログに使うチャネル名を返す。
	Channel() string
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig はSMTP送信の設定。
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// sendMailFunc はnet/smtp.SendMailのシグネチャ。テストで差し替える。
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender はSMTPでメールを送信する。宛先ごとに1通ずつ送り、他の宛先が見えないようにする。
type SMTPSender struct {
	addr     string
	auth     smtp.Auth
	from     string
	sendMail sendMailFunc
	now      func() time.Time
}

// NewSMTPSender はSMTPSenderを生成する。Usernameが空の場合は認証しない。
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPSender{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		auth:     auth,
		from:     cfg.From,
		sendMail: smtp.SendMail,
		now:      time.Now,
	}
}

// Channel はチャネル名を返す。
func (s *SMTPSender) Channel() string { return "email" }

// Send はメールを送信する。
// net/smtpはcontextに対応しないため、呼び出し前にキャンセル済みかのみ確認する。
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return nil
	}

	var failed []string
	for _, to := range msg.To {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("メール送信を中断しました: %w", err)
		}
		if err := s.sendMail(s.addr, s.auth, s.from, []string{to}, s.buildMessage(to, msg)); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", to, err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d/%d件のメール送信に失敗しました: %s", len(failed), len(msg.To), strings.Join(failed, "; "))
	}
	return nil
}

// buildMessage はRFC 5322形式のメールを組み立てる。件名はMIMEエンコードする。
func (s *SMTPSender) buildMessage(to string, msg Message) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", s.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes()
}

// webhookPayload はWebhookに送信するJSON。宛先のメールアドレスは含めない。
type webhookPayload struct {
	Kind           Kind   `json:"kind"`
	EventID        string `json:"eventId"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	RecipientCount int    `json:"recipientCount"`
}

// WebhookSender は通知内容をJSONでWebhook URLにPOSTする。
// clientにはSSRF防止機能付きのクライアントを渡す。
type WebhookSender struct {
	url    string
	client *http.Client
}

// NewWebhookSender はWebhookSenderを生成する。
func NewWebhookSender(url string, client *http.Client) *WebhookSender {
	return &WebhookSender{url: url, client: client}
}

// Channel はチャネル名を返す。
func (s *WebhookSender) Channel() string { return "webhook" }

// Send はWebhookに通知をPOSTする。2xx以外のレスポンスはエラーとする。
func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(webhookPayload{
		Kind:           msg.Kind,
		EventID:        msg.EventID,
		Subject:        msg.Subject,
		Body:           msg.Body,
		RecipientCount: len(msg.To),
	})
	if err != nil {
		return fmt.Errorf("Webhookペイロードの生成に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("Webhookリクエストの生成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "campusevent-notifier/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("Webhookの送信に失敗しました: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

var (
	_ Sender = (*SMTPSender)(nil)
	_ Sender = (*WebhookSender)(nil)
)
