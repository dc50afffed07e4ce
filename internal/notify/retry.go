package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	// defaultInitialBackoff は再送の初回待機時間。
	defaultInitialBackoff = 500 * time.Millisecond
	// defaultMaxBackoff は再送の最大待機時間。
	defaultMaxBackoff = 5 * time.Second
)

// StatusError は送信先が2xx以外のステータスを返したことを表す。
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Webhookが異常なステータスを返しました: %d", e.StatusCode)
}

// Retryable は送信エラーが再送で回復しうるかを判定する。
// 429と5xxは再送対象、それ以外の4xxは送信先の設定不備として再送しない。
// ネットワークエラーは再送対象だが、コンテキストの終了は対象外。
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return true
}

// CalculateBackoff は失敗回数に基づいて指数バックオフの待機時間を計算する。
// 初回initial、2倍ずつ増加し、maxで頭打ちになる。
func CalculateBackoff(failures int, initial, max time.Duration) time.Duration {
	delay := initial
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay > max {
			return max
		}
	}
	return delay
}

// RetryingSender は再送可能なエラーの間、指数バックオフで送信を繰り返す。
// 全体の所要時間は呼び出し元のコンテキスト（Dispatcherのタイムアウト）で打ち切られる。
type RetryingSender struct {
	Sender
	attempts int
	initial  time.Duration
	max      time.Duration
	wait     func(ctx context.Context, d time.Duration) error
}

// NewRetryingSender はsenderを最大attempts回まで試行するRetryingSenderを返す。
func NewRetryingSender(sender Sender, attempts int) *RetryingSender {
	if attempts < 1 {
		attempts = 1
	}
	return &RetryingSender{
		Sender:   sender,
		attempts: attempts,
		initial:  defaultInitialBackoff,
		max:      defaultMaxBackoff,
		wait:     sleepContext,
	}
}

// Send は通知を送信する。
func (s *RetryingSender) Send(ctx context.Context, msg Message) error {
	var err error
	for attempt := 0; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			delay := CalculateBackoff(attempt-1, s.initial, s.max)
			slog.Debug("retrying notification",
				slog.String("channel", s.Channel()),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
			)
			if werr := s.wait(ctx, delay); werr != nil {
				return fmt.Errorf("%w (再送待機中に中断: %v)", err, werr)
			}
		}

		err = s.Sender.Send(ctx, msg)
		if !Retryable(err) {
			return err
		}
	}
	return fmt.Errorf("%d回試行しましたが送信できませんでした: %w", s.attempts, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Sender = (*RetryingSender)(nil)
