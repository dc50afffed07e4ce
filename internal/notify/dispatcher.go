package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultTimeout は1回の通知送信に許す時間。
const DefaultTimeout = 10 * time.Second

// Recorder は通知結果を記録する。
type Recorder interface {
	RecordNotification(channel string, ok bool)
}

// Notifier は通知を受け付ける。サービス層はこのインターフェースに依存する。
type Notifier interface {
	Notify(ctx context.Context, msg Message)
}

// Dispatcher は登録されたSenderへ非同期に通知を配信する。
// 配信はリクエストのキャンセルから切り離され、独自のタイムアウトで実行される。
type Dispatcher struct {
	senders  []Sender
	timeout  time.Duration
	recorder Recorder
	sync     bool

	wg sync.WaitGroup
}

// DispatcherOption はDispatcherの生成オプション。
type DispatcherOption func(*Dispatcher)

// WithTimeout は1回の配信のタイムアウトを設定する。
func WithTimeout(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.timeout = d
		}
	}
}

// WithRecorder は結果の記録先を設定する。
func WithRecorder(r Recorder) DispatcherOption {
	return func(dp *Dispatcher) {
		dp.recorder = r
	}
}

// WithSynchronousDelivery はNotifyの呼び出し内で配信を完了させる。ワーカーとテスト用。
func WithSynchronousDelivery() DispatcherOption {
	return func(dp *Dispatcher) {
		dp.sync = true
	}
}

// NewDispatcher はDispatcherを生成する。sendersが空の場合、Notifyは何もしない。
func NewDispatcher(senders []Sender, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		senders: senders,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify は通知を配信する。宛先が空の場合は何もしない。失敗は呼び出し元に返さない。
func (d *Dispatcher) Notify(ctx context.Context, msg Message) {
	if len(d.senders) == 0 || len(msg.To) == 0 {
		return
	}

	deliverCtx := context.WithoutCancel(ctx)
	if d.sync {
		d.deliver(deliverCtx, msg)
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.deliver(deliverCtx, msg)
	}()
}

// Wait は実行中の配信の完了を待つ。ctxが先に終了した場合はfalseを返す。
func (d *Dispatcher) Wait(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

func (d *Dispatcher) deliver(parent context.Context, msg Message) {
	ctx, cancel := context.WithTimeout(parent, d.timeout)
	defer cancel()

	for _, s := range d.senders {
		err := s.Send(ctx, msg)
		if d.recorder != nil {
			d.recorder.RecordNotification(s.Channel(), err == nil)
		}
		if err != nil {
			slog.Warn("notification delivery failed",
				slog.String("channel", s.Channel()),
				slog.String("kind", string(msg.Kind)),
				slog.String("event_id", msg.EventID),
				slog.Int("recipients", len(msg.To)),
				slog.String("error", err.Error()),
			)
			continue
		}
		slog.Info("notification delivered",
			slog.String("channel", s.Channel()),
			slog.String("kind", string(msg.Kind)),
			slog.String("event_id", msg.EventID),
			slog.Int("recipients", len(msg.To)),
		)
	}
}

var _ Notifier = (*Dispatcher)(nil)
