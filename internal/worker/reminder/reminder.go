// Package reminder は開催が近いイベントの参加者へリマインダーを送るジョブを提供する。
// 一定間隔で開催前リード時間内のイベントを抽出し、未送信のものだけ通知して
// reminder_sent_at を記録する。
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/campusevent/internal/model"
	"github.com/hitoshi/campusevent/internal/notify"
	"github.com/hitoshi/campusevent/internal/repository"
)

// DefaultLeadTime は開始何時間前からリマインダー対象とするかのデフォルト値。
const DefaultLeadTime = 24 * time.Hour

// Recorder は送信件数を記録する。
type Recorder interface {
	RecordRemindersSent(count int)
}

// Job はリマインダー送信ジョブ。
type Job struct {
	eventRepo repository.EventRepository
	regRepo   repository.RegistrationRepository
	notifier  notify.Notifier
	recorder  Recorder
	logger    *slog.Logger
	leadTime  time.Duration
	now       func() time.Time
}

// NewJob はJobを生成する。leadTimeが0以下の場合はDefaultLeadTimeを使用する。
// recorderはnilでもよい。
func NewJob(
	eventRepo repository.EventRepository,
	regRepo repository.RegistrationRepository,
	notifier notify.Notifier,
	recorder Recorder,
	logger *slog.Logger,
	leadTime time.Duration,
) *Job {
	if leadTime <= 0 {
		leadTime = DefaultLeadTime
	}
	return &Job{
		eventRepo: eventRepo,
		regRepo:   regRepo,
		notifier:  notifier,
		recorder:  recorder,
		logger:    logger,
		leadTime:  leadTime,
		now:       time.Now,
	}
}

// Start はinterval間隔でRunを実行する。起動直後に1回実行し、
// コンテキストがキャンセルされるまで継続する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("リマインダージョブを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("lead_time", j.leadTime),
	)

	j.runAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("リマインダージョブを停止しました")
			return
		case <-ticker.C:
			j.runAndLog(ctx)
		}
	}
}

func (j *Job) runAndLog(ctx context.Context) {
	if _, err := j.Run(ctx); err != nil {
		j.logger.Error("リマインダージョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// Run は対象イベントを1回走査し、リマインダーを送ったイベント数を返す。
// 個々のイベントの失敗はログに残して次のイベントへ進む。
// 参加者がいないイベントも送信済みとして記録する。
func (j *Job) Run(ctx context.Context) (int, error) {
	start := j.now()

	events, err := j.eventRepo.ListNeedingReminder(ctx, start, start.Add(j.leadTime))
	if err != nil {
		return 0, fmt.Errorf("リマインダー対象イベントの取得に失敗: %w", err)
	}

	sent := 0
	for _, ev := range events {
		if ctx.Err() != nil {
			break
		}
		if err := j.remind(ctx, ev); err != nil {
			j.logger.Error("リマインダーの送信に失敗しました",
				slog.String("event_id", ev.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		sent++
	}

	if j.recorder != nil && sent > 0 {
		j.recorder.RecordRemindersSent(sent)
	}

	j.logger.Info("リマインダージョブが完了しました",
		slog.Int("candidate_count", len(events)),
		slog.Int("sent_count", sent),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return sent, ctx.Err()
}

func (j *Job) remind(ctx context.Context, ev *model.Event) error {
	registrants, err := j.regRepo.ListRegistrants(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("参加者一覧の取得に失敗: %w", err)
	}

	if to := notify.Emails(registrants); len(to) > 0 {
		j.notifier.Notify(ctx, notify.EventReminder(ev, to))
	}

	if err := j.eventRepo.MarkReminderSent(ctx, ev.ID, j.now()); err != nil {
		return fmt.Errorf("送信日時の記録に失敗: %w", err)
	}
	return nil
}
