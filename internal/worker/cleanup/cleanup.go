// Package cleanup は終了済みイベントの自動削除ジョブを提供する。
// 保持期間（デフォルト365日）を超えて終了したイベントを日次バッチで削除する。
// 参加登録とフィードバックはCASCADE削除で自動的に処理される。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetentionDays は終了後のイベントを保持する日数のデフォルト値。
const DefaultRetentionDays = 365

// EventPurger は終了日時がcutoffより前のイベントを削除する。
// repository.EventRepository が満たす。
type EventPurger interface {
	DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Recorder は削除件数を記録する。
type Recorder interface {
	RecordEventsPurged(count int64)
}

// CleanupJob は保持期間を超過したイベントの自動削除ジョブ。
// 冪等であり、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	events        EventPurger
	recorder      Recorder
	logger        *slog.Logger
	RetentionDays int
	now           func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// retentionDaysが0以下の場合はDefaultRetentionDaysを使用する。recorderはnilでもよい。
func NewCleanupJob(events EventPurger, recorder Recorder, logger *slog.Logger, retentionDays int) *CleanupJob {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &CleanupJob{
		events:        events,
		recorder:      recorder,
		logger:        logger,
		RetentionDays: retentionDays,
		now:           time.Now,
	}
}

// Cutoff は削除対象となる終了日時の境界を返す。
func (j *CleanupJob) Cutoff() time.Time {
	return j.now().AddDate(0, 0, -j.RetentionDays)
}

// Run は保持期間を超過したイベントを削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := j.Cutoff()

	deletedCount, err := j.events.DeleteEndedBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("イベントクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("イベントクリーンアップの実行に失敗: %w", err)
	}

	if j.recorder != nil {
		j.recorder.RecordEventsPurged(deletedCount)
	}

	j.logger.Info("イベントクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// Start はinterval間隔でRunを実行する。起動直後に1回実行し、
// コンテキストがキャンセルされるまで継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}
