// Package renewal は月次クレジット再付与のバックグラウンドジョブを提供する。
package renewal

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/humanize/internal/metrics"
)

// JobName は再付与件数メトリクスのジョブ名。
const JobName = "credit_renewal"

// Renewer は更新日時を過ぎた残高にクレジットを再付与する。
type Renewer interface {
	Renew(ctx context.Context, now time.Time) (int64, error)
}

// Scheduler は一定間隔で再付与を実行する。
// 更新対象の判定はDB側の period_ends_at で行うため、間隔は再付与の遅延の上限になる。
type Scheduler struct {
	renewer Renewer
	logger  *slog.Logger
	metrics metrics.MetricsCollector
	now     func() time.Time
}

// NewScheduler はSchedulerを生成する。mはnilでもよい。
func NewScheduler(renewer Renewer, logger *slog.Logger, m metrics.MetricsCollector) *Scheduler {
	return &Scheduler{
		renewer: renewer,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Start はintervalごとに再付与を実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("クレジット再付与スケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	s.runLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("クレジット再付与スケジューラを停止しました")
			return
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

// RunOnce は再付与を1回実行し、更新件数を返す。
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	start := time.Now()

	renewed, err := s.renewer.Renew(ctx, s.now())
	if err != nil {
		return 0, err
	}

	if s.metrics != nil {
		s.metrics.RecordWorkerRows(JobName, renewed)
	}

	s.logger.Info("クレジット再付与が完了しました",
		slog.Int64("renewed_count", renewed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return renewed, nil
}

func (s *Scheduler) runLogged(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("クレジット再付与に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}
