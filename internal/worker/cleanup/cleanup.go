// Package cleanup は期限切れデータの自動削除ジョブを提供する。
// 期限切れのログインセッションと、保持期間（デフォルト7日）を超過したゲストユーザーを
// 定期バッチで削除する。ゲストの残高・利用履歴はCASCADE削除で自動的に処理される。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/humanize/internal/metrics"
)

// 削除件数メトリクスのジョブ名
const (
	JobSessions = "cleanup_sessions"
	JobGuests   = "cleanup_guests"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SessionPurger は期限切れセッションを削除する。
type SessionPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// CleanupJob は期限切れセッションと古いゲストユーザーの自動削除ジョブ。
// 冪等な削除処理を保証する。
type CleanupJob struct {
	db            Executor
	sessions      SessionPurger
	logger        *slog.Logger
	metrics       metrics.MetricsCollector
	RetentionDays int // ゲストユーザーの保持日数（デフォルト: 7）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は7日。mはnilでもよい。
func NewCleanupJob(db Executor, sessions SessionPurger, logger *slog.Logger, m metrics.MetricsCollector) *CleanupJob {
	return &CleanupJob{
		db:            db,
		sessions:      sessions,
		logger:        logger,
		metrics:       m,
		RetentionDays: 7,
	}
}

// Run は期限切れセッションと保持期間を超過したゲストユーザーを削除する。
// セッションの削除に失敗した場合もゲストの削除は試み、最初のエラーを返す。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	var firstErr error

	sessionCount, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		firstErr = fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	} else {
		j.record(JobSessions, sessionCount)
	}

	guestCount, err := j.deleteStaleGuests(ctx)
	if err != nil {
		j.logger.Error("ゲストユーザーの削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		if firstErr == nil {
			firstErr = err
		}
	} else {
		j.record(JobGuests, guestCount)
	}

	if firstErr != nil {
		return firstErr
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_sessions", sessionCount),
		slog.Int64("deleted_guests", guestCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// deleteStaleGuests はcreated_atがRetentionDays日前より古いゲストユーザーをDELETEする。
func (j *CleanupJob) deleteStaleGuests(ctx context.Context) (int64, error) {
	interval := fmt.Sprintf("%d days", j.RetentionDays)

	query := `DELETE FROM users WHERE is_guest AND created_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		return 0, fmt.Errorf("ゲストユーザー削除の実行に失敗: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	return deleted, nil
}

func (j *CleanupJob) record(job string, rows int64) {
	if j.metrics != nil {
		j.metrics.RecordWorkerRows(job, rows)
	}
}
