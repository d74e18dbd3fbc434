// Package reaper は放置された通話の回収ジョブを提供する。
// クライアントがEndを呼ばずに離脱した通話（タブを閉じた等）を
// 定期的に検出し、課金を確定して終了状態にする。
package reaper

import (
	"context"
	"log/slog"
	"time"
)

// CallReaperService は放置通話の確定処理のインターフェース。
type CallReaperService interface {
	// ReapStaleCalls は指定時刻より前に開始され終了していない通話を確定する。
	// 戻り値は確定した通話数。
	ReapStaleCalls(ctx context.Context, startedBefore time.Time, limit int) (int, error)
}

// batchLimit は1サイクルで確定する通話数の上限。
const batchLimit = 100

// Reaper は放置通話の定期回収を行うワーカー。
type Reaper struct {
	service  CallReaperService
	logger   *slog.Logger
	staleTTL time.Duration
}

// NewReaper はReaperの新しいインスタンスを生成する。
// staleTTLは通話を放置とみなすまでの経過時間。
func NewReaper(service CallReaperService, logger *slog.Logger, staleTTL time.Duration) *Reaper {
	return &Reaper{
		service:  service,
		logger:   logger,
		staleTTL: staleTTL,
	}
}

// Start は指定間隔のティッカーでワーカーを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (r *Reaper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("通話回収ワーカーを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("stale_ttl", r.staleTTL),
	)

	// 起動直後に1回実行
	if err := r.RunOnce(ctx); err != nil {
		r.logger.Error("通話回収サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("通話回収ワーカーを停止しました")
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error("通話回収サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は放置通話の回収を1回実行する。
// 冪等: 回収対象がない場合でもエラーにならない。
func (r *Reaper) RunOnce(ctx context.Context) error {
	start := time.Now()

	reaped, err := r.service.ReapStaleCalls(ctx, time.Now().Add(-r.staleTTL), batchLimit)
	if err != nil {
		return err
	}

	if reaped > 0 {
		r.logger.Info("通話回収サイクルが完了しました",
			slog.Int("reaped_count", reaped),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
	}
	return nil
}
