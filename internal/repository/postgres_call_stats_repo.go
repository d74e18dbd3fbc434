package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alexlistens/alexlistens/internal/model"
)

// PostgresCallStatsRepo はPostgreSQLを使用した通話統計リポジトリ。
type PostgresCallStatsRepo struct {
	db *sql.DB
}

// NewPostgresCallStatsRepo はPostgresCallStatsRepoを生成する。
func NewPostgresCallStatsRepo(db *sql.DB) *PostgresCallStatsRepo {
	return &PostgresCallStatsRepo{db: db}
}

// FindByUserID は指定ユーザーの通話統計を取得する。見つからない場合はnilを返す。
func (r *PostgresCallStatsRepo) FindByUserID(ctx context.Context, userID string) (*model.CallStats, error) {
	stats := &model.CallStats{}
	var lastCallAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, total_calls, total_seconds, last_call_at, updated_at
		 FROM call_stats WHERE user_id = $1`,
		userID,
	).Scan(&stats.UserID, &stats.TotalCalls, &stats.TotalSeconds, &lastCallAt, &stats.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find call stats by user ID: %w", err)
	}
	if lastCallAt.Valid {
		stats.LastCallAt = &lastCallAt.Time
	}

	return stats, nil
}

// RecordCall は通話1件分の統計をUPSERTで加算する。
func (r *PostgresCallStatsRepo) RecordCall(ctx context.Context, userID string, seconds int64, endedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO call_stats (user_id, total_calls, total_seconds, last_call_at, updated_at)
		 VALUES ($1, 1, $2, $3, now())
		 ON CONFLICT (user_id)
		 DO UPDATE SET total_calls = call_stats.total_calls + 1,
		               total_seconds = call_stats.total_seconds + EXCLUDED.total_seconds,
		               last_call_at = EXCLUDED.last_call_at,
		               updated_at = now()`,
		userID, seconds, endedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record call stats: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CallStatsRepository = (*PostgresCallStatsRepo)(nil)
