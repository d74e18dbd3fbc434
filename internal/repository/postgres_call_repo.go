package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alexlistens/alexlistens/internal/model"
)

// PostgresCallRepo はPostgreSQLを使用した通話リポジトリ。
type PostgresCallRepo struct {
	db *sql.DB
}

// NewPostgresCallRepo はPostgresCallRepoを生成する。
func NewPostgresCallRepo(db *sql.DB) *PostgresCallRepo {
	return &PostgresCallRepo{db: db}
}

const callColumns = `id, user_id, provider_call_id, agent_id, join_url, status,
	started_at, ended_at, billed_seconds, created_at, updated_at`

// scanCall は1行を*model.Callにスキャンする。
func scanCall(row interface{ Scan(...any) error }) (*model.Call, error) {
	call := &model.Call{}
	var endedAt sql.NullTime
	err := row.Scan(
		&call.ID, &call.UserID, &call.ProviderCallID, &call.AgentID, &call.JoinURL,
		&call.Status, &call.StartedAt, &endedAt, &call.BilledSeconds,
		&call.CreatedAt, &call.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		call.EndedAt = &endedAt.Time
	}
	return call, nil
}

// Create は通話を作成する。
func (r *PostgresCallRepo) Create(ctx context.Context, call *model.Call) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO calls (id, user_id, provider_call_id, agent_id, join_url, status,
		                    started_at, billed_seconds, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		call.ID, call.UserID, call.ProviderCallID, call.AgentID, call.JoinURL,
		call.Status, call.StartedAt, call.BilledSeconds, call.CreatedAt, call.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert call: %w", err)
	}
	return nil
}

// FindByID は指定IDの通話を取得する。見つからない場合はnilを返す。
func (r *PostgresCallRepo) FindByID(ctx context.Context, id string) (*model.Call, error) {
	call, err := scanCall(r.db.QueryRowContext(ctx,
		`SELECT `+callColumns+` FROM calls WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find call by ID: %w", err)
	}
	return call, nil
}

// FindByProviderCallID はプロバイダー側セッションIDで通話を検索する。
// 見つからない場合はnilを返す。
func (r *PostgresCallRepo) FindByProviderCallID(ctx context.Context, providerCallID string) (*model.Call, error) {
	call, err := scanCall(r.db.QueryRowContext(ctx,
		`SELECT `+callColumns+` FROM calls WHERE provider_call_id = $1`, providerCallID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find call by provider call ID: %w", err)
	}
	return call, nil
}

// ListByUserID はユーザーの通話履歴をstarted_at降順で返す。
func (r *PostgresCallRepo) ListByUserID(ctx context.Context, userID string, limit int) ([]*model.Call, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+callColumns+` FROM calls WHERE user_id = $1
		 ORDER BY started_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list calls by user ID: %w", err)
	}
	defer rows.Close()

	var calls []*model.Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call row: %w", err)
		}
		calls = append(calls, call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate call rows: %w", err)
	}

	return calls, nil
}

// UpdateStatus は通話ステータスを更新する。
// 終了済みの通話のステータスは上書きしない（前進遷移のみ）。
func (r *PostgresCallRepo) UpdateStatus(ctx context.Context, callID string, status model.CallStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE calls SET status = $1, updated_at = now()
		 WHERE id = $2 AND status NOT IN ('ended', 'failed')`,
		status, callID,
	)
	if err != nil {
		return fmt.Errorf("failed to update call status: %w", err)
	}
	return nil
}

// Finalize は通話を終了状態にし、終了時刻と課金秒数を記録する。
// すでに終了済みの場合は何も更新せずfalseを返す。
func (r *PostgresCallRepo) Finalize(ctx context.Context, callID string, status model.CallStatus, endedAt time.Time, billedSeconds int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE calls SET status = $1, ended_at = $2, billed_seconds = $3, updated_at = now()
		 WHERE id = $4 AND status NOT IN ('ended', 'failed')`,
		status, endedAt, billedSeconds, callID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to finalize call: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// ListStaleActive は指定時刻より前に開始され、まだ終了していない通話を返す。
func (r *PostgresCallRepo) ListStaleActive(ctx context.Context, startedBefore time.Time, limit int) ([]*model.Call, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+callColumns+` FROM calls
		 WHERE status NOT IN ('ended', 'failed') AND started_at < $1
		 ORDER BY started_at ASC LIMIT $2`,
		startedBefore, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale active calls: %w", err)
	}
	defer rows.Close()

	var calls []*model.Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call row: %w", err)
		}
		calls = append(calls, call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate call rows: %w", err)
	}

	return calls, nil
}

// compile-time interface check
var _ CallRepository = (*PostgresCallRepo)(nil)
