package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alexlistens/alexlistens/internal/model"
)

// PostgresTranscriptRepo はPostgreSQLを使用したトランスクリプトリポジトリ。
type PostgresTranscriptRepo struct {
	db *sql.DB
}

// NewPostgresTranscriptRepo はPostgresTranscriptRepoを生成する。
func NewPostgresTranscriptRepo(db *sql.DB) *PostgresTranscriptRepo {
	return &PostgresTranscriptRepo{db: db}
}

// Create はトランスクリプトを作成する。
func (r *PostgresTranscriptRepo) Create(ctx context.Context, tr *model.Transcript) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transcripts (id, call_id, user_id, role, text, final, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tr.ID, tr.CallID, tr.UserID, tr.Role, tr.Text, tr.Final, tr.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transcript: %w", err)
	}
	return nil
}

// ListByCallID は通話のトランスクリプトをcreated_at昇順で返す。
func (r *PostgresTranscriptRepo) ListByCallID(ctx context.Context, callID string) ([]*model.Transcript, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, call_id, user_id, role, text, final, created_at
		 FROM transcripts WHERE call_id = $1 ORDER BY created_at ASC`,
		callID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts by call ID: %w", err)
	}
	defer rows.Close()

	var transcripts []*model.Transcript
	for rows.Next() {
		tr := &model.Transcript{}
		if err := rows.Scan(&tr.ID, &tr.CallID, &tr.UserID, &tr.Role, &tr.Text, &tr.Final, &tr.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transcript row: %w", err)
		}
		transcripts = append(transcripts, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transcript rows: %w", err)
	}

	return transcripts, nil
}

// compile-time interface check
var _ TranscriptRepository = (*PostgresTranscriptRepo)(nil)
