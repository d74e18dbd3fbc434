package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alexlistens/alexlistens/internal/model"
)

// PostgresWalletRepo はPostgreSQLを使用したウォレットリポジトリ。
type PostgresWalletRepo struct {
	db *sql.DB
}

// NewPostgresWalletRepo はPostgresWalletRepoを生成する。
func NewPostgresWalletRepo(db *sql.DB) *PostgresWalletRepo {
	return &PostgresWalletRepo{db: db}
}

// FindByUserID は指定ユーザーのウォレットを取得する。見つからない場合はnilを返す。
func (r *PostgresWalletRepo) FindByUserID(ctx context.Context, userID string) (*model.Wallet, error) {
	wallet := &model.Wallet{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, balance_seconds, updated_at FROM wallets WHERE user_id = $1`,
		userID,
	).Scan(&wallet.UserID, &wallet.BalanceSeconds, &wallet.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find wallet by user ID: %w", err)
	}

	return wallet, nil
}

// Grant は残高を加算する。ウォレットが存在しない場合は作成する。
func (r *PostgresWalletRepo) Grant(ctx context.Context, userID string, seconds int64) error {
	if seconds < 0 {
		return fmt.Errorf("grant seconds must be non-negative: %d", seconds)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO wallets (user_id, balance_seconds, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id)
		 DO UPDATE SET balance_seconds = wallets.balance_seconds + EXCLUDED.balance_seconds,
		               updated_at = now()`,
		userID, seconds,
	)
	if err != nil {
		return fmt.Errorf("failed to grant wallet balance: %w", err)
	}
	return nil
}

// DeductForCall は通話に対する控除を冪等に実行する。
// 控除台帳（wallet_deductions）への挿入と残高更新を同一トランザクションで行う。
// 同一callIDの控除がすでに記録されている場合は既存の控除秒数を返し、残高は変更しない。
// 残高が不足する場合は残高全額を控除し、0でクランプする。
func (r *PostgresWalletRepo) DeductForCall(ctx context.Context, userID, callID string, seconds int64) (int64, error) {
	if seconds < 0 {
		return 0, fmt.Errorf("deduct seconds must be non-negative: %d", seconds)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 1. 既存の控除レコードを確認（二重控除防止）
	var existing int64
	err = tx.QueryRowContext(ctx,
		`SELECT deducted_seconds FROM wallet_deductions WHERE call_id = $1`,
		callID,
	).Scan(&existing)
	if err == nil {
		// すでに控除済み。残高は変更しない。
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to check existing deduction: %w", err)
	}

	// 2. 残高を行ロック付きで取得
	var balance int64
	err = tx.QueryRowContext(ctx,
		`SELECT balance_seconds FROM wallets WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		balance = 0
	} else if err != nil {
		return 0, fmt.Errorf("failed to lock wallet: %w", err)
	}

	// 3. 控除秒数を残高でクランプ（残高は非負を維持）
	deducted := seconds
	if deducted > balance {
		deducted = balance
	}

	// 4. 控除台帳に記録
	_, err = tx.ExecContext(ctx,
		`INSERT INTO wallet_deductions (call_id, user_id, seconds, deducted_seconds, created_at)
		 VALUES ($1, $2, $3, $4, now())`,
		callID, userID, seconds, deducted,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert deduction record: %w", err)
	}

	// 5. 残高を更新
	if deducted > 0 {
		_, err = tx.ExecContext(ctx,
			`UPDATE wallets SET balance_seconds = balance_seconds - $1, updated_at = now()
			 WHERE user_id = $2`,
			deducted, userID,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to update wallet balance: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return deducted, nil
}

// compile-time interface check
var _ WalletRepository = (*PostgresWalletRepo)(nil)
