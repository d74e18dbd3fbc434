// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/alexlistens/alexlistens/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// CreateWithWallet はユーザーとウォレットを同一トランザクションで作成する。
	// initialSecondsはウォレットの初期残高（秒）。
	CreateWithWallet(ctx context.Context, user *model.User, initialSeconds int64) error

	// UpdateLanguage はユーザーの言語設定を更新する。
	UpdateLanguage(ctx context.Context, userID string, lang model.LanguagePreference) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// WalletRepository はウォレットデータの永続化インターフェース。
// 残高は非負整数の秒数。控除は通話IDをキーとした台帳で冪等に行う。
type WalletRepository interface {
	// FindByUserID は指定ユーザーのウォレットを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Wallet, error)

	// Grant は残高を加算する。ウォレットが存在しない場合は作成する。
	Grant(ctx context.Context, userID string, seconds int64) error

	// DeductForCall は通話に対する控除を冪等に実行する。
	// 同一callIDの控除がすでに記録されている場合は何もせず既存の控除秒数を返す。
	// 残高が不足する場合は残高全額を控除し、0でクランプする。
	// 戻り値は実際に控除された秒数。
	DeductForCall(ctx context.Context, userID, callID string, seconds int64) (int64, error)
}

// CallRepository は通話データの永続化インターフェース。
type CallRepository interface {
	// Create は通話を作成する。
	Create(ctx context.Context, call *model.Call) error

	// FindByID は指定IDの通話を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Call, error)

	// FindByProviderCallID はプロバイダー側セッションIDで通話を検索する。
	// 見つからない場合はnilを返す。
	FindByProviderCallID(ctx context.Context, providerCallID string) (*model.Call, error)

	// ListByUserID はユーザーの通話履歴をstarted_at降順で返す。
	ListByUserID(ctx context.Context, userID string, limit int) ([]*model.Call, error)

	// UpdateStatus は通話ステータスを更新する。
	UpdateStatus(ctx context.Context, callID string, status model.CallStatus) error

	// Finalize は通話を終了状態にし、終了時刻と課金秒数を記録する。
	// すでに終了済みの場合は何も更新しない（rows affected 0）。
	// 戻り値は更新が行われたかどうか。
	Finalize(ctx context.Context, callID string, status model.CallStatus, endedAt time.Time, billedSeconds int64) (bool, error)

	// ListStaleActive は指定時刻より前に開始され、まだ終了していない通話を返す。
	// reaperワーカーが放置された通話を確定するために使用する。
	ListStaleActive(ctx context.Context, startedBefore time.Time, limit int) ([]*model.Call, error)
}

// TranscriptRepository はトランスクリプトデータの永続化インターフェース。
type TranscriptRepository interface {
	// Create はトランスクリプトを作成する。
	Create(ctx context.Context, tr *model.Transcript) error

	// ListByCallID は通話のトランスクリプトをcreated_at昇順で返す。
	ListByCallID(ctx context.Context, callID string) ([]*model.Transcript, error)
}

// CallStatsRepository は通話統計の永続化インターフェース。
type CallStatsRepository interface {
	// FindByUserID は指定ユーザーの通話統計を取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.CallStats, error)

	// RecordCall は通話1件分の統計を冪等にUPSERTで加算する。
	RecordCall(ctx context.Context, userID string, seconds int64, endedAt time.Time) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
