// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// 認証は外部IdPに委譲しており、IDはIdP側のユーザーIDと一致する。
type User struct {
	ID        string
	Email     string
	Name      string
	Username  string
	Language  LanguagePreference
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LanguagePreference はユーザーのエージェント言語設定を表す。
// 未設定または未知の値はデフォルトエージェントにフォールバックする。
type LanguagePreference string

const (
	// LanguageDefault はデフォルトエージェントを選択する。
	LanguageDefault LanguagePreference = ""
	// LanguageSpanish はスペイン語エージェントを選択する。
	LanguageSpanish LanguagePreference = "spanish"
	// LanguageAussie はオーストラリア英語エージェントを選択する。
	LanguageAussie LanguagePreference = "aussie"
)

// Session は管理者発行のサーバーセッションを表す。
// IdPのベアラートークンに代わる失効可能なクレデンシャルとして使用する。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// CallStats はユーザーごとの通話統計を表す。
// 通話の確定処理（課金）時に更新される。
type CallStats struct {
	UserID       string
	TotalCalls   int
	TotalSeconds int64
	LastCallAt   *time.Time
	UpdatedAt    time.Time
}
