// Package model はドメインモデルを定義する。
package model

import "time"

// Wallet はユーザーごとの残り通話時間を秒単位で表す。
// BalanceSecondsは常に非負整数。課金確定時は0でクランプされる。
type Wallet struct {
	UserID         string
	BalanceSeconds int64
	UpdatedAt      time.Time
}

// WalletDeduction は通話ごとの課金控除レコードを表す。
// CallIDをキーとした台帳により、同一通話の二重控除を防ぐ。
type WalletDeduction struct {
	CallID          string
	UserID          string
	Seconds         int64 // 要求された控除秒数
	DeductedSeconds int64 // 実際に控除された秒数（残高クランプ後）
	CreatedAt       time.Time
}
