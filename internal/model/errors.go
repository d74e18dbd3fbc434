// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, call, wallet, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeConfigMissing       = "CONFIG_MISSING"
	ErrCodeUpstreamFailed      = "UPSTREAM_FAILED"
	ErrCodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	ErrCodeCallNotFound        = "CALL_NOT_FOUND"
	ErrCodeCallAlreadyEnded    = "CALL_ALREADY_ENDED"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeUserAlreadyExists   = "USER_ALREADY_EXISTS"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "サインインし直してください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を実行する権限がありません。",
		Category: "auth",
		Action:   "管理者アカウントでサインインしてください。",
	}
}

// NewConfigMissingError は必須設定の欠落エラーを生成する。
// APIルートで参照する設定値が未設定の場合に固定レスポンスとして返す。
func NewConfigMissingError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeConfigMissing,
		Message:  fmt.Sprintf("サーバー設定が不足しています: %s", name),
		Category: "system",
		Action:   "管理者に連絡してください。",
	}
}

// NewUpstreamFailedError は外部サービス呼び出しの失敗エラーを生成する。
func NewUpstreamFailedError(service string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailed,
		Message:  fmt.Sprintf("外部サービスの呼び出しに失敗しました: %s", service),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInsufficientBalanceError は残高不足エラーを生成する。
func NewInsufficientBalanceError(balanceSeconds, minSeconds int64) *APIError {
	return &APIError{
		Code:     ErrCodeInsufficientBalance,
		Message:  fmt.Sprintf("通話時間の残高が不足しています（残り%d秒、必要%d秒）。", balanceSeconds, minSeconds),
		Category: "wallet",
		Action:   "通話時間を追加購入してください。",
	}
}

// NewCallNotFoundError は通話未検出エラーを生成する。
func NewCallNotFoundError(callID string) *APIError {
	return &APIError{
		Code:     ErrCodeCallNotFound,
		Message:  fmt.Sprintf("指定された通話が見つかりません: %s", callID),
		Category: "call",
		Action:   "通話IDを確認してください。",
	}
}

// NewCallAlreadyEndedError は終了済み通話への操作エラーを生成する。
func NewCallAlreadyEndedError(callID string) *APIError {
	return &APIError{
		Code:     ErrCodeCallAlreadyEnded,
		Message:  fmt.Sprintf("通話はすでに終了しています: %s", callID),
		Category: "call",
		Action:   "新しい通話を開始してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "サインインし直してください。",
	}
}

// NewUserAlreadyExistsError はユーザーの重複作成エラーを生成する。
func NewUserAlreadyExistsError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeUserAlreadyExists,
		Message:  fmt.Sprintf("このメールアドレスのユーザーはすでに存在します: %s", email),
		Category: "validation",
		Action:   "別のメールアドレスを指定してください。",
	}
}

// NewInvalidRequestError は無効なリクエストエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("無効なリクエストです: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}
