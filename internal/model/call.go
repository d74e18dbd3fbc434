// Package model はドメインモデルを定義する。
package model

import "time"

// CallStatus は通話の状態を表す。
// 音声プロバイダーが発行するステータスenumの中継であり、
// このアプリ独自の状態遷移は定義しない。前進方向のみに遷移する。
type CallStatus string

const (
	// CallStatusStarting は通話セッション作成直後の状態。
	CallStatusStarting CallStatus = "starting"
	// CallStatusJoined はクライアントがセッションに参加した状態。
	CallStatusJoined CallStatus = "joined"
	// CallStatusInProgress は会話が進行中の状態。
	CallStatusInProgress CallStatus = "in_progress"
	// CallStatusEnded は通話が正常終了した状態。
	CallStatusEnded CallStatus = "ended"
	// CallStatusFailed は通話が異常終了した状態。
	CallStatusFailed CallStatus = "failed"
)

// statusRank はステータスの前進順序を表す。中継時の巻き戻りを防ぐ。
var statusRank = map[CallStatus]int{
	CallStatusStarting:   0,
	CallStatusJoined:     1,
	CallStatusInProgress: 2,
	CallStatusEnded:      3,
	CallStatusFailed:     3,
}

// IsTerminal は終了状態かどうかを返す。
func (s CallStatus) IsTerminal() bool {
	return s == CallStatusEnded || s == CallStatusFailed
}

// CanTransitionTo は次のステータスへの前進遷移が許されるかを返す。
// 同一ステータスへの遷移は冪等な中継として許可する。
func (s CallStatus) CanTransitionTo(next CallStatus) bool {
	cur, ok := statusRank[s]
	if !ok {
		return false
	}
	nxt, ok := statusRank[next]
	if !ok {
		return false
	}
	return nxt >= cur
}

// Call は音声プロバイダーへの通話セッションを表す。
// ProviderCallIDはプロバイダー側のセッションID。
type Call struct {
	ID             string
	UserID         string
	ProviderCallID string
	AgentID        string
	JoinURL        string
	Status         CallStatus
	StartedAt      time.Time
	EndedAt        *time.Time
	BilledSeconds  int64 // 確定済みの課金秒数。未確定は0。
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TranscriptRole は発話者の種別を表す。
type TranscriptRole string

const (
	// TranscriptRoleUser はユーザーの発話。
	TranscriptRoleUser TranscriptRole = "user"
	// TranscriptRoleAgent はエージェントの発話。
	TranscriptRoleAgent TranscriptRole = "agent"
)

// Transcript は通話中の1発話を表す。
// Textは保存前にサニタイズ済みであること。
type Transcript struct {
	ID        string
	CallID    string
	UserID    string
	Role      TranscriptRole
	Text      string
	Final     bool // 確定発話かどうか。中間認識結果はfalse。
	CreatedAt time.Time
}
