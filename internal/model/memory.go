// Package model はドメインモデルを定義する。
package model

import "time"

// MemoryKind はメモリの種別を表す。
type MemoryKind string

const (
	// MemoryKindUtterance は通話中の1発話のメモリ。
	MemoryKindUtterance MemoryKind = "utterance"
	// MemoryKindTranscript は通話全体のトランスクリプトのメモリ。
	MemoryKindTranscript MemoryKind = "transcript"
	// MemoryKindNote はユーザーがAPI経由で直接登録したメモリ。
	MemoryKindNote MemoryKind = "note"
)

// Memory は埋め込みベクトル付きの会話メモリを表す。
// 所有ユーザーIDと通話IDでタグ付けされ、後続の通話で意味検索により想起される。
type Memory struct {
	ID        string
	UserID    string
	CallID    string
	Kind      MemoryKind
	Text      string
	CreatedAt time.Time
}

// MemoryMatch は意味検索の1件のヒットを表す。
// Similarityはコサイン類似度 [0.0-1.0]。降順でソートされる。
type MemoryMatch struct {
	Memory     Memory
	Similarity float32
}
