// Package memory は会話の意味記憶を提供する。
// 発話と通話全文をベクトル化して保存し、類似度検索で過去の文脈を想起する。
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/alexlistens/alexlistens/internal/model"
)

// Store はベクトルストレージのインターフェース。
type Store interface {
	// Add は埋め込み済みの記憶を保存する。
	Add(ctx context.Context, mem model.Memory, embedding []float32) error
	// Search はベクトル類似度で記憶を検索する。類似度の降順で返す。
	Search(ctx context.Context, userID string, embedding []float32, limit int) ([]model.MemoryMatch, error)
	// DeleteUser は指定ユーザーの記憶をすべて削除する。
	DeleteUser(ctx context.Context, userID string) error
	// Close はリソースを解放する。
	Close() error
}

// ChromemStore は組み込みベクトルDB chromem-goによるStore実装。
// ユーザーごとにコレクションを分離して名前空間を隔離する。
type ChromemStore struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
}

// NewChromemStore はインメモリのChromemStoreを生成する。
// プロセス終了で記憶は消えるため、本番ではNewPersistentChromemStoreを使う。
func NewChromemStore() *ChromemStore {
	return &ChromemStore{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

// NewPersistentChromemStore はpath配下に記憶を永続化するChromemStoreを生成する。
// 既存データは起動時に読み込まれるため、記憶はプロセス再起動をまたいで残る。
func NewPersistentChromemStore(path string) (*ChromemStore, error) {
	db, err := chromem.NewPersistentDB(path, true)
	if err != nil {
		return nil, fmt.Errorf("ベクトルDBのオープンに失敗しました: %w", err)
	}
	return &ChromemStore{
		db:          db,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// getOrCreateCollection はユーザーのコレクションを返す。
// 永続化DBでは既存コレクションをディスクから引き継ぐため、
// 常にGetOrCreateで解決する（Createは既存データを潰す）。
func (s *ChromemStore) getOrCreateCollection(userID string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, exists := s.collections[userID]
	s.mu.RUnlock()
	if exists {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 書き込みロック取得後に再確認
	if col, exists := s.collections[userID]; exists {
		return col, nil
	}

	col, err := s.db.GetOrCreateCollection("user_"+userID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("コレクションの取得に失敗しました: %w", err)
	}

	s.collections[userID] = col
	return col, nil
}

// Add は埋め込み済みの記憶を保存する。
func (s *ChromemStore) Add(ctx context.Context, mem model.Memory, embedding []float32) error {
	col, err := s.getOrCreateCollection(mem.UserID)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        mem.ID,
		Content:   mem.Text,
		Embedding: embedding,
		Metadata: map[string]string{
			"user_id":    mem.UserID,
			"call_id":    mem.CallID,
			"kind":       string(mem.Kind),
			"created_at": mem.CreatedAt.Format(time.RFC3339),
		},
	}

	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("ドキュメントの追加に失敗しました: %w", err)
	}
	return nil
}

// Search はベクトル類似度で記憶を検索する。
func (s *ChromemStore) Search(ctx context.Context, userID string, embedding []float32, limit int) ([]model.MemoryMatch, error) {
	col, err := s.getOrCreateCollection(userID)
	if err != nil {
		return nil, err
	}

	where := map[string]string{"user_id": userID}

	// chromem-goはnResults > コレクション内件数でエラーを返すため、
	// 件数を縮めながらリトライする
	var results []chromem.Result
	for currentLimit := limit; currentLimit >= 1; currentLimit-- {
		results, err = col.QueryEmbedding(ctx, embedding, currentLimit, where, nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if currentLimit == 1 {
				return nil, nil // コレクションが空
			}
			continue
		}
		return nil, fmt.Errorf("ベクトル検索に失敗しました: %w", err)
	}

	matches := make([]model.MemoryMatch, 0, len(results))
	for _, r := range results {
		createdAt, _ := time.Parse(time.RFC3339, r.Metadata["created_at"])
		matches = append(matches, model.MemoryMatch{
			Memory: model.Memory{
				ID:        r.ID,
				UserID:    r.Metadata["user_id"],
				CallID:    r.Metadata["call_id"],
				Kind:      model.MemoryKind(r.Metadata["kind"]),
				Text:      r.Content,
				CreatedAt: createdAt,
			},
			Similarity: r.Similarity,
		})
	}
	return matches, nil
}

// DeleteUser は指定ユーザーのコレクションごと記憶を削除する。
// コレクションが存在しない場合は何もしない。
func (s *ChromemStore) DeleteUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection("user_" + userID); err != nil {
		return fmt.Errorf("コレクションの削除に失敗しました: %w", err)
	}
	delete(s.collections, userID)
	return nil
}

// Close はリソースを解放する。chromem-goは操作ごとにディスクへ反映するため解放対象はない。
func (s *ChromemStore) Close() error {
	return nil
}

// isInsufficientDocsError は検索件数がコレクション内件数を超えたエラーかを判定する。
func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}

// compile-time interface check
var _ Store = (*ChromemStore)(nil)
