package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alexlistens/alexlistens/internal/model"
)

// Embedder はテキストをベクトルに変換するインターフェース。
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// rememberTimeout は非同期記録時の埋め込み・保存の上限時間。
const rememberTimeout = 30 * time.Second

// Service は意味記憶のドメインロジックを提供する。
// 記録の失敗は通話を妨げない。呼び出し側は検索失敗時に文脈なしで続行する。
type Service struct {
	store         Store
	embedder      Embedder
	logger        *slog.Logger
	topK          int
	minSimilarity float32
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(store Store, embedder Embedder, logger *slog.Logger, topK int, minSimilarity float32) *Service {
	return &Service{
		store:         store,
		embedder:      embedder,
		logger:        logger,
		topK:          topK,
		minSimilarity: minSimilarity,
	}
}

// Remember はテキストを埋め込み、記憶として保存する。
func (s *Service) Remember(ctx context.Context, userID, callID string, kind model.MemoryKind, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("記憶するテキストが空です")
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("埋め込みの生成に失敗しました: %w", err)
	}

	mem := model.Memory{
		ID:        uuid.New().String(),
		UserID:    userID,
		CallID:    callID,
		Kind:      kind,
		Text:      text,
		CreatedAt: time.Now(),
	}
	if err := s.store.Add(ctx, mem, embedding); err != nil {
		return fmt.Errorf("記憶の保存に失敗しました: %w", err)
	}
	return nil
}

// RememberAsync はバックグラウンドで記憶を保存する。
// 失敗しても呼び出し側には影響させず、ログ出力とonFailure通知のみ行う。
// リクエストのキャンセルに巻き込まれないよう独立したコンテキストを使う。
func (s *Service) RememberAsync(userID, callID string, kind model.MemoryKind, text string, onFailure func()) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), rememberTimeout)
		defer cancel()

		if err := s.Remember(ctx, userID, callID, kind, text); err != nil {
			s.logger.Warn("記憶の非同期保存に失敗しました",
				slog.String("error", err.Error()),
				slog.String("user_id", userID),
				slog.String("call_id", callID),
				slog.String("kind", string(kind)),
			)
			if onFailure != nil {
				onFailure()
			}
		}
	}()
}

// Search はクエリに類似した記憶を検索する。
// limitが0以下の場合は既定のtopKを使う。最小類似度未満の結果は除外する。
func (s *Service) Search(ctx context.Context, userID, query string, limit int) ([]model.MemoryMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("検索クエリが空です")
	}
	if limit <= 0 {
		limit = s.topK
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("クエリの埋め込み生成に失敗しました: %w", err)
	}

	matches, err := s.store.Search(ctx, userID, embedding, limit)
	if err != nil {
		return nil, err
	}

	filtered := matches[:0]
	for _, m := range matches {
		if m.Similarity >= s.minSimilarity {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

// Forget は指定ユーザーの記憶をすべて削除する。管理者操作から呼ばれる。
func (s *Service) Forget(ctx context.Context, userID string) error {
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("記憶の削除に失敗しました: %w", err)
	}
	s.logger.Info("ユーザーの記憶を削除しました", slog.String("user_id", userID))
	return nil
}

// BuildContext はクエリに関連する過去の記憶を、
// エージェントのシステムプロンプトに注入できる文字列に整形して返す。
// 関連する記憶がない場合は空文字列を返す。
func (s *Service) BuildContext(ctx context.Context, userID, query string) (string, error) {
	matches, err := s.Search(ctx, userID, query, s.topK)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("Relevant context from past conversations:\n")
	for _, m := range matches {
		b.WriteString("- ")
		b.WriteString(m.Memory.Text)
		b.WriteString("\n")
	}
	return b.String(), nil
}
