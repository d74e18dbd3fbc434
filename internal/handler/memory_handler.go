package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/alexlistens/alexlistens/internal/middleware"
	"github.com/alexlistens/alexlistens/internal/model"
)

// maxMemorySearchLimit は記憶検索の最大件数。
const maxMemorySearchLimit = 20

// maxMemoryTextLength は直接登録する記憶テキストの最大長。
const maxMemoryTextLength = 4000

// MemoryServiceInterface は記憶ハンドラーが必要とするサービスインターフェース。
type MemoryServiceInterface interface {
	// Search はクエリに類似した記憶を検索する。limitが0以下の場合は既定値を使う。
	Search(ctx context.Context, userID, query string, limit int) ([]model.MemoryMatch, error)
	// RememberAsync はバックグラウンドで記憶を保存する。失敗は呼び出し側に影響しない。
	RememberAsync(userID, callID string, kind model.MemoryKind, text string, onFailure func())
}

// MemoryHandler は意味記憶のHTTPハンドラー。
type MemoryHandler struct {
	service MemoryServiceInterface
}

// NewMemoryHandler はMemoryHandlerを生成する。
func NewMemoryHandler(service MemoryServiceInterface) *MemoryHandler {
	return &MemoryHandler{service: service}
}

// memoryMatchResponse は記憶検索結果のAPIレスポンス。
type memoryMatchResponse struct {
	ID         string    `json:"id"`
	CallID     string    `json:"call_id,omitempty"`
	Kind       string    `json:"kind"`
	Text       string    `json:"text"`
	Similarity float32   `json:"similarity"`
	CreatedAt  time.Time `json:"created_at"`
}

// memorySearchRequest は記憶検索リクエストのボディ。
type memorySearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// memoryStoreRequest は記憶の直接登録リクエストのボディ。
type memoryStoreRequest struct {
	Text string `json:"text"`
}

// Search は自分の記憶を類似度検索する。
// POST /api/memories/search
func (h *MemoryHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req memorySearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("検索クエリqueryを指定してください"))
		return
	}
	if req.Limit < 0 || req.Limit > maxMemorySearchLimit {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("limitは0〜20の整数である必要があります"))
		return
	}

	matches, err := h.service.Search(r.Context(), userID, req.Query, req.Limit)
	if err != nil {
		handleServiceError(w, model.NewUpstreamFailedError("memory"))
		return
	}

	results := make([]memoryMatchResponse, len(matches))
	for i, m := range matches {
		results[i] = memoryMatchResponse{
			ID:         m.Memory.ID,
			CallID:     m.Memory.CallID,
			Kind:       string(m.Memory.Kind),
			Text:       m.Memory.Text,
			Similarity: m.Similarity,
			CreatedAt:  m.Memory.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, results)
}

// Store は記憶を直接登録する。
// 埋め込みと保存は非同期に行われ、失敗しても呼び出し側にはエラーを返さない。
// POST /api/memories
func (h *MemoryHandler) Store(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req memoryStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("記憶するtextを指定してください"))
		return
	}
	if len(text) > maxMemoryTextLength {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("textが長すぎます"))
		return
	}

	h.service.RememberAsync(userID, "", model.MemoryKindNote, text, nil)
	w.WriteHeader(http.StatusAccepted)
}
