package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alexlistens/alexlistens/internal/middleware"
	"github.com/alexlistens/alexlistens/internal/model"
)

// CallAuthorizer は通話の所有者確認のインターフェース。
type CallAuthorizer interface {
	Get(ctx context.Context, userID, callID string) (*model.Call, error)
}

// WSServer はWebSocket接続のアップグレードとイベント配信のインターフェース。
type WSServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, callID string)
}

// StreamHandler は通話イベントのライブ配信のHTTPハンドラー。
type StreamHandler struct {
	calls CallAuthorizer
	hub   WSServer
}

// NewStreamHandler はStreamHandlerを生成する。
func NewStreamHandler(calls CallAuthorizer, hub WSServer) *StreamHandler {
	return &StreamHandler{
		calls: calls,
		hub:   hub,
	}
}

// StreamCall は通話のトランスクリプトとステータス変化をWebSocketで配信する。
// 所有者確認の後にWebSocketへアップグレードする。
// GET /api/calls/:id/stream
func (h *StreamHandler) StreamCall(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	callID := chi.URLParam(r, "id")
	call, err := h.calls.Get(r.Context(), userID, callID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.hub.ServeWS(w, r, call.ID)
}
