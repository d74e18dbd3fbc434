// Package stream はWebSocketによる通話イベントのライブ配信を提供する。
// Webhookで受信したトランスクリプトとステータス変化を、
// 通話を視聴しているクライアントへファンアウトする。
package stream

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// イベント種別
const (
	EventTypeTranscript = "transcript"
	EventTypeStatus     = "status"
)

// Event は通話ストリームで配信されるイベント。
type Event struct {
	Type      string    `json:"type"`
	CallID    string    `json:"call_id"`
	Role      string    `json:"role,omitempty"`
	Text      string    `json:"text,omitempty"`
	Status    string    `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// subscriberBuffer は購読者ごとのイベントバッファ長。
// バッファが満杯の遅い購読者へのイベントは破棄する。
const subscriberBuffer = 16

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Hub は通話IDごとの購読者を管理し、イベントをファンアウトする。
type Hub struct {
	logger      *slog.Logger
	upgrader    websocket.Upgrader
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
}

// NewHub はHubの新しいインスタンスを生成する。
// allowedOriginはWebSocketハンドシェイクで許可するOrigin。空の場合は全て許可する。
func NewHub(logger *slog.Logger, allowedOrigin string) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" {
					return true
				}
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowedOrigin
			},
		},
		subscribers: make(map[string]map[chan Event]struct{}),
	}
}

// Subscribe は指定通話のイベント購読を開始する。
// 戻り値のチャネルからイベントを受信し、不要になったらcancelを呼ぶ。
func (h *Hub) Subscribe(callID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	subs, ok := h.subscribers[callID]
	if !ok {
		subs = make(map[chan Event]struct{})
		h.subscribers[callID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := h.subscribers[callID]; ok {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(h.subscribers, callID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish はイベントを通話の全購読者に配信する。
// バッファが満杯の購読者へは配信をスキップする（ブロックしない）。
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers[event.CallID] {
		select {
		case ch <- event:
		default:
			h.logger.Warn("購読者のバッファが満杯のためイベントを破棄しました",
				slog.String("call_id", event.CallID),
				slog.String("type", event.Type),
			)
		}
	}
}

// SubscriberCount は指定通話の現在の購読者数を返す。
func (h *Hub) SubscriberCount(callID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[callID])
}

// ServeWS はHTTP接続をWebSocketにアップグレードし、
// 指定通話のイベントをJSONで配信し続ける。
// クライアントの切断、またはコンテキストのキャンセルで終了する。
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, callID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeがエラーレスポンスを書き込み済み
		h.logger.Warn("WebSocketへのアップグレードに失敗しました",
			slog.String("error", err.Error()),
			slog.String("call_id", callID),
		)
		return
	}
	defer conn.Close()

	events, cancel := h.Subscribe(callID)
	defer cancel()

	// 読み取りポンプ: クライアントの切断検知とpong処理のみ
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}
