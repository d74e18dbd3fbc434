package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/alexlistens/alexlistens/internal/model"
)

// webhookSecretHeader は音声プロバイダーが署名として付与するヘッダー。
const webhookSecretHeader = "X-Webhook-Secret"

// WebhookCallServiceInterface はWebhookハンドラーが必要とするサービスインターフェース。
type WebhookCallServiceInterface interface {
	// AppendTranscript は受信した発話を記録・配信する。
	AppendTranscript(ctx context.Context, providerCallID string, role model.TranscriptRole, text string, final bool) error
	// HandleStatus は受信したステータス変化を中継する。
	HandleStatus(ctx context.Context, providerCallID string, status model.CallStatus, providerDurationSec int64) error
}

// WebhookHandler は音声プロバイダーからのWebhookを受けるHTTPハンドラー。
// 共有シークレットヘッダーで送信元を検証する。
type WebhookHandler struct {
	service WebhookCallServiceInterface
	secret  string
}

// NewWebhookHandler はWebhookHandlerを生成する。
func NewWebhookHandler(service WebhookCallServiceInterface, secret string) *WebhookHandler {
	return &WebhookHandler{
		service: service,
		secret:  secret,
	}
}

// webhookEvent は音声プロバイダーが送信するイベントボディ。
type webhookEvent struct {
	Type            string `json:"type"` // transcript | status
	CallID          string `json:"call_id"`
	Role            string `json:"role,omitempty"`
	Text            string `json:"text,omitempty"`
	Final           bool   `json:"final,omitempty"`
	Status          string `json:"status,omitempty"`
	DurationSeconds int64  `json:"duration_seconds,omitempty"`
}

// HandleVoiceEvent は音声プロバイダーからのイベントを処理する。
// POST /webhooks/voice
func (h *WebhookHandler) HandleVoiceEvent(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		writeAPIErrorResponse(w, http.StatusInternalServerError,
			model.NewConfigMissingError("VOICE_WEBHOOK_SECRET"))
		return
	}

	got := r.Header.Get(webhookSecretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		writeUnauthorized(w)
		return
	}

	var event webhookEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("イベントボディの解析に失敗しました"))
		return
	}
	if event.CallID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("call_idは必須です"))
		return
	}

	switch event.Type {
	case "transcript":
		role := model.TranscriptRole(event.Role)
		if role != model.TranscriptRoleUser && role != model.TranscriptRoleAgent {
			writeAPIErrorResponse(w, http.StatusBadRequest,
				model.NewInvalidRequestError("roleはuserまたはagentである必要があります"))
			return
		}
		if err := h.service.AppendTranscript(r.Context(), event.CallID, role, event.Text, event.Final); err != nil {
			handleServiceError(w, err)
			return
		}
	case "status":
		if err := h.service.HandleStatus(r.Context(), event.CallID, model.CallStatus(event.Status), event.DurationSeconds); err != nil {
			handleServiceError(w, err)
			return
		}
	default:
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("未知のイベント種別です: "+event.Type))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
