package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alexlistens/alexlistens/internal/model"
)

// mockWebhookService はテスト用のWebhookCallServiceInterface実装
type mockWebhookService struct {
	appendFunc func(ctx context.Context, providerCallID string, role model.TranscriptRole, text string, final bool) error
	statusFunc func(ctx context.Context, providerCallID string, status model.CallStatus, providerDurationSec int64) error
}

func (m *mockWebhookService) AppendTranscript(ctx context.Context, providerCallID string, role model.TranscriptRole, text string, final bool) error {
	if m.appendFunc != nil {
		return m.appendFunc(ctx, providerCallID, role, text, final)
	}
	return nil
}

func (m *mockWebhookService) HandleStatus(ctx context.Context, providerCallID string, status model.CallStatus, providerDurationSec int64) error {
	if m.statusFunc != nil {
		return m.statusFunc(ctx, providerCallID, status, providerDurationSec)
	}
	return nil
}

func webhookRequest(body, secret string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice", strings.NewReader(body))
	if secret != "" {
		req.Header.Set(webhookSecretHeader, secret)
	}
	return req
}

// トランスクリプトイベントがサービスに渡ることを検証
func TestWebhookHandler_TranscriptEvent(t *testing.T) {
	var gotCallID, gotText string
	var gotRole model.TranscriptRole
	var gotFinal bool
	service := &mockWebhookService{
		appendFunc: func(ctx context.Context, providerCallID string, role model.TranscriptRole, text string, final bool) error {
			gotCallID, gotRole, gotText, gotFinal = providerCallID, role, text, final
			return nil
		},
	}
	h := NewWebhookHandler(service, "secret-1")

	body := `{"type":"transcript","call_id":"prov-1","role":"user","text":"こんにちは","final":true}`
	w := httptest.NewRecorder()
	h.HandleVoiceEvent(w, webhookRequest(body, "secret-1"))

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if gotCallID != "prov-1" || gotRole != model.TranscriptRoleUser || gotText != "こんにちは" || !gotFinal {
		t.Errorf("append called with (%q, %q, %q, %v)", gotCallID, gotRole, gotText, gotFinal)
	}
}

// ステータスイベントが通話時間付きでサービスに渡ることを検証
func TestWebhookHandler_StatusEvent(t *testing.T) {
	var gotStatus model.CallStatus
	var gotDuration int64
	service := &mockWebhookService{
		statusFunc: func(ctx context.Context, providerCallID string, status model.CallStatus, providerDurationSec int64) error {
			gotStatus, gotDuration = status, providerDurationSec
			return nil
		},
	}
	h := NewWebhookHandler(service, "secret-1")

	body := `{"type":"status","call_id":"prov-1","status":"ended","duration_seconds":125}`
	w := httptest.NewRecorder()
	h.HandleVoiceEvent(w, webhookRequest(body, "secret-1"))

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if gotStatus != model.CallStatusEnded || gotDuration != 125 {
		t.Errorf("status called with (%q, %d), want (ended, 125)", gotStatus, gotDuration)
	}
}

// 不正なシークレットが401で拒否されることを検証
func TestWebhookHandler_InvalidSecret(t *testing.T) {
	called := false
	service := &mockWebhookService{
		appendFunc: func(ctx context.Context, providerCallID string, role model.TranscriptRole, text string, final bool) error {
			called = true
			return nil
		},
	}
	h := NewWebhookHandler(service, "secret-1")

	body := `{"type":"transcript","call_id":"prov-1","role":"user","text":"x","final":true}`
	w := httptest.NewRecorder()
	h.HandleVoiceEvent(w, webhookRequest(body, "wrong-secret"))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if called {
		t.Error("service should not be called with invalid secret")
	}
}

// シークレット未設定が500（CONFIG_MISSING）になることを検証
func TestWebhookHandler_MissingSecretConfig(t *testing.T) {
	h := NewWebhookHandler(&mockWebhookService{}, "")

	w := httptest.NewRecorder()
	h.HandleVoiceEvent(w, webhookRequest(`{"type":"status","call_id":"c","status":"ended"}`, "anything"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// 未知のイベント種別が400になることを検証
func TestWebhookHandler_UnknownEventType(t *testing.T) {
	h := NewWebhookHandler(&mockWebhookService{}, "secret-1")

	w := httptest.NewRecorder()
	h.HandleVoiceEvent(w, webhookRequest(`{"type":"mystery","call_id":"prov-1"}`, "secret-1"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// call_id欠落が400になることを検証
func TestWebhookHandler_MissingCallID(t *testing.T) {
	h := NewWebhookHandler(&mockWebhookService{}, "secret-1")

	w := httptest.NewRecorder()
	h.HandleVoiceEvent(w, webhookRequest(`{"type":"status","status":"ended"}`, "secret-1"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// 不正なroleが400になることを検証
func TestWebhookHandler_InvalidRole(t *testing.T) {
	h := NewWebhookHandler(&mockWebhookService{}, "secret-1")

	w := httptest.NewRecorder()
	h.HandleVoiceEvent(w, webhookRequest(`{"type":"transcript","call_id":"prov-1","role":"narrator","text":"x"}`, "secret-1"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
