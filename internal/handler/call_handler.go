package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alexlistens/alexlistens/internal/middleware"
	"github.com/alexlistens/alexlistens/internal/model"
)

// defaultCallListLimit は通話履歴一覧のデフォルト件数。
const defaultCallListLimit = 20

// maxCallListLimit は通話履歴一覧の最大件数。
const maxCallListLimit = 100

// CallServiceInterface は通話ハンドラーが必要とするサービスインターフェース。
type CallServiceInterface interface {
	// Start は新しい通話を開始し、参加URL付きの通話を返す。
	Start(ctx context.Context, userID string) (*model.Call, error)
	// Get は指定ユーザーの通話を取得する。
	Get(ctx context.Context, userID, callID string) (*model.Call, error)
	// List はユーザーの通話履歴を新しい順に返す。
	List(ctx context.Context, userID string, limit int) ([]*model.Call, error)
	// End はユーザーの要求により通話を終了し、確定済みの通話を返す。
	End(ctx context.Context, userID, callID string) (*model.Call, error)
	// Transcripts は指定通話のトランスクリプトを時系列順に返す。
	Transcripts(ctx context.Context, userID, callID string) ([]*model.Transcript, error)
	// AppendOwnTranscript は所有者の通話に発話を追記する。
	AppendOwnTranscript(ctx context.Context, userID, callID string, role model.TranscriptRole, text string, final bool) error
}

// CallHandler は通話ライフサイクルのHTTPハンドラー。
type CallHandler struct {
	service CallServiceInterface
}

// NewCallHandler はCallHandlerを生成する。
func NewCallHandler(service CallServiceInterface) *CallHandler {
	return &CallHandler{service: service}
}

// callResponse は通話情報のAPIレスポンス。
type callResponse struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"`
	AgentID       string     `json:"agent_id"`
	JoinURL       string     `json:"join_url,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	BilledSeconds int64      `json:"billed_seconds"`
}

// transcriptResponse はトランスクリプトのAPIレスポンス。
type transcriptResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Final     bool      `json:"final"`
	CreatedAt time.Time `json:"created_at"`
}

// StartCall は新しい通話を開始する。
// POST /api/calls
func (h *CallHandler) StartCall(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	call, err := h.service.Start(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCallResponse(call))
}

// GetCall は通話を取得する。
// GET /api/calls/:id
func (h *CallHandler) GetCall(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	call, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCallResponse(call))
}

// ListCalls は通話履歴を新しい順に返す。
// GET /api/calls?limit=20
func (h *CallHandler) ListCalls(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	limit := defaultCallListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxCallListLimit {
			writeAPIErrorResponse(w, http.StatusBadRequest,
				model.NewInvalidRequestError("limitは1〜100の整数である必要があります"))
			return
		}
		limit = parsed
	}

	calls, err := h.service.List(r.Context(), userID, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]callResponse, len(calls))
	for i, call := range calls {
		results[i] = toCallResponse(call)
	}
	writeJSON(w, http.StatusOK, results)
}

// EndCall は通話を終了し、課金を確定する。
// POST /api/calls/:id/end
func (h *CallHandler) EndCall(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	call, err := h.service.End(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCallResponse(call))
}

// ListTranscripts は通話のトランスクリプトを時系列順に返す。
// GET /api/calls/:id/transcripts
func (h *CallHandler) ListTranscripts(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	transcripts, err := h.service.Transcripts(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]transcriptResponse, len(transcripts))
	for i, tr := range transcripts {
		results[i] = transcriptResponse{
			ID:        tr.ID,
			Role:      string(tr.Role),
			Text:      tr.Text,
			Final:     tr.Final,
			CreatedAt: tr.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, results)
}

// appendTranscriptRequest はトランスクリプト追記リクエストのボディ。
type appendTranscriptRequest struct {
	Role  string `json:"role"`
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// AppendTranscript はクライアント側SDKのイベントから発話を追記する。
// POST /api/calls/:id/transcripts
func (h *CallHandler) AppendTranscript(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req appendTranscriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	role := model.TranscriptRole(req.Role)
	if role != model.TranscriptRoleUser && role != model.TranscriptRoleAgent {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("roleはuserまたはagentである必要があります"))
		return
	}
	if req.Text == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("textは必須です"))
		return
	}

	if err := h.service.AppendOwnTranscript(r.Context(), userID, chi.URLParam(r, "id"), role, req.Text, req.Final); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// toCallResponse はmodel.CallからAPIレスポンスに変換する。
// JoinURLは進行中の通話でのみ返す。
func toCallResponse(call *model.Call) callResponse {
	resp := callResponse{
		ID:            call.ID,
		Status:        string(call.Status),
		AgentID:       call.AgentID,
		StartedAt:     call.StartedAt,
		EndedAt:       call.EndedAt,
		BilledSeconds: call.BilledSeconds,
	}
	if !call.Status.IsTerminal() {
		resp.JoinURL = call.JoinURL
	}
	return resp
}
