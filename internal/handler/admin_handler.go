package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alexlistens/alexlistens/internal/model"
)

// AdminAccountServiceInterface は管理者ハンドラーが必要とするアカウント操作のインターフェース。
type AdminAccountServiceInterface interface {
	// CreateUser はユーザーをウォレット付きで作成し、セッションを発行する。
	CreateUser(ctx context.Context, idpUserID, email, name, username string) (*model.User, *model.Session, error)
	// RevokeSessions は指定ユーザーの全セッションを失効させる。
	RevokeSessions(ctx context.Context, userID string) error
}

// WalletGranterInterface は管理者ハンドラーが必要とするウォレット操作のインターフェース。
type WalletGranterInterface interface {
	// Grant は残高を加算する。
	Grant(ctx context.Context, userID string, seconds int64) error
}

// MemoryForgetterInterface は管理者ハンドラーが必要とする記憶削除のインターフェース。
type MemoryForgetterInterface interface {
	// Forget は指定ユーザーの記憶をすべて削除する。
	Forget(ctx context.Context, userID string) error
}

// AdminHandler は管理者操作のHTTPハンドラー。
// 全ルートは管理者ミドルウェアの後に配置すること。
type AdminHandler struct {
	accounts AdminAccountServiceInterface
	wallets  WalletGranterInterface
	memories MemoryForgetterInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(accounts AdminAccountServiceInterface, wallets WalletGranterInterface, memories MemoryForgetterInterface) *AdminHandler {
	return &AdminHandler{
		accounts: accounts,
		wallets:  wallets,
		memories: memories,
	}
}

// createUserRequest はユーザー作成リクエストのボディ。
type createUserRequest struct {
	UserID   string `json:"user_id"` // IdP側ユーザーID
	Email    string `json:"email"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// createUserResponse はユーザー作成のAPIレスポンス。
type createUserResponse struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	SessionID        string    `json:"session_id"`
	SessionExpiresAt time.Time `json:"session_expires_at"`
}

// grantRequest は残高付与リクエストのボディ。
type grantRequest struct {
	Seconds int64 `json:"seconds"`
}

// CreateUser はユーザーをウォレット付きで作成する。
// POST /api/admin/users
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}
	if req.UserID == "" || req.Email == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("user_idとemailは必須です"))
		return
	}

	user, session, err := h.accounts.CreateUser(r.Context(), req.UserID, req.Email, req.Name, req.Username)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createUserResponse{
		ID:               user.ID,
		Email:            user.Email,
		SessionID:        session.ID,
		SessionExpiresAt: session.ExpiresAt,
	})
}

// GrantSeconds は指定ユーザーのウォレットに通話時間を付与する。
// POST /api/admin/users/:id/grant
func (h *AdminHandler) GrantSeconds(w http.ResponseWriter, r *http.Request) {
	targetUserID := chi.URLParam(r, "id")

	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	if err := h.wallets.Grant(r.Context(), targetUserID, req.Seconds); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RevokeSessions は指定ユーザーの全セッションを失効させる。
// POST /api/admin/users/:id/revoke-sessions
func (h *AdminHandler) RevokeSessions(w http.ResponseWriter, r *http.Request) {
	targetUserID := chi.URLParam(r, "id")

	if err := h.accounts.RevokeSessions(r.Context(), targetUserID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteMemories は指定ユーザーの意味記憶をすべて削除する。
// DELETE /api/admin/memories/:userID
func (h *AdminHandler) DeleteMemories(w http.ResponseWriter, r *http.Request) {
	targetUserID := chi.URLParam(r, "userID")

	if err := h.memories.Forget(r.Context(), targetUserID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
