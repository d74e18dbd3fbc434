package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/alexlistens/alexlistens/internal/middleware"
	"github.com/alexlistens/alexlistens/internal/model"
	"github.com/alexlistens/alexlistens/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Me は指定ユーザーのプロフィールと通話統計を返す。
	Me(ctx context.Context, userID string) (*user.Profile, error)
	// UpdateLanguage はユーザーのエージェント言語設定を更新する。
	UpdateLanguage(ctx context.Context, userID string, lang model.LanguagePreference) error
}

// UserHandler はユーザープロフィールのHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// userResponse はユーザープロフィールのAPIレスポンス。
type userResponse struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Username     string     `json:"username"`
	Language     string     `json:"language"`
	TotalCalls   int        `json:"total_calls"`
	TotalSeconds int64      `json:"total_seconds"`
	LastCallAt   *time.Time `json:"last_call_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// languageRequest は言語設定更新リクエストのボディ。
type languageRequest struct {
	Language string `json:"language"`
}

// Me は自分のプロフィールと通話統計を取得する。
// GET /api/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	profile, err := h.service.Me(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{
		ID:           profile.User.ID,
		Email:        profile.User.Email,
		Name:         profile.User.Name,
		Username:     profile.User.Username,
		Language:     string(profile.User.Language),
		TotalCalls:   profile.Stats.TotalCalls,
		TotalSeconds: profile.Stats.TotalSeconds,
		LastCallAt:   profile.Stats.LastCallAt,
		CreatedAt:    profile.User.CreatedAt,
	})
}

// UpdateLanguage はエージェント言語設定を更新する。
// PUT /api/users/me/language
func (h *UserHandler) UpdateLanguage(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req languageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	if err := h.service.UpdateLanguage(r.Context(), userID, model.LanguagePreference(req.Language)); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
