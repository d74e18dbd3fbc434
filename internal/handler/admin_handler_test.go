package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alexlistens/alexlistens/internal/middleware"
	"github.com/alexlistens/alexlistens/internal/model"
)

// mockAccountService はテスト用のAdminAccountServiceInterface実装
type mockAccountService struct {
	createUserFunc     func(ctx context.Context, idpUserID, email, name, username string) (*model.User, *model.Session, error)
	revokeSessionsFunc func(ctx context.Context, userID string) error
}

func (m *mockAccountService) CreateUser(ctx context.Context, idpUserID, email, name, username string) (*model.User, *model.Session, error) {
	return m.createUserFunc(ctx, idpUserID, email, name, username)
}

func (m *mockAccountService) RevokeSessions(ctx context.Context, userID string) error {
	return m.revokeSessionsFunc(ctx, userID)
}

// mockWalletGranter はテスト用のWalletGranterInterface実装
type mockWalletGranter struct {
	grantFunc func(ctx context.Context, userID string, seconds int64) error
}

func (m *mockWalletGranter) Grant(ctx context.Context, userID string, seconds int64) error {
	return m.grantFunc(ctx, userID, seconds)
}

// mockMemoryForgetter はテスト用のMemoryForgetterInterface実装
type mockMemoryForgetter struct {
	forgetFunc func(ctx context.Context, userID string) error
}

func (m *mockMemoryForgetter) Forget(ctx context.Context, userID string) error {
	if m.forgetFunc != nil {
		return m.forgetFunc(ctx, userID)
	}
	return nil
}

func newAdminTestRouter(accounts AdminAccountServiceInterface, wallets WalletGranterInterface, memories MemoryForgetterInterface) http.Handler {
	h := NewAdminHandler(accounts, wallets, memories)
	r := chi.NewRouter()
	r.Post("/api/admin/users", h.CreateUser)
	r.Post("/api/admin/users/{id}/grant", h.GrantSeconds)
	r.Post("/api/admin/users/{id}/revoke-sessions", h.RevokeSessions)
	r.Delete("/api/admin/memories/{userID}", h.DeleteMemories)
	return r
}

// ユーザー作成が201とセッションIDを返すことを検証
func TestAdminHandler_CreateUser(t *testing.T) {
	accounts := &mockAccountService{
		createUserFunc: func(ctx context.Context, idpUserID, email, name, username string) (*model.User, *model.Session, error) {
			return &model.User{ID: idpUserID, Email: email},
				&model.Session{ID: "sess-1", UserID: idpUserID, ExpiresAt: time.Now().Add(time.Hour)},
				nil
		},
	}
	router := newAdminTestRouter(accounts, &mockWalletGranter{}, &mockMemoryForgetter{})

	body := `{"user_id":"idp-1","email":"alex@example.com","name":"Alex","username":"alex"}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/users", strings.NewReader(body))
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "admin-1"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	var resp createUserResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != "idp-1" || resp.SessionID != "sess-1" {
		t.Errorf("response = %+v, want idp-1/sess-1", resp)
	}
}

// 重複メールアドレスのユーザー作成が409になることを検証
func TestAdminHandler_CreateUser_Duplicate(t *testing.T) {
	accounts := &mockAccountService{
		createUserFunc: func(ctx context.Context, idpUserID, email, name, username string) (*model.User, *model.Session, error) {
			return nil, nil, model.NewUserAlreadyExistsError(email)
		},
	}
	router := newAdminTestRouter(accounts, &mockWalletGranter{}, &mockMemoryForgetter{})

	body := `{"user_id":"idp-1","email":"alex@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/users", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

// 必須フィールド欠落のユーザー作成が400になることを検証
func TestAdminHandler_CreateUser_MissingFields(t *testing.T) {
	router := newAdminTestRouter(&mockAccountService{}, &mockWalletGranter{}, &mockMemoryForgetter{})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/users", strings.NewReader(`{"email":"a@b.c"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// 残高付与が204を返し、対象ユーザーに秒数が渡ることを検証
func TestAdminHandler_GrantSeconds(t *testing.T) {
	var gotUserID string
	var gotSeconds int64
	wallets := &mockWalletGranter{
		grantFunc: func(ctx context.Context, userID string, seconds int64) error {
			gotUserID, gotSeconds = userID, seconds
			return nil
		},
	}
	router := newAdminTestRouter(&mockAccountService{}, wallets, &mockMemoryForgetter{})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/users/user-9/grant", strings.NewReader(`{"seconds":600}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if gotUserID != "user-9" || gotSeconds != 600 {
		t.Errorf("grant called with (%q, %d), want (user-9, 600)", gotUserID, gotSeconds)
	}
}

// 0以下の秒数付与が400になることを検証
func TestAdminHandler_GrantSeconds_NonPositive(t *testing.T) {
	wallets := &mockWalletGranter{
		grantFunc: func(ctx context.Context, userID string, seconds int64) error {
			return model.NewInvalidRequestError("付与する秒数は正の値である必要があります")
		},
	}
	router := newAdminTestRouter(&mockAccountService{}, wallets, &mockMemoryForgetter{})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/users/user-9/grant", strings.NewReader(`{"seconds":0}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// セッション失効が204を返すことを検証
func TestAdminHandler_RevokeSessions(t *testing.T) {
	var revoked string
	accounts := &mockAccountService{
		revokeSessionsFunc: func(ctx context.Context, userID string) error {
			revoked = userID
			return nil
		},
	}
	router := newAdminTestRouter(accounts, &mockWalletGranter{}, &mockMemoryForgetter{})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/users/user-9/revoke-sessions", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if revoked != "user-9" {
		t.Errorf("revoked = %q, want user-9", revoked)
	}
}

// 記憶の全削除が204を返し、対象ユーザーIDが渡ることを検証
func TestAdminHandler_DeleteMemories(t *testing.T) {
	var forgotten string
	memories := &mockMemoryForgetter{
		forgetFunc: func(ctx context.Context, userID string) error {
			forgotten = userID
			return nil
		},
	}
	router := newAdminTestRouter(&mockAccountService{}, &mockWalletGranter{}, memories)

	req := httptest.NewRequest(http.MethodDelete, "/api/admin/memories/user-9", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if forgotten != "user-9" {
		t.Errorf("forgotten = %q, want user-9", forgotten)
	}
}
