package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexlistens/alexlistens/internal/model"
)

// --- モック ---

type mockSessionFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.Session, error)
}

func (m *mockSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

type mockTokenVerifier struct {
	verifyTokenFn func(ctx context.Context, token string) (string, error)
}

func (m *mockTokenVerifier) VerifyToken(ctx context.Context, token string) (string, error) {
	if m.verifyTokenFn != nil {
		return m.verifyTokenFn(ctx, token)
	}
	return "", fmt.Errorf("invalid token")
}

// nextHandler はコンテキストのユーザーIDを記録するテスト用ハンドラー。
func nextHandler(gotUserID *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID, err := UserIDFromContext(r.Context()); err == nil {
			*gotUserID = userID
		}
		w.WriteHeader(http.StatusOK)
	})
}

// --- テスト ---

// Authorizationヘッダーなしのリクエストが401になることを検証
func TestBearerMiddleware_NoHeader(t *testing.T) {
	mw := NewBearerMiddleware(&mockSessionFinder{}, &mockTokenVerifier{})

	var gotUserID string
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/wallet", nil)

	mw(nextHandler(&gotUserID)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if gotUserID != "" {
		t.Error("next handler should not be reached")
	}
}

// 有効なIdPトークンでユーザーIDがコンテキストに注入されることを検証
func TestBearerMiddleware_ValidIdPToken(t *testing.T) {
	verifier := &mockTokenVerifier{
		verifyTokenFn: func(ctx context.Context, token string) (string, error) {
			if token == "idp-token" {
				return "user-1", nil
			}
			return "", fmt.Errorf("invalid token")
		},
	}
	mw := NewBearerMiddleware(&mockSessionFinder{}, verifier)

	var gotUserID string
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/wallet", nil)
	req.Header.Set("Authorization", "Bearer idp-token")

	mw(nextHandler(&gotUserID)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if gotUserID != "user-1" {
		t.Errorf("user ID in context = %q, want user-1", gotUserID)
	}
}

// サーバーセッションIDでの認証がIdP検証より優先されることを検証
func TestBearerMiddleware_SessionToken(t *testing.T) {
	verifierCalled := false
	sessionFinder := &mockSessionFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			if id == "session-token" {
				return &model.Session{ID: id, UserID: "user-2", ExpiresAt: time.Now().Add(time.Hour)}, nil
			}
			return nil, nil
		},
	}
	verifier := &mockTokenVerifier{
		verifyTokenFn: func(ctx context.Context, token string) (string, error) {
			verifierCalled = true
			return "", fmt.Errorf("invalid token")
		},
	}
	mw := NewBearerMiddleware(sessionFinder, verifier)

	var gotUserID string
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/wallet", nil)
	req.Header.Set("Authorization", "Bearer session-token")

	mw(nextHandler(&gotUserID)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if gotUserID != "user-2" {
		t.Errorf("user ID in context = %q, want user-2", gotUserID)
	}
	if verifierCalled {
		t.Error("IdP verifier should not be called for session tokens")
	}
}

// 無効なトークンが401になることを検証
func TestBearerMiddleware_InvalidToken(t *testing.T) {
	mw := NewBearerMiddleware(&mockSessionFinder{}, &mockTokenVerifier{})

	var gotUserID string
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/wallet", nil)
	req.Header.Set("Authorization", "Bearer bogus")

	mw(nextHandler(&gotUserID)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

// --- AdminMiddleware ---

type allowList []string

func (a allowList) IsAdmin(userID string) bool {
	for _, id := range a {
		if id == userID {
			return true
		}
	}
	return false
}

// 許可リスト外のユーザーが403になることを検証
func TestAdminMiddleware_Forbidden(t *testing.T) {
	mw := NewAdminMiddleware(allowList{"admin-1"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/users", nil)
	req = req.WithContext(ContextWithUserID(req.Context(), "user-1"))

	reached := false
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if reached {
		t.Error("next handler should not be reached")
	}
}

// 許可リスト内のユーザーが通過できることを検証
func TestAdminMiddleware_Allowed(t *testing.T) {
	mw := NewAdminMiddleware(allowList{"admin-1"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/users", nil)
	req = req.WithContext(ContextWithUserID(req.Context(), "admin-1"))

	reached := false
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !reached {
		t.Error("next handler should be reached")
	}
}

// 未認証コンテキストでの管理者ルートが401になることを検証
func TestAdminMiddleware_Unauthenticated(t *testing.T) {
	mw := NewAdminMiddleware(allowList{"admin-1"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/users", nil)

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
