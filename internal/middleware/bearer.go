// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alexlistens/alexlistens/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// TokenVerifier はベアラートークンからユーザーIDを解決するインターフェース。
type TokenVerifier interface {
	// VerifyToken はトークンを検証し、ユーザーIDを返す。無効な場合はエラー。
	VerifyToken(ctx context.Context, token string) (string, error)
}

// SessionFinder はサーバーセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// NewBearerMiddleware はAuthorizationヘッダーのベアラートークンを検証する
// ミドルウェアを返す。トークンはまずサーバーセッションとして検索し（ローカルDB）、
// 見つからない場合はIdPトークンとして検証する。
// 認証済みユーザーIDをリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返す。
func NewBearerMiddleware(sessionFinder SessionFinder, verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Authorizationヘッダーからトークンを取得
			token := bearerToken(r)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			// 2. サーバーセッションとして検索
			if sessionFinder != nil {
				session, err := sessionFinder.FindByID(r.Context(), token)
				if err != nil {
					slog.Error("failed to find session",
						slog.String("error", err.Error()),
					)
				} else if session != nil {
					ctx := context.WithValue(r.Context(), userIDContextKey, session.UserID)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			// 3. IdPトークンとして検証
			userID, err := verifier.VerifyToken(r.Context(), token)
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			// 4. 認証済みユーザーIDをコンテキストに注入
			ctx := context.WithValue(r.Context(), userIDContextKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminChecker は管理者判定のインターフェース。
// config.Configの固定許可リストが実装する。
type AdminChecker interface {
	IsAdmin(userID string) bool
}

// NewAdminMiddleware は認証済みユーザーが管理者許可リストに含まれることを
// 要求するミドルウェアを返す。BearerMiddlewareの後に配置すること。
func NewAdminMiddleware(checker AdminChecker) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if !checker.IsAdmin(userID) {
				slog.Warn("admin access denied",
					slog.String("user_id", userID),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken はAuthorizationヘッダーからベアラートークンを取り出す。
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// ベアラーミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
