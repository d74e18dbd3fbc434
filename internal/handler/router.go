package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alexlistens/alexlistens/internal/middleware"
)

// DBPinger はヘルスチェック用のDB疎通確認インターフェース。
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	TokenVerifier     middleware.TokenVerifier
	AdminChecker      middleware.AdminChecker
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 通話
	CallService    CallServiceInterface
	WebhookService WebhookCallServiceInterface
	WebhookSecret  string
	StreamHub      WSServer

	// 記憶・ウォレット・ユーザー
	MemoryService   MemoryServiceInterface
	MemoryForgetter MemoryForgetterInterface
	WalletService   WalletServiceInterface
	WalletGranter   WalletGranterInterface
	AccountService  AdminAccountServiceInterface
	UserService     UserServiceInterface

	// ヘルスチェック・メトリクス
	DB             DBPinger
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging → Bearer → RateLimit(General)
//
// Webhook・ヘルスチェック・メトリクスは認証チェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	callHandler := NewCallHandler(deps.CallService)
	memoryHandler := NewMemoryHandler(deps.MemoryService)
	walletHandler := NewWalletHandler(deps.WalletService)
	userHandler := NewUserHandler(deps.UserService)
	adminHandler := NewAdminHandler(deps.AccountService, deps.WalletGranter, deps.MemoryForgetter)
	webhookHandler := NewWebhookHandler(deps.WebhookService, deps.WebhookSecret)
	streamHandler := NewStreamHandler(deps.CallService, deps.StreamHub)

	// --- 認証不要のルート ---

	r.Get("/health", newHealthHandler(deps.DB))

	// 音声プロバイダーからのWebhook（共有シークレットで検証）
	r.Post("/webhooks/voice", webhookHandler.HandleVoiceEvent)

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Bearer → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBearerMiddleware(deps.SessionFinder, deps.TokenVerifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 通話ライフサイクル
		r.Route("/api/calls", func(r chi.Router) {
			// POST /api/calls - 通話開始（開始専用レート制限を追加）
			r.With(deps.RateLimiter.CallStartMiddleware()).Post("/", callHandler.StartCall)
			r.Get("/", callHandler.ListCalls)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", callHandler.GetCall)
				r.Post("/end", callHandler.EndCall)
				r.Get("/transcripts", callHandler.ListTranscripts)
				r.Post("/transcripts", callHandler.AppendTranscript)
				r.Get("/stream", streamHandler.StreamCall)
			})
		})

		// 意味記憶
		r.Post("/api/memories", memoryHandler.Store)
		r.Post("/api/memories/search", memoryHandler.Search)

		// ウォレット
		r.Get("/api/wallet", walletHandler.GetWallet)

		// ユーザー
		r.Route("/api/users/me", func(r chi.Router) {
			r.Get("/", userHandler.Me)
			r.Put("/language", userHandler.UpdateLanguage)
		})

		// 管理者操作
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.NewAdminMiddleware(deps.AdminChecker))

			r.Post("/users", adminHandler.CreateUser)
			r.Post("/users/{id}/grant", adminHandler.GrantSeconds)
			r.Post("/users/{id}/revoke-sessions", adminHandler.RevokeSessions)
			r.Delete("/memories/{userID}", adminHandler.DeleteMemories)
		})
	})

	return r
}

// newHealthHandler はDB疎通を含むヘルスチェックハンドラーを返す。
func newHealthHandler(db DBPinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"reason": "database unreachable",
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
