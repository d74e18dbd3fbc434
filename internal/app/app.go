// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/alexlistens/alexlistens/internal/auth"
	"github.com/alexlistens/alexlistens/internal/call"
	"github.com/alexlistens/alexlistens/internal/config"
	"github.com/alexlistens/alexlistens/internal/database"
	"github.com/alexlistens/alexlistens/internal/embeddings"
	"github.com/alexlistens/alexlistens/internal/handler"
	"github.com/alexlistens/alexlistens/internal/logger"
	"github.com/alexlistens/alexlistens/internal/memory"
	"github.com/alexlistens/alexlistens/internal/metrics"
	"github.com/alexlistens/alexlistens/internal/middleware"
	"github.com/alexlistens/alexlistens/internal/repository"
	"github.com/alexlistens/alexlistens/internal/stream"
	"github.com/alexlistens/alexlistens/internal/user"
	"github.com/alexlistens/alexlistens/internal/voice"
	"github.com/alexlistens/alexlistens/internal/wallet"
	"github.com/alexlistens/alexlistens/internal/worker/reaper"
)

// verifyCacheTTL はIdPトークン検証結果のキャッシュ有効期間。
const verifyCacheTTL = 5 * time.Minute

// upstreamTimeout は外部サービス呼び出しのHTTPクライアントタイムアウト。
const upstreamTimeout = 10 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// identityTokenVerifier はauth.Verifierをミドルウェアの
// TokenVerifierインターフェースに適合させるアダプタ。
type identityTokenVerifier struct {
	verifier auth.Verifier
}

func (a *identityTokenVerifier) VerifyToken(ctx context.Context, token string) (string, error) {
	identity, err := a.verifier.Verify(ctx, token)
	if err != nil {
		return "", err
	}
	return identity.UserID, nil
}

// callStack は通話ライフサイクルに必要な依存一式。
// APIハンドラーと刈り取りジョブが同じワイヤリング（特に記憶ストア）を共有する。
type callStack struct {
	service     *call.Service
	hub         *stream.Hub
	collector   *metrics.Collector
	registry    *prometheus.Registry
	memoryStore *memory.ChromemStore
	memory      *memory.Service
	walletSvc   *wallet.Service
}

func (s *callStack) close() {
	s.memoryStore.Close()
}

// buildCallStack は通話サービスとその依存をワイヤリングする。
func buildCallStack(cfg *config.Config, db *sql.DB) (*callStack, error) {
	// 1. リポジトリの初期化
	callRepo := repository.NewPostgresCallRepo(db)
	transcriptRepo := repository.NewPostgresTranscriptRepo(db)
	userRepo := repository.NewPostgresUserRepo(db)
	statsRepo := repository.NewPostgresCallStatsRepo(db)
	walletRepo := repository.NewPostgresWalletRepo(db)

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. 意味記憶（埋め込みAPI + ベクトルストア）
	embedder := embeddings.NewClient(
		&http.Client{Timeout: upstreamTimeout},
		slog.Default(),
		cfg.EmbeddingsAPIBaseURL, cfg.EmbeddingsAPIKey,
		cfg.EmbeddingsModel, cfg.EmbeddingsDimensions,
	)
	// MEMORY_PATHが設定されていればディスクに永続化し、
	// 再起動をまたいで過去の会話を想起できるようにする
	var memoryStore *memory.ChromemStore
	if cfg.MemoryPath != "" {
		var err error
		memoryStore, err = memory.NewPersistentChromemStore(cfg.MemoryPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open memory store: %w", err)
		}
	} else {
		memoryStore = memory.NewChromemStore()
	}
	memoryService := memory.NewService(
		memoryStore, embedder, slog.Default(),
		cfg.MemoryTopK, float32(cfg.MemoryMinSimilarity),
	)

	// 4. 音声プロバイダー
	provider := voice.NewClient(
		&http.Client{Timeout: upstreamTimeout},
		slog.Default(),
		cfg.VoiceAPIBaseURL, cfg.VoiceAPIKey,
	)
	agents := voice.NewAgentSelector(cfg.AgentIDDefault, cfg.AgentIDSpanish, cfg.AgentIDAussie)

	// 5. 配信ハブとウォレット
	hub := stream.NewHub(slog.Default(), cfg.CORSAllowedOrigin)
	walletService := wallet.NewService(walletRepo, slog.Default(), cfg.MinCallSeconds)

	// 6. 通話サービス
	callService := call.NewService(
		callRepo, transcriptRepo, userRepo, statsRepo,
		walletService, memoryService, provider, agents, hub, collector,
		slog.Default(), cfg.CallConnectTimeout,
	)

	return &callStack{
		service:     callService,
		hub:         hub,
		collector:   collector,
		registry:    registry,
		memoryStore: memoryStore,
		memory:      memoryService,
		walletSvc:   walletService,
	}, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// 放置通話の刈り取りジョブも同一プロセス内で動かす。確定時に記録される
// 記憶をAPIの検索と同じストアに載せるためで、別プロセスに切り出すと
// 刈り取られた通話の記憶が検索から見えなくなる。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. 通話スタックのワイヤリング
	stack, err := buildCallStack(cfg, db)
	if err != nil {
		return err
	}
	defer stack.close()

	// 3. 認証（IdPトークン検証 + サーバーセッション）
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	statsRepo := repository.NewPostgresCallStatsRepo(db)

	httpVerifier := auth.NewHTTPVerifier(
		&http.Client{Timeout: upstreamTimeout},
		slog.Default(),
		cfg.IdentityVerifyURL, cfg.IdentityAPIKey,
	)
	cachingVerifier, err := auth.NewCachingVerifier(httpVerifier, verifyCacheTTL)
	if err != nil {
		return fmt.Errorf("failed to create verifier cache: %w", err)
	}
	defer cachingVerifier.Close()

	accountService := auth.NewService(userRepo, sessionRepo, auth.ServiceConfig{
		SessionMaxAge:       cfg.SessionMaxAge,
		InitialGrantSeconds: cfg.InitialGrantSeconds,
	})

	// 4. ユーザープロフィール
	userService := user.NewService(userRepo, statsRepo)

	// 5. レート制限（req/min -> req/sec に変換）
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.CallStartRate = rate.Limit(float64(cfg.RateLimitCallStart) / 60.0)
	rateLimiterCfg.CallStartBurst = cfg.RateLimitCallStart
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	// 6. ルーターの構築
	deps := &handler.RouterDeps{
		SessionFinder:     sessionRepo,
		TokenVerifier:     &identityTokenVerifier{verifier: cachingVerifier},
		AdminChecker:      cfg,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		CallService:    stack.service,
		WebhookService: stack.service,
		WebhookSecret:  cfg.VoiceWebhookSecret,
		StreamHub:      stack.hub,

		MemoryService:   stack.memory,
		MemoryForgetter: stack.memory,
		WalletService:   stack.walletSvc,
		WalletGranter:   stack.walletSvc,
		AccountService:  accountService,
		UserService:     userService,

		DB:             db,
		MetricsHandler: metrics.SetupMetricsRoute(stack.registry),
	}

	router := handler.NewRouter(deps)

	// 7. 刈り取りジョブの起動（放置通話の確定）
	reapCtx, cancelReap := context.WithCancel(context.Background())
	defer cancelReap()

	r := reaper.NewReaper(stack.service, slog.Default(), cfg.CallStaleTTL)
	go r.Start(reapCtx, cfg.ReapInterval)

	slog.Info("call reaper started",
		slog.Duration("reap_interval", cfg.ReapInterval),
		slog.Duration("call_stale_ttl", cfg.CallStaleTTL),
	)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")
	cancelReap()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
