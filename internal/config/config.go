// Package config は環境変数ベースのアプリケーション設定を提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Identity Provider
	IdentityVerifyURL string
	IdentityAPIKey    string
	AdminUserIDs      []string // 管理者APIの許可リスト（固定）

	// Voice Provider
	VoiceAPIBaseURL    string
	VoiceAPIKey        string
	VoiceWebhookSecret string
	AgentIDDefault     string
	AgentIDSpanish     string
	AgentIDAussie      string

	// Embeddings
	EmbeddingsAPIBaseURL string
	EmbeddingsAPIKey     string
	EmbeddingsModel      string
	EmbeddingsDimensions int

	// Wallet / Billing
	MinCallSeconds     int64
	InitialGrantSeconds int64

	// Call
	CallConnectTimeout time.Duration // 接続確立のタイムアウト（クライアント可視）
	CallStaleTTL       time.Duration // reaperが放置通話を確定するまでの時間
	ReapInterval       time.Duration

	// Rate Limit（req/min/user）
	RateLimitGeneral   int
	RateLimitCallStart int

	// Memory
	MemoryTopK          int
	MemoryMinSimilarity float64
	MemoryPath          string // 記憶の永続化先ディレクトリ（空ならインメモリ）

	// Session
	SessionMaxAge int // セッション有効期間（秒）

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（開発用、なければ無視）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.IdentityVerifyURL = os.Getenv("IDENTITY_VERIFY_URL")
	if cfg.IdentityVerifyURL == "" {
		missing = append(missing, "IDENTITY_VERIFY_URL")
	}

	cfg.IdentityAPIKey = os.Getenv("IDENTITY_API_KEY")
	if cfg.IdentityAPIKey == "" {
		missing = append(missing, "IDENTITY_API_KEY")
	}

	cfg.VoiceAPIBaseURL = os.Getenv("VOICE_API_BASE_URL")
	if cfg.VoiceAPIBaseURL == "" {
		missing = append(missing, "VOICE_API_BASE_URL")
	}

	cfg.VoiceAPIKey = os.Getenv("VOICE_API_KEY")
	if cfg.VoiceAPIKey == "" {
		missing = append(missing, "VOICE_API_KEY")
	}

	cfg.VoiceWebhookSecret = os.Getenv("VOICE_WEBHOOK_SECRET")
	if cfg.VoiceWebhookSecret == "" {
		missing = append(missing, "VOICE_WEBHOOK_SECRET")
	}

	cfg.AgentIDDefault = os.Getenv("AGENT_ID_DEFAULT")
	if cfg.AgentIDDefault == "" {
		missing = append(missing, "AGENT_ID_DEFAULT")
	}

	cfg.EmbeddingsAPIBaseURL = os.Getenv("EMBEDDINGS_API_BASE_URL")
	if cfg.EmbeddingsAPIBaseURL == "" {
		missing = append(missing, "EMBEDDINGS_API_BASE_URL")
	}

	cfg.EmbeddingsAPIKey = os.Getenv("EMBEDDINGS_API_KEY")
	if cfg.EmbeddingsAPIKey == "" {
		missing = append(missing, "EMBEDDINGS_API_KEY")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	// 言語別エージェントIDは任意。未設定の場合はデフォルトにフォールバックする。
	cfg.AgentIDSpanish = getEnvString("AGENT_ID_SPANISH", "")
	cfg.AgentIDAussie = getEnvString("AGENT_ID_AUSSIE", "")

	cfg.AdminUserIDs = splitCommaList(os.Getenv("ADMIN_USER_IDS"))

	cfg.EmbeddingsModel = getEnvString("EMBEDDINGS_MODEL", "text-embedding-3-small")
	cfg.EmbeddingsDimensions = getEnvInt("EMBEDDINGS_DIMENSIONS", 1536)

	cfg.MinCallSeconds = getEnvInt64("MIN_CALL_SECONDS", 60)
	cfg.InitialGrantSeconds = getEnvInt64("INITIAL_GRANT_SECONDS", 300)

	cfg.CallConnectTimeout = getEnvDuration("CALL_CONNECT_TIMEOUT", 15*time.Second)
	cfg.CallStaleTTL = getEnvDuration("CALL_STALE_TTL", 2*time.Hour)
	cfg.ReapInterval = getEnvDuration("REAP_INTERVAL", 10*time.Minute)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitCallStart = getEnvInt("RATE_LIMIT_CALL_START", 10)

	cfg.MemoryTopK = getEnvInt("MEMORY_TOP_K", 5)
	cfg.MemoryMinSimilarity = getEnvFloat("MEMORY_MIN_SIMILARITY", 0.5)
	cfg.MemoryPath = getEnvString("MEMORY_PATH", "")

	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400*30)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// IsAdmin は指定ユーザーIDが管理者許可リストに含まれるかを返す。
func (c *Config) IsAdmin(userID string) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func splitCommaList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
