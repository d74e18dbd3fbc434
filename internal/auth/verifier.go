// Package auth はIdPトークンの検証とアカウント管理を提供する。
// サインイン自体は外部IdPに委譲しており、このサーバーはベアラートークンの
// 検証とアカウント・セッションの管理のみを行う。
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dgraph-io/ristretto"
)

// VerifiedIdentity はIdPによる検証済みのユーザー情報を表す。
type VerifiedIdentity struct {
	UserID string
	Email  string
	Name   string
}

// Verifier はベアラートークンの検証インターフェース。
type Verifier interface {
	// Verify はトークンを検証し、検証済みユーザー情報を返す。
	// 無効なトークンの場合はエラーを返す。
	Verify(ctx context.Context, token string) (*VerifiedIdentity, error)
}

// HTTPVerifier はIdPの検証エンドポイントを呼び出すVerifier実装。
type HTTPVerifier struct {
	httpClient *http.Client
	logger     *slog.Logger
	verifyURL  string
	apiKey     string
}

// NewHTTPVerifier はHTTPVerifierを生成する。
func NewHTTPVerifier(httpClient *http.Client, logger *slog.Logger, verifyURL, apiKey string) *HTTPVerifier {
	return &HTTPVerifier{
		httpClient: httpClient,
		logger:     logger,
		verifyURL:  verifyURL,
		apiKey:     apiKey,
	}
}

// verifyRequest はIdP検証エンドポイントへのリクエストボディ。
type verifyRequest struct {
	Token string `json:"token"`
}

// verifyResponse はIdP検証エンドポイントのレスポンスボディ。
type verifyResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// Verify はIdPの検証エンドポイントにトークンを送り、検証済みユーザー情報を返す。
func (v *HTTPVerifier) Verify(ctx context.Context, token string) (*VerifiedIdentity, error) {
	body, err := json.Marshal(verifyRequest{Token: token})
	if err != nil {
		return nil, fmt.Errorf("検証リクエストの構築に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+v.apiKey)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		v.logger.Error("IdP検証エンドポイントの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("トークンが無効です")
	}
	if resp.StatusCode != http.StatusOK {
		v.logger.Error("IdP検証エンドポイントがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("IdP検証エンドポイントがステータス %d を返しました", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var result verifyResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if result.UserID == "" {
		return nil, fmt.Errorf("IdPレスポンスにuser_idが含まれていません")
	}

	return &VerifiedIdentity{
		UserID: result.UserID,
		Email:  result.Email,
		Name:   result.Name,
	}, nil
}

// compile-time interface check
var _ Verifier = (*HTTPVerifier)(nil)

// CachingVerifier は検証結果をTTL付きでキャッシュするVerifierデコレータ。
// リクエストごとのIdP呼び出しを避ける。検証失敗はキャッシュしない。
type CachingVerifier struct {
	inner Verifier
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewCachingVerifier はCachingVerifierを生成する。
func NewCachingVerifier(inner Verifier, ttl time.Duration) (*CachingVerifier, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000, // 追跡するキー数の目安（想定エントリ数の10倍）
		MaxCost:     10_000,  // 最大エントリ数（cost=1固定）
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("検証キャッシュの作成に失敗しました: %w", err)
	}

	return &CachingVerifier{
		inner: inner,
		cache: cache,
		ttl:   ttl,
	}, nil
}

// Verify はキャッシュ済みの検証結果があればそれを返し、なければ内側のVerifierに委譲する。
func (c *CachingVerifier) Verify(ctx context.Context, token string) (*VerifiedIdentity, error) {
	if cached, found := c.cache.Get(token); found {
		if identity, ok := cached.(*VerifiedIdentity); ok {
			return identity, nil
		}
	}

	identity, err := c.inner.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	c.cache.SetWithTTL(token, identity, 1, c.ttl)
	return identity, nil
}

// Close はキャッシュのリソースを解放する。
func (c *CachingVerifier) Close() {
	c.cache.Close()
}

// compile-time interface check
var _ Verifier = (*CachingVerifier)(nil)
