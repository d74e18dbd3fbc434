// Package voice は音声通話プロバイダーとの連携を提供する。
// 通話セッションの作成・取得・終了とエージェント選択を含む。
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// CallSession はプロバイダー側の通話セッションを表す。
type CallSession struct {
	ProviderCallID string
	JoinURL        string
	Status         string
	DurationSec    int64 // プロバイダーが報告する通話時間（秒）。未報告は0。
}

// CreateCallParams は通話セッション作成のパラメータ。
type CreateCallParams struct {
	AgentID      string
	UserID       string
	SystemPrompt string // 想起済みコンテキストを含むプロンプト
}

// Provider は音声通話プロバイダーのインターフェース。
type Provider interface {
	// CreateCall は通話セッションを作成し、参加URLを返す。
	CreateCall(ctx context.Context, params CreateCallParams) (*CallSession, error)
	// GetCall はプロバイダー側の通話セッションを取得する。
	GetCall(ctx context.Context, providerCallID string) (*CallSession, error)
	// EndCall はプロバイダー側の通話セッションを終了する。
	EndCall(ctx context.Context, providerCallID string) error
}

// Client は音声通話プロバイダーAPIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	apiKey     string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL, apiKey string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// createCallRequest は通話作成APIへのリクエストボディ。
type createCallRequest struct {
	AgentID      string `json:"agent_id"`
	ExternalID   string `json:"external_id"` // アプリ側ユーザーID
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// callResponse は通話APIのレスポンスボディ。
type callResponse struct {
	CallID      string `json:"call_id"`
	JoinURL     string `json:"join_url"`
	Status      string `json:"status"`
	DurationSec int64  `json:"duration_seconds"`
}

// CreateCall は通話セッションを作成し、参加URLを返す。
func (c *Client) CreateCall(ctx context.Context, params CreateCallParams) (*CallSession, error) {
	if params.AgentID == "" {
		return nil, fmt.Errorf("エージェントIDが指定されていません")
	}

	body, err := json.Marshal(createCallRequest{
		AgentID:      params.AgentID,
		ExternalID:   params.UserID,
		SystemPrompt: params.SystemPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("リクエストの構築に失敗しました: %w", err)
	}

	session, err := c.do(ctx, http.MethodPost, "/calls", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if session.JoinURL == "" {
		return nil, fmt.Errorf("プロバイダーのレスポンスにjoin_urlが含まれていません")
	}
	return session, nil
}

// GetCall はプロバイダー側の通話セッションを取得する。
func (c *Client) GetCall(ctx context.Context, providerCallID string) (*CallSession, error) {
	return c.do(ctx, http.MethodGet, "/calls/"+providerCallID, nil)
}

// EndCall はプロバイダー側の通話セッションを終了する。
// すでに終了済みのセッションに対しては成功として扱う。
func (c *Client) EndCall(ctx context.Context, providerCallID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/calls/"+providerCallID+"/end", nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("通話終了APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("provider_call_id", providerCallID),
		)
		return err
	}
	defer resp.Body.Close()

	// 409はすでに終了済みを意味するため成功として扱う
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusConflict {
		return fmt.Errorf("通話終了APIがステータス %d を返しました", resp.StatusCode)
	}
	return nil
}

// do はJSONレスポンスを返すAPIリクエストを実行する。
func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*CallSession, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("音声プロバイダーAPIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("path", path),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("音声プロバイダーAPIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("path", path),
		)
		return nil, fmt.Errorf("音声プロバイダーAPIがステータス %d を返しました", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var result callResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	return &CallSession{
		ProviderCallID: result.CallID,
		JoinURL:        result.JoinURL,
		Status:         result.Status,
		DurationSec:    result.DurationSec,
	}, nil
}

// compile-time interface check
var _ Provider = (*Client)(nil)
