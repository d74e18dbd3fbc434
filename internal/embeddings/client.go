// Package embeddings は埋め込みAPIのクライアントを提供する。
// テキストを固定次元のベクトルに変換する。OpenAI互換の/embeddingsエンドポイントを想定する。
package embeddings

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

// Client は埋め込みAPIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	apiKey     string
	model      string
	dimensions int
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL, apiKey, model string, dimensions int) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
	}
}

// embedRequest は埋め込みAPIへのリクエストボディ。
type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embedResponse は埋め込みAPIのレスポンスボディ。
type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed はテキストを埋め込みベクトルに変換する。
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("埋め込み対象のテキストが空です")
	}

	body, err := json.Marshal(embedRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("リクエストの構築に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("埋め込みAPIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("埋め込みAPIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("埋め込みAPIがステータス %d を返しました", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var result embedResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("埋め込みAPIのレスポンスにデータが含まれていません")
	}

	embedding := result.Data[0].Embedding
	if c.dimensions > 0 && len(embedding) != c.dimensions {
		return nil, fmt.Errorf("埋め込み次元が一致しません: got %d, want %d", len(embedding), c.dimensions)
	}

	return embedding, nil
}

// Dimensions は埋め込みベクトルの次元数を返す。
func (c *Client) Dimensions() int {
	return c.dimensions
}
