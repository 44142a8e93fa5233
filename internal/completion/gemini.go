package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel はGeminiプロバイダーでモデル未指定時に使うモデル。
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClient はGoogle Gemini APIを使うCompleter。
type GeminiClient struct {
	client *genai.Client
	logger *slog.Logger
	model  string
}

// NewGeminiClient はGeminiClientを生成する。
// baseURLが空でない場合はAPIのベースURLを差し替える（テスト用）。
func NewGeminiClient(ctx context.Context, httpClient *http.Client, logger *slog.Logger, apiKey, baseURL, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if baseURL != "" {
		cc.HTTPOptions.BaseURL = baseURL
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{client: client, logger: logger, model: model}, nil
}

// Configured はクライアントが生成済みであれば常にtrue。
func (c *GeminiClient) Configured() bool {
	return true
}

// Complete はgenerateContentを1回呼び出す。
func (c *GeminiClient) Complete(ctx context.Context, req Request) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(req.UserPrompt, genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		c.logger.Error("Gemini APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("model", c.model),
		)
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", &UpstreamError{StatusCode: apiErr.Code, Message: apiErr.Message, Err: err}
		}
		return "", &UpstreamError{Err: err}
	}

	return strings.TrimSpace(resp.Text()), nil
}

// compile-time interface check
var _ Completer = (*GeminiClient)(nil)
