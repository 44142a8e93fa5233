package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/humanize/internal/completion"
	"github.com/hitoshi/humanize/internal/config"
	"github.com/hitoshi/humanize/internal/idempotency"
	"github.com/hitoshi/humanize/internal/security"
)

// completionPolicy は設定からリライト用プロンプトと生成パラメータを組み立てる。
func completionPolicy(cfg *config.Config) completion.Policy {
	return completion.Policy{
		SystemPrompt: cfg.CompletionSystemPrompt,
		UserTemplate: cfg.CompletionUserTemplate,
		MaxTokens:    cfg.CompletionMaxTokens,
		Temperature:  cfg.CompletionTemperature,
	}
}

// newCompleter は設定に応じた補完クライアントを生成する。
// APIキーが未設定の場合は起動を止めず、リライト時にCONFIGURATION_ERRORを返すクライアントにする。
// ベースURLはSSRFガードで検証し、送信にはSSRF防止機能付きのHTTPクライアントを使う。
func newCompleter(ctx context.Context, cfg *config.Config, guard security.SSRFGuardService, logger *slog.Logger) (completion.Completer, error) {
	if cfg.CompletionAPIKey == "" {
		logger.Warn("completion API key is not configured; rewrites will fail with CONFIGURATION_ERROR")
		return completion.Unconfigured(), nil
	}

	if err := guard.ValidateURL(cfg.CompletionBaseURL); err != nil {
		return nil, fmt.Errorf("invalid COMPLETION_BASE_URL: %w", err)
	}
	httpClient := guard.NewSafeClient(cfg.CompletionTimeout)

	switch cfg.CompletionProvider {
	case config.ProviderGemini:
		// OpenAI向けの既定値はGeminiでは使わない
		model := cfg.CompletionModel
		if model == config.DefaultCompletionModel {
			model = ""
		}
		baseURL := cfg.CompletionBaseURL
		if baseURL == config.DefaultCompletionBaseURL {
			baseURL = ""
		}
		client, err := completion.NewGeminiClient(ctx, httpClient, logger, cfg.CompletionAPIKey, baseURL, model)
		if err != nil {
			return nil, err
		}
		logger.Info("completion provider configured", slog.String("provider", config.ProviderGemini))
		return client, nil
	default:
		logger.Info("completion provider configured",
			slog.String("provider", config.ProviderOpenAI),
			slog.String("model", cfg.CompletionModel),
		)
		return completion.NewOpenAIClient(httpClient, logger, cfg.CompletionAPIKey, cfg.CompletionBaseURL, cfg.CompletionModel), nil
	}
}

// newIdempotencyStore はREDIS_URLが設定されていればRedis、なければプロセス内メモリのStoreを返す。
// 戻り値のclose関数は必ず呼び出すこと。
func newIdempotencyStore(ctx context.Context, cfg *config.Config) (idempotency.Store, func(), error) {
	if cfg.RedisURL == "" {
		slog.Info("idempotency store: memory")
		return idempotency.NewMemoryStore(), func() {}, nil
	}

	store, err := idempotency.NewRedisStore(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	slog.Info("idempotency store: redis")
	return store, func() {
		if err := store.Close(); err != nil {
			slog.Warn("failed to close redis client", slog.String("error", err.Error()))
		}
	}, nil
}
