package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/hitoshi/humanize/internal/completion"
	"github.com/hitoshi/humanize/internal/config"
	"github.com/hitoshi/humanize/internal/idempotency"
	"github.com/hitoshi/humanize/internal/security"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewCompleter_NoAPIKey_ReturnsUnconfigured(t *testing.T) {
	cfg := &config.Config{CompletionProvider: config.ProviderOpenAI}

	c, err := newCompleter(context.Background(), cfg, security.NewSSRFGuard(), discardLogger())
	if err != nil {
		t.Fatalf("newCompleter() error = %v", err)
	}
	if c.Configured() {
		t.Error("completer without API key should not be configured")
	}
}

func TestNewCompleter_OpenAI(t *testing.T) {
	cfg := &config.Config{
		CompletionProvider: config.ProviderOpenAI,
		CompletionAPIKey:   "sk-test",
		CompletionBaseURL:  config.DefaultCompletionBaseURL,
		CompletionModel:    config.DefaultCompletionModel,
	}

	c, err := newCompleter(context.Background(), cfg, security.NewSSRFGuard(), discardLogger())
	if err != nil {
		t.Fatalf("newCompleter() error = %v", err)
	}
	if _, ok := c.(*completion.OpenAIClient); !ok {
		t.Errorf("completer type = %T, want *completion.OpenAIClient", c)
	}
	if !c.Configured() {
		t.Error("completer with API key should be configured")
	}
}

func TestNewCompleter_Gemini(t *testing.T) {
	cfg := &config.Config{
		CompletionProvider: config.ProviderGemini,
		CompletionAPIKey:   "gemini-key",
		CompletionBaseURL:  config.DefaultCompletionBaseURL,
		CompletionModel:    config.DefaultCompletionModel,
	}

	c, err := newCompleter(context.Background(), cfg, security.NewSSRFGuard(), discardLogger())
	if err != nil {
		t.Fatalf("newCompleter() error = %v", err)
	}
	if _, ok := c.(*completion.GeminiClient); !ok {
		t.Errorf("completer type = %T, want *completion.GeminiClient", c)
	}
}

func TestNewCompleter_BlockedBaseURL_ReturnsError(t *testing.T) {
	for _, baseURL := range []string{"http://localhost:8080/v1", "http://169.254.169.254/v1", "ftp://example.com"} {
		cfg := &config.Config{
			CompletionProvider: config.ProviderOpenAI,
			CompletionAPIKey:   "sk-test",
			CompletionBaseURL:  baseURL,
		}

		if _, err := newCompleter(context.Background(), cfg, security.NewSSRFGuard(), discardLogger()); err == nil {
			t.Errorf("newCompleter(%q) should fail", baseURL)
		}
	}
}

func TestNewIdempotencyStore_WithoutRedis_UsesMemory(t *testing.T) {
	store, closeFn, err := newIdempotencyStore(context.Background(), &config.Config{})
	if err != nil {
		t.Fatalf("newIdempotencyStore() error = %v", err)
	}
	defer closeFn()

	if _, ok := store.(*idempotency.MemoryStore); !ok {
		t.Errorf("store type = %T, want *idempotency.MemoryStore", store)
	}
}

func TestNewIdempotencyStore_InvalidRedisURL_ReturnsError(t *testing.T) {
	_, _, err := newIdempotencyStore(context.Background(), &config.Config{RedisURL: "not a url"})
	if err == nil {
		t.Fatal("expected error for invalid REDIS_URL")
	}
}

func TestCompletionPolicy_FromConfig(t *testing.T) {
	cfg := &config.Config{
		CompletionSystemPrompt: "sys",
		CompletionUserTemplate: "Humanize this text: {{input}}",
		CompletionMaxTokens:    256,
		CompletionTemperature:  0.5,
	}

	req := completionPolicy(cfg).Request("hello")
	if req.SystemPrompt != "sys" || req.UserPrompt != "Humanize this text: hello" {
		t.Errorf("unexpected request: %+v", req)
	}
	if req.MaxTokens != 256 || req.Temperature != 0.5 {
		t.Errorf("unexpected parameters: %+v", req)
	}
}
