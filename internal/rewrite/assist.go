package rewrite

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/humanize/internal/completion"
	"github.com/hitoshi/humanize/internal/model"
)

// 単語の言い換え候補と変更理由の説明に使うプロンプト。クレジットは消費しない。
const (
	alternativesSystemPrompt = "You are an expert at rewriting text to sound more human and natural."
	alternativesMaxTokens    = 32
	alternativesTemperature  = 0.8

	explainSystemPrompt = "You are an expert at explaining AI text rewriting choices for humanization."
	explainMaxTokens    = 64
	explainTemperature  = 0.6

	// maxAssistContextChars は補助機能に渡す文脈の上限文字数。
	maxAssistContextChars = 2000
	maxAlternatives       = 3
)

// Alternatives は文中の単語をより自然にする言い換え候補を最大3件返す。
// 上流の失敗時は空のスライスを返す。
func (s *Service) Alternatives(ctx context.Context, word, sentence string) ([]string, error) {
	word = strings.TrimSpace(word)
	if word == "" {
		return nil, model.NewValidationError("word is required.")
	}
	if err := checkContextLength(sentence); err != nil {
		return nil, err
	}
	if !s.completer.Configured() {
		return []string{}, nil
	}

	req := assistRequest(alternativesSystemPrompt,
		fmt.Sprintf("Suggest 3 alternative, more human-sounding replacements for the word %q in the following sentence. "+
			"Only return the alternatives, comma-separated, and do not repeat the original word.\n\nSentence: %s", word, sentence),
		alternativesMaxTokens, alternativesTemperature)

	content, err := s.complete(ctx, req)
	if err != nil {
		slog.Warn("alternatives upstream call failed", slog.String("error", err.Error()))
		return []string{}, nil
	}
	return splitAlternatives(content, word), nil
}

// Explain は元の語句から変更後の語句を選んだ理由を1〜2文で返す。
// 上流の失敗時は空文字列を返す。
func (s *Service) Explain(ctx context.Context, original, changed, sentence string) (string, error) {
	if strings.TrimSpace(changed) == "" {
		return "", model.NewValidationError("changed is required.")
	}
	if err := checkContextLength(sentence); err != nil {
		return "", err
	}
	if !s.completer.Configured() {
		return "", nil
	}

	req := assistRequest(explainSystemPrompt,
		fmt.Sprintf("Explain in 1-2 sentences why the phrase %q was chosen instead of %q in the following context. "+
			"Focus on how it improves human-likeness, tone, or clarity.\n\nContext: %s", changed, original, sentence),
		explainMaxTokens, explainTemperature)

	content, err := s.complete(ctx, req)
	if err != nil {
		slog.Warn("explain upstream call failed", slog.String("error", err.Error()))
		return "", nil
	}
	return content, nil
}

func assistRequest(system, user string, maxTokens int, temperature float64) completion.Request {
	return completion.Request{
		SystemPrompt: system,
		UserPrompt:   user,
		MaxTokens:    maxTokens,
		Temperature:  temperature,
	}
}

func checkContextLength(sentence string) error {
	if n := utf8.RuneCountInString(sentence); n > maxAssistContextChars {
		return model.NewInputTooLongError(n, maxAssistContextChars)
	}
	return nil
}

// splitAlternatives はカンマ区切りの候補を分割し、空要素と元の単語を除く。
func splitAlternatives(content, word string) []string {
	out := []string{}
	for _, part := range strings.Split(content, ",") {
		alt := strings.Trim(strings.TrimSpace(part), `."'`)
		if alt == "" || strings.EqualFold(alt, word) {
			continue
		}
		out = append(out, alt)
		if len(out) == maxAlternatives {
			break
		}
	}
	return out
}
