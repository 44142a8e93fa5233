// Package completion はテキスト補完APIのクライアントを提供する。
// OpenAI互換のchat completionsエンドポイントとGemini APIに対応する。
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// InputPlaceholder はユーザープロンプトのテンプレート中で入力テキストに置き換える文字列。
const InputPlaceholder = "{{input}}"

// ErrNotConfigured はAPIキーが未設定の場合に返る。
var ErrNotConfigured = errors.New("completion API key is not configured")

// Request は補完API呼び出し1回分のパラメータ。
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// Completer は補完APIのクライアントインターフェース。
type Completer interface {
	// Complete は補完を1回だけ要求し、先頭候補の前後空白を除いたテキストを返す。
	// 候補が無い場合は空文字列とnilを返す。リトライは行わない。
	Complete(ctx context.Context, req Request) (string, error)

	// Configured はAPIキーが設定されているかを返す。
	Configured() bool
}

// Policy はリライト用プロンプトと生成パラメータの組。
type Policy struct {
	SystemPrompt string
	UserTemplate string
	MaxTokens    int
	Temperature  float64
}

// Request は入力テキストを埋め込んだRequestを生成する。
// テンプレートにプレースホルダーが無い場合は末尾に入力を連結する。
func (p Policy) Request(input string) Request {
	var user string
	if strings.Contains(p.UserTemplate, InputPlaceholder) {
		user = strings.ReplaceAll(p.UserTemplate, InputPlaceholder, input)
	} else {
		user = p.UserTemplate + input
	}
	return Request{
		SystemPrompt: p.SystemPrompt,
		UserPrompt:   user,
		MaxTokens:    p.MaxTokens,
		Temperature:  p.Temperature,
	}
}

// UpstreamError は補完APIの呼び出し失敗を表す。
// Messageは上流が返したエラーメッセージで、取得できない場合は空。
type UpstreamError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("completion upstream error (status %d): %s", e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("completion upstream error: %v", e.Err)
	default:
		return fmt.Sprintf("completion upstream error (status %d)", e.StatusCode)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// unconfigured はAPIキー未設定時に使うCompleter。
type unconfigured struct{}

func (unconfigured) Complete(context.Context, Request) (string, error) { return "", ErrNotConfigured }
func (unconfigured) Configured() bool                                    { return false }

// Unconfigured は常にErrNotConfiguredを返すCompleterを返す。
func Unconfigured() Completer { return unconfigured{} }
